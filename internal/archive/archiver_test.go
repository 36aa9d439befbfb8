package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/polybets/betrouter/internal/domain"
	"github.com/polybets/betrouter/internal/store/memory"
)

type captureWriter struct {
	path string
	body []byte
}

func (w *captureWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	w.path = path
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.body = b
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveFinishedSlips(t *testing.T) {
	ctx := context.Background()
	slips := memory.NewSlipStore()
	bets := memory.NewBetStore()

	closed := &domain.BetSlip{
		ID:                "slip-closed",
		User:              "alice",
		Strategy:          domain.StrategyMaximizeShares,
		ParentMarketID:    "parent-1",
		InitialCollateral: 1_000_000,
		FinalCollateral:   1_200_000,
		Status:            domain.SlipStatusPending,
	}
	require.NoError(t, slips.Create(ctx, closed))
	require.NoError(t, slips.UpdateStatus(ctx, closed.ID, domain.SlipStatusProcessing, ""))
	require.NoError(t, slips.UpdateStatus(ctx, closed.ID, domain.SlipStatusPlaced, ""))
	require.NoError(t, slips.UpdateStatus(ctx, closed.ID, domain.SlipStatusClosed, ""))

	open := &domain.BetSlip{ID: "slip-open", User: "alice", Status: domain.SlipStatusPending}
	require.NoError(t, slips.Create(ctx, open))
	require.NoError(t, slips.UpdateStatus(ctx, open.ID, domain.SlipStatusProcessing, ""))
	require.NoError(t, slips.UpdateStatus(ctx, open.ID, domain.SlipStatusPlaced, ""))

	require.NoError(t, bets.Create(ctx, &domain.ProxiedBet{
		ID:           "leg-1",
		SlipID:       closed.ID,
		VenueID:      "v1",
		MarketID:     "m1",
		SharesBought: 42,
		Outcome:      domain.LegOutcomeWon,
		PlacedAt:     time.Now(),
	}))

	writer := &captureWriter{}
	a := New(writer, slips, bets, testLogger())

	count, err := a.ArchiveFinishedSlips(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Contains(t, writer.path, "archive/slips/")

	lines := bytes.Split(bytes.TrimSpace(writer.body), []byte("\n"))
	require.Len(t, lines, 1)

	var snap slipSnapshot
	require.NoError(t, json.Unmarshal(lines[0], &snap))
	require.Equal(t, "slip-closed", snap.ID)
	require.Equal(t, "closed", snap.Status)
	require.Len(t, snap.Legs, 1)
	require.Equal(t, "leg-1", snap.Legs[0].ID)
	require.EqualValues(t, 42, snap.Legs[0].SharesBought)
}

func TestArchiveFinishedSlipsNothingToDo(t *testing.T) {
	ctx := context.Background()
	writer := &captureWriter{}
	a := New(writer, memory.NewSlipStore(), memory.NewBetStore(), testLogger())

	count, err := a.ArchiveFinishedSlips(ctx, time.Now())
	require.NoError(t, err)
	require.Zero(t, count)
	require.Empty(t, writer.path)
}
