// Package archive moves finished slips out of the primary store into object
// storage as JSONL snapshots, one line per slip with its legs embedded.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/polybets/betrouter/internal/domain"
)

// SlipArchiveStore provides read access to finished slips for archival. The
// Postgres and in-memory slip stores satisfy it.
type SlipArchiveStore interface {
	// ListFinishedBefore returns slips in a terminal status whose last update
	// is strictly before the cutoff.
	ListFinishedBefore(ctx context.Context, before time.Time) ([]*domain.BetSlip, error)
}

// slipSnapshot is the archived representation of one slip and its legs.
type slipSnapshot struct {
	ID                string        `json:"id"`
	User              string        `json:"user"`
	Strategy          string        `json:"strategy"`
	ParentMarketID    string        `json:"parentMarketId"`
	OutcomeIndex      int           `json:"outcomeIndex"`
	InitialCollateral int64         `json:"initialCollateral"`
	FinalCollateral   int64         `json:"finalCollateral"`
	DustAmount        int64         `json:"dustAmount"`
	Status            string        `json:"status"`
	InstantArbitrage  bool          `json:"instantArbitrage"`
	FailureReason     string        `json:"failureReason,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
	Legs              []legSnapshot `json:"legs"`
}

type legSnapshot struct {
	ID                 string     `json:"id"`
	VenueID            string     `json:"venueId"`
	MarketID           string     `json:"marketId"`
	OptionIndex        int        `json:"optionIndex"`
	OriginalCollateral int64      `json:"originalCollateral"`
	FinalCollateral    int64      `json:"finalCollateral"`
	SharesBought       int64      `json:"sharesBought"`
	SharesSold         int64      `json:"sharesSold"`
	Outcome            string     `json:"outcome"`
	FailureReason      string     `json:"failureReason,omitempty"`
	PlacedAt           time.Time  `json:"placedAt"`
	SettledAt          *time.Time `json:"settledAt,omitempty"`
}

// Archiver serializes finished slips to JSONL and uploads the result to blob
// storage. Deletion from the primary store is intentionally not performed
// here; that is a separate, explicit step after the archive is verified.
type Archiver struct {
	writer domain.BlobWriter
	slips  SlipArchiveStore
	bets   domain.ProxiedBetStore
	logger *slog.Logger
}

// New creates an Archiver.
func New(writer domain.BlobWriter, slips SlipArchiveStore, bets domain.ProxiedBetStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		slips:  slips,
		bets:   bets,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveFinishedSlips queries all closed and failed slips last updated before
// the cutoff, serializes each with its legs as one JSONL line, and uploads the
// file to archive/slips/YYYY-MM.jsonl. It returns the number of archived
// slips.
func (a *Archiver) ArchiveFinishedSlips(ctx context.Context, before time.Time) (int64, error) {
	slips, err := a.slips.ListFinishedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("archive: query finished slips: %w", err)
	}
	if len(slips) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for _, slip := range slips {
		legs, err := a.bets.ListBySlip(ctx, slip.ID)
		if err != nil {
			return 0, fmt.Errorf("archive: legs for slip %s: %w", slip.ID, err)
		}
		if err := enc.Encode(snapshotSlip(slip, legs)); err != nil {
			return 0, fmt.Errorf("archive: encode slip %s: %w", slip.ID, err)
		}
	}

	path := archivePath(before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf.Bytes()), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("archive: upload %s: %w", path, err)
	}

	count := int64(len(slips))
	a.logger.InfoContext(ctx, "slips archived",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Time("before", before))
	return count, nil
}

func snapshotSlip(slip *domain.BetSlip, legs []*domain.ProxiedBet) slipSnapshot {
	snap := slipSnapshot{
		ID:                slip.ID,
		User:              slip.User,
		Strategy:          string(slip.Strategy),
		ParentMarketID:    slip.ParentMarketID,
		OutcomeIndex:      slip.OutcomeIndex,
		InitialCollateral: slip.InitialCollateral,
		FinalCollateral:   slip.FinalCollateral,
		DustAmount:        slip.DustAmount,
		Status:            string(slip.Status),
		InstantArbitrage:  slip.InstantArbitrage,
		FailureReason:     slip.FailureReason,
		CreatedAt:         slip.CreatedAt,
		UpdatedAt:         slip.UpdatedAt,
		Legs:              make([]legSnapshot, 0, len(legs)),
	}
	for _, leg := range legs {
		snap.Legs = append(snap.Legs, legSnapshot{
			ID:                 leg.ID,
			VenueID:            leg.VenueID,
			MarketID:           leg.MarketID,
			OptionIndex:        leg.OptionIndex,
			OriginalCollateral: leg.OriginalCollateralAmount,
			FinalCollateral:    leg.FinalCollateralAmount,
			SharesBought:       leg.SharesBought,
			SharesSold:         leg.SharesSold,
			Outcome:            string(leg.Outcome),
			FailureReason:      leg.FailureReason,
			PlacedAt:           leg.PlacedAt,
			SettledAt:          leg.SettledAt,
		})
	}
	return snap
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/slips/2025-01.jsonl
func archivePath(before time.Time) string {
	return fmt.Sprintf("archive/slips/%s.jsonl", before.Format("2006-01"))
}
