package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/polybets/betrouter/internal/domain"
	"github.com/polybets/betrouter/internal/store/memory"
)

// stubService marks submitted slips placed without touching any venue.
type stubService struct {
	slips domain.BetSlipStore
	err   error
}

func (s *stubService) Submit(ctx context.Context, slip *domain.BetSlip) error {
	if s.err != nil {
		return s.err
	}
	slip.Status = domain.SlipStatusPending
	if err := s.slips.Create(ctx, slip); err != nil {
		return err
	}
	if err := s.slips.UpdateStatus(ctx, slip.ID, domain.SlipStatusProcessing, ""); err != nil {
		return err
	}
	return s.slips.UpdateStatus(ctx, slip.ID, domain.SlipStatusPlaced, "")
}

func (s *stubService) Liquidate(ctx context.Context, slipID string) error {
	if s.err != nil {
		return s.err
	}
	slip, err := s.slips.Get(ctx, slipID)
	if err != nil {
		return err
	}
	if slip.Status != domain.SlipStatusPlaced {
		return domain.ErrInvalidTransition
	}
	return s.slips.UpdateStatus(ctx, slipID, domain.SlipStatusSelling, "")
}

func newTestHandler(t *testing.T) (*SlipHandler, *memory.SlipStore, *memory.BetStore) {
	t.Helper()
	slips := memory.NewSlipStore()
	bets := memory.NewBetStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewSlipHandler(&stubService{slips: slips}, slips, bets, logger)
	return h, slips, bets
}

func newMux(h *SlipHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/betslips", h.SubmitSlip)
	mux.HandleFunc("GET /api/betslips", h.ListSlips)
	mux.HandleFunc("GET /api/betslips/{id}", h.GetSlip)
	mux.HandleFunc("GET /api/betslips/{id}/legs", h.ListLegs)
	mux.HandleFunc("POST /api/betslips/{id}/sell", h.SellSlip)
	return mux
}

func TestSubmitSlipCreated(t *testing.T) {
	h, _, _ := newTestHandler(t)
	mux := newMux(h)

	body := `{"user":"alice","parentMarketId":"parent-1","outcomeIndex":1,"collateral":1000000,"instantArbitrage":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/betslips", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp slipResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	require.Equal(t, "alice", resp.User)
	require.Equal(t, "placed", resp.Status)
	require.Equal(t, string(domain.StrategyMaximizeShares), resp.Strategy)
	require.True(t, resp.InstantArbitrage)
}

func TestSubmitSlipValidatesBody(t *testing.T) {
	h, _, _ := newTestHandler(t)
	mux := newMux(h)

	tests := []struct {
		name string
		body string
	}{
		{"missing user", `{"parentMarketId":"p","collateral":100}`},
		{"missing market", `{"user":"alice","collateral":100}`},
		{"zero collateral", `{"user":"alice","parentMarketId":"p","collateral":0}`},
		{"malformed json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/betslips", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetSlipNotFound(t *testing.T) {
	h, _, _ := newTestHandler(t)
	mux := newMux(h)

	req := httptest.NewRequest(http.MethodGet, "/api/betslips/unknown", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListLegsReturnsSlipLegs(t *testing.T) {
	h, slips, bets := newTestHandler(t)
	mux := newMux(h)
	ctx := context.Background()

	require.NoError(t, slips.Create(ctx, &domain.BetSlip{ID: "slip-1", User: "alice", Status: domain.SlipStatusPlaced}))
	require.NoError(t, bets.Create(ctx, &domain.ProxiedBet{
		ID:           "leg-1",
		SlipID:       "slip-1",
		VenueID:      "v1",
		MarketID:     "m1",
		SharesBought: 10,
		Outcome:      domain.LegOutcomePlaced,
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/betslips/slip-1/legs", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp listLegsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Legs, 1)
	require.Equal(t, "leg-1", resp.Legs[0].ID)
	require.Equal(t, "v1", resp.Legs[0].VenueID)
}

func TestListSlipsRequiresUser(t *testing.T) {
	h, _, _ := newTestHandler(t)
	mux := newMux(h)

	req := httptest.NewRequest(http.MethodGet, "/api/betslips", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSellSlipMovesToSelling(t *testing.T) {
	h, slips, _ := newTestHandler(t)
	mux := newMux(h)
	ctx := context.Background()

	require.NoError(t, slips.Create(ctx, &domain.BetSlip{ID: "slip-1", User: "alice", Status: domain.SlipStatusPlaced}))

	req := httptest.NewRequest(http.MethodPost, "/api/betslips/slip-1/sell", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp slipResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "selling", resp.Status)
}

func TestSellSlipRejectsWrongState(t *testing.T) {
	h, slips, _ := newTestHandler(t)
	mux := newMux(h)
	ctx := context.Background()

	require.NoError(t, slips.Create(ctx, &domain.BetSlip{ID: "slip-1", User: "alice", Status: domain.SlipStatusPending}))

	req := httptest.NewRequest(http.MethodPost, "/api/betslips/slip-1/sell", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/betslips/missing/sell", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
