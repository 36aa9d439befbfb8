package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/polybets/betrouter/internal/domain"
)

// SlipService defines what the slip handler needs from the orchestrator.
type SlipService interface {
	Submit(ctx context.Context, slip *domain.BetSlip) error
	Liquidate(ctx context.Context, slipID string) error
}

// SlipHandler serves bet slip HTTP endpoints.
type SlipHandler struct {
	service SlipService
	slips   domain.BetSlipStore
	bets    domain.ProxiedBetStore
	logger  *slog.Logger
}

// NewSlipHandler creates a SlipHandler.
func NewSlipHandler(service SlipService, slips domain.BetSlipStore, bets domain.ProxiedBetStore, logger *slog.Logger) *SlipHandler {
	return &SlipHandler{
		service: service,
		slips:   slips,
		bets:    bets,
		logger:  logger,
	}
}

// submitSlipRequest is the POST body for creating a slip.
type submitSlipRequest struct {
	User             string `json:"user"`
	ParentMarketID   string `json:"parentMarketId"`
	OutcomeIndex     int    `json:"outcomeIndex"`
	Collateral       int64  `json:"collateral"`
	Strategy         string `json:"strategy,omitempty"`
	InstantArbitrage bool   `json:"instantArbitrage"`
}

type slipResponse struct {
	ID                string    `json:"id"`
	User              string    `json:"user"`
	Strategy          string    `json:"strategy"`
	ParentMarketID    string    `json:"parentMarketId"`
	OutcomeIndex      int       `json:"outcomeIndex"`
	InitialCollateral int64     `json:"initialCollateral"`
	FinalCollateral   int64     `json:"finalCollateral"`
	DustAmount        int64     `json:"dustAmount"`
	Status            string    `json:"status"`
	InstantArbitrage  bool      `json:"instantArbitrage"`
	FailureReason     string    `json:"failureReason,omitempty"`
	Legs              []string  `json:"legs"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type legResponse struct {
	ID                 string     `json:"id"`
	SlipID             string     `json:"slipId"`
	VenueID            string     `json:"venueId"`
	MarketID           string     `json:"marketId"`
	OptionIndex        int        `json:"optionIndex"`
	MinimumShares      int64      `json:"minimumShares"`
	OriginalCollateral int64      `json:"originalCollateral"`
	FinalCollateral    int64      `json:"finalCollateral"`
	SharesBought       int64      `json:"sharesBought"`
	SharesSold         int64      `json:"sharesSold"`
	Outcome            string     `json:"outcome"`
	FailureReason      string     `json:"failureReason,omitempty"`
	PlacedAt           time.Time  `json:"placedAt"`
	SettledAt          *time.Time `json:"settledAt,omitempty"`
}

// SubmitSlip creates and executes a new bet slip.
// POST /api/betslips
func (h *SlipHandler) SubmitSlip(w http.ResponseWriter, r *http.Request) {
	var req submitSlipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.User == "" || req.ParentMarketID == "" {
		writeError(w, http.StatusBadRequest, "user and parentMarketId are required")
		return
	}
	if req.Collateral <= 0 {
		writeError(w, http.StatusBadRequest, "collateral must be positive")
		return
	}

	strategy := domain.BetStrategy(req.Strategy)
	if strategy == "" {
		strategy = domain.StrategyMaximizeShares
	}

	slip := &domain.BetSlip{
		ID:                uuid.NewString(),
		User:              req.User,
		Strategy:          strategy,
		ParentMarketID:    req.ParentMarketID,
		OutcomeIndex:      req.OutcomeIndex,
		InitialCollateral: req.Collateral,
		InstantArbitrage:  req.InstantArbitrage,
	}

	if err := h.service.Submit(r.Context(), slip); err != nil {
		if errors.Is(err, domain.ErrInvalidParams) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: submit slip failed",
			slog.String("slip_id", slip.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to submit slip")
		return
	}

	stored, err := h.slips.Get(r.Context(), slip.ID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: load submitted slip failed",
			slog.String("slip_id", slip.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load slip")
		return
	}

	writeJSON(w, http.StatusCreated, toSlipResponse(stored))
}

// GetSlip returns one slip by ID.
// GET /api/betslips/{id}
func (h *SlipHandler) GetSlip(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing slip id")
		return
	}

	slip, err := h.slips.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "slip not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get slip failed",
			slog.String("slip_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get slip")
		return
	}

	writeJSON(w, http.StatusOK, toSlipResponse(slip))
}

// SellSlip liquidates the open legs of a placed slip at market prices.
// POST /api/betslips/{id}/sell
func (h *SlipHandler) SellSlip(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing slip id")
		return
	}

	if err := h.service.Liquidate(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "slip not found")
		case errors.Is(err, domain.ErrInvalidTransition):
			writeError(w, http.StatusConflict, "slip is not in a sellable state")
		default:
			h.logger.ErrorContext(r.Context(), "handler: sell slip failed",
				slog.String("slip_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to sell slip")
		}
		return
	}

	slip, err := h.slips.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load slip")
		return
	}
	writeJSON(w, http.StatusOK, toSlipResponse(slip))
}

// listSlipsResponse wraps the list slips response.
type listSlipsResponse struct {
	Slips []slipResponse `json:"slips"`
}

// ListSlips returns slips for a user, newest first.
// GET /api/betslips?user=...&limit=50&offset=0
func (h *SlipHandler) ListSlips(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "user query parameter required")
		return
	}

	slips, err := h.slips.ListByUser(r.Context(), user, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list slips failed",
			slog.String("user", user),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list slips")
		return
	}

	out := listSlipsResponse{Slips: make([]slipResponse, 0, len(slips))}
	for _, slip := range slips {
		out.Slips = append(out.Slips, toSlipResponse(slip))
	}
	writeJSON(w, http.StatusOK, out)
}

// listLegsResponse wraps the list legs response.
type listLegsResponse struct {
	Legs []legResponse `json:"legs"`
}

// ListLegs returns the venue-level legs of one slip.
// GET /api/betslips/{id}/legs
func (h *SlipHandler) ListLegs(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing slip id")
		return
	}

	if _, err := h.slips.Get(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "slip not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get slip")
		return
	}

	legs, err := h.bets.ListBySlip(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list legs failed",
			slog.String("slip_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list legs")
		return
	}

	out := listLegsResponse{Legs: make([]legResponse, 0, len(legs))}
	for _, leg := range legs {
		out.Legs = append(out.Legs, toLegResponse(leg))
	}
	writeJSON(w, http.StatusOK, out)
}

func toSlipResponse(slip *domain.BetSlip) slipResponse {
	legs := slip.Legs
	if legs == nil {
		legs = []string{}
	}
	return slipResponse{
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
		Legs:              legs,
		CreatedAt:         slip.CreatedAt,
		UpdatedAt:         slip.UpdatedAt,
	}
}

func toLegResponse(leg *domain.ProxiedBet) legResponse {
	return legResponse{
		ID:                 leg.ID,
		SlipID:             leg.SlipID,
		VenueID:            leg.VenueID,
		MarketID:           leg.MarketID,
		OptionIndex:        leg.OptionIndex,
		MinimumShares:      leg.MinimumShares,
		OriginalCollateral: leg.OriginalCollateralAmount,
		FinalCollateral:    leg.FinalCollateralAmount,
		SharesBought:       leg.SharesBought,
		SharesSold:         leg.SharesSold,
		Outcome:            string(leg.Outcome),
		FailureReason:      leg.FailureReason,
		PlacedAt:           leg.PlacedAt,
		SettledAt:          leg.SettledAt,
	}
}
