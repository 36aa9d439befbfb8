package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/polybets/betrouter/internal/domain"
	"github.com/polybets/betrouter/internal/venue"
)

// QuoteHandler serves venue market quotes, read through a short-TTL cache so
// bursts of quote traffic do not hammer the venue adapters.
type QuoteHandler struct {
	venues *venue.Registry
	cache  domain.QuoteCache
	logger *slog.Logger
}

// NewQuoteHandler creates a QuoteHandler. cache may be nil, in which case
// every request hits the venue directly.
func NewQuoteHandler(venues *venue.Registry, cache domain.QuoteCache, logger *slog.Logger) *QuoteHandler {
	return &QuoteHandler{
		venues: venues,
		cache:  cache,
		logger: logger,
	}
}

type quoteResponse struct {
	VenueID  string    `json:"venueId"`
	MarketID string    `json:"marketId"`
	Price0   float64   `json:"price0"`
	Price1   float64   `json:"price1"`
	Cached   bool      `json:"cached"`
	QuotedAt time.Time `json:"quotedAt"`
}

// GetQuote returns the two-sided price of one venue market.
// GET /api/venues/{venueId}/markets/{marketId}/quote
func (h *QuoteHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	venueID := pathParam(r, "venueId")
	marketID := pathParam(r, "marketId")
	if venueID == "" || marketID == "" {
		writeError(w, http.StatusBadRequest, "missing venue or market id")
		return
	}

	if h.cache != nil {
		if quote, at, err := h.cache.GetQuote(r.Context(), venueID, marketID); err == nil {
			writeJSON(w, http.StatusOK, quoteResponse{
				VenueID:  venueID,
				MarketID: marketID,
				Price0:   quote.Price0,
				Price1:   quote.Price1,
				Cached:   true,
				QuotedAt: at,
			})
			return
		}
	}

	adapter, err := h.venues.Get(venueID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown venue")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to resolve venue")
		return
	}

	quote, err := adapter.Quote(r.Context(), marketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown market")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: quote failed",
			slog.String("venue_id", venueID),
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "venue quote failed")
		return
	}

	if h.cache != nil {
		if err := h.cache.SetQuote(r.Context(), venueID, marketID, quote); err != nil {
			h.logger.WarnContext(r.Context(), "handler: quote cache write failed",
				slog.String("venue_id", venueID),
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}

	writeJSON(w, http.StatusOK, quoteResponse{
		VenueID:  venueID,
		MarketID: marketID,
		Price0:   quote.Price0,
		Price1:   quote.Price1,
		QuotedAt: time.Now().UTC(),
	})
}
