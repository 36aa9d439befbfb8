package domain

import (
	"context"
	"time"
)

// LegOutcomeEvent is one settlement update delivered to the orchestrator.
// The transport (chain poller, websocket feed, redis bus) is irrelevant as
// long as events for one slip are applied under that slip's lock.
type LegOutcomeEvent struct {
	LegID            string     `json:"leg_id"`
	VenueID          string     `json:"venue_id"`
	MarketID         string     `json:"market_id"`
	Outcome          LegOutcome `json:"outcome"`
	SettlementAmount int64      `json:"settlement_amount"`
	At               time.Time  `json:"at"`
}

// StreamMessage is one durable bus entry.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus is ephemeral pub/sub plus durable append-only streams, used to
// fan settlement events from feeds to the orchestrator.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream, lastID string, count int) ([]StreamMessage, error)
}

// QuoteCache caches venue quotes with a short TTL.
type QuoteCache interface {
	SetQuote(ctx context.Context, venueID, marketID string, quote Quote) error
	GetQuote(ctx context.Context, venueID, marketID string) (Quote, time.Time, error)
}
