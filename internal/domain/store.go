package domain

import (
	"context"
	"time"
)

// ListOpts paginates list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// BetSlipStore persists bet slips.
type BetSlipStore interface {
	Create(ctx context.Context, slip *BetSlip) error
	Get(ctx context.Context, id string) (*BetSlip, error)
	ListByUser(ctx context.Context, user string, opts ListOpts) ([]*BetSlip, error)
	// UpdateStatus applies a status change, validating the transition against
	// the slip's current status. Returns a *TransitionError on rejection.
	UpdateStatus(ctx context.Context, id string, next SlipStatus, failureReason string) error
	SetFinalCollateral(ctx context.Context, id string, final, dust int64) error
	SetLegs(ctx context.Context, id string, legIDs []string) error
}

// ProxiedBetStore persists per-venue legs.
type ProxiedBetStore interface {
	Create(ctx context.Context, bet *ProxiedBet) error
	Get(ctx context.Context, id string) (*ProxiedBet, error)
	ListBySlip(ctx context.Context, slipID string) ([]*ProxiedBet, error)
	ListOpenBySlip(ctx context.Context, slipID string) ([]*ProxiedBet, error)
	// ListOpenByMarket finds the open legs riding on one venue market, used
	// when a settlement feed reports that market resolved.
	ListOpenByMarket(ctx context.Context, venueID, marketID string) ([]*ProxiedBet, error)
	// MarkOutcome settles a leg, recording the amount actually recovered
	// (payout for Won, refund for Void, zero for Lost/Draw).
	MarkOutcome(ctx context.Context, id string, outcome LegOutcome, settlementAmount int64, settledAt time.Time) error
	// RecordSale settles a leg as Sold with the shares liquidated and the
	// proceeds recovered.
	RecordSale(ctx context.Context, id string, sharesSold, proceeds int64, settledAt time.Time) error
	// SetFailureReason annotates a leg without changing its outcome, used
	// when a liquidation attempt fails and the leg stays open.
	SetFailureReason(ctx context.Context, id, reason string) error
}

// VenueStore serves the venue roster.
type VenueStore interface {
	Get(ctx context.Context, id string) (*Venue, error)
	ListActive(ctx context.Context) ([]*Venue, error)
}

// MarketCatalog maps a parent market to its per-venue markets.
type MarketCatalog interface {
	Resolve(ctx context.Context, parentMarketID string) ([]TargetMarket, error)
}
