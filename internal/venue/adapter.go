// Package venue defines the uniform adapter contract over heterogeneous
// market-maker venues and a retry wrapper for transient venue outages.
package venue

import (
	"context"

	"github.com/polybets/betrouter/internal/domain"
)

// BuyOrder asks a venue to buy shares of one side of a binary market for at
// most CollateralBudget, refusing fills below MinShares.
type BuyOrder struct {
	MarketID         string
	Side             int
	CollateralBudget int64
	MinShares        int64
}

// Fill is a confirmed buy: what was bought and what it actually cost.
type Fill struct {
	Shares          int64
	CollateralSpent int64
}

// SellOrder asks a venue to sell shares back to the pool, refusing proceeds
// below MinProceeds.
type SellOrder struct {
	MarketID    string
	Side        int
	Shares      int64
	MinProceeds int64
}

// Adapter is the contract every concrete venue implements. All amounts are
// in micro-units. Implementations normalize venue-specific failures into the
// domain venue error taxonomy; callers retry only domain.ErrVenueUnavailable.
//
// Pool exposes the market's LMSR state so callers can cost a fill before
// committing to it; the slippage floor on a buy is derived from it.
type Adapter interface {
	Quote(ctx context.Context, marketID string) (domain.Quote, error)
	Pool(ctx context.Context, marketID string) (domain.PoolState, error)
	Buy(ctx context.Context, order BuyOrder) (Fill, error)
	Sell(ctx context.Context, order SellOrder) (int64, error)
	Claim(ctx context.Context, marketID string) (int64, error)
}
