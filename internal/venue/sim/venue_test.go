package sim

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polybets/betrouter/internal/domain"
	"github.com/polybets/betrouter/internal/venue"
)

func TestBalancedMarketQuotesEven(t *testing.T) {
	v := New("sim-1")
	require.NoError(t, v.AddMarket("m1", 50, 50))

	q, err := v.Quote(context.Background(), "m1")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, q.Price0, 0.002)
	assert.InDelta(t, 1.0, q.Price0+q.Price1, 1e-9)
}

func TestBuyMovesPrice(t *testing.T) {
	v := New("sim-1")
	require.NoError(t, v.AddMarket("m1", 50, 50))
	ctx := context.Background()

	before, err := v.Quote(ctx, "m1")
	require.NoError(t, err)

	fill, err := v.Buy(ctx, venue.BuyOrder{MarketID: "m1", Side: 0, CollateralBudget: 40})
	require.NoError(t, err)
	assert.Positive(t, fill.Shares)
	assert.LessOrEqual(t, fill.CollateralSpent, int64(40))

	after, err := v.Quote(ctx, "m1")
	require.NoError(t, err)
	assert.Greater(t, after.Price0, before.Price0)
	assert.Less(t, after.Price1, before.Price1)
}

func TestBuySlippageFloor(t *testing.T) {
	v := New("sim-1")
	require.NoError(t, v.AddMarket("m1", 50, 50))

	_, err := v.Buy(context.Background(), venue.BuyOrder{
		MarketID: "m1", Side: 0, CollateralBudget: 10, MinShares: 1_000_000,
	})
	require.ErrorIs(t, err, domain.ErrSlippageExceeded)

	var verr *domain.VenueError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "sim-1", verr.VenueID)
	assert.Equal(t, "buy", verr.Op)
}

func TestSellRequiresHeldShares(t *testing.T) {
	v := New("sim-1")
	require.NoError(t, v.AddMarket("m1", 50, 50))
	ctx := context.Background()

	_, err := v.Sell(ctx, venue.SellOrder{MarketID: "m1", Side: 0, Shares: 5})
	require.ErrorIs(t, err, domain.ErrInsufficientShares)

	fill, err := v.Buy(ctx, venue.BuyOrder{MarketID: "m1", Side: 0, CollateralBudget: 30})
	require.NoError(t, err)

	proceeds, err := v.Sell(ctx, venue.SellOrder{MarketID: "m1", Side: 0, Shares: fill.Shares})
	require.NoError(t, err)
	assert.Positive(t, proceeds)
	assert.LessOrEqual(t, proceeds, fill.CollateralSpent+1)
}

func TestClaimPaysWinningSideOnce(t *testing.T) {
	v := New("sim-1")
	require.NoError(t, v.AddMarket("m1", 50, 50))
	ctx := context.Background()

	fill, err := v.Buy(ctx, venue.BuyOrder{MarketID: "m1", Side: 1, CollateralBudget: 25})
	require.NoError(t, err)

	// Unresolved markets have nothing to claim yet.
	_, err = v.Claim(ctx, "m1")
	require.ErrorIs(t, err, domain.ErrVenueUnavailable)

	require.NoError(t, v.Resolve("m1", 1))

	payout, err := v.Claim(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, fill.Shares, payout)

	again, err := v.Claim(ctx, "m1")
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestResolvedMarketRejectsBuys(t *testing.T) {
	v := New("sim-1")
	require.NoError(t, v.AddMarket("m1", 50, 50))
	require.NoError(t, v.Resolve("m1", 0))

	_, err := v.Buy(context.Background(), venue.BuyOrder{MarketID: "m1", Side: 0, CollateralBudget: 10})
	require.ErrorIs(t, err, domain.ErrInsufficientLiquidity)
}
