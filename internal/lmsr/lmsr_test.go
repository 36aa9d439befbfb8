package lmsr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polybets/betrouter/internal/domain"
)

func TestPriceSumsToOne(t *testing.T) {
	cases := []struct {
		name   string
		q0, q1 float64
		b      float64
	}{
		{"balanced", 0, 0, 100},
		{"skewed", 500, 20, 100},
		{"deep skew", 10000, 0, 50},
		{"negative offsets", -300, 150, 200},
		{"tiny b", 3, 9, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p0, err := Price(tc.q0, tc.q1, tc.b, 0)
			require.NoError(t, err)
			p1, err := Price(tc.q0, tc.q1, tc.b, 1)
			require.NoError(t, err)
			assert.InDelta(t, 1.0, p0+p1, 1e-6)
			assert.Greater(t, p0, 0.0)
			assert.Less(t, p0, 1.0)
			assert.Greater(t, p1, 0.0)
			assert.Less(t, p1, 1.0)
		})
	}
}

func TestPriceValidation(t *testing.T) {
	_, err := Price(0, 0, 0, 0)
	require.ErrorIs(t, err, domain.ErrInvalidParams)

	_, err = Price(0, 0, -5, 0)
	require.ErrorIs(t, err, domain.ErrInvalidParams)

	_, err = Price(0, 0, 100, 2)
	require.ErrorIs(t, err, domain.ErrInvalidParams)

	_, err = Cost(math.NaN(), 0, 100)
	require.ErrorIs(t, err, domain.ErrInvalidParams)
}

func TestCostMonotone(t *testing.T) {
	base, err := Cost(100, 100, 144)
	require.NoError(t, err)
	for _, dq := range []float64{1, 10, 250, 5000} {
		c0, err := Cost(100+dq, 100, 144)
		require.NoError(t, err)
		c1, err := Cost(100, 100+dq, 144)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, c0, base)
		assert.GreaterOrEqual(t, c1, base)
	}
}

func TestCostStableForLargeQ(t *testing.T) {
	// Naive exp(q/b) overflows here; log-sum-exp must not.
	c, err := Cost(1e6, 2e5, 10)
	require.NoError(t, err)
	assert.False(t, math.IsInf(c, 0))
	assert.False(t, math.IsNaN(c))
	assert.InDelta(t, 1e6, c, 1.0)
}

func TestSharesForBudgetNeverOverspends(t *testing.T) {
	budgets := []float64{0.5, 1, 30, 120, 1000, 25000}
	var prevShares int64 = -1
	for _, budget := range budgets {
		shares, cost, err := SharesForBudget(48, 112, 144, 0, budget)
		require.NoError(t, err)
		assert.LessOrEqual(t, cost, budget, "budget %v", budget)
		assert.GreaterOrEqual(t, shares, prevShares, "shares must grow with budget")
		if shares > 0 {
			// One more share would overspend.
			over, err := BuyCost(48, 112, 144, 0, shares+1)
			require.NoError(t, err)
			assert.Greater(t, over, budget)
		}
		prevShares = shares
	}
}

func TestSharesForBudgetBelowSinglePrice(t *testing.T) {
	one, err := BuyCost(0, 0, 100, 0, 1)
	require.NoError(t, err)

	shares, cost, err := SharesForBudget(0, 0, 100, 0, one/2)
	require.NoError(t, err)
	assert.Zero(t, shares)
	assert.Zero(t, cost)

	shares, cost, err = SharesForBudget(0, 0, 100, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, shares)
	assert.Zero(t, cost)
}

func TestSellProceedsMirrorsBuy(t *testing.T) {
	const b = 144.0
	q0, q1 := 30.0, 75.0

	cost, err := BuyCost(q0, q1, b, 1, 40)
	require.NoError(t, err)
	proceeds, err := SellProceeds(q0, q1+40, b, 1, 40)
	require.NoError(t, err)
	assert.InDelta(t, cost, proceeds, 1e-9)

	// Selling into the original state recovers less than buying cost.
	partial, err := SellProceeds(q0, q1+40, b, 1, 20)
	require.NoError(t, err)
	assert.Less(t, partial, cost)
	assert.Greater(t, partial, 0.0)
}

func TestCalibrate(t *testing.T) {
	cases := []struct {
		name       string
		liq0, liq1 float64
		wantP0     float64
	}{
		{"even", 500, 500, 0.5},
		{"favored side 0", 800, 200, 0.8},
		{"favored side 1", 100, 400, 0.2},
		{"strong skew", 999, 1, 0.999},
		{"zero side 0", 0, 1000, 1e-5},
		{"zero side 1", 1000, 0, 1 - 1e-5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params, err := Calibrate(tc.liq0, tc.liq1)
			require.NoError(t, err)
			assert.Greater(t, params.B, 0.0)
			assert.InDelta(t, tc.wantP0, params.Price0, 1e-9)
			assert.InDelta(t, 1.0, params.Price0+params.Price1, 1e-9)
			assert.LessOrEqual(t, params.MaxLoss, tc.liq0+tc.liq1+1e-9)

			// Realized pool prices track the seed odds.
			got, err := Price(params.Q0, params.Q1, params.B, 0)
			require.NoError(t, err)
			assert.InDelta(t, params.Price0, got, 0.002)
		})
	}
}

func TestCalibrateRejectsBadLiquidity(t *testing.T) {
	_, err := Calibrate(0, 0)
	require.ErrorIs(t, err, domain.ErrInvalidParams)

	_, err = Calibrate(-10, 100)
	require.ErrorIs(t, err, domain.ErrInvalidParams)
}

func TestMaxLoss(t *testing.T) {
	assert.InDelta(t, 100*math.Ln2, MaxLoss(100), 1e-12)
}
