package allocator

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polybets/betrouter/internal/domain"
)

func targets(n int) []domain.TargetMarket {
	out := make([]domain.TargetMarket, n)
	for i := range out {
		out[i] = domain.TargetMarket{
			VenueID:  fmt.Sprintf("venue-%d", i),
			MarketID: fmt.Sprintf("market-%d", i),
		}
	}
	return out
}

func TestAllocateEvenSplit(t *testing.T) {
	a, err := New(rand.New(rand.NewSource(1)), 0.01, 0.05)
	require.NoError(t, err)

	allocs, err := a.Allocate(120, targets(4), domain.StrategyMaximizePrivacy, 0.5)
	require.NoError(t, err)
	require.Len(t, allocs, 4)
	for _, al := range allocs {
		assert.EqualValues(t, 30, al.Collateral)
		assert.Zero(t, al.TargetOdds)
		assert.Zero(t, al.Variance)
	}
}

func TestAllocateSumInvariant(t *testing.T) {
	a, err := New(rand.New(rand.NewSource(7)), 0.01, 0.05)
	require.NoError(t, err)

	cases := []struct {
		total  int64
		venues int
	}{
		{1, 1}, {7, 3}, {100, 3}, {1_000_003, 7}, {120, 4},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d_across_%d", tc.total, tc.venues), func(t *testing.T) {
			allocs, err := a.Allocate(tc.total, targets(tc.venues), domain.StrategyMaximizeShares, 0.6)
			require.NoError(t, err)

			// Every leg gets the same stake; the remainder is dust, not
			// extra collateral on any leg.
			per := tc.total / int64(tc.venues)
			var sum int64
			for _, al := range allocs {
				assert.Equal(t, per, al.Collateral)
				sum += al.Collateral
			}
			assert.Equal(t, tc.total, sum+Dust(tc.total, tc.venues))
		})
	}
}

func TestAllocateMaximizeSharesOddsStayBounded(t *testing.T) {
	a, err := New(rand.New(rand.NewSource(42)), 0.05, 0.30)
	require.NoError(t, err)

	for _, base := range []float64{0.04, 0.10, 0.50, 0.90, 0.97} {
		allocs, err := a.Allocate(1000, targets(8), domain.StrategyMaximizeShares, base)
		require.NoError(t, err)
		for _, al := range allocs {
			assert.GreaterOrEqual(t, al.TargetOdds, probFloor, "base %v", base)
			assert.LessOrEqual(t, al.TargetOdds, probCeil, "base %v", base)
			assert.GreaterOrEqual(t, al.Variance, 0.05)
			assert.LessOrEqual(t, al.Variance, 0.30)
		}
	}
}

func TestAllocateDeterministicWithSeed(t *testing.T) {
	mk := func() []Allocation {
		a, err := New(rand.New(rand.NewSource(99)), 0.01, 0.10)
		require.NoError(t, err)
		allocs, err := a.Allocate(500, targets(3), domain.StrategyMaximizeShares, 0.65)
		require.NoError(t, err)
		return allocs
	}
	assert.Equal(t, mk(), mk())
}

func TestAllocateRejectsBadInput(t *testing.T) {
	a, err := New(rand.New(rand.NewSource(1)), 0.01, 0.05)
	require.NoError(t, err)

	_, err = a.Allocate(0, targets(2), domain.StrategyMaximizeShares, 0.5)
	assert.ErrorIs(t, err, domain.ErrInvalidParams)

	_, err = a.Allocate(-10, targets(2), domain.StrategyMaximizeShares, 0.5)
	assert.ErrorIs(t, err, domain.ErrInvalidParams)

	_, err = a.Allocate(100, nil, domain.StrategyMaximizeShares, 0.5)
	assert.ErrorIs(t, err, domain.ErrInvalidParams)

	// Fewer micro-units than venues cannot give every leg a stake.
	_, err = a.Allocate(5, targets(6), domain.StrategyMaximizeShares, 0.5)
	assert.ErrorIs(t, err, domain.ErrInvalidParams)

	_, err = New(rand.New(rand.NewSource(1)), 0.10, 0.05)
	assert.ErrorIs(t, err, domain.ErrInvalidParams)
}
