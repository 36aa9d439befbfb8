package venue

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polybets/betrouter/internal/domain"
)

type scriptedAdapter struct {
	errs  []error
	calls int
}

func (s *scriptedAdapter) next() error {
	err := s.errs[s.calls]
	s.calls++
	return err
}

func (s *scriptedAdapter) Quote(context.Context, string) (domain.Quote, error) {
	if err := s.next(); err != nil {
		return domain.Quote{}, err
	}
	return domain.Quote{Price0: 0.5, Price1: 0.5}, nil
}

func (s *scriptedAdapter) Pool(context.Context, string) (domain.PoolState, error) {
	if err := s.next(); err != nil {
		return domain.PoolState{}, err
	}
	return domain.PoolState{B: 100, OutstandingQ: [2]float64{0, 0}}, nil
}

func (s *scriptedAdapter) Buy(context.Context, BuyOrder) (Fill, error) {
	if err := s.next(); err != nil {
		return Fill{}, err
	}
	return Fill{Shares: 10, CollateralSpent: 5}, nil
}

func (s *scriptedAdapter) Sell(context.Context, SellOrder) (int64, error) {
	if err := s.next(); err != nil {
		return 0, err
	}
	return 7, nil
}

func (s *scriptedAdapter) Claim(context.Context, string) (int64, error) {
	if err := s.next(); err != nil {
		return 0, err
	}
	return 3, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestRetryingRecoversFromTransientOutage(t *testing.T) {
	inner := &scriptedAdapter{errs: []error{
		domain.ErrVenueUnavailable,
		domain.ErrVenueUnavailable,
		nil,
	}}
	r := NewRetrying(inner, fastPolicy(4), testLogger())

	fill, err := r.Buy(context.Background(), BuyOrder{MarketID: "m1", CollateralBudget: 5})
	require.NoError(t, err)
	assert.EqualValues(t, 10, fill.Shares)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingDoesNotRetryTerminalErrors(t *testing.T) {
	for _, terminal := range []error{
		domain.ErrSlippageExceeded,
		domain.ErrInsufficientLiquidity,
		domain.ErrInsufficientShares,
	} {
		inner := &scriptedAdapter{errs: []error{terminal, nil}}
		r := NewRetrying(inner, fastPolicy(4), testLogger())

		_, err := r.Buy(context.Background(), BuyOrder{MarketID: "m1"})
		require.ErrorIs(t, err, terminal)
		assert.Equal(t, 1, inner.calls, "terminal error %v must not be retried", terminal)
	}
}

func TestRetryingExhaustsAttempts(t *testing.T) {
	inner := &scriptedAdapter{errs: []error{
		domain.ErrVenueUnavailable,
		domain.ErrVenueUnavailable,
		domain.ErrVenueUnavailable,
	}}
	r := NewRetrying(inner, fastPolicy(3), testLogger())

	_, err := r.Sell(context.Background(), SellOrder{MarketID: "m1", Shares: 1})
	require.ErrorIs(t, err, domain.ErrVenueUnavailable)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingHonorsContextCancellation(t *testing.T) {
	inner := &scriptedAdapter{errs: []error{
		domain.ErrVenueUnavailable,
		domain.ErrVenueUnavailable,
	}}
	r := NewRetrying(inner, RetryPolicy{MaxAttempts: 2, InitialDelay: time.Minute, MaxDelay: time.Minute}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Quote(ctx, "m1")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.calls)
}
