package venue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/polybets/betrouter/internal/domain"
)

// RetryPolicy bounds the exponential backoff applied to transient venue
// failures.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy retries up to 4 times starting at 250ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  4,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// Retrying wraps an Adapter with bounded exponential backoff. Only
// domain.ErrVenueUnavailable is retried; every other error is terminal and
// returned as-is.
type Retrying struct {
	inner  Adapter
	policy RetryPolicy
	logger *slog.Logger
}

// NewRetrying wraps inner with the given policy.
func NewRetrying(inner Adapter, policy RetryPolicy, logger *slog.Logger) *Retrying {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Retrying{
		inner:  inner,
		policy: policy,
		logger: logger.With(slog.String("component", "venue_retry")),
	}
}

func (r *Retrying) Quote(ctx context.Context, marketID string) (domain.Quote, error) {
	var q domain.Quote
	err := r.do(ctx, "quote", marketID, func() error {
		var err error
		q, err = r.inner.Quote(ctx, marketID)
		return err
	})
	return q, err
}

func (r *Retrying) Pool(ctx context.Context, marketID string) (domain.PoolState, error) {
	var ps domain.PoolState
	err := r.do(ctx, "pool", marketID, func() error {
		var err error
		ps, err = r.inner.Pool(ctx, marketID)
		return err
	})
	return ps, err
}

func (r *Retrying) Buy(ctx context.Context, order BuyOrder) (Fill, error) {
	var fill Fill
	err := r.do(ctx, "buy", order.MarketID, func() error {
		var err error
		fill, err = r.inner.Buy(ctx, order)
		return err
	})
	return fill, err
}

func (r *Retrying) Sell(ctx context.Context, order SellOrder) (int64, error) {
	var proceeds int64
	err := r.do(ctx, "sell", order.MarketID, func() error {
		var err error
		proceeds, err = r.inner.Sell(ctx, order)
		return err
	})
	return proceeds, err
}

func (r *Retrying) Claim(ctx context.Context, marketID string) (int64, error) {
	var proceeds int64
	err := r.do(ctx, "claim", marketID, func() error {
		var err error
		proceeds, err = r.inner.Claim(ctx, marketID)
		return err
	})
	return proceeds, err
}

func (r *Retrying) do(ctx context.Context, op, marketID string, call func() error) error {
	delay := r.policy.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, domain.ErrVenueUnavailable) {
			return lastErr
		}
		if attempt == r.policy.MaxAttempts {
			break
		}

		r.logger.Warn("venue unavailable, backing off",
			slog.String("op", op),
			slog.String("market_id", marketID),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return fmt.Errorf("venue: %s %s: %w", op, marketID, ctx.Err())
		case <-time.After(delay):
		}

		delay *= 2
		if delay > r.policy.MaxDelay {
			delay = r.policy.MaxDelay
		}
	}
	return fmt.Errorf("venue: %s %s: %d attempts exhausted: %w", op, marketID, r.policy.MaxAttempts, lastErr)
}
