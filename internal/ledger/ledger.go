// Package ledger is the durable record of venue-level legs. Every write is
// idempotent per leg ID: replaying a placement or settlement event is a
// logged no-op, never a double write.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/polybets/betrouter/internal/domain"
)

// Ledger records leg placements and settlements against a ProxiedBetStore.
type Ledger struct {
	store  domain.ProxiedBetStore
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Ledger.
func New(store domain.ProxiedBetStore, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		logger: logger.With(slog.String("component", "ledger")),
		now:    time.Now,
	}
}

// RecordPlaced persists a confirmed leg. The leg ID is derived
// deterministically by the caller, so replaying the same placement hits the
// store's uniqueness guard and no-ops.
func (l *Ledger) RecordPlaced(ctx context.Context, bet *domain.ProxiedBet) error {
	bet.Outcome = domain.LegOutcomePlaced
	if bet.PlacedAt.IsZero() {
		bet.PlacedAt = l.now()
	}
	if err := l.store.Create(ctx, bet); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			l.logger.Warn("duplicate leg placement ignored",
				slog.String("leg_id", bet.ID),
				slog.String("slip_id", bet.SlipID))
			return nil
		}
		return fmt.Errorf("ledger: record placed %s: %w", bet.ID, err)
	}
	return nil
}

// RecordFailed persists a leg that never made it onto a venue, with the
// normalized failure reason.
func (l *Ledger) RecordFailed(ctx context.Context, bet *domain.ProxiedBet, reason string) error {
	bet.Outcome = domain.LegOutcomeFailed
	bet.FailureReason = reason
	bet.FinalCollateralAmount = 0
	if err := l.store.Create(ctx, bet); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			l.logger.Warn("duplicate leg failure ignored",
				slog.String("leg_id", bet.ID),
				slog.String("slip_id", bet.SlipID))
			return nil
		}
		return fmt.Errorf("ledger: record failed %s: %w", bet.ID, err)
	}
	return nil
}

// RecordClosed settles an open leg with its terminal market outcome and the
// amount recovered. Settling an already-terminal leg logs a conflict and
// no-ops, so replayed settlement events are harmless.
func (l *Ledger) RecordClosed(ctx context.Context, legID string, outcome domain.LegOutcome, settlementAmount int64) error {
	if !outcome.Terminal() || outcome == domain.LegOutcomeFailed || outcome == domain.LegOutcomeSold {
		return fmt.Errorf("ledger: close %s with outcome %s: %w", legID, outcome, domain.ErrInvalidParams)
	}

	bet, err := l.store.Get(ctx, legID)
	if err != nil {
		return fmt.Errorf("ledger: close %s: %w", legID, err)
	}
	if bet.Outcome.Terminal() {
		l.logger.Warn("settlement for terminal leg ignored",
			slog.String("leg_id", legID),
			slog.String("recorded", string(bet.Outcome)),
			slog.String("ignored", string(outcome)))
		return nil
	}

	if err := l.store.MarkOutcome(ctx, legID, outcome, settlementAmount, l.now()); err != nil {
		return fmt.Errorf("ledger: close %s: %w", legID, err)
	}
	return nil
}

// RecordSold settles an open leg as liquidated, with the shares sold and the
// proceeds recovered. Idempotent like RecordClosed.
func (l *Ledger) RecordSold(ctx context.Context, legID string, sharesSold, proceeds int64) error {
	bet, err := l.store.Get(ctx, legID)
	if err != nil {
		return fmt.Errorf("ledger: record sold %s: %w", legID, err)
	}
	if bet.Outcome.Terminal() {
		l.logger.Warn("sale for terminal leg ignored",
			slog.String("leg_id", legID),
			slog.String("recorded", string(bet.Outcome)))
		return nil
	}

	if err := l.store.RecordSale(ctx, legID, sharesSold, proceeds, l.now()); err != nil {
		return fmt.Errorf("ledger: record sold %s: %w", legID, err)
	}
	return nil
}

// RecordSellFailure annotates an open leg whose liquidation attempt failed.
// The leg stays open and settles whenever its market resolves.
func (l *Ledger) RecordSellFailure(ctx context.Context, legID, reason string) error {
	if err := l.store.SetFailureReason(ctx, legID, reason); err != nil {
		return fmt.Errorf("ledger: record sell failure %s: %w", legID, err)
	}
	return nil
}

// Leg fetches one leg by ID.
func (l *Ledger) Leg(ctx context.Context, legID string) (*domain.ProxiedBet, error) {
	bet, err := l.store.Get(ctx, legID)
	if err != nil {
		return nil, fmt.Errorf("ledger: leg %s: %w", legID, err)
	}
	return bet, nil
}

// LegsForSlip lists every leg of a slip in placement order.
func (l *Ledger) LegsForSlip(ctx context.Context, slipID string) ([]*domain.ProxiedBet, error) {
	legs, err := l.store.ListBySlip(ctx, slipID)
	if err != nil {
		return nil, fmt.Errorf("ledger: legs for slip %s: %w", slipID, err)
	}
	return legs, nil
}

// OpenLegsForMarket lists the open legs riding on one venue market.
func (l *Ledger) OpenLegsForMarket(ctx context.Context, venueID, marketID string) ([]*domain.ProxiedBet, error) {
	legs, err := l.store.ListOpenByMarket(ctx, venueID, marketID)
	if err != nil {
		return nil, fmt.Errorf("ledger: open legs for %s/%s: %w", venueID, marketID, err)
	}
	return legs, nil
}

// OpenLegs lists the slip's legs still awaiting resolution.
func (l *Ledger) OpenLegs(ctx context.Context, slipID string) ([]*domain.ProxiedBet, error) {
	legs, err := l.store.ListOpenBySlip(ctx, slipID)
	if err != nil {
		return nil, fmt.Errorf("ledger: open legs for slip %s: %w", slipID, err)
	}
	return legs, nil
}
