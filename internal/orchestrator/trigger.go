package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/polybets/betrouter/internal/domain"
	"github.com/polybets/betrouter/internal/venue"
)

// evaluateTrigger applies the instant arbitrage rule: an adverse leg outcome
// (Lost or Void) on an opted-in slip that is still Placed moves the slip to
// Selling and returns the legs to liquidate. The Placed precondition is the
// idempotence guard: a second adverse outcome finds the slip already Selling
// and does nothing. Caller holds the slip lock.
func (o *Orchestrator) evaluateTrigger(ctx context.Context, slip *domain.BetSlip, outcome domain.LegOutcome) ([]*domain.ProxiedBet, error) {
	if !slip.InstantArbitrage || !outcome.Adverse() || slip.Status != domain.SlipStatusPlaced {
		return nil, nil
	}

	if err := o.slips.UpdateStatus(ctx, slip.ID, domain.SlipStatusSelling, ""); err != nil {
		return nil, fmt.Errorf("orchestrator: trigger slip %s: %w", slip.ID, err)
	}
	slip.Status = domain.SlipStatusSelling

	open, err := o.ledger.OpenLegs(ctx, slip.ID)
	if err != nil {
		return nil, err
	}

	o.logger.Info("arbitrage trigger fired",
		slog.String("slip_id", slip.ID),
		slog.String("outcome", string(outcome)),
		slog.Int("open_legs", len(open)))
	o.notify(ctx, EventSlipSelling, "Instant arbitrage",
		fmt.Sprintf("slip %s: adverse outcome %s, liquidating %d open legs", slip.ID, outcome, len(open)))
	return open, nil
}

// Liquidate moves a Placed slip to Selling and sells every open leg at
// current market prices. Callers are external sell requests: the on-chain
// selling event and the manual sell endpoint. A slip that is not Placed is
// rejected so a concurrent trigger or settlement wins cleanly.
func (o *Orchestrator) Liquidate(ctx context.Context, slipID string) error {
	release, err := o.locks.Acquire(ctx, slipID)
	if err != nil {
		return fmt.Errorf("orchestrator: lock slip %s: %w", slipID, err)
	}

	slip, err := o.slips.Get(ctx, slipID)
	if err != nil {
		release()
		return fmt.Errorf("orchestrator: liquidate slip %s: %w", slipID, err)
	}
	if slip.Status != domain.SlipStatusPlaced {
		release()
		return fmt.Errorf("orchestrator: liquidate slip %s in status %s: %w",
			slipID, slip.Status, domain.ErrInvalidTransition)
	}
	if err := o.slips.UpdateStatus(ctx, slipID, domain.SlipStatusSelling, ""); err != nil {
		release()
		return fmt.Errorf("orchestrator: liquidate slip %s: %w", slipID, err)
	}
	open, err := o.ledger.OpenLegs(ctx, slipID)
	if err != nil {
		release()
		return err
	}
	release()

	o.logger.Info("slip liquidation requested",
		slog.String("slip_id", slipID),
		slog.Int("open_legs", len(open)))
	o.notify(ctx, EventSlipSelling, "Slip selling",
		fmt.Sprintf("slip %s: liquidating %d open legs", slipID, len(open)))
	return o.sellOpenLegs(ctx, slipID, open)
}

// sellOpenLegs liquidates the given legs concurrently, outside the slip lock.
// A failed sell is recorded on its leg and never blocks the sibling sells;
// the leg stays open and settles with its market.
func (o *Orchestrator) sellOpenLegs(ctx context.Context, slipID string, legs []*domain.ProxiedBet) error {
	type sellResult struct {
		leg      *domain.ProxiedBet
		proceeds int64
		err      error
	}

	results := make([]sellResult, len(legs))
	g, gctx := errgroup.WithContext(ctx)
	for i, leg := range legs {
		g.Go(func() error {
			results[i] = sellResult{leg: leg}
			adapter, err := o.venues.Get(leg.VenueID)
			if err != nil {
				results[i].err = err
				return nil
			}
			proceeds, err := adapter.Sell(gctx, venue.SellOrder{
				MarketID: leg.MarketID,
				Side:     leg.OptionIndex,
				Shares:   leg.SharesBought,
			})
			results[i].proceeds = proceeds
			results[i].err = err
			return nil
		})
	}
	_ = g.Wait()

	release, err := o.locks.Acquire(ctx, slipID)
	if err != nil {
		return fmt.Errorf("orchestrator: lock slip %s: %w", slipID, err)
	}
	defer release()

	for _, res := range results {
		if res.err != nil {
			o.logger.Warn("leg liquidation failed",
				slog.String("slip_id", slipID),
				slog.String("leg_id", res.leg.ID),
				slog.String("error", res.err.Error()))
			if err := o.ledger.RecordSellFailure(ctx, res.leg.ID, res.err.Error()); err != nil {
				return err
			}
			continue
		}
		if err := o.ledger.RecordSold(ctx, res.leg.ID, res.leg.SharesBought, res.proceeds); err != nil {
			return err
		}
	}

	return o.tryClose(ctx, slipID)
}
