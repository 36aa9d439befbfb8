// Package orchestrator owns the bet slip lifecycle: fan-out of a slip into
// per-venue legs, fan-in of leg results, status aggregation, and the instant
// arbitrage trigger.
//
// Per-slip serialization is the package's core concurrency rule: every state
// read-modify-write happens under the slip's lock, while venue calls (buy,
// sell, claim, quote) never do.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/polybets/betrouter/internal/allocator"
	"github.com/polybets/betrouter/internal/domain"
	"github.com/polybets/betrouter/internal/ledger"
	"github.com/polybets/betrouter/internal/lmsr"
	"github.com/polybets/betrouter/internal/venue"
)

// Notifier receives slip lifecycle events. Satisfied by *notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// noopNotifier drops every event.
type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, string, string, string) error { return nil }

// Notification event types.
const (
	EventSlipPlaced  = "slip_placed"
	EventSlipFailed  = "slip_failed"
	EventSlipSelling = "slip_selling"
	EventSlipClosed  = "slip_closed"
)

// Orchestrator drives slips through their state machine.
type Orchestrator struct {
	slips    domain.BetSlipStore
	ledger   *ledger.Ledger
	alloc    *allocator.Allocator
	venues   *venue.Registry
	catalog  domain.MarketCatalog
	locks    SlipLocker
	notifier Notifier
	logger   *slog.Logger

	// slippageTolerance shapes each buy's minimum-shares floor: the leg
	// refuses fills worse than the quoted price by more than this fraction.
	slippageTolerance float64
}

// Config carries the orchestrator's collaborators.
type Config struct {
	Slips             domain.BetSlipStore
	Ledger            *ledger.Ledger
	Allocator         *allocator.Allocator
	Venues            *venue.Registry
	Catalog           domain.MarketCatalog
	Locks             SlipLocker
	Notifier          Notifier
	Logger            *slog.Logger
	SlippageTolerance float64
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	n := cfg.Notifier
	if n == nil {
		n = noopNotifier{}
	}
	if cfg.SlippageTolerance <= 0 {
		cfg.SlippageTolerance = 0.05
	}
	return &Orchestrator{
		slips:             cfg.Slips,
		ledger:            cfg.Ledger,
		alloc:             cfg.Allocator,
		venues:            cfg.Venues,
		catalog:           cfg.Catalog,
		locks:             cfg.Locks,
		notifier:          n,
		logger:            cfg.Logger.With(slog.String("component", "orchestrator")),
		slippageTolerance: cfg.SlippageTolerance,
	}
}

// legResult is one venue placement attempt, successful or not.
type legResult struct {
	bet *domain.ProxiedBet
	err error
}

// Submit takes a Pending slip through Processing into Placed or Failed:
// resolve the parent market to venue-level targets, split collateral, place
// every leg concurrently, record the results, and aggregate. The slip fails
// only when every leg fails.
func (o *Orchestrator) Submit(ctx context.Context, slip *domain.BetSlip) error {
	if slip.InitialCollateral <= 0 {
		return fmt.Errorf("orchestrator: slip %s collateral %d: %w",
			slip.ID, slip.InitialCollateral, domain.ErrInvalidParams)
	}
	if slip.OutcomeIndex != 0 && slip.OutcomeIndex != 1 {
		return fmt.Errorf("orchestrator: slip %s outcome index %d: %w",
			slip.ID, slip.OutcomeIndex, domain.ErrInvalidParams)
	}

	release, err := o.locks.Acquire(ctx, slip.ID)
	if err != nil {
		return fmt.Errorf("orchestrator: lock slip %s: %w", slip.ID, err)
	}
	slip.Status = domain.SlipStatusPending
	if err := o.slips.Create(ctx, slip); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		release()
		return fmt.Errorf("orchestrator: create slip %s: %w", slip.ID, err)
	}
	if err := o.slips.UpdateStatus(ctx, slip.ID, domain.SlipStatusProcessing, ""); err != nil {
		release()
		return fmt.Errorf("orchestrator: slip %s: %w", slip.ID, err)
	}
	release()

	targets, err := o.catalog.Resolve(ctx, slip.ParentMarketID)
	if err != nil {
		return o.failSlip(ctx, slip.ID, fmt.Sprintf("resolve market %s: %v", slip.ParentMarketID, err))
	}

	allocs, err := o.alloc.Allocate(slip.InitialCollateral, targets, slip.Strategy, o.consensusOdds(ctx, targets, slip.OutcomeIndex))
	if err != nil {
		return o.failSlip(ctx, slip.ID, fmt.Sprintf("allocate: %v", err))
	}
	dust := allocator.Dust(slip.InitialCollateral, len(targets))

	// Venue placements run concurrently and never under the slip lock.
	results := make([]legResult, len(allocs))
	g, gctx := errgroup.WithContext(ctx)
	for i, alloc := range allocs {
		g.Go(func() error {
			results[i] = o.placeLeg(gctx, slip, alloc, i)
			return nil
		})
	}
	_ = g.Wait()

	release, err = o.locks.Acquire(ctx, slip.ID)
	if err != nil {
		return fmt.Errorf("orchestrator: lock slip %s: %w", slip.ID, err)
	}
	defer release()

	legIDs := make([]string, 0, len(results))
	placed := 0
	for _, res := range results {
		legIDs = append(legIDs, res.bet.ID)
		if res.err != nil {
			if err := o.ledger.RecordFailed(ctx, res.bet, res.err.Error()); err != nil {
				return err
			}
			continue
		}
		if err := o.ledger.RecordPlaced(ctx, res.bet); err != nil {
			return err
		}
		placed++
	}

	if err := o.slips.SetLegs(ctx, slip.ID, legIDs); err != nil {
		return fmt.Errorf("orchestrator: slip %s: %w", slip.ID, err)
	}
	if err := o.slips.SetFinalCollateral(ctx, slip.ID, 0, dust); err != nil {
		return fmt.Errorf("orchestrator: slip %s: %w", slip.ID, err)
	}

	if placed == 0 {
		if err := o.slips.UpdateStatus(ctx, slip.ID, domain.SlipStatusFailed, "all legs failed"); err != nil {
			return fmt.Errorf("orchestrator: slip %s: %w", slip.ID, err)
		}
		o.logger.Warn("slip failed, no leg placed", slog.String("slip_id", slip.ID))
		o.notify(ctx, EventSlipFailed, "Slip failed",
			fmt.Sprintf("slip %s: all %d legs failed", slip.ID, len(results)))
		return nil
	}

	if err := o.slips.UpdateStatus(ctx, slip.ID, domain.SlipStatusPlaced, ""); err != nil {
		return fmt.Errorf("orchestrator: slip %s: %w", slip.ID, err)
	}
	o.logger.Info("slip placed",
		slog.String("slip_id", slip.ID),
		slog.Int("legs_placed", placed),
		slog.Int("legs_failed", len(results)-placed))
	o.notify(ctx, EventSlipPlaced, "Slip placed",
		fmt.Sprintf("slip %s: %d/%d legs placed", slip.ID, placed, len(results)))
	return nil
}

// placeLeg buys one venue's allocation. The returned bet carries the
// deterministic leg ID whether the placement succeeded or not.
func (o *Orchestrator) placeLeg(ctx context.Context, slip *domain.BetSlip, alloc allocator.Allocation, sequence int) legResult {
	bet := &domain.ProxiedBet{
		ID:                       domain.DeriveLegID(slip.ID, alloc.Target.VenueID, alloc.Target.MarketID, sequence),
		SlipID:                   slip.ID,
		VenueID:                  alloc.Target.VenueID,
		MarketID:                 alloc.Target.MarketID,
		OptionIndex:              slip.OutcomeIndex,
		OriginalCollateralAmount: alloc.Collateral,
	}

	adapter, err := o.venues.Get(alloc.Target.VenueID)
	if err != nil {
		return legResult{bet: bet, err: err}
	}

	bet.MinimumShares = o.minShares(ctx, adapter, alloc, slip.OutcomeIndex)

	fill, err := adapter.Buy(ctx, venue.BuyOrder{
		MarketID:         alloc.Target.MarketID,
		Side:             slip.OutcomeIndex,
		CollateralBudget: alloc.Collateral,
		MinShares:        bet.MinimumShares,
	})
	if err != nil {
		o.logger.Warn("leg placement failed",
			slog.String("slip_id", slip.ID),
			slog.String("venue_id", alloc.Target.VenueID),
			slog.String("market_id", alloc.Target.MarketID),
			slog.String("error", err.Error()))
		return legResult{bet: bet, err: err}
	}

	bet.SharesBought = fill.Shares
	bet.FinalCollateralAmount = fill.CollateralSpent
	return legResult{bet: bet}
}

// minShares derives a leg's slippage floor from the venue's pool state: the
// LMSR fill the quoted curve implies for the allocated budget, discounted by
// the slippage tolerance. Costing the fill on the curve, rather than
// dividing by the spot price, keeps the floor attainable when the buy itself
// moves the price. An unavailable pool state disables the floor rather than
// blocking the placement.
func (o *Orchestrator) minShares(ctx context.Context, adapter venue.Adapter, alloc allocator.Allocation, side int) int64 {
	pool, err := adapter.Pool(ctx, alloc.Target.MarketID)
	if err != nil {
		return 0
	}
	expected, _, err := lmsr.SharesForBudget(
		pool.OutstandingQ[0], pool.OutstandingQ[1], pool.B,
		side, float64(alloc.Collateral))
	if err != nil || expected == 0 {
		return 0
	}
	return int64(float64(expected) * (1 - o.slippageTolerance))
}

// consensusOdds averages the venues' quoted probabilities for the backed
// side, falling back to an even prior when no venue answers.
func (o *Orchestrator) consensusOdds(ctx context.Context, targets []domain.TargetMarket, side int) float64 {
	var sum float64
	var n int
	for _, t := range targets {
		adapter, err := o.venues.Get(t.VenueID)
		if err != nil {
			continue
		}
		quote, err := adapter.Quote(ctx, t.MarketID)
		if err != nil {
			continue
		}
		if side == 0 {
			sum += quote.Price0
		} else {
			sum += quote.Price1
		}
		n++
	}
	if n == 0 {
		return 0.5
	}
	return sum / float64(n)
}

// OnLegOutcome is the venue-driven settlement callback. It records the leg's
// terminal outcome, evaluates the arbitrage trigger, and closes the slip once
// every leg is terminal. settlementAmount is the amount recovered for the
// leg; for Won legs with a zero amount the venue's claim endpoint is asked
// for the payout first.
func (o *Orchestrator) OnLegOutcome(ctx context.Context, legID string, outcome domain.LegOutcome, settlementAmount int64) error {
	leg, err := o.ledger.Leg(ctx, legID)
	if err != nil {
		return fmt.Errorf("orchestrator: leg outcome %s: %w", legID, err)
	}

	if outcome == domain.LegOutcomeWon && settlementAmount == 0 {
		settlementAmount = o.claimPayout(ctx, leg)
	}

	release, err := o.locks.Acquire(ctx, leg.SlipID)
	if err != nil {
		return fmt.Errorf("orchestrator: lock slip %s: %w", leg.SlipID, err)
	}

	if err := o.ledger.RecordClosed(ctx, legID, outcome, settlementAmount); err != nil {
		release()
		return err
	}

	slip, err := o.slips.Get(ctx, leg.SlipID)
	if err != nil {
		release()
		return fmt.Errorf("orchestrator: leg outcome %s: %w", legID, err)
	}

	toSell, err := o.evaluateTrigger(ctx, slip, outcome)
	if err != nil {
		release()
		return err
	}

	if err := o.tryClose(ctx, slip.ID); err != nil {
		release()
		return err
	}
	release()

	if len(toSell) > 0 {
		return o.sellOpenLegs(ctx, slip.ID, toSell)
	}
	return nil
}

// OnMarketSettled resolves every open leg riding on a settled venue market:
// legs backing the winning option settle Won, the rest Lost. Feeds that only
// learn market-level resolutions call this instead of OnLegOutcome.
func (o *Orchestrator) OnMarketSettled(ctx context.Context, venueID, marketID string, winningOption int) error {
	legs, err := o.ledger.OpenLegsForMarket(ctx, venueID, marketID)
	if err != nil {
		return err
	}
	for _, leg := range legs {
		outcome := domain.LegOutcomeLost
		if leg.OptionIndex == winningOption {
			outcome = domain.LegOutcomeWon
		}
		if err := o.OnLegOutcome(ctx, leg.ID, outcome, 0); err != nil {
			return err
		}
	}
	return nil
}

// claimPayout asks the leg's venue for a resolved market's payout. Claim
// failures are logged, not fatal: the settlement stands with zero proceeds.
func (o *Orchestrator) claimPayout(ctx context.Context, leg *domain.ProxiedBet) int64 {
	adapter, err := o.venues.Get(leg.VenueID)
	if err != nil {
		return 0
	}
	payout, err := adapter.Claim(ctx, leg.MarketID)
	if err != nil {
		o.logger.Warn("claim failed",
			slog.String("leg_id", leg.ID),
			slog.String("venue_id", leg.VenueID),
			slog.String("error", err.Error()))
		return 0
	}
	return payout
}

// tryClose closes the slip when no leg remains open, summing the settled
// legs' final collateral. Caller holds the slip lock.
func (o *Orchestrator) tryClose(ctx context.Context, slipID string) error {
	slip, err := o.slips.Get(ctx, slipID)
	if err != nil {
		return fmt.Errorf("orchestrator: close slip %s: %w", slipID, err)
	}
	if slip.Status != domain.SlipStatusPlaced && slip.Status != domain.SlipStatusSelling {
		return nil
	}

	legs, err := o.ledger.LegsForSlip(ctx, slipID)
	if err != nil {
		return err
	}
	var final int64
	for _, leg := range legs {
		if leg.Open() {
			return nil
		}
		final += leg.FinalCollateralAmount
	}
	if len(legs) == 0 {
		return nil
	}

	if err := o.slips.SetFinalCollateral(ctx, slipID, final, slip.DustAmount); err != nil {
		return fmt.Errorf("orchestrator: close slip %s: %w", slipID, err)
	}
	if err := o.slips.UpdateStatus(ctx, slipID, domain.SlipStatusClosed, ""); err != nil {
		return fmt.Errorf("orchestrator: close slip %s: %w", slipID, err)
	}
	o.logger.Info("slip closed",
		slog.String("slip_id", slipID),
		slog.Int64("final_collateral", final))
	o.notify(ctx, EventSlipClosed, "Slip closed",
		fmt.Sprintf("slip %s closed, final collateral %d", slipID, final))
	return nil
}

func (o *Orchestrator) notify(ctx context.Context, event, title, message string) {
	if err := o.notifier.Notify(ctx, event, title, message); err != nil {
		o.logger.Warn("notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
}

// failSlip moves a slip to Failed with the given reason, under the slip lock.
func (o *Orchestrator) failSlip(ctx context.Context, slipID, reason string) error {
	release, err := o.locks.Acquire(ctx, slipID)
	if err != nil {
		return fmt.Errorf("orchestrator: lock slip %s: %w", slipID, err)
	}
	defer release()

	if err := o.slips.UpdateStatus(ctx, slipID, domain.SlipStatusFailed, reason); err != nil {
		return fmt.Errorf("orchestrator: fail slip %s: %w", slipID, err)
	}
	o.logger.Warn("slip failed", slog.String("slip_id", slipID), slog.String("reason", reason))
	o.notify(ctx, EventSlipFailed, "Slip failed", fmt.Sprintf("slip %s: %s", slipID, reason))
	return nil
}
