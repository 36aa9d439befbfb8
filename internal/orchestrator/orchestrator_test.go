package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polybets/betrouter/internal/allocator"
	"github.com/polybets/betrouter/internal/domain"
	"github.com/polybets/betrouter/internal/ledger"
	"github.com/polybets/betrouter/internal/store/memory"
	"github.com/polybets/betrouter/internal/venue"
	"github.com/polybets/betrouter/internal/venue/sim"
)

// countingNotifier tallies events per type.
type countingNotifier struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCountingNotifier() *countingNotifier {
	return &countingNotifier{counts: make(map[string]int)}
}

func (n *countingNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.counts[event]++
	return nil
}

func (n *countingNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.counts[event]
}

// rejectingAdapter fails every buy with a terminal venue error.
type rejectingAdapter struct {
	venueID string
}

func (r *rejectingAdapter) Quote(context.Context, string) (domain.Quote, error) {
	return domain.Quote{Price0: 0.5, Price1: 0.5}, nil
}

func (r *rejectingAdapter) Pool(context.Context, string) (domain.PoolState, error) {
	return domain.PoolState{B: 100, OutstandingQ: [2]float64{0, 0}}, nil
}

func (r *rejectingAdapter) Buy(_ context.Context, order venue.BuyOrder) (venue.Fill, error) {
	return venue.Fill{}, &domain.VenueError{
		VenueID: r.venueID, MarketID: order.MarketID, Op: "buy",
		Err: domain.ErrInsufficientLiquidity,
	}
}

func (r *rejectingAdapter) Sell(_ context.Context, order venue.SellOrder) (int64, error) {
	return 0, &domain.VenueError{
		VenueID: r.venueID, MarketID: order.MarketID, Op: "sell",
		Err: domain.ErrVenueUnavailable,
	}
}

func (r *rejectingAdapter) Claim(context.Context, string) (int64, error) {
	return 0, domain.ErrVenueUnavailable
}

type fixture struct {
	orch     *Orchestrator
	slips    *memory.SlipStore
	ledger   *ledger.Ledger
	sims     map[string]*sim.Venue
	notifier *countingNotifier
}

// newFixture wires an orchestrator over simulated venues. Venue IDs listed in
// rejecting get an adapter that fails every buy instead.
func newFixture(t *testing.T, venueIDs []string, rejecting map[string]bool) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	slips := memory.NewSlipStore()
	bets := memory.NewBetStore()
	led := ledger.New(bets, logger)
	notifier := newCountingNotifier()

	sims := make(map[string]*sim.Venue)
	roster := make([]*domain.Venue, 0, len(venueIDs))
	targets := make([]domain.TargetMarket, 0, len(venueIDs))
	for _, id := range venueIDs {
		roster = append(roster, &domain.Venue{
			ID: id, Name: id, Active: true, PricingModel: domain.PricingModelLMSR,
		})
		targets = append(targets, domain.TargetMarket{VenueID: id, MarketID: "mkt-" + id})
	}

	registry, err := venue.NewRegistry(roster, func(v *domain.Venue) (venue.Adapter, error) {
		if rejecting[v.ID] {
			return &rejectingAdapter{venueID: v.ID}, nil
		}
		s := sim.New(v.ID)
		require.NoError(t, s.AddMarket("mkt-"+v.ID, 500, 500))
		sims[v.ID] = s
		return s, nil
	})
	require.NoError(t, err)

	catalog := memory.NewCatalog()
	catalog.Register("parent-1", targets)

	alloc, err := allocator.New(rand.New(rand.NewSource(1)), 0.01, 0.05)
	require.NoError(t, err)

	orch := New(Config{
		Slips:     slips,
		Ledger:    led,
		Allocator: alloc,
		Venues:    registry,
		Catalog:   catalog,
		Locks:     NewKeyedMutex(),
		Notifier:  notifier,
		Logger:    logger,
	})
	return &fixture{orch: orch, slips: slips, ledger: led, sims: sims, notifier: notifier}
}

func newSlip(id string, collateral int64, instantArb bool) *domain.BetSlip {
	return &domain.BetSlip{
		ID:                id,
		User:              "user-1",
		Strategy:          domain.StrategyMaximizePrivacy,
		ParentMarketID:    "parent-1",
		OutcomeIndex:      0,
		InitialCollateral: collateral,
		InstantArbitrage:  instantArb,
	}
}

func TestSubmitEvenSplitAcrossFourVenues(t *testing.T) {
	f := newFixture(t, []string{"v1", "v2", "v3", "v4"}, nil)
	ctx := context.Background()

	require.NoError(t, f.orch.Submit(ctx, newSlip("slip-1", 120, false)))

	slip, err := f.slips.Get(ctx, "slip-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SlipStatusPlaced, slip.Status)
	require.Len(t, slip.Legs, 4)
	assert.Zero(t, slip.DustAmount)

	legs, err := f.ledger.LegsForSlip(ctx, "slip-1")
	require.NoError(t, err)
	require.Len(t, legs, 4)
	var requested int64
	for _, leg := range legs {
		assert.Equal(t, domain.LegOutcomePlaced, leg.Outcome)
		assert.EqualValues(t, 30, leg.OriginalCollateralAmount)
		assert.Positive(t, leg.SharesBought)
		requested += leg.OriginalCollateralAmount
	}
	assert.Equal(t, slip.InitialCollateral, requested+slip.DustAmount)
}

func TestSubmitRecordsDust(t *testing.T) {
	f := newFixture(t, []string{"v1", "v2", "v3"}, nil)
	ctx := context.Background()

	require.NoError(t, f.orch.Submit(ctx, newSlip("slip-1", 100, false)))

	slip, err := f.slips.Get(ctx, "slip-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, slip.DustAmount)

	legs, err := f.ledger.LegsForSlip(ctx, "slip-1")
	require.NoError(t, err)
	var requested int64
	for _, leg := range legs {
		requested += leg.OriginalCollateralAmount
	}
	assert.EqualValues(t, 100, requested+slip.DustAmount)
}

func TestSubmitPartialPlacementStillPlaces(t *testing.T) {
	f := newFixture(t, []string{"good", "bad"}, map[string]bool{"bad": true})
	ctx := context.Background()

	require.NoError(t, f.orch.Submit(ctx, newSlip("slip-1", 100, false)))

	slip, err := f.slips.Get(ctx, "slip-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SlipStatusPlaced, slip.Status)

	legs, err := f.ledger.LegsForSlip(ctx, "slip-1")
	require.NoError(t, err)
	require.Len(t, legs, 2)

	byVenue := map[string]*domain.ProxiedBet{}
	for _, leg := range legs {
		byVenue[leg.VenueID] = leg
	}
	assert.Equal(t, domain.LegOutcomePlaced, byVenue["good"].Outcome)
	assert.Equal(t, domain.LegOutcomeFailed, byVenue["bad"].Outcome)
	assert.Contains(t, byVenue["bad"].FailureReason, "insufficient liquidity")
}

func TestSubmitAllLegsFailedFailsSlip(t *testing.T) {
	f := newFixture(t, []string{"bad1", "bad2"}, map[string]bool{"bad1": true, "bad2": true})
	ctx := context.Background()

	require.NoError(t, f.orch.Submit(ctx, newSlip("slip-1", 100, false)))

	slip, err := f.slips.Get(ctx, "slip-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SlipStatusFailed, slip.Status)
	assert.Equal(t, "all legs failed", slip.FailureReason)
	assert.Equal(t, 1, f.notifier.count(EventSlipFailed))
}

func TestAdverseOutcomeTriggersLiquidation(t *testing.T) {
	f := newFixture(t, []string{"v1", "v2", "v3", "v4"}, nil)
	ctx := context.Background()

	require.NoError(t, f.orch.Submit(ctx, newSlip("slip-1", 120, true)))

	legs, err := f.ledger.LegsForSlip(ctx, "slip-1")
	require.NoError(t, err)
	require.Len(t, legs, 4)

	require.NoError(t, f.orch.OnLegOutcome(ctx, legs[0].ID, domain.LegOutcomeLost, 0))

	slip, err := f.slips.Get(ctx, "slip-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SlipStatusClosed, slip.Status)

	legs, err = f.ledger.LegsForSlip(ctx, "slip-1")
	require.NoError(t, err)
	var final int64
	sold := 0
	for _, leg := range legs {
		require.True(t, leg.Outcome.Terminal())
		if leg.Outcome == domain.LegOutcomeSold {
			sold++
			assert.Positive(t, leg.FinalCollateralAmount)
			assert.Equal(t, leg.SharesBought, leg.SharesSold)
		}
		final += leg.FinalCollateralAmount
	}
	assert.Equal(t, 3, sold)
	assert.Equal(t, final, slip.FinalCollateral)
	assert.Equal(t, 1, f.notifier.count(EventSlipSelling))
	assert.Equal(t, 1, f.notifier.count(EventSlipClosed))
}

func TestTriggerFiresExactlyOnce(t *testing.T) {
	f := newFixture(t, []string{"v1", "v2", "v3"}, nil)
	ctx := context.Background()

	// A venue that cannot sell keeps the slip in Selling after the first
	// adverse outcome, so the second one exercises the idempotence guard.
	f.sims["v2"].MustFailSells()

	require.NoError(t, f.orch.Submit(ctx, newSlip("slip-1", 90, true)))

	legs, err := f.ledger.LegsForSlip(ctx, "slip-1")
	require.NoError(t, err)
	require.Len(t, legs, 3)

	byVenue := map[string]*domain.ProxiedBet{}
	for _, leg := range legs {
		byVenue[leg.VenueID] = leg
	}

	require.NoError(t, f.orch.OnLegOutcome(ctx, byVenue["v1"].ID, domain.LegOutcomeLost, 0))

	// v2's sell failed, so the slip is still Selling with one open leg.
	slip, err := f.slips.Get(ctx, "slip-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SlipStatusSelling, slip.Status)

	// Second adverse outcome for the leg that failed to sell: no second
	// Selling transition.
	require.NoError(t, f.orch.OnLegOutcome(ctx, byVenue["v2"].ID, domain.LegOutcomeVoid, 0))
	assert.Equal(t, 1, f.notifier.count(EventSlipSelling))
}

func TestWonLegsClaimPayout(t *testing.T) {
	f := newFixture(t, []string{"v1", "v2"}, nil)
	ctx := context.Background()

	require.NoError(t, f.orch.Submit(ctx, newSlip("slip-1", 100, false)))

	legs, err := f.ledger.LegsForSlip(ctx, "slip-1")
	require.NoError(t, err)
	require.Len(t, legs, 2)

	for _, leg := range legs {
		require.NoError(t, f.sims[leg.VenueID].Resolve(leg.MarketID, 0))
	}

	require.NoError(t, f.orch.OnLegOutcome(ctx, legs[0].ID, domain.LegOutcomeWon, 0))
	require.NoError(t, f.orch.OnLegOutcome(ctx, legs[1].ID, domain.LegOutcomeWon, 0))

	slip, err := f.slips.Get(ctx, "slip-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SlipStatusClosed, slip.Status)

	// Winning shares redeem one micro-unit each.
	var want int64
	legs, err = f.ledger.LegsForSlip(ctx, "slip-1")
	require.NoError(t, err)
	for _, leg := range legs {
		assert.Equal(t, domain.LegOutcomeWon, leg.Outcome)
		assert.Equal(t, leg.SharesBought, leg.FinalCollateralAmount)
		want += leg.FinalCollateralAmount
	}
	assert.Equal(t, want, slip.FinalCollateral)
}

func TestTerminalSlipIgnoresLateOutcomes(t *testing.T) {
	f := newFixture(t, []string{"v1"}, nil)
	ctx := context.Background()

	require.NoError(t, f.orch.Submit(ctx, newSlip("slip-1", 50, false)))

	legs, err := f.ledger.LegsForSlip(ctx, "slip-1")
	require.NoError(t, err)
	require.Len(t, legs, 1)

	require.NoError(t, f.orch.OnLegOutcome(ctx, legs[0].ID, domain.LegOutcomeLost, 0))

	slip, err := f.slips.Get(ctx, "slip-1")
	require.NoError(t, err)
	require.Equal(t, domain.SlipStatusClosed, slip.Status)

	// A replayed settlement leaves the closed slip untouched.
	require.NoError(t, f.orch.OnLegOutcome(ctx, legs[0].ID, domain.LegOutcomeWon, 999))

	slip, err = f.slips.Get(ctx, "slip-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SlipStatusClosed, slip.Status)
	assert.Zero(t, slip.FinalCollateral)
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	f := newFixture(t, []string{"v1"}, nil)
	ctx := context.Background()

	err := f.orch.Submit(ctx, newSlip("slip-1", 0, false))
	assert.ErrorIs(t, err, domain.ErrInvalidParams)

	bad := newSlip("slip-2", 50, false)
	bad.OutcomeIndex = 2
	err = f.orch.Submit(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidParams)
}

func TestSubmitUnknownParentMarketFailsSlip(t *testing.T) {
	f := newFixture(t, []string{"v1"}, nil)
	ctx := context.Background()

	slip := newSlip("slip-1", 50, false)
	slip.ParentMarketID = "missing"
	require.NoError(t, f.orch.Submit(ctx, slip))

	got, err := f.slips.Get(ctx, "slip-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SlipStatusFailed, got.Status)
	assert.Contains(t, got.FailureReason, "resolve market")
}

func TestLiquidateSellsOpenLegs(t *testing.T) {
	f := newFixture(t, []string{"v1", "v2"}, nil)
	ctx := context.Background()

	slip := newSlip("slip-liq", 1_000_000, false)
	require.NoError(t, f.orch.Submit(ctx, slip))
	stored, err := f.slips.Get(ctx, slip.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SlipStatusPlaced, stored.Status)

	require.NoError(t, f.orch.Liquidate(ctx, slip.ID))

	stored, err = f.slips.Get(ctx, slip.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SlipStatusClosed, stored.Status)

	legs, err := f.ledger.LegsForSlip(ctx, slip.ID)
	require.NoError(t, err)
	for _, leg := range legs {
		assert.Equal(t, domain.LegOutcomeSold, leg.Outcome)
		assert.Positive(t, leg.SharesSold)
	}
	assert.Equal(t, 1, f.notifier.count(EventSlipSelling))
	assert.Equal(t, 1, f.notifier.count(EventSlipClosed))
}

func TestLiquidateRejectsNonPlacedSlip(t *testing.T) {
	f := newFixture(t, []string{"v1"}, nil)
	ctx := context.Background()

	err := f.orch.Liquidate(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	slip := newSlip("slip-liq-2", 1_000_000, false)
	require.NoError(t, f.orch.Submit(ctx, slip))
	require.NoError(t, f.orch.Liquidate(ctx, slip.ID))

	err = f.orch.Liquidate(ctx, slip.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestSubmitPriceMovingBuyStillPlaces(t *testing.T) {
	f := newFixture(t, []string{"v1", "v2"}, nil)
	ctx := context.Background()

	// Budget far beyond the seeded pools: the fill lands well past the spot
	// quote, so a spot-derived floor would reject every leg.
	require.NoError(t, f.orch.Submit(ctx, newSlip("slip-big", 1_000_000, false)))

	slip, err := f.slips.Get(ctx, "slip-big")
	require.NoError(t, err)
	assert.Equal(t, domain.SlipStatusPlaced, slip.Status)

	legs, err := f.ledger.LegsForSlip(ctx, "slip-big")
	require.NoError(t, err)
	require.Len(t, legs, 2)
	for _, leg := range legs {
		assert.Equal(t, domain.LegOutcomePlaced, leg.Outcome)
		assert.Positive(t, leg.MinimumShares)
		assert.GreaterOrEqual(t, leg.SharesBought, leg.MinimumShares)
	}
}
