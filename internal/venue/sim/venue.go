// Package sim is an in-process LMSR venue backed by the pricing engine. It
// serves paper mode and tests, exercising the full adapter contract without
// any network or chain dependency.
package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/polybets/betrouter/internal/domain"
	"github.com/polybets/betrouter/internal/lmsr"
	"github.com/polybets/betrouter/internal/venue"
)

type market struct {
	params   lmsr.Params
	seed     [2]float64 // liquidity the market was calibrated from
	q        [2]float64 // traded shares on top of the calibrated offsets
	held     [2]int64   // shares this venue has sold to the engine
	resolved bool
	winner   int
	claimed  bool
}

// Venue is a simulated binary-market venue. All methods are safe for
// concurrent use.
type Venue struct {
	id string

	mu        sync.Mutex
	markets   map[string]*market
	failSells bool
}

// New creates an empty simulated venue.
func New(id string) *Venue {
	return &Venue{id: id, markets: make(map[string]*market)}
}

var _ venue.Adapter = (*Venue)(nil)

// AddMarket seeds a market with the given liquidity split, calibrating the
// LMSR parameters from it.
func (v *Venue) AddMarket(marketID string, liq0, liq1 float64) error {
	params, err := lmsr.Calibrate(liq0, liq1)
	if err != nil {
		return fmt.Errorf("sim: add market %s: %w", marketID, err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.markets[marketID]; ok {
		return fmt.Errorf("sim: market %s: %w", marketID, domain.ErrAlreadyExists)
	}
	v.markets[marketID] = &market{params: params, seed: [2]float64{liq0, liq1}}
	return nil
}

// MustFailSells makes every subsequent Sell fail as if the venue were down,
// to simulate degraded venues in tests.
func (v *Venue) MustFailSells() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failSells = true
}

// Resolve settles a market on the winning side. Subsequent Claim calls pay
// out one micro-unit per held winning share.
func (v *Venue) Resolve(marketID string, winner int) error {
	if winner != 0 && winner != 1 {
		return fmt.Errorf("sim: winner %d: %w", winner, domain.ErrInvalidParams)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.markets[marketID]
	if !ok {
		return fmt.Errorf("sim: market %s: %w", marketID, domain.ErrNotFound)
	}
	m.resolved = true
	m.winner = winner
	return nil
}

func (v *Venue) Quote(_ context.Context, marketID string) (domain.Quote, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.markets[marketID]
	if !ok {
		return domain.Quote{}, v.err("quote", marketID, domain.ErrNotFound)
	}
	p0, err := lmsr.Price(m.params.Q0+m.q[0], m.params.Q1+m.q[1], m.params.B, 0)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("sim: quote %s: %w", marketID, err)
	}
	return domain.Quote{Price0: p0, Price1: 1 - p0}, nil
}

func (v *Venue) Pool(_ context.Context, marketID string) (domain.PoolState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.markets[marketID]
	if !ok {
		return domain.PoolState{}, v.err("pool", marketID, domain.ErrNotFound)
	}
	return domain.PoolState{
		VenueID:          v.id,
		MarketID:         marketID,
		B:                m.params.B,
		InitialLiquidity: m.seed,
		OutstandingQ:     [2]float64{m.params.Q0 + m.q[0], m.params.Q1 + m.q[1]},
	}, nil
}

func (v *Venue) Buy(_ context.Context, order venue.BuyOrder) (venue.Fill, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.markets[order.MarketID]
	if !ok {
		return venue.Fill{}, v.err("buy", order.MarketID, domain.ErrNotFound)
	}
	if m.resolved {
		return venue.Fill{}, v.err("buy", order.MarketID, domain.ErrInsufficientLiquidity)
	}

	shares, cost, err := lmsr.SharesForBudget(
		m.params.Q0+m.q[0], m.params.Q1+m.q[1], m.params.B,
		order.Side, float64(order.CollateralBudget))
	if err != nil {
		return venue.Fill{}, fmt.Errorf("sim: buy %s: %w", order.MarketID, err)
	}
	if shares == 0 {
		return venue.Fill{}, v.err("buy", order.MarketID, domain.ErrInsufficientLiquidity)
	}
	if shares < order.MinShares {
		return venue.Fill{}, v.err("buy", order.MarketID, domain.ErrSlippageExceeded)
	}

	m.q[order.Side] += float64(shares)
	m.held[order.Side] += shares
	return venue.Fill{Shares: shares, CollateralSpent: int64(cost)}, nil
}

func (v *Venue) Sell(_ context.Context, order venue.SellOrder) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failSells {
		return 0, v.err("sell", order.MarketID, domain.ErrVenueUnavailable)
	}
	m, ok := v.markets[order.MarketID]
	if !ok {
		return 0, v.err("sell", order.MarketID, domain.ErrNotFound)
	}
	if order.Shares <= 0 || order.Shares > m.held[order.Side] {
		return 0, v.err("sell", order.MarketID, domain.ErrInsufficientShares)
	}

	proceeds, err := lmsr.SellProceeds(
		m.params.Q0+m.q[0], m.params.Q1+m.q[1], m.params.B,
		order.Side, order.Shares)
	if err != nil {
		return 0, fmt.Errorf("sim: sell %s: %w", order.MarketID, err)
	}
	if int64(proceeds) < order.MinProceeds {
		return 0, v.err("sell", order.MarketID, domain.ErrSlippageExceeded)
	}

	m.q[order.Side] -= float64(order.Shares)
	m.held[order.Side] -= order.Shares
	return int64(proceeds), nil
}

func (v *Venue) Claim(_ context.Context, marketID string) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.markets[marketID]
	if !ok {
		return 0, v.err("claim", marketID, domain.ErrNotFound)
	}
	if !m.resolved {
		return 0, v.err("claim", marketID, domain.ErrVenueUnavailable)
	}
	if m.claimed {
		return 0, nil
	}
	m.claimed = true
	// Each winning share redeems for one micro-unit.
	return m.held[m.winner], nil
}

func (v *Venue) err(op, marketID string, err error) error {
	return &domain.VenueError{VenueID: v.id, MarketID: marketID, Op: op, Err: err}
}
