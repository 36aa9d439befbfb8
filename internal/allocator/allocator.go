// Package allocator splits a slip's collateral across target venues.
package allocator

import (
	"fmt"
	"math/rand"

	"github.com/polybets/betrouter/internal/domain"
)

const (
	// probFloor and probCeil bound the variance-adjusted target probability.
	probFloor = 0.05
	probCeil  = 0.95
)

// Allocation is one venue's portion of a slip.
type Allocation struct {
	Target     domain.TargetMarket
	Collateral int64
	// TargetOdds is the variance-adjusted entry probability for the backed
	// side. Zero for strategies that do not diversify entry prices.
	TargetOdds float64
	// Variance is the absolute odds nudge applied, recorded for audit.
	Variance float64
}

// Allocator computes per-venue collateral splits. The random source is
// injected so splits are reproducible in tests.
type Allocator struct {
	rng         *rand.Rand
	minVariance float64
	maxVariance float64
}

// New builds an Allocator with the configured odds variance range. The range
// only affects the maximize-shares strategy.
func New(rng *rand.Rand, minVariance, maxVariance float64) (*Allocator, error) {
	if minVariance < 0 || maxVariance < minVariance {
		return nil, fmt.Errorf("allocator: variance range [%v, %v]: %w",
			minVariance, maxVariance, domain.ErrInvalidParams)
	}
	return &Allocator{rng: rng, minVariance: minVariance, maxVariance: maxVariance}, nil
}

// Allocate splits total collateral across venues as an even integer split.
// The integer-division remainder is not allocated: it stays on the slip as
// dust (see Dust), so Σ allocations + dust == total.
//
// The maximize-shares strategy additionally nudges each venue's target odds
// by a random variance drawn from the configured range, with random sign,
// clamped so the adjusted probability stays inside [0.05, 0.95]. baseOdds is
// the current consensus probability of the backed side.
func (a *Allocator) Allocate(total int64, venues []domain.TargetMarket, strategy domain.BetStrategy, baseOdds float64) ([]Allocation, error) {
	if total <= 0 {
		return nil, fmt.Errorf("allocator: total collateral %d: %w", total, domain.ErrInvalidParams)
	}
	if len(venues) == 0 {
		return nil, fmt.Errorf("allocator: no target venues: %w", domain.ErrInvalidParams)
	}

	per := total / int64(len(venues))
	if per == 0 {
		return nil, fmt.Errorf("allocator: %d collateral across %d venues: %w",
			total, len(venues), domain.ErrInvalidParams)
	}

	out := make([]Allocation, len(venues))
	for i, v := range venues {
		alloc := Allocation{Target: v, Collateral: per}
		if strategy == domain.StrategyMaximizeShares {
			alloc.TargetOdds, alloc.Variance = a.nudgeOdds(baseOdds)
		}
		out[i] = alloc
	}
	return out, nil
}

// Dust returns the integer-division remainder left over by an even split.
// The orchestrator records it on the slip; no leg ever carries it.
func Dust(total int64, venueCount int) int64 {
	if venueCount <= 0 {
		return 0
	}
	return total % int64(venueCount)
}

// nudgeOdds applies a signed random variance to the backed side's probability
// and renormalizes against the complement after clamping both sides.
func (a *Allocator) nudgeOdds(baseOdds float64) (adjusted, variance float64) {
	v := a.minVariance + a.rng.Float64()*(a.maxVariance-a.minVariance)
	if a.rng.Float64() < 0.5 {
		v = -v
	}

	backed := clamp(baseOdds+v, probFloor, probCeil)
	other := clamp((1-baseOdds)-v, probFloor, probCeil)
	adjusted = backed / (backed + other)

	if v < 0 {
		return adjusted, -v
	}
	return adjusted, v
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
