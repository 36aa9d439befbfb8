// Package lmsr implements the Logarithmic Market Scoring Rule for binary
// markets: pricing, trade costing, and liquidity calibration.
//
// Prices are probabilities, the cost function is
// C(q) = b * ln(exp(q0/b) + exp(q1/b)), and the market maker's worst-case
// loss is bounded by b * ln(2).
package lmsr

import (
	"fmt"
	"math"

	"github.com/polybets/betrouter/internal/domain"
)

const (
	// sharesSearchIterations bounds the budget binary search.
	sharesSearchIterations = 64
	// minSharePrice caps the search's upper bound at budget/minSharePrice.
	minSharePrice = 1e-4
	// priceEpsilon keeps returned probabilities strictly inside (0, 1) when
	// the softmax saturates on a deeply skewed pool.
	priceEpsilon = 1e-12
)

func validate(q0, q1, b float64, side int) error {
	if b <= 0 || math.IsNaN(b) || math.IsInf(b, 0) {
		return fmt.Errorf("lmsr: liquidity parameter %v: %w", b, domain.ErrInvalidParams)
	}
	if math.IsNaN(q0) || math.IsNaN(q1) || math.IsInf(q0, 0) || math.IsInf(q1, 0) {
		return fmt.Errorf("lmsr: outstanding shares (%v, %v): %w", q0, q1, domain.ErrInvalidParams)
	}
	if side != 0 && side != 1 {
		return fmt.Errorf("lmsr: side %d: %w", side, domain.ErrInvalidParams)
	}
	return nil
}

// Cost evaluates C(q) = b * ln(exp(q0/b) + exp(q1/b)) using the log-sum-exp
// trick so large q/b ratios do not overflow.
func Cost(q0, q1, b float64) (float64, error) {
	if err := validate(q0, q1, b, 0); err != nil {
		return 0, err
	}
	m := math.Max(q0, q1)
	return m + b*math.Log(math.Exp((q0-m)/b)+math.Exp((q1-m)/b)), nil
}

// Price returns the instantaneous probability of side, the softmax of q/b.
// Price(side=0) + Price(side=1) == 1 within floating tolerance. The result
// is always strictly inside (0, 1): a saturated softmax is clamped to
// priceEpsilon from the boundary.
func Price(q0, q1, b float64, side int) (float64, error) {
	if err := validate(q0, q1, b, side); err != nil {
		return 0, err
	}
	m := math.Max(q0, q1)
	e0 := math.Exp((q0 - m) / b)
	e1 := math.Exp((q1 - m) / b)
	p := e0 / (e0 + e1)
	if side == 1 {
		p = e1 / (e0 + e1)
	}
	switch {
	case p < priceEpsilon:
		p = priceEpsilon
	case p > 1-priceEpsilon:
		p = 1 - priceEpsilon
	}
	return p, nil
}

// BuyCost returns C(q + shares on side) - C(q), the amount a buyer pays for
// shares whole shares of side at the current pool state.
func BuyCost(q0, q1, b float64, side int, shares int64) (float64, error) {
	if err := validate(q0, q1, b, side); err != nil {
		return 0, err
	}
	if shares < 0 {
		return 0, fmt.Errorf("lmsr: negative share count %d: %w", shares, domain.ErrInvalidParams)
	}
	before, err := Cost(q0, q1, b)
	if err != nil {
		return 0, err
	}
	n0, n1 := q0, q1
	if side == 0 {
		n0 += float64(shares)
	} else {
		n1 += float64(shares)
	}
	after, err := Cost(n0, n1, b)
	if err != nil {
		return 0, err
	}
	return after - before, nil
}

// SellProceeds returns C(q) - C(q - shares on side), the amount paid out when
// shares whole shares of side are sold back to the pool. The pool cannot buy
// back more shares than are outstanding on that side.
func SellProceeds(q0, q1, b float64, side int, shares int64) (float64, error) {
	if err := validate(q0, q1, b, side); err != nil {
		return 0, err
	}
	if shares < 0 {
		return 0, fmt.Errorf("lmsr: negative share count %d: %w", shares, domain.ErrInvalidParams)
	}
	n0, n1 := q0, q1
	if side == 0 {
		n0 -= float64(shares)
	} else {
		n1 -= float64(shares)
	}
	before, err := Cost(q0, q1, b)
	if err != nil {
		return 0, err
	}
	after, err := Cost(n0, n1, b)
	if err != nil {
		return 0, err
	}
	return before - after, nil
}

// SharesForBudget finds the largest whole share count of side whose
// incremental cost does not exceed budget, and that cost. The returned cost
// never exceeds budget. A budget below the price of a single share yields
// (0, 0).
func SharesForBudget(q0, q1, b float64, side int, budget float64) (int64, float64, error) {
	if err := validate(q0, q1, b, side); err != nil {
		return 0, 0, err
	}
	if budget < 0 || math.IsNaN(budget) || math.IsInf(budget, 0) {
		return 0, 0, fmt.Errorf("lmsr: budget %v: %w", budget, domain.ErrInvalidParams)
	}
	if budget == 0 {
		return 0, 0, nil
	}

	var low, high int64 = 0, int64(budget/minSharePrice) + 1
	for i := 0; i < sharesSearchIterations && low < high; i++ {
		mid := low + (high-low+1)/2
		cost, err := BuyCost(q0, q1, b, side, mid)
		if err != nil {
			return 0, 0, err
		}
		if cost <= budget {
			low = mid
		} else {
			high = mid - 1
		}
	}
	if low == 0 {
		return 0, 0, nil
	}
	cost, err := BuyCost(q0, q1, b, side, low)
	if err != nil {
		return 0, 0, err
	}
	return low, cost, nil
}

// MaxLoss is the market maker's worst-case loss for a binary market: b*ln(2).
func MaxLoss(b float64) float64 {
	return b * math.Ln2
}
