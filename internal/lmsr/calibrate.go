package lmsr

import (
	"fmt"
	"math"

	"github.com/polybets/betrouter/internal/domain"
)

// Params is a calibrated pool: a liquidity parameter and initial share
// offsets that reproduce the seed odds while keeping the market maker's
// worst-case loss inside the seeded liquidity.
type Params struct {
	B       float64
	Q0      float64
	Q1      float64
	Price0  float64
	Price1  float64
	MaxLoss float64
}

const (
	// priceTolerance is how closely the calibrated pool must reproduce the
	// implied seed prices.
	priceTolerance = 1e-3
	// shrinkFactor tightens b when the worst-case loss exceeds the cap.
	shrinkFactor = 0.95
	// maxIterations bounds both the price-adjust and shrink loops.
	maxIterations = 5
	// priceFloor clamps the implied price when one side seeds zero liquidity.
	priceFloor = 1e-5
)

// Calibrate derives LMSR parameters from a market's seed liquidity split.
// The implied prices are the liquidity ratio. With the favored side anchored
// at q=0 the worst case is the favored side winning, losing b*ln(1/(1-pMax)),
// so b starts at maxLossCap divided by that multiplier (ln(2) for an even
// seed) and lands on the cap directly; the shrink loop only absorbs residual
// drift from the price adjustment. Returns domain.ErrCalibrationFailed if
// the shrink loop does not converge within its iteration bound.
func Calibrate(liq0, liq1 float64) (Params, error) {
	if liq0 < 0 || liq1 < 0 {
		return Params{}, fmt.Errorf("lmsr: negative liquidity (%v, %v): %w", liq0, liq1, domain.ErrInvalidParams)
	}
	total := liq0 + liq1
	if total <= 0 {
		return Params{}, fmt.Errorf("lmsr: zero total liquidity: %w", domain.ErrInvalidParams)
	}

	var p0, p1 float64
	switch {
	case liq0 == 0:
		p0, p1 = priceFloor, 1-priceFloor
	case liq1 == 0:
		p0, p1 = 1-priceFloor, priceFloor
	default:
		p0, p1 = liq0/total, liq1/total
	}

	maxLossCap := total
	b := maxLossCap / math.Log(1/(1-math.Max(p0, p1)))

	q0, q1 := seedQuantities(p0, p1, b)
	q0, q1 = adjustToPrices(q0, q1, b, p0, p1)
	loss := worstCaseLoss(q0, q1, b)

	for i := 0; loss > maxLossCap; i++ {
		if i >= maxIterations {
			return Params{}, fmt.Errorf("lmsr: max loss %.4f exceeds cap %.4f after %d iterations: %w",
				loss, maxLossCap, maxIterations, domain.ErrCalibrationFailed)
		}
		b *= shrinkFactor
		q0, q1 = seedQuantities(p0, p1, b)
		q0, q1 = adjustToPrices(q0, q1, b, p0, p1)
		loss = worstCaseLoss(q0, q1, b)
	}

	return Params{B: b, Q0: q0, Q1: q1, Price0: p0, Price1: p1, MaxLoss: loss}, nil
}

// seedQuantities anchors the favored side at q=0 and offsets the other so the
// softmax reproduces the implied prices: q = b*ln((1-p)/p).
func seedQuantities(p0, p1, b float64) (float64, float64) {
	if p0 >= p1 {
		return 0, b * math.Log((1-p0)/p0)
	}
	return b * math.Log((1-p1)/p1), 0
}

// adjustToPrices nudges the offset side until the realized prices land within
// priceTolerance of the targets, bounded by maxIterations.
func adjustToPrices(q0, q1, b, p0, p1 float64) (float64, float64) {
	for i := 0; i < maxIterations; i++ {
		got0, _ := Price(q0, q1, b, 0)
		got1 := 1 - got0
		if math.Abs(got0-p0) <= priceTolerance && math.Abs(got1-p1) <= priceTolerance {
			break
		}
		if p0 >= p1 {
			q1 *= p0 / got0
		} else {
			q0 *= p1 / got1
		}
	}
	return q0, q1
}

// worstCaseLoss is the maximum the pool pays out over what it collected,
// across both possible resolutions.
func worstCaseLoss(q0, q1, b float64) float64 {
	loss1Wins := b * math.Log(1+math.Exp((q0-q1)/b))
	loss0Wins := b * math.Log(1+math.Exp((q1-q0)/b))
	return math.Max(loss0Wins, loss1Wins)
}
