package service

import "math"

const (
	priceEpsilon = 1e-9

	// NeutralPriceScore is used when either price is absent. It neither
	// rewards nor zeroes out the overall score.
	NeutralPriceScore = 0.5
	// PriceBandScore is the score inside the tolerance band: the maximum,
	// so prices within tolerance count as identical.
	PriceBandScore = 1.0
)

// PricePolicy scores two prices by their relative difference.
type PricePolicy struct {
	Tolerance float64 // fraction, 0.2 = 20%
	MaxRatio  float64
}

func NewPricePolicy(tolerancePct, maxRatio float64) PricePolicy {
	return PricePolicy{Tolerance: tolerancePct / 100, MaxRatio: maxRatio}
}

// Score is symmetric. Within the tolerance band it returns PriceBandScore,
// then decays linearly to 0 as the price ratio grows from the band edge to
// MaxRatio. Absent (zero, negative or NaN) prices give NeutralPriceScore.
func (p PricePolicy) Score(a, b float64) float64 {
	if !(a > 0) || !(b > 0) || math.IsInf(a, 0) || math.IsInf(b, 0) {
		return NeutralPriceScore
	}
	hi, lo := math.Max(a, b), math.Min(a, b)
	d := (hi - lo) / math.Max(hi, priceEpsilon)
	if d <= p.Tolerance {
		return PriceBandScore
	}
	ratio := hi / lo
	if ratio >= p.MaxRatio {
		return 0
	}
	// ratio at which the relative difference equals the tolerance
	edge := 1 / (1 - p.Tolerance)
	return clamp01(PriceBandScore * (p.MaxRatio - ratio) / (p.MaxRatio - edge))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
