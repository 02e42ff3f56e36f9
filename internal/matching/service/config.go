package service

import (
	"math"

	"drug-matcher/internal/matching/model"
)

const (
	WeightingFixed         = "fixed"
	WeightingBrandAdaptive = "brand-adaptive"

	weightSumTolerance = 1e-6
)

// Config is everything that shapes one matching session.
type Config struct {
	Threshold         float64
	Weights           model.Weights
	PriceTolerancePct float64
	MaxPriceRatio     float64
	Breakpoints       []model.Breakpoint
	Weighting         string
	Workers           int // 0 = GOMAXPROCS
}

func DefaultWeights() model.Weights {
	return model.Weights{Brand: 0.20, Generic: 0.30, Strength: 0.20, Dosage: 0.15, Price: 0.15}
}

func DefaultBreakpoints() []model.Breakpoint {
	return []model.Breakpoint{
		{Label: "Very High", Min: 0.95},
		{Label: "High", Min: 0.85},
		{Label: "Medium", Min: 0.75},
		{Label: "Low", Min: 0.65},
		{Label: "Very Low", Min: 0},
	}
}

func DefaultConfig() Config {
	return Config{
		Threshold:         0.7,
		Weights:           DefaultWeights(),
		PriceTolerancePct: 20.0,
		MaxPriceRatio:     5.0,
		Breakpoints:       DefaultBreakpoints(),
		Weighting:         WeightingFixed,
	}
}

// Validate returns a *ConfigError describing every problem, or nil.
func (c Config) Validate() error {
	ce := &ConfigError{}

	if !(c.Threshold > 0 && c.Threshold <= 1) {
		ce.add("threshold %v outside (0,1]", c.Threshold)
	}

	w := c.Weights
	for name, v := range map[string]float64{
		"brand": w.Brand, "generic": w.Generic, "strength": w.Strength, "dosage": w.Dosage, "price": w.Price,
	} {
		if v < 0 || math.IsNaN(v) {
			ce.add("%s weight %v is negative", name, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > weightSumTolerance {
		ce.add("weights sum to %.6f, want 1.0", sum)
	}

	if !(c.PriceTolerancePct >= 0 && c.PriceTolerancePct < 100) {
		ce.add("price tolerance %v%% outside [0,100)", c.PriceTolerancePct)
	}
	if !(c.MaxPriceRatio > 1) {
		ce.add("max price ratio %v must be > 1", c.MaxPriceRatio)
	}

	if len(c.Breakpoints) == 0 {
		ce.add("no confidence breakpoints")
	}
	for i, bp := range c.Breakpoints {
		if bp.Label == "" {
			ce.add("confidence breakpoint #%d has no label", i+1)
		}
		if !(bp.Min >= 0 && bp.Min <= 1) {
			ce.add("confidence breakpoint %q = %v outside [0,1]", bp.Label, bp.Min)
		}
		if i > 0 && bp.Min > c.Breakpoints[i-1].Min {
			ce.add("confidence breakpoints not descending: %q (%v) above %q (%v)",
				bp.Label, bp.Min, c.Breakpoints[i-1].Label, c.Breakpoints[i-1].Min)
		}
	}

	switch c.Weighting {
	case "", WeightingFixed, WeightingBrandAdaptive:
	default:
		ce.add("unknown weighting %q", c.Weighting)
	}
	if c.Workers < 0 {
		ce.add("workers %d is negative", c.Workers)
	}
	return ce.orNil()
}
