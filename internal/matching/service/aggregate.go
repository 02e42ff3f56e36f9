package service

import "drug-matcher/internal/matching/model"

// Aggregate is the weighted overall score of one comparison.
type Aggregate struct {
	Overall      float64
	Confidence   string
	Weights      model.Weights // weights actually applied
	ManualReview bool
}

type Aggregator struct {
	weights     model.Weights
	breakpoints []model.Breakpoint
	adaptive    bool
}

// NewAggregator validates weights and breakpoints as part of cfg.
func NewAggregator(cfg Config) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bps := make([]model.Breakpoint, len(cfg.Breakpoints))
	copy(bps, cfg.Breakpoints)
	return &Aggregator{
		weights:     cfg.Weights,
		breakpoints: bps,
		adaptive:    cfg.Weighting == WeightingBrandAdaptive,
	}, nil
}

func (a *Aggregator) Aggregate(s model.AttributeScores) Aggregate {
	w, review := a.weights, false
	if a.adaptive {
		w, review = brandAdaptiveWeights(a.weights, s)
	}
	overall := clamp01(weightedSum(w, s))
	return Aggregate{Overall: overall, Confidence: a.Confidence(overall), Weights: w, ManualReview: review}
}

func weightedSum(w model.Weights, s model.AttributeScores) float64 {
	return s.Brand*w.Brand +
		s.Generic.Score*w.Generic +
		s.Strength*w.Strength +
		s.Dosage*w.Dosage +
		s.Price*w.Price
}

// Confidence maps an overall score to the label of the first breakpoint it
// reaches. Scores below every breakpoint get the last label.
func (a *Aggregator) Confidence(score float64) string {
	for _, bp := range a.breakpoints {
		if score >= bp.Min {
			return bp.Label
		}
	}
	return a.breakpoints[len(a.breakpoints)-1].Label
}

// brandAdaptiveWeights shifts weight away from the generic name when the brand
// already identifies the product. A near-identical brand with a diverging
// strength or dosage form is flagged for manual review.
func brandAdaptiveWeights(base model.Weights, s model.AttributeScores) (model.Weights, bool) {
	var w model.Weights
	review := false
	switch {
	case s.Brand >= 0.95 && s.Strength >= 0.95 && s.Dosage >= 0.95:
		w = model.Weights{Brand: 0.20, Generic: 0, Strength: 0.40, Dosage: 0.25, Price: 0.15}
	case s.Brand >= 0.95:
		w = model.Weights{Brand: 0.20, Generic: 0, Strength: 0.35, Dosage: 0.30, Price: 0.15}
		review = s.Strength < 0.8 || s.Dosage < 0.8
	case s.Brand >= 0.90:
		w = model.Weights{Brand: 0.20, Generic: 0.10, Strength: 0.30, Dosage: 0.25, Price: 0.15}
	default:
		return base, false
	}
	if sum := w.Sum(); sum > 0 {
		w.Brand /= sum
		w.Generic /= sum
		w.Strength /= sum
		w.Dosage /= sum
		w.Price /= sum
	}
	return w, review
}
