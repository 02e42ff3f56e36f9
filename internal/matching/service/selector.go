package service

import (
	"fmt"

	"drug-matcher/internal/matching/model"
)

const noCandidatesReason = "no candidate records available"

// Matcher searches a fixed, prepared candidate catalog for the best match of
// one reference record at a time. Everything it holds is read-only once
// built, so SelectBest may be called from many goroutines.
type Matcher struct {
	threshold  float64
	scorer     *Scorer
	agg        *Aggregator
	candidates []prepared
	skipped    []*MalformedRecordError
}

// NewMatcher validates cfg, builds the generic-name corpus over both catalogs
// and prepares the candidates. Malformed candidates are left out and reported
// by Skipped.
func NewMatcher(cfg Config, lx *Lexicon, references, candidates []model.DrugRecord) (*Matcher, error) {
	agg, err := NewAggregator(cfg)
	if err != nil {
		return nil, err
	}
	if lx == nil {
		lx = DefaultLexicon()
	}

	names := make([]string, 0, len(references)+len(candidates))
	for _, r := range references {
		names = append(names, Normalize(r.GenericName))
	}
	for _, c := range candidates {
		names = append(names, Normalize(c.GenericName))
	}
	scorer := NewScorer(NewCorpus(names), lx, NewPricePolicy(cfg.PriceTolerancePct, cfg.MaxPriceRatio))

	m := &Matcher{threshold: cfg.Threshold, scorer: scorer, agg: agg}
	m.candidates = make([]prepared, 0, len(candidates))
	for _, c := range candidates {
		c.Source = model.SourceCandidate
		if bad := checkRecord(c); bad != nil {
			m.skipped = append(m.skipped, bad)
			continue
		}
		m.candidates = append(m.candidates, scorer.prepare(c))
	}
	return m, nil
}

func (m *Matcher) Scorer() *Scorer                  { return m.scorer }
func (m *Matcher) Aggregator() *Aggregator          { return m.agg }
func (m *Matcher) Candidates() int                  { return len(m.candidates) }
func (m *Matcher) Skipped() []*MalformedRecordError { return m.skipped }

// SelectBest scores ref against every candidate and returns exactly one
// outcome. A malformed reference returns a *MalformedRecordError and no outcome.
func (m *Matcher) SelectBest(ref model.DrugRecord) (model.Outcome, error) {
	ref.Source = model.SourceReference
	if err := ValidateRecord(ref); err != nil {
		return model.Outcome{}, err
	}
	p := m.scorer.prepare(ref)
	return selectBest(m.scorer, m.agg, &p, m.candidates, m.threshold), nil
}

// selectBest keeps the candidate with the strictly highest overall score, so
// ties go to the first candidate in catalog order. The threshold is checked
// once, after the search, against the retained best only.
func selectBest(sc *Scorer, agg *Aggregator, ref *prepared, cands []prepared, threshold float64) model.Outcome {
	var (
		best       *prepared
		bestScores model.AttributeScores
		bestAgg    Aggregate
	)
	for i := range cands {
		c := &cands[i]
		s := sc.score(ref, c)
		a := agg.Aggregate(s)
		if best == nil || a.Overall > bestAgg.Overall {
			best, bestScores, bestAgg = c, s, a
		}
	}

	if best == nil {
		return model.Outcome{Unmatched: &model.UnmatchedRecord{
			Record: ref.rec,
			Reason: noCandidatesReason,
		}}
	}

	if bestAgg.Overall >= threshold {
		return model.Outcome{Match: &model.MatchResult{
			Reference:     ref.rec,
			Candidate:     best.rec,
			Scores:        bestScores,
			Overall:       bestAgg.Overall,
			Confidence:    bestAgg.Confidence,
			Method:        bestScores.Generic.Method,
			AppliedWeight: bestAgg.Weights,
			ManualReview:  bestAgg.ManualReview,
		}}
	}

	code := best.rec.Code
	return model.Outcome{Unmatched: &model.UnmatchedRecord{
		Record:        ref.rec,
		BestScore:     bestAgg.Overall,
		BestCandidate: &code,
		Reason:        fmt.Sprintf("best score %.3f below threshold %g", bestAgg.Overall, threshold),
	}}
}
