package service

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"drug-matcher/internal/matching/model"
)

// Catalogs is the input of one session.
type Catalogs struct {
	ReferenceName string
	CandidateName string
	References    []model.DrugRecord
	Candidates    []model.DrugRecord
}

// Report is what a finished session hands back to the caller.
type Report struct {
	Session       model.SessionMetadata   `json:"session"`
	Outcomes      []model.Outcome         `json:"outcomes"` // reference catalog order
	Skipped       []*MalformedRecordError `json:"skipped"`
	PersistErrors []string                `json:"persistErrors,omitempty"`
	Interrupted   bool                    `json:"interrupted,omitempty"`
}

type Engine struct {
	cfg     Config
	lexicon *Lexicon
	log     zerolog.Logger
}

// NewEngine rejects an invalid configuration before any record is seen.
func NewEngine(cfg Config, lx *Lexicon, logger zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Weighting == "" {
		cfg.Weighting = WeightingFixed
	}
	if lx == nil {
		lx = DefaultLexicon()
	}
	return &Engine{cfg: cfg, lexicon: lx, log: logger}, nil
}

func (e *Engine) Config() Config { return e.cfg }

type indexedOutcome struct {
	idx     int
	outcome model.Outcome
}

// Run matches every reference record against the candidate catalog and
// records one outcome per valid reference. Reference searches run on Workers
// goroutines; outcomes are funneled to the tracker from this goroutine only.
// Cancelling ctx stops new searches, the session is still closed with the
// counts of the records actually processed.
func (e *Engine) Run(ctx context.Context, cat Catalogs, p Persister) (*Report, error) {
	log := e.log.With().Str("component", "engine").Logger()

	refs := make([]model.DrugRecord, len(cat.References))
	for i, r := range cat.References {
		r.Source, r.Index = model.SourceReference, i
		refs[i] = r
	}
	cands := make([]model.DrugRecord, len(cat.Candidates))
	for i, c := range cat.Candidates {
		c.Source, c.Index = model.SourceCandidate, i
		cands[i] = c
	}

	matcher, err := NewMatcher(e.cfg, e.lexicon, refs, cands)
	if err != nil {
		return nil, err
	}

	rep := &Report{Skipped: append([]*MalformedRecordError(nil), matcher.Skipped()...)}
	valid := make([]model.DrugRecord, 0, len(refs))
	for _, r := range refs {
		if bad := checkRecord(r); bad != nil {
			rep.Skipped = append(rep.Skipped, bad)
			continue
		}
		valid = append(valid, r)
	}
	for _, bad := range rep.Skipped {
		log.Warn().Str("source", string(bad.Source)).Int("row", bad.Index+1).
			Str("code", bad.Code).Str("field", bad.Field).Msg("malformed record skipped")
	}
	skippedRefs := len(refs) - len(valid)

	tracker := NewTracker(p, e.log)
	id, err := tracker.Open(ctx, model.SessionMetadata{
		ReferenceName:     cat.ReferenceName,
		CandidateName:     cat.CandidateName,
		ReferenceCount:    len(refs),
		CandidateCount:    len(cands),
		Threshold:         e.cfg.Threshold,
		Weights:           e.cfg.Weights,
		Weighting:         e.cfg.Weighting,
		PriceTolerancePct: e.cfg.PriceTolerancePct,
		MaxPriceRatio:     e.cfg.MaxPriceRatio,
		Counters:          model.Counters{Skipped: skippedRefs},
	})
	if err != nil {
		return nil, err
	}
	defer tracker.Discard(id)

	log.Debug().Str("session", id).Int("corpus_docs", matcher.Scorer().corpus.Docs()).
		Int("corpus_terms", matcher.Scorer().corpus.Terms()).Msg("corpus built")

	workers := e.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = max(1, min(workers, len(valid)))

	jobs := make(chan int)
	results := make(chan indexedOutcome, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results <- indexedOutcome{idx: valid[i].Index, outcome: search(matcher, valid[i])}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range valid {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]indexedOutcome, 0, len(valid))
	for r := range results {
		// the session outlives a cancelled request context
		if err := tracker.RecordOutcome(context.WithoutCancel(ctx), id, r.outcome); err != nil {
			rep.PersistErrors = append(rep.PersistErrors, err.Error())
		}
		collected = append(collected, r)
		log.Debug().Str("session", id).Str("code", r.outcome.Reference().Code).
			Bool("matched", r.outcome.Matched()).Msg("record processed")
	}
	rep.Interrupted = ctx.Err() != nil && len(collected) < len(valid)

	sort.Slice(collected, func(a, b int) bool { return collected[a].idx < collected[b].idx })
	rep.Outcomes = make([]model.Outcome, len(collected))
	for i, c := range collected {
		rep.Outcomes[i] = c.outcome
	}

	meta, err := tracker.Close(context.WithoutCancel(ctx), id, model.Counters{Skipped: skippedRefs, Processed: len(collected)})
	rep.Session = meta
	if err != nil {
		rep.PersistErrors = append(rep.PersistErrors, err.Error())
		log.Error().Err(err).Str("session", id).Msg("close session")
	}
	return rep, nil
}

// search runs one reference search. References reaching the pool are already
// validated.
func search(m *Matcher, ref model.DrugRecord) model.Outcome {
	p := m.scorer.prepare(ref)
	return selectBest(m.scorer, m.agg, &p, m.candidates, m.threshold)
}
