package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"drug-matcher/internal/matching/model"
)

// Persister is the narrow persistence collaborator. Calls are synchronous;
// the implementation may buffer.
type Persister interface {
	OpenSession(ctx context.Context, meta model.SessionMetadata) (string, error)
	SaveMatch(ctx context.Context, sessionID string, m model.MatchResult) error
	SaveUnmatched(ctx context.Context, sessionID string, u model.UnmatchedRecord) error
	UpdateSession(ctx context.Context, meta model.SessionMetadata) error
}

// NopPersister drops everything. Used when no database is configured.
type NopPersister struct{}

func (NopPersister) OpenSession(_ context.Context, meta model.SessionMetadata) (string, error) {
	return meta.ID, nil
}
func (NopPersister) SaveMatch(context.Context, string, model.MatchResult) error         { return nil }
func (NopPersister) SaveUnmatched(context.Context, string, model.UnmatchedRecord) error { return nil }
func (NopPersister) UpdateSession(context.Context, model.SessionMetadata) error         { return nil }

type trackedSession struct {
	meta     model.SessionMetadata
	outcomes []model.Outcome
	start    time.Time // carries the monotonic clock reading
	closed   bool
}

// Tracker owns session metadata and the record-level audit trail. All
// mutation goes through one mutex; it is the single serialization point of a
// parallel sweep.
type Tracker struct {
	mu       sync.Mutex
	persist  Persister
	log      zerolog.Logger
	sessions map[string]*trackedSession
	now      func() time.Time
}

func NewTracker(p Persister, logger zerolog.Logger) *Tracker {
	if p == nil {
		p = NopPersister{}
	}
	return &Tracker{
		persist:  p,
		log:      logger,
		sessions: make(map[string]*trackedSession),
		now:      time.Now,
	}
}

// Open assigns a fresh session id, stamps the start time and registers the
// session with the persister.
func (t *Tracker) Open(ctx context.Context, meta model.SessionMetadata) (string, error) {
	start := t.now()
	meta.ID = uuid.NewString()
	meta.StartedAt = start.UTC()
	meta.CompletedAt = nil
	meta.ProcessingDuration = 0
	meta.Counters = model.Counters{Skipped: meta.Counters.Skipped}

	id, err := t.persist.OpenSession(ctx, meta)
	if err != nil {
		return "", fmt.Errorf("opening session: %w", err)
	}
	if id != "" {
		meta.ID = id
	}

	t.mu.Lock()
	t.sessions[meta.ID] = &trackedSession{meta: meta, start: start}
	t.mu.Unlock()

	t.log.Info().
		Str("session", meta.ID).
		Str("reference", meta.ReferenceName).
		Str("candidate", meta.CandidateName).
		Int("references", meta.ReferenceCount).
		Int("candidates", meta.CandidateCount).
		Float64("threshold", meta.Threshold).
		Msg("session opened")
	return meta.ID, nil
}

// RecordOutcome appends one reference record's outcome to the audit trail and
// forwards it to the persister. Counters move as soon as the outcome is
// accepted, so a failed save is reported without skewing the counts.
func (t *Tracker) RecordOutcome(ctx context.Context, id string, o model.Outcome) error {
	if (o.Match == nil) == (o.Unmatched == nil) {
		return errors.New("outcome must carry exactly one of match or unmatched")
	}

	t.mu.Lock()
	s, ok := t.sessions[id]
	switch {
	case !ok:
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	case s.closed:
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionClosed, id)
	}
	s.outcomes = append(s.outcomes, o)
	s.meta.Counters.Processed++
	if o.Matched() {
		s.meta.Counters.Matched++
	} else {
		s.meta.Counters.Unmatched++
	}
	t.mu.Unlock()

	var err error
	if o.Matched() {
		err = t.persist.SaveMatch(ctx, id, *o.Match)
	} else {
		err = t.persist.SaveUnmatched(ctx, id, *o.Unmatched)
	}
	if err != nil {
		t.mu.Lock()
		s.meta.Counters.PersistFailure++
		t.mu.Unlock()
		ref := o.Reference()
		t.log.Error().Err(err).Str("session", id).Str("code", ref.Code).Int("row", ref.Index+1).Msg("persist outcome")
		return fmt.Errorf("persisting outcome for %q: %w", ref.Code, err)
	}
	return nil
}

// Close stamps completion time and duration exactly once. Processed, matched
// and unmatched counts are the tracker's own; only Skipped is taken from final.
func (t *Tracker) Close(ctx context.Context, id string, final model.Counters) (model.SessionMetadata, error) {
	t.mu.Lock()
	s, ok := t.sessions[id]
	switch {
	case !ok:
		t.mu.Unlock()
		return model.SessionMetadata{}, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	case s.closed:
		t.mu.Unlock()
		return model.SessionMetadata{}, fmt.Errorf("%w: %s", ErrSessionClosed, id)
	}
	end := t.now()
	s.closed = true
	s.meta.Counters.Skipped = final.Skipped
	done := end.UTC()
	s.meta.CompletedAt = &done
	s.meta.ProcessingDuration = end.Sub(s.start)
	meta := s.meta
	t.mu.Unlock()

	if final.Processed != 0 && final.Processed != meta.Counters.Processed {
		t.log.Warn().Str("session", id).
			Int("reported", final.Processed).Int("tracked", meta.Counters.Processed).
			Msg("processed count mismatch, keeping tracked count")
	}

	t.log.Info().
		Str("session", id).
		Int("processed", meta.Counters.Processed).
		Int("matched", meta.Counters.Matched).
		Int("unmatched", meta.Counters.Unmatched).
		Int("skipped", meta.Counters.Skipped).
		Dur("elapsed", meta.ProcessingDuration).
		Msg("session closed")

	if err := t.persist.UpdateSession(ctx, meta); err != nil {
		return meta, fmt.Errorf("updating session: %w", err)
	}
	return meta, nil
}

// Session returns a snapshot of the session metadata.
func (t *Tracker) Session(id string) (model.SessionMetadata, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return model.SessionMetadata{}, false
	}
	return s.meta, true
}

// Outcomes returns a copy of the audit trail in the order outcomes were recorded.
func (t *Tracker) Outcomes(id string) []model.Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return nil
	}
	out := make([]model.Outcome, len(s.outcomes))
	copy(out, s.outcomes)
	return out
}

// Discard drops a closed session from memory.
func (t *Tracker) Discard(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[id]; ok && s.closed {
		delete(t.sessions, id)
	}
}
