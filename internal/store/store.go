package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"drug-matcher/internal/matching/model"
)

const (
	StatusMatched   = "MATCHED"
	StatusUnmatched = "UNMATCHED"
)

var ErrNotFound = errors.New("not found")

// Store persists sessions and per-record results in SQLite. It satisfies
// service.Persister.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// OpenSession inserts the session row and returns its id.
func (s *Store) OpenSession(ctx context.Context, meta model.SessionMetadata) (string, error) {
	if meta.ID == "" {
		return "", fmt.Errorf("session id is required")
	}
	weights, err := json.Marshal(meta.Weights)
	if err != nil {
		return "", fmt.Errorf("marshaling weights: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO match_sessions (id, reference_name, candidate_name, reference_count, candidate_count,
			threshold, weights, weighting, price_tolerance_pct, max_price_ratio, skipped_count, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, meta.ID, meta.ReferenceName, meta.CandidateName, meta.ReferenceCount, meta.CandidateCount,
		meta.Threshold, string(weights), meta.Weighting, meta.PriceTolerancePct, meta.MaxPriceRatio,
		meta.Counters.Skipped, meta.StartedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("inserting session: %w", err)
	}
	return meta.ID, nil
}

// UpdateSession writes the running or final counters and completion stamps.
func (s *Store) UpdateSession(ctx context.Context, meta model.SessionMetadata) error {
	var completed any
	if meta.CompletedAt != nil {
		completed = meta.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	c := meta.Counters
	res, err := s.db.ExecContext(ctx, `
		UPDATE match_sessions SET processed_count = ?, matches_count = ?, unmatched_count = ?,
			skipped_count = ?, persist_failures = ?, completed_at = ?, processing_seconds = ?
		WHERE id = ?
	`, c.Processed, c.Matched, c.Unmatched, c.Skipped, c.PersistFailure, completed,
		meta.ProcessingDuration.Seconds(), meta.ID)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", meta.ID, ErrNotFound)
	}
	return nil
}

func (s *Store) SaveMatch(ctx context.Context, sessionID string, m model.MatchResult) error {
	r, c, sc := m.Reference, m.Candidate, m.Scores
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drug_results (session_id, status, source, ref_row, ref_code, ref_brand_name, ref_generic_name,
			ref_strength, ref_dosage_form, ref_price, cand_code, cand_brand_name, cand_generic_name, cand_strength,
			cand_dosage_form, cand_price, brand_similarity, generic_similarity, strength_similarity,
			dosage_similarity, price_similarity, overall_score, confidence_level, fuzzy_score, vector_score,
			semantic_score, matching_method, manual_review, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sessionID, StatusMatched, string(r.Source), r.Index, r.Code, r.BrandName, r.GenericName,
		r.Strength, r.DosageForm, r.Price, c.Code, c.BrandName, c.GenericName, c.Strength,
		c.DosageForm, c.Price, sc.Brand, sc.Generic.Score, sc.Strength,
		sc.Dosage, sc.Price, m.Overall, m.Confidence, sc.Generic.Fuzzy, sc.Generic.Vector,
		sc.Generic.Semantic, m.Method, m.ManualReview, s.stamp())
	if err != nil {
		return fmt.Errorf("inserting match: %w", err)
	}
	return nil
}

func (s *Store) SaveUnmatched(ctx context.Context, sessionID string, u model.UnmatchedRecord) error {
	r := u.Record
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drug_results (session_id, status, source, ref_row, ref_code, ref_brand_name, ref_generic_name,
			ref_strength, ref_dosage_form, ref_price, best_match_score, best_match_code, search_reason, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sessionID, StatusUnmatched, string(r.Source), r.Index, r.Code, r.BrandName, r.GenericName,
		r.Strength, r.DosageForm, r.Price, u.BestScore, u.BestCandidate, u.Reason, s.stamp())
	if err != nil {
		return fmt.Errorf("inserting unmatched: %w", err)
	}
	return nil
}

func (s *Store) stamp() string { return s.now().UTC().Format(time.RFC3339Nano) }

// GetSession loads one session row.
func (s *Store) GetSession(ctx context.Context, id string) (*model.SessionMetadata, error) {
	var (
		meta      model.SessionMetadata
		weights   string
		started   string
		completed sql.NullString
		seconds   float64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, reference_name, candidate_name, reference_count, candidate_count, threshold, weights,
			weighting, price_tolerance_pct, max_price_ratio, processed_count, matches_count, unmatched_count,
			skipped_count, persist_failures, started_at, completed_at, processing_seconds
		FROM match_sessions WHERE id = ?
	`, id).Scan(&meta.ID, &meta.ReferenceName, &meta.CandidateName, &meta.ReferenceCount, &meta.CandidateCount,
		&meta.Threshold, &weights, &meta.Weighting, &meta.PriceTolerancePct, &meta.MaxPriceRatio,
		&meta.Counters.Processed, &meta.Counters.Matched, &meta.Counters.Unmatched, &meta.Counters.Skipped,
		&meta.Counters.PersistFailure, &started, &completed, &seconds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if err := json.Unmarshal([]byte(weights), &meta.Weights); err != nil {
		return nil, fmt.Errorf("decoding weights: %w", err)
	}
	if meta.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if completed.Valid {
		t, err := time.Parse(time.RFC3339Nano, completed.String)
		if err != nil {
			return nil, fmt.Errorf("parsing completed_at: %w", err)
		}
		meta.CompletedAt = &t
	}
	meta.ProcessingDuration = time.Duration(seconds * float64(time.Second))
	return &meta, nil
}

// ResultRow is one persisted drug_results row in flat form.
type ResultRow struct {
	ID             int64    `json:"id"`
	Status         string   `json:"status"`
	RefRow         int      `json:"refRow"`
	RefCode        string   `json:"refCode"`
	RefBrandName   string   `json:"refBrandName"`
	RefGenericName string   `json:"refGenericName"`
	CandCode       *string  `json:"candCode,omitempty"`
	OverallScore   *float64 `json:"overallScore,omitempty"`
	Confidence     *string  `json:"confidence,omitempty"`
	Method         *string  `json:"method,omitempty"`
	ManualReview   bool     `json:"manualReview"`
	BestScore      float64  `json:"bestScore"`
	BestCode       *string  `json:"bestCode,omitempty"`
	Reason         *string  `json:"reason,omitempty"`
}

// ListResults returns a session's rows in reference order. An empty status
// returns both matched and unmatched rows.
func (s *Store) ListResults(ctx context.Context, sessionID, status string) ([]ResultRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, ref_row, ref_code, ref_brand_name, ref_generic_name, cand_code, overall_score,
			confidence_level, matching_method, manual_review, best_match_score, best_match_code, search_reason
		FROM drug_results
		WHERE session_id = ? AND (? = '' OR status = ?)
		ORDER BY ref_row, id
	`, sessionID, status, status)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []ResultRow
	for rows.Next() {
		var r ResultRow
		if err := rows.Scan(&r.ID, &r.Status, &r.RefRow, &r.RefCode, &r.RefBrandName, &r.RefGenericName,
			&r.CandCode, &r.OverallScore, &r.Confidence, &r.Method, &r.ManualReview, &r.BestScore,
			&r.BestCode, &r.Reason); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountResults returns matched and unmatched row counts of a session.
func (s *Store) CountResults(ctx context.Context, sessionID string) (matched, unmatched int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(status = 'MATCHED'), 0), COALESCE(SUM(status = 'UNMATCHED'), 0)
		FROM drug_results WHERE session_id = ?
	`, sessionID).Scan(&matched, &unmatched)
	if err != nil {
		return 0, 0, fmt.Errorf("counting results: %w", err)
	}
	return matched, unmatched, nil
}

// DeleteSession removes a session and, through the foreign key, its results.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM match_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}
