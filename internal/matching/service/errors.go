package service

import (
	"errors"
	"fmt"
	"strings"

	"drug-matcher/internal/matching/model"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrSessionClosed  = errors.New("session already closed")
)

// ConfigError is returned before any record is processed when the matching
// configuration is unusable. It lists every violated rule, not just the first.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid matching configuration: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (e *ConfigError) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// MalformedRecordError describes a catalog row that was skipped.
type MalformedRecordError struct {
	Source model.Source `json:"source"`
	Index  int          `json:"index"`
	Code   string       `json:"code"`
	Field  string       `json:"field"`
	Reason string       `json:"reason"`
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s record #%d (code %q): %s %s", e.Source, e.Index+1, e.Code, e.Field, e.Reason)
}

// ValidateRecord checks the fields the scorers cannot work without. A missing
// price is not an error.
func ValidateRecord(r model.DrugRecord) error {
	if e := checkRecord(r); e != nil {
		return e
	}
	return nil
}

func checkRecord(r model.DrugRecord) *MalformedRecordError {
	bad := func(field, reason string) *MalformedRecordError {
		return &MalformedRecordError{Source: r.Source, Index: r.Index, Code: r.Code, Field: field, Reason: reason}
	}
	switch {
	case strings.TrimSpace(r.BrandName) == "" && strings.TrimSpace(r.GenericName) == "":
		return bad("brand_name/generic_name", "both empty")
	case strings.TrimSpace(r.Strength) == "":
		return bad("strength", "empty")
	case strings.TrimSpace(r.DosageForm) == "":
		return bad("dosage_form", "empty")
	case r.Price < 0:
		return bad("price", "negative")
	}
	return nil
}
