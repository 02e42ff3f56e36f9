package fileio

import (
	"fmt"
	"io"
	"math"
	"sort"

	excelize "github.com/xuri/excelize/v2"

	"drug-matcher/internal/matching/model"
	"drug-matcher/internal/matching/service"
)

const (
	sheetMatches   = "Matches"
	sheetUnmatched = "Unmatched"
	sheetSummary   = "Summary"
	sheetSkipped   = "Skipped"
)

// fill colours of the default confidence labels; other labels stay unfilled
var confidenceColours = map[string]string{
	"Very High": "C6EFCE",
	"High":      "E2EFDA",
	"Medium":    "FFEB9C",
	"Low":       "FCE4D6",
	"Very Low":  "FFC7CE",
}

var matchHeader = []any{
	"Ref Row", "Ref Code", "Ref Brand", "Ref Generic", "Ref Strength", "Ref Dosage Form", "Ref Price",
	"Cand Code", "Cand Brand", "Cand Generic", "Cand Strength", "Cand Dosage Form", "Cand Price",
	"Brand", "Generic", "Strength", "Dosage", "Price", "Fuzzy", "Vector", "Semantic",
	"Overall", "Confidence", "Method", "Manual Review",
}

var unmatchedHeader = []any{
	"Ref Row", "Code", "Brand", "Generic", "Strength", "Dosage Form", "Price",
	"Best Score", "Best Candidate", "Reason",
}

var skippedHeader = []any{"Source", "Row", "Code", "Field", "Reason"}

// WriteReport renders a finished session as an xlsx workbook.
func WriteReport(w io.Writer, rep *service.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetMatches); err != nil {
		return err
	}
	for _, name := range []string{sheetUnmatched, sheetSummary, sheetSkipped} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	styles := make(map[string]int, len(confidenceColours))
	for label, colour := range confidenceColours {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{colour}},
		})
		if err != nil {
			return err
		}
		styles[label] = id
	}

	rw := &sheetWriter{f: f, bold: bold}
	rw.header(sheetMatches, matchHeader)
	rw.header(sheetUnmatched, unmatchedHeader)
	rw.header(sheetSkipped, skippedHeader)

	levels := make(map[string]int)
	for _, o := range rep.Outcomes {
		switch {
		case o.Match != nil:
			m := o.Match
			levels[m.Confidence]++
			row := rw.row(sheetMatches, matchRow(m))
			if id, ok := styles[m.Confidence]; ok {
				rw.style(sheetMatches, row, len(matchHeader), id)
			}
		case o.Unmatched != nil:
			rw.row(sheetUnmatched, unmatchedRow(o.Unmatched))
		}
	}
	for _, s := range rep.Skipped {
		rw.row(sheetSkipped, []any{string(s.Source), s.Index + 1, s.Code, s.Field, s.Reason})
	}

	writeSummary(rw, rep, levels)

	for _, name := range []string{sheetMatches, sheetUnmatched, sheetSkipped} {
		_ = f.SetColWidth(name, "A", "Y", 14)
	}
	_ = f.SetColWidth(sheetSummary, "A", "A", 24)
	_ = f.SetColWidth(sheetSummary, "B", "B", 40)
	f.SetActiveSheet(0)

	if rw.err != nil {
		return rw.err
	}
	return f.Write(w)
}

func matchRow(m *model.MatchResult) []any {
	r, c, s := m.Reference, m.Candidate, m.Scores
	review := ""
	if m.ManualReview {
		review = "yes"
	}
	return []any{
		r.Index + 1, r.Code, r.BrandName, r.GenericName, r.Strength, r.DosageForm, price(r),
		c.Code, c.BrandName, c.GenericName, c.Strength, c.DosageForm, price(c),
		round3(s.Brand), round3(s.Generic.Score), round3(s.Strength), round3(s.Dosage), round3(s.Price),
		round3(s.Generic.Fuzzy), round3(s.Generic.Vector), round3(s.Generic.Semantic),
		round3(m.Overall), m.Confidence, m.Method, review,
	}
}

func unmatchedRow(u *model.UnmatchedRecord) []any {
	r := u.Record
	best := ""
	if u.BestCandidate != nil {
		best = *u.BestCandidate
	}
	return []any{
		r.Index + 1, r.Code, r.BrandName, r.GenericName, r.Strength, r.DosageForm, price(r),
		round3(u.BestScore), best, u.Reason,
	}
}

func writeSummary(rw *sheetWriter, rep *service.Report, levels map[string]int) {
	s := rep.Session
	c := s.Counters
	rate := 0.0
	if c.Processed > 0 {
		rate = float64(c.Matched) / float64(c.Processed) * 100
	}
	completed := ""
	if s.CompletedAt != nil {
		completed = s.CompletedAt.Format("2006-01-02 15:04:05")
	}
	w := s.Weights
	rows := [][]any{
		{"Session", s.ID},
		{"Reference catalog", s.ReferenceName},
		{"Candidate catalog", s.CandidateName},
		{"Reference records", s.ReferenceCount},
		{"Candidate records", s.CandidateCount},
		{"Started", s.StartedAt.Format("2006-01-02 15:04:05")},
		{"Completed", completed},
		{"Duration (s)", round3(s.ProcessingDuration.Seconds())},
		{"Threshold", s.Threshold},
		{"Weights", fmt.Sprintf("brand %.2f, generic %.2f, strength %.2f, dosage %.2f, price %.2f",
			w.Brand, w.Generic, w.Strength, w.Dosage, w.Price)},
		{"Weighting", s.Weighting},
		{"Price tolerance (%)", s.PriceTolerancePct},
		{"Max price ratio", s.MaxPriceRatio},
		{"Processed", c.Processed},
		{"Matched", c.Matched},
		{"Unmatched", c.Unmatched},
		{"Skipped", c.Skipped},
		{"Persist failures", c.PersistFailure},
		{"Match rate (%)", round3(rate)},
	}
	if rep.Interrupted {
		rows = append(rows, []any{"Interrupted", "yes"})
	}
	for _, r := range rows {
		rw.row(sheetSummary, r)
	}

	rw.row(sheetSummary, []any{})
	rw.header(sheetSummary, []any{"Confidence", "Matches"})
	labels := make([]string, 0, len(levels))
	for l := range levels {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		rw.row(sheetSummary, []any{l, levels[l]})
	}
}

func price(r model.DrugRecord) any {
	if !r.HasPrice() {
		return ""
	}
	return r.Price
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// sheetWriter appends rows per sheet and keeps the first error.
type sheetWriter struct {
	f    *excelize.File
	bold int
	next map[string]int
	err  error
}

func (sw *sheetWriter) row(sheet string, values []any) int {
	if sw.next == nil {
		sw.next = make(map[string]int)
	}
	n := sw.next[sheet] + 1
	sw.next[sheet] = n
	if sw.err != nil || len(values) == 0 {
		return n
	}
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		sw.err = err
		return n
	}
	if err := sw.f.SetSheetRow(sheet, cell, &values); err != nil {
		sw.err = err
	}
	return n
}

func (sw *sheetWriter) header(sheet string, values []any) {
	n := sw.row(sheet, values)
	sw.style(sheet, n, len(values), sw.bold)
}

func (sw *sheetWriter) style(sheet string, row, cols, id int) {
	if sw.err != nil {
		return
	}
	from, _ := excelize.CoordinatesToCellName(1, row)
	to, err := excelize.CoordinatesToCellName(cols, row)
	if err != nil {
		sw.err = err
		return
	}
	if err := sw.f.SetCellStyle(sheet, from, to, id); err != nil {
		sw.err = err
	}
}
