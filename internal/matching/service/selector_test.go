package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drug-matcher/internal/matching/model"
)

var (
	panadolRef  = model.DrugRecord{Code: "D001", BrandName: "Panadol", GenericName: "Paracetamol", Strength: "500mg", DosageForm: "TABLET", Price: 15.50}
	panadolCand = model.DrugRecord{Code: "S101", BrandName: "Panadol", GenericName: "Paracetamol", Strength: "500mg", DosageForm: "TABLET", Price: 15.60}
)

func newTestMatcher(t *testing.T, refs, cands []model.DrugRecord) *Matcher {
	t.Helper()
	m, err := NewMatcher(DefaultConfig(), nil, refs, cands)
	require.NoError(t, err)
	return m
}

func TestSelectBestIdenticalProduct(t *testing.T) {
	m := newTestMatcher(t, []model.DrugRecord{panadolRef}, []model.DrugRecord{panadolCand})

	out, err := m.SelectBest(panadolRef)
	require.NoError(t, err)
	require.True(t, out.Matched())
	assert.Nil(t, out.Unmatched)

	res := out.Match
	assert.GreaterOrEqual(t, res.Overall, 0.95)
	assert.Equal(t, "Very High", res.Confidence)
	assert.Equal(t, "S101", res.Candidate.Code)
	assert.Equal(t, "exact", res.Method)
	assert.Equal(t, model.SourceReference, res.Reference.Source)
}

func TestSelectBestBelowThreshold(t *testing.T) {
	ref := model.DrugRecord{Code: "D002", BrandName: "Amoxil", GenericName: "Amoxicillin 625mg", Strength: "250 mg", DosageForm: "Capsule", Price: 10}
	cand := model.DrugRecord{Code: "S202", BrandName: "Augmentin", GenericName: "Amoxiclav 625mg", Strength: "1 g", DosageForm: "Injection", Price: 100}
	m := newTestMatcher(t, []model.DrugRecord{ref}, []model.DrugRecord{cand})

	out, err := m.SelectBest(ref)
	require.NoError(t, err)
	require.False(t, out.Matched())

	u := out.Unmatched
	assert.Less(t, u.BestScore, 0.7)
	assert.Greater(t, u.BestScore, 0.0)
	require.NotNil(t, u.BestCandidate)
	assert.Equal(t, "S202", *u.BestCandidate)
	assert.Contains(t, u.Reason, "threshold 0.7")
}

func TestSelectBestEmptyCatalog(t *testing.T) {
	m := newTestMatcher(t, []model.DrugRecord{panadolRef}, nil)

	out, err := m.SelectBest(panadolRef)
	require.NoError(t, err)
	require.NotNil(t, out.Unmatched)
	assert.Equal(t, 0.0, out.Unmatched.BestScore)
	assert.Nil(t, out.Unmatched.BestCandidate)
	assert.Equal(t, noCandidatesReason, out.Unmatched.Reason)
}

func TestSelectBestTieGoesToFirstCandidate(t *testing.T) {
	first := panadolCand
	second := panadolCand
	second.Code = "S999"
	m := newTestMatcher(t, []model.DrugRecord{panadolRef}, []model.DrugRecord{first, second})

	out, err := m.SelectBest(panadolRef)
	require.NoError(t, err)
	require.True(t, out.Matched())
	assert.Equal(t, "S101", out.Match.Candidate.Code)
}

func TestSelectBestPrefersCloserCandidate(t *testing.T) {
	far := model.DrugRecord{Code: "S1", BrandName: "Brufen", GenericName: "Ibuprofen", Strength: "400mg", DosageForm: "Tablet", Price: 8}
	near := panadolCand
	m := newTestMatcher(t, []model.DrugRecord{panadolRef}, []model.DrugRecord{far, near})

	out, err := m.SelectBest(panadolRef)
	require.NoError(t, err)
	require.True(t, out.Matched())
	assert.Equal(t, "S101", out.Match.Candidate.Code)
}

func TestSelectBestMalformed(t *testing.T) {
	badCand := model.DrugRecord{Code: "S0", BrandName: "X", GenericName: "Y", Strength: "", DosageForm: "Tablet"}
	m := newTestMatcher(t, nil, []model.DrugRecord{badCand, panadolCand})
	assert.Equal(t, 1, m.Candidates())
	require.Len(t, m.Skipped(), 1)
	assert.Equal(t, "strength", m.Skipped()[0].Field)

	bad := panadolRef
	bad.BrandName, bad.GenericName = "", " "
	_, err := m.SelectBest(bad)
	var mre *MalformedRecordError
	require.True(t, errors.As(err, &mre))
	assert.Equal(t, "D001", mre.Code)

	neg := panadolRef
	neg.Price = -1
	_, err = m.SelectBest(neg)
	assert.True(t, errors.As(err, &mre))
	assert.Equal(t, "price", mre.Field)
}

func TestNewMatcherRejectsConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Threshold = 2
	_, err := NewMatcher(cfg, nil, nil, nil)
	var ce *ConfigError
	assert.True(t, errors.As(err, &ce))
}
