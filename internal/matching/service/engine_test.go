package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drug-matcher/internal/matching/model"
)

func newTestEngine(t *testing.T, workers int) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Workers = workers
	e, err := NewEngine(cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	return e
}

func threeRecordCatalogs() Catalogs {
	return Catalogs{
		ReferenceName: "doh.xlsx",
		CandidateName: "supplier.csv",
		References: []model.DrugRecord{
			panadolRef,
			{Code: "D002", BrandName: "Zyrtec", GenericName: "Cetirizine", Strength: "10mg", DosageForm: "Syrup", Price: 30},
			{Code: "D003", BrandName: "Lasix", GenericName: "Furosemide", Strength: "40mg", DosageForm: "Injection", Price: 5},
		},
		Candidates: []model.DrugRecord{
			panadolCand,
			{Code: "S102", BrandName: "Ventolin", GenericName: "Salbutamol", Strength: "100mcg", DosageForm: "Inhaler", Price: 120},
		},
	}
}

func TestEngineRun(t *testing.T) {
	p := &memPersister{}
	rep, err := newTestEngine(t, 2).Run(context.Background(), threeRecordCatalogs(), p)
	require.NoError(t, err)

	c := rep.Session.Counters
	assert.Equal(t, 3, c.Processed)
	assert.Equal(t, 1, c.Matched)
	assert.Equal(t, 2, c.Unmatched)
	assert.Zero(t, c.Skipped)
	assert.False(t, rep.Interrupted)
	assert.Empty(t, rep.PersistErrors)

	require.Len(t, rep.Outcomes, 3)
	assert.Equal(t, []string{"D001", "D002", "D003"}, []string{
		rep.Outcomes[0].Reference().Code, rep.Outcomes[1].Reference().Code, rep.Outcomes[2].Reference().Code,
	})
	assert.True(t, rep.Outcomes[0].Matched())
	assert.Equal(t, 2, rep.Outcomes[2].Reference().Index)

	assert.Equal(t, 3, rep.Session.ReferenceCount)
	assert.Equal(t, 2, rep.Session.CandidateCount)
	assert.NotNil(t, rep.Session.CompletedAt)
	require.Len(t, p.updated, 1)
	assert.Equal(t, c, p.updated[0].Counters)
	assert.Len(t, p.matches, 1)
	assert.Len(t, p.unmatched, 2)
}

func TestEngineOutcomeOrderWithManyWorkers(t *testing.T) {
	cat := Catalogs{Candidates: []model.DrugRecord{panadolCand}}
	for i := 0; i < 40; i++ {
		r := panadolRef
		r.Code = fmt.Sprintf("R%02d", i)
		cat.References = append(cat.References, r)
	}
	rep, err := newTestEngine(t, 8).Run(context.Background(), cat, NopPersister{})
	require.NoError(t, err)
	require.Len(t, rep.Outcomes, 40)
	for i, o := range rep.Outcomes {
		assert.Equal(t, fmt.Sprintf("R%02d", i), o.Reference().Code)
	}
	assert.Equal(t, 40, rep.Session.Counters.Matched)
}

func TestEngineEmptyCandidates(t *testing.T) {
	cat := threeRecordCatalogs()
	cat.Candidates = nil
	rep, err := newTestEngine(t, 0).Run(context.Background(), cat, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Session.Counters.Unmatched)
	for _, o := range rep.Outcomes {
		require.NotNil(t, o.Unmatched)
		assert.Equal(t, 0.0, o.Unmatched.BestScore)
		assert.Nil(t, o.Unmatched.BestCandidate)
	}
}

func TestEngineSkipsMalformed(t *testing.T) {
	cat := threeRecordCatalogs()
	cat.References[1].DosageForm = ""
	cat.Candidates = append(cat.Candidates, model.DrugRecord{Code: "S-BAD", GenericName: "X", Strength: "1mg", DosageForm: "Tab", Price: -3})

	rep, err := newTestEngine(t, 2).Run(context.Background(), cat, nil)
	require.NoError(t, err)

	c := rep.Session.Counters
	assert.Equal(t, 2, c.Processed)
	assert.Equal(t, 1, c.Skipped)
	assert.Equal(t, c.Processed, c.Matched+c.Unmatched)
	require.Len(t, rep.Skipped, 2)

	fields := map[string]bool{}
	for _, s := range rep.Skipped {
		fields[s.Field] = true
	}
	assert.True(t, fields["dosage_form"])
	assert.True(t, fields["price"])
}

func TestEnginePersistFailure(t *testing.T) {
	p := &memPersister{failSaves: map[string]bool{"D001": true}}
	rep, err := newTestEngine(t, 1).Run(context.Background(), threeRecordCatalogs(), p)
	require.NoError(t, err)

	assert.Len(t, rep.PersistErrors, 1)
	assert.Equal(t, 1, rep.Session.Counters.PersistFailure)
	assert.Equal(t, 3, rep.Session.Counters.Processed)
	assert.Len(t, rep.Outcomes, 3)
}

func TestEngineOpenFailure(t *testing.T) {
	_, err := newTestEngine(t, 1).Run(context.Background(), threeRecordCatalogs(), &memPersister{failOpen: true})
	assert.Error(t, err)
}

func TestEngineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &memPersister{}
	rep, err := newTestEngine(t, 1).Run(ctx, threeRecordCatalogs(), p)
	require.NoError(t, err)

	c := rep.Session.Counters
	assert.LessOrEqual(t, c.Processed, 3)
	assert.Equal(t, len(rep.Outcomes), c.Processed)
	assert.Equal(t, c.Processed, c.Matched+c.Unmatched)
	assert.Equal(t, c.Processed < 3, rep.Interrupted)
	assert.NotNil(t, rep.Session.CompletedAt)
	require.Len(t, p.updated, 1)
}

func TestNewEngineRejectsConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = model.Weights{Brand: 1, Generic: 1}
	_, err := NewEngine(cfg, nil, zerolog.Nop())
	var ce *ConfigError
	assert.True(t, errors.As(err, &ce))
}
