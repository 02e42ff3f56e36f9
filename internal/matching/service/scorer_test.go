package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drug-matcher/internal/matching/model"
)

func testScorer() *Scorer {
	return NewScorer(NewCorpus(nil), DefaultLexicon(), NewPricePolicy(20, 5))
}

func TestBrandScore(t *testing.T) {
	assert.Equal(t, 1.0, BrandScore("Panadol", "PANADOL"))
	assert.Equal(t, 1.0, BrandScore("", ""))
	assert.Equal(t, 0.0, BrandScore("Panadol", ""))
	assert.InDelta(t, 1-1.0/7, BrandScore("Panadol", "Panadal"), 1e-9)
	assert.Equal(t, BrandScore("Brufen", "Nurofen"), BrandScore("Nurofen", "Brufen"))
}

func TestGenericScore(t *testing.T) {
	sc := testScorer()

	same := sc.GenericScore("Paracetamol", "PARACETAMOL")
	assert.Equal(t, 1.0, same.Score)
	assert.Equal(t, "exact", same.Method)

	syn := sc.GenericScore("Paracetamol", "Acetaminophen")
	assert.Equal(t, 1.0, syn.Semantic)
	assert.Equal(t, "semantic", syn.Method)
	assert.Greater(t, syn.Score, 0.25)

	salt := sc.GenericScore("Metformin Hydrochloride", "Metformin")
	assert.Equal(t, 1.0, salt.Semantic)

	combo := sc.GenericScore("Amoxicillin", "Amoxiclav")
	assert.InDelta(t, 0.5, combo.Semantic, 1e-9)
	assert.Less(t, combo.Score, 1.0)

	none := sc.GenericScore("", "Ibuprofen")
	assert.Equal(t, 0.0, none.Score)
	assert.Equal(t, "none", none.Method)
}

func TestGenericScoreSymmetric(t *testing.T) {
	sc := NewScorer(NewCorpus([]string{"ibuprofen", "paracetamol", "paracetamol caffeine"}), DefaultLexicon(), NewPricePolicy(20, 5))
	pairs := [][2]string{
		{"Paracetamol", "Paracetamol Caffeine"},
		{"Ibuprofen", "Ibuprofene"},
		{"Co-Trimoxazole", "Sulfamethoxazole + Trimethoprim"},
	}
	for _, p := range pairs {
		a, b := sc.GenericScore(p[0], p[1]), sc.GenericScore(p[1], p[0])
		assert.InDelta(t, a.Score, b.Score, 1e-9, p)
	}
	assert.Equal(t, 1.0, sc.GenericScore("Co-Trimoxazole", "Sulfamethoxazole + Trimethoprim").Semantic)
}

func TestStrengthScore(t *testing.T) {
	assert.Equal(t, 1.0, StrengthScore("500mg", "500 MG"))
	assert.Equal(t, equivalentStrength, StrengthScore("0.5 g", "500 mg"))
	assert.InDelta(t, 0.05, StrengthScore("500mg", "250mg"), 1e-9)
	assert.Equal(t, 0.0, StrengthScore("500mg", "500ml"))
	assert.Equal(t, 0.0, StrengthScore("500mg", "500mg/5ml"))
	assert.Equal(t, 0.0, StrengthScore("", "500mg"))
	assert.Equal(t, StrengthScore("1g", "250mg"), StrengthScore("250mg", "1g"))
}

func TestStrengthScoreSeparators(t *testing.T) {
	assert.Equal(t, 1.0, StrengthScore("1,000 IU", "1000 IU"))
	assert.Equal(t, 1.0, StrengthScore("10,000 units", "10000 units"))
	assert.Equal(t, 1.0, StrengthScore("0,5 g", "0.5 g"))
	assert.Equal(t, equivalentStrength, StrengthScore("0,5 g", "500 mg"))
}

func TestDosageScore(t *testing.T) {
	sc := testScorer()
	assert.Equal(t, 1.0, sc.DosageScore("TABLET", "tablet"))
	assert.Equal(t, synonymForm, sc.DosageScore("TAB", "Tablet"))
	assert.Equal(t, familyForm, sc.DosageScore("Tablet", "Film Coated Tablet"))
	assert.Equal(t, familyForm, sc.DosageScore("Syrup", "Susp"))
	assert.LessOrEqual(t, sc.DosageScore("Cream", "Injection"), unknownForm)
	assert.Equal(t, 0.0, sc.DosageScore("", "Tablet"))
}

func TestPriceScore(t *testing.T) {
	p := NewPricePolicy(20, 5)
	assert.Equal(t, PriceBandScore, p.Score(15.50, 15.60))
	assert.Equal(t, PriceBandScore, p.Score(10, 12.5))
	assert.Equal(t, NeutralPriceScore, p.Score(0, 10))
	assert.Equal(t, NeutralPriceScore, p.Score(10, 0))
	assert.Equal(t, 0.0, p.Score(10, 100))
	assert.Equal(t, 0.0, p.Score(10, 50))
	assert.InDelta(t, 2/3.75, p.Score(10, 30), 1e-9)
	assert.Equal(t, p.Score(10, 30), p.Score(30, 10))

	// strictly decaying between the band edge and the max ratio
	prev := p.Score(10, 13)
	for _, b := range []float64{15, 20, 30, 40, 49} {
		s := p.Score(10, b)
		assert.Less(t, s, prev, b)
		prev = s
	}
}

func TestScoreRanges(t *testing.T) {
	sc := testScorer()
	recs := []model.DrugRecord{
		{BrandName: "Panadol", GenericName: "Paracetamol", Strength: "500mg", DosageForm: "Tablet", Price: 15.5},
		{BrandName: "Augmentin", GenericName: "Amoxicillin + Clavulanic Acid", Strength: "625 mg", DosageForm: "Tab", Price: 42},
		{BrandName: "", GenericName: "Sodium Chloride", Strength: "0.9%", DosageForm: "Solution for Injection"},
	}
	for _, a := range recs {
		for _, b := range recs {
			s := sc.Score(a, b)
			for _, v := range []float64{s.Brand, s.Generic.Score, s.Strength, s.Dosage, s.Price} {
				require.GreaterOrEqual(t, v, 0.0)
				require.LessOrEqual(t, v, 1.0)
			}
		}
		self := sc.Score(a, a)
		assert.Equal(t, 1.0, self.Brand)
		assert.Equal(t, 1.0, self.Generic.Score)
		assert.Equal(t, 1.0, self.Strength)
		assert.Equal(t, 1.0, self.Dosage)
	}
}

func TestPriceBandIsMaximal(t *testing.T) {
	p := NewPricePolicy(20, 5)
	for _, pair := range [][2]float64{{10, 10}, {10, 11.9}, {10, 13}, {10, 40}, {0, 10}} {
		assert.LessOrEqual(t, p.Score(pair[0], pair[1]), PriceBandScore)
	}
	assert.Equal(t, 1.0, PriceBandScore)
}
