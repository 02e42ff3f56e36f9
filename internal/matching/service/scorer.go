package service

import "drug-matcher/internal/matching/model"

// prepared is a DrugRecord with every comparison-ready form computed once.
type prepared struct {
	rec        model.DrugRecord
	brand      string
	generic    genericName
	strength   string
	quantities []quantity
	dosage     string
	form       string // canonical dosage form
}

// Scorer computes the attribute-score vector of two records. It is immutable
// and safe for concurrent use.
type Scorer struct {
	corpus  *Corpus
	lexicon *Lexicon
	price   PricePolicy
}

func NewScorer(corpus *Corpus, lx *Lexicon, price PricePolicy) *Scorer {
	return &Scorer{corpus: corpus, lexicon: lx, price: price}
}

func (s *Scorer) prepare(r model.DrugRecord) prepared {
	p := prepared{
		rec:      r,
		brand:    Normalize(r.BrandName),
		generic:  prepareGeneric(s.corpus, s.lexicon, r.GenericName),
		strength: Normalize(r.Strength),
		dosage:   Normalize(r.DosageForm),
	}
	p.quantities = parseQuantities(p.strength)
	p.form = s.lexicon.CanonicalForm(p.dosage)
	return p
}

func (s *Scorer) score(a, b *prepared) model.AttributeScores {
	return model.AttributeScores{
		Brand:    brandSimilarity(a.brand, b.brand),
		Generic:  genericSimilarity(&a.generic, &b.generic),
		Strength: strengthSimilarity(a.strength, b.strength, a.quantities, b.quantities),
		Dosage:   dosageSimilarity(s.lexicon, a.dosage, b.dosage, a.form, b.form),
		Price:    s.price.Score(a.rec.Price, b.rec.Price),
	}
}

// Score compares two raw records.
func (s *Scorer) Score(a, b model.DrugRecord) model.AttributeScores {
	pa, pb := s.prepare(a), s.prepare(b)
	return s.score(&pa, &pb)
}

// GenericScore compares two raw generic names with all three sub-methods.
func (s *Scorer) GenericScore(a, b string) model.GenericScore {
	ga := prepareGeneric(s.corpus, s.lexicon, a)
	gb := prepareGeneric(s.corpus, s.lexicon, b)
	return genericSimilarity(&ga, &gb)
}

// StrengthScore compares two raw strength values.
func StrengthScore(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	return strengthSimilarity(na, nb, parseQuantities(na), parseQuantities(nb))
}

// DosageScore compares two raw dosage forms.
func (s *Scorer) DosageScore(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	return dosageSimilarity(s.lexicon, na, nb, s.lexicon.CanonicalForm(na), s.lexicon.CanonicalForm(nb))
}
