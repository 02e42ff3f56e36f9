package service

import (
	"sort"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"drug-matcher/internal/matching/model"
)

// Strategy identifies one generic-name sub-method.
type Strategy uint8

const (
	StrategyFuzzy Strategy = iota
	StrategyVector
	StrategySemantic
)

func (s Strategy) String() string {
	switch s {
	case StrategyFuzzy:
		return "fuzzy"
	case StrategyVector:
		return "vector"
	case StrategySemantic:
		return "semantic"
	}
	return "unknown"
}

type weightedStrategy struct {
	kind   Strategy
	weight float64
}

// genericStrategies are blended in this order; weights sum to 1.
var genericStrategies = [...]weightedStrategy{
	{StrategyFuzzy, 0.40},
	{StrategyVector, 0.35},
	{StrategySemantic, 0.25},
}

// methodThreshold is the sub-score above which a sub-method names the match.
const methodThreshold = 0.8

var dice = metrics.NewSorensenDice()

// genericName is a generic name prepared once for repeated comparison.
type genericName struct {
	norm        string
	vec         termVector
	ingredients []string
}

func prepareGeneric(c *Corpus, lx *Lexicon, raw string) genericName {
	n := Normalize(raw)
	return genericName{norm: n, vec: c.Vector(n), ingredients: lx.ActiveIngredients(n)}
}

func subScore(kind Strategy, a, b *genericName) float64 {
	switch kind {
	case StrategyFuzzy:
		return bestSimilarity(a.norm, b.norm)
	case StrategyVector:
		return cosine(a.vec, b.vec)
	case StrategySemantic:
		return semanticSimilarity(a.ingredients, b.ingredients)
	}
	return 0
}

// blendGeneric is the weighted sum of the sub-scores, indexed by Strategy.
func blendGeneric(subs [len(genericStrategies)]float64) float64 {
	var s float64
	for _, ws := range genericStrategies {
		s += ws.weight * subs[ws.kind]
	}
	return clamp01(s)
}

func genericSimilarity(a, b *genericName) model.GenericScore {
	if a.norm == b.norm {
		method := "exact"
		if a.norm == "" {
			method = "none"
		}
		return model.GenericScore{Score: 1, Fuzzy: 1, Vector: 1, Semantic: 1, Method: method}
	}
	if a.norm == "" || b.norm == "" {
		return model.GenericScore{Method: "none"}
	}
	var subs [len(genericStrategies)]float64
	for _, ws := range genericStrategies {
		subs[ws.kind] = clamp01(subScore(ws.kind, a, b))
	}
	return model.GenericScore{
		Score:    blendGeneric(subs),
		Fuzzy:    subs[StrategyFuzzy],
		Vector:   subs[StrategyVector],
		Semantic: subs[StrategySemantic],
		Method:   genericMethod(subs),
	}
}

// genericMethod names the sub-method that carried the comparison, checked
// semantic first, or "combined" when none is decisive.
func genericMethod(subs [len(genericStrategies)]float64) string {
	for _, k := range []Strategy{StrategySemantic, StrategyFuzzy, StrategyVector} {
		if subs[k] > methodThreshold {
			return k.String()
		}
	}
	return "combined"
}

// semanticSimilarity pairs canonical ingredients best-first. A shared
// canonical ingredient (after synonym resolution) is worth 1, two distinct
// ingredients get at most half credit by bigram overlap.
func semanticSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	type pair struct {
		i, j int
		s    float64
	}
	pairs := make([]pair, 0, len(a)*len(b))
	for i, x := range a {
		for j, y := range b {
			s := 1.0
			if x != y {
				s = 0.5 * strutil.Similarity(x, y, dice)
			}
			pairs = append(pairs, pair{i, j, s})
		}
	}
	sort.SliceStable(pairs, func(p, q int) bool { return pairs[p].s > pairs[q].s })

	usedA := make([]bool, len(a))
	usedB := make([]bool, len(b))
	var total float64
	for _, p := range pairs {
		if usedA[p.i] || usedB[p.j] {
			continue
		}
		usedA[p.i], usedB[p.j] = true, true
		total += p.s
	}
	return clamp01(total / float64(max(len(a), len(b))))
}
