package service

import (
	"math"
	"regexp"
	"strconv"
)

// quantity is one number+unit pair of a strength, converted to a base unit.
type quantity struct {
	value float64
	dim   string // mass (mg) | volume (ml) | iu | percent | mmol | "" for a bare number
}

var reQuantity = regexp.MustCompile(`(\d+(?:\.\d+)?)(mcg|μg|ug|mg|kg|g|ml|l|iu|units?|mmol|meq|%)?`)

var unitScale = map[string]struct {
	dim   string
	scale float64
}{
	"mcg":   {"mass", 0.001},
	"μg":    {"mass", 0.001},
	"ug":    {"mass", 0.001},
	"mg":    {"mass", 1},
	"g":     {"mass", 1000},
	"kg":    {"mass", 1e6},
	"ml":    {"volume", 1},
	"l":     {"volume", 1000},
	"iu":    {"iu", 1},
	"unit":  {"iu", 1},
	"units": {"iu", 1},
	"mmol":  {"mmol", 1},
	"meq":   {"meq", 1},
	"%":     {"percent", 1},
}

// parseQuantities extracts the number+unit pairs of a normalized strength in order.
func parseQuantities(norm string) []quantity {
	var out []quantity
	for _, m := range reQuantity.FindAllStringSubmatch(norm, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		q := quantity{value: v}
		if u, ok := unitScale[m[2]]; ok {
			q.value *= u.scale
			q.dim = u.dim
		}
		out = append(out, q)
	}
	return out
}

const (
	equivalentStrength = 0.95 // same amounts written differently ("0.5g" vs "500mg")
	strengthMismatch   = 0.1  // upper bound when the amounts differ
)

// strengthSimilarity is biased towards equality: identical normalized text is
// 1, the same amounts in other units are nearly 1, and any numeric or unit
// mismatch stays close to 0 however similar the strings look.
func strengthSimilarity(na, nb string, qa, qb []quantity) float64 {
	if na == nb {
		return 1
	}
	if na == "" || nb == "" {
		return 0
	}
	if len(qa) == 0 && len(qb) == 0 {
		return similarity(na, nb)
	}
	if len(qa) != len(qb) {
		return 0
	}
	score := 1.0
	mismatch := false
	for i := range qa {
		a, b := qa[i], qb[i]
		if a.dim != b.dim && a.dim != "" && b.dim != "" {
			return 0
		}
		if sameAmount(a.value, b.value) {
			continue
		}
		mismatch = true
		lo, hi := math.Min(a.value, b.value), math.Max(a.value, b.value)
		if hi > 0 {
			score *= lo / hi
		} else {
			score = 0
		}
	}
	if mismatch {
		return strengthMismatch * score
	}
	return equivalentStrength
}

func sameAmount(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}

const (
	synonymForm = 0.9 // "TAB" vs "TABLET"
	familyForm  = 0.8 // "TABLET" vs "FILM COATED TABLET"
	unknownForm = 0.7 // cap for plain text similarity
)

// dosageSimilarity compares normalized dosage forms with partial credit for
// lexicon synonyms and families.
func dosageSimilarity(lx *Lexicon, na, nb, ca, cb string) float64 {
	if na == nb {
		return 1
	}
	if na == "" || nb == "" {
		return 0
	}
	if ca == cb {
		return synonymForm
	}
	if fa := lx.FormFamily(ca); fa != "" && fa == lx.FormFamily(cb) {
		return familyForm
	}
	return math.Min(unknownForm, similarity(ca, cb))
}
