package handler

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"drug-matcher/internal/matching/model"
	"drug-matcher/internal/utils"
)

// Mapping names the source columns of one catalog. Each field may list
// alternatives separated by "|".
type Mapping struct {
	CodeKey     string `json:"codeKey"`
	BrandKey    string `json:"brandKey"`
	GenericKey  string `json:"genericKey"`
	StrengthKey string `json:"strengthKey"`
	DosageKey   string `json:"dosageKey"`
	PriceKey    string `json:"priceKey"`
	HeaderRow   int    `json:"headerRow"`
}

func defaultMapping() Mapping {
	return Mapping{
		CodeKey:     "code|drug code|item code|product code|sku",
		BrandKey:    "brand|brand name|trade name|product name",
		GenericKey:  "generic|generic name|active ingredient|ingredient|scientific name",
		StrengthKey: "strength|dose|concentration",
		DosageKey:   "dosage form|dosage|form",
		PriceKey:    "price|unit price|public price|cost",
		HeaderRow:   1,
	}
}

var nonAlnum = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// normHeaderKey lower-cases a column name and collapses everything that is
// not a letter or digit to single spaces.
func normHeaderKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("\u00A0", " ", "\u202F", " ").Replace(s)
	s = nonAlnum.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// resolveKey finds the record key matching want. Exact names win, then
// normalized names, then the longest containment ("Generic Name (INN)"
// contains "generic name").
func resolveKey(rec map[string]string, want string) string {
	want = strings.TrimSpace(want)
	if want == "" {
		return ""
	}
	alts := strings.Split(want, "|")
	for i := range alts {
		alts[i] = strings.TrimSpace(alts[i])
	}

	for _, a := range alts {
		if _, ok := rec[a]; ok {
			return a
		}
	}

	norm := make([]string, 0, len(alts))
	for _, a := range alts {
		if n := normHeaderKey(a); n != "" {
			norm = append(norm, n)
		}
	}

	// sorted so ties between headers resolve the same way on every run
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// alternatives are tried in order so an earlier one wins over a later one
	for _, n := range norm {
		for _, k := range keys {
			if normHeaderKey(k) == n {
				return k
			}
		}
	}

	bestKey, bestScore := "", 0
	for _, k := range keys {
		nk := normHeaderKey(k)
		if nk == "" {
			continue
		}
		for _, n := range norm {
			if containsWord(nk, n) && len(n) > bestScore {
				bestScore, bestKey = len(n), k
			}
		}
	}
	return bestKey
}

// containsWord reports whether phrase occurs in s on word boundaries.
func containsWord(s, phrase string) bool {
	return strings.Contains(" "+s+" ", " "+phrase+" ")
}

// looksLikeHeaderMap spots a header line repeated inside the data, as printed
// reports often do at page breaks.
func looksLikeHeaderMap(m map[string]string) bool {
	cnt := 0
	for k, v := range m {
		if v != "" && normHeaderKey(k) == normHeaderKey(v) {
			cnt++
		}
	}
	return cnt >= 2
}

// toRecords maps raw rows to drug records. Empty or unparseable prices are
// left absent; validation of the remaining fields is the engine's job.
func toRecords(maps []map[string]string, m Mapping) []model.DrugRecord {
	out := make([]model.DrugRecord, 0, len(maps))
	for _, rec := range maps {
		if looksLikeHeaderMap(rec) {
			continue
		}
		get := func(want string) string {
			if k := resolveKey(rec, want); k != "" {
				return strings.TrimSpace(rec[k])
			}
			return ""
		}
		d := model.DrugRecord{
			Code:        get(m.CodeKey),
			BrandName:   get(m.BrandKey),
			GenericName: get(m.GenericKey),
			Strength:    get(m.StrengthKey),
			DosageForm:  get(m.DosageKey),
		}
		if p, ok := utils.ParsePrice(get(m.PriceKey)); ok {
			d.Price = p
		}
		if d.Code == "" && d.BrandName == "" && d.GenericName == "" {
			continue
		}
		out = append(out, d)
	}
	return out
}

func mappingFrom(form func(string) string, prefix string) Mapping {
	m := defaultMapping()
	set := func(dst *string, field string) {
		if v := strings.TrimSpace(form(prefix + field)); v != "" {
			*dst = v
		}
	}
	set(&m.CodeKey, "code")
	set(&m.BrandKey, "brand")
	set(&m.GenericKey, "generic")
	set(&m.StrengthKey, "strength")
	set(&m.DosageKey, "dosage")
	set(&m.PriceKey, "price")
	m.HeaderRow = atoi(form(prefix+"header_row"), 1)
	return m
}

func atoi(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return i
}

// parseFloatField returns def for an empty value and an error for anything
// that is not a finite number.
func parseFloatField(name, s string, def float64) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s: %q is not a number", name, s)
	}
	return f, nil
}
