package service

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lexicon holds the domain tables used by the semantic generic-name scorer
// and the dosage-form scorer. Keys and variants are compared after Normalize.
type Lexicon struct {
	// canonical ingredient -> spelling variants and synonyms
	Ingredients map[string][]string `yaml:"ingredients"`
	// combination product name -> canonical ingredients it contains
	Combinations map[string][]string `yaml:"combinations"`
	// salt and ester words that do not change the active moiety
	Salts []string `yaml:"salts"`
	// canonical dosage form -> abbreviations and variants
	DosageForms map[string][]string `yaml:"dosage_forms"`
	// family -> canonical dosage forms that get partial credit against each other
	DosageFamilies map[string][]string `yaml:"dosage_families"`

	ingredientOf map[string]string
	comboOf      map[string][]string
	salt         map[string]struct{}
	formOf       map[string]string
	familyOf     map[string]string
}

func DefaultLexicon() *Lexicon {
	lx := &Lexicon{
		Ingredients: map[string][]string{
			"paracetamol":           {"acetaminophen", "paracetamole", "apap"},
			"amoxicillin":           {"amoxycillin", "amoxicilline", "amoxil"},
			"clavulanic acid":       {"clavulanate", "clavulanate potassium", "potassium clavulanate", "clavulanic"},
			"acetylsalicylic acid":  {"aspirin", "asa"},
			"salbutamol":            {"albuterol"},
			"glyceryl trinitrate":   {"nitroglycerin", "nitroglycerine", "gtn"},
			"adrenaline":            {"epinephrine"},
			"noradrenaline":         {"norepinephrine"},
			"lidocaine":             {"lignocaine"},
			"furosemide":            {"frusemide"},
			"ciclosporin":           {"cyclosporine", "cyclosporin"},
			"colecalciferol":        {"cholecalciferol", "vitamin d3"},
			"ascorbic acid":         {"vitamin c"},
			"cyanocobalamin":        {"vitamin b12"},
			"metformin":             {"metformine"},
			"ibuprofen":             {"ibuprofene"},
			"omeprazole":            {"omeprazol"},
			"esomeprazole":          {"esomeprazol"},
			"sulfamethoxazole":      {"sulphamethoxazole"},
			"levothyroxine":         {"thyroxine", "l thyroxine"},
			"phenobarbital":         {"phenobarbitone"},
			"rifampicin":            {"rifampin"},
			"dicycloverine":         {"dicyclomine"},
			"hyoscine butylbromide": {"butylscopolamine", "scopolamine butylbromide"},
		},
		Combinations: map[string][]string{
			"amoxiclav":      {"amoxicillin", "clavulanic acid"},
			"co amoxiclav":   {"amoxicillin", "clavulanic acid"},
			"augmentin":      {"amoxicillin", "clavulanic acid"},
			"co trimoxazole": {"sulfamethoxazole", "trimethoprim"},
			"cotrimoxazole":  {"sulfamethoxazole", "trimethoprim"},
			"co codamol":     {"paracetamol", "codeine"},
		},
		Salts: []string{
			"hydrochloride", "hcl", "hydrobromide", "sodium", "sod", "potassium", "calcium",
			"magnesium", "sulfate", "sulphate", "phosphate", "citrate", "acetate", "maleate",
			"fumarate", "tartrate", "mesylate", "besylate", "besilate", "succinate", "trihydrate",
			"dihydrate", "monohydrate", "anhydrous", "bromide", "chloride", "gluconate", "lactate",
		},
		DosageForms: map[string][]string{
			"tablet":             {"tab", "tabs", "tablets", "tbl"},
			"film coated tablet": {"fc tablet", "f c tablet", "film coated tablets", "fct"},
			"capsule":            {"cap", "caps", "capsules", "cps"},
			"injection":          {"inj", "injections", "injectable"},
			"syrup":              {"syr", "syrups"},
			"suspension":         {"susp", "suspensions"},
			"solution":           {"sol", "soln", "solutions"},
			"cream":              {"crm", "creams"},
			"ointment":           {"oint", "ointments"},
			"drops":              {"drop", "gtt"},
			"spray":              {"sprays"},
			"patch":              {"patches"},
			"gel":                {"gels"},
			"lotion":             {"lotions"},
			"powder":             {"pwd", "powders"},
			"suppository":        {"supp", "suppositories"},
			"inhaler":            {"inh", "inhalers"},
			"sachet":             {"sachets"},
		},
		DosageFamilies: map[string][]string{
			"solid oral":  {"tablet", "film coated tablet"},
			"liquid oral": {"syrup", "suspension", "solution"},
			"topical":     {"cream", "ointment", "gel", "lotion"},
		},
	}
	if err := lx.compile(); err != nil {
		panic(err)
	}
	return lx
}

// LoadLexicon merges a YAML file over the default tables. An empty path
// returns the defaults.
func LoadLexicon(path string) (*Lexicon, error) {
	lx := DefaultLexicon()
	if path == "" {
		return lx, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lexicon: %w", err)
	}
	var extra Lexicon
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("parsing lexicon %s: %w", path, err)
	}
	lx.merge(&extra)
	if err := lx.compile(); err != nil {
		return nil, fmt.Errorf("lexicon %s: %w", path, err)
	}
	return lx, nil
}

func (lx *Lexicon) merge(o *Lexicon) {
	for k, v := range o.Ingredients {
		lx.Ingredients[k] = append(lx.Ingredients[k], v...)
	}
	for k, v := range o.Combinations {
		lx.Combinations[k] = v
	}
	lx.Salts = append(lx.Salts, o.Salts...)
	for k, v := range o.DosageForms {
		lx.DosageForms[k] = append(lx.DosageForms[k], v...)
	}
	for k, v := range o.DosageFamilies {
		lx.DosageFamilies[k] = append(lx.DosageFamilies[k], v...)
	}
}

// compile builds the normalized reverse indexes. The lexicon is read-only
// afterwards. A spelling that resolves to two different entries is an error.
func (lx *Lexicon) compile() error {
	var problems []string
	put := func(idx map[string]string, kind, key, val string) {
		if prev, ok := idx[key]; ok && prev != val {
			problems = append(problems, fmt.Sprintf("%s %q listed under both %q and %q", kind, key, prev, val))
			return
		}
		idx[key] = val
	}

	lx.ingredientOf = make(map[string]string)
	for _, canon := range sortedKeys(lx.Ingredients) {
		c := Normalize(canon)
		put(lx.ingredientOf, "ingredient", c, c)
	}
	for _, canon := range sortedKeys(lx.Ingredients) {
		c := Normalize(canon)
		for _, v := range lx.Ingredients[canon] {
			put(lx.ingredientOf, "ingredient", Normalize(v), c)
		}
	}

	lx.comboOf = make(map[string][]string)
	for _, name := range sortedKeys(lx.Combinations) {
		parts := lx.Combinations[name]
		canon := make([]string, 0, len(parts))
		for _, p := range parts {
			canon = append(canon, lx.canonicalIngredient(Normalize(p)))
		}
		sort.Strings(canon)
		n := Normalize(name)
		if prev, ok := lx.comboOf[n]; ok && strings.Join(prev, "+") != strings.Join(canon, "+") {
			problems = append(problems, fmt.Sprintf("combination %q defined twice with different ingredients", n))
			continue
		}
		lx.comboOf[n] = canon
	}

	lx.salt = make(map[string]struct{})
	for _, s := range lx.Salts {
		lx.salt[Normalize(s)] = struct{}{}
	}

	lx.formOf = make(map[string]string)
	for _, canon := range sortedKeys(lx.DosageForms) {
		c := Normalize(canon)
		put(lx.formOf, "dosage form", c, c)
	}
	for _, canon := range sortedKeys(lx.DosageForms) {
		c := Normalize(canon)
		for _, v := range lx.DosageForms[canon] {
			put(lx.formOf, "dosage form", Normalize(v), c)
		}
	}

	lx.familyOf = make(map[string]string)
	for _, fam := range sortedKeys(lx.DosageFamilies) {
		for _, f := range lx.DosageFamilies[fam] {
			put(lx.familyOf, "dosage family member", lx.CanonicalForm(Normalize(f)), fam)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("lexicon conflicts: %s", strings.Join(problems, "; "))
	}
	return nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (lx *Lexicon) canonicalIngredient(s string) string {
	if c, ok := lx.ingredientOf[s]; ok {
		return c
	}
	return s
}

// CanonicalForm maps a normalized dosage form to its canonical spelling. The
// whole phrase is tried first, then each token on its own.
func (lx *Lexicon) CanonicalForm(s string) string {
	if c, ok := lx.formOf[s]; ok {
		return c
	}
	f := strings.Fields(s)
	for i, tok := range f {
		if c, ok := lx.formOf[tok]; ok {
			f[i] = c
		}
	}
	out := strings.Join(f, " ")
	if c, ok := lx.formOf[out]; ok {
		return c
	}
	return out
}

// FormFamily returns the family of a canonical dosage form, or "" if none.
func (lx *Lexicon) FormFamily(canon string) string {
	if fam, ok := lx.familyOf[canon]; ok {
		return fam
	}
	// "tablet" inside "chewable tablet"
	for _, tok := range strings.Fields(canon) {
		if fam, ok := lx.familyOf[tok]; ok {
			return fam
		}
	}
	return ""
}

var comboWords = map[string]struct{}{"and": {}, "with": {}, "plus": {}, "+": {}}

// ActiveIngredients splits a normalized generic name into its sorted,
// de-duplicated canonical active ingredients. Strength tokens, salts and
// dosage-form words are dropped.
func (lx *Lexicon) ActiveIngredients(norm string) []string {
	if norm == "" {
		return nil
	}
	if parts, ok := lx.comboOf[norm]; ok {
		return parts
	}

	var components [][]string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			components = append(components, cur)
			cur = nil
		}
	}
	for _, tok := range strings.Fields(norm) {
		if _, ok := comboWords[tok]; ok {
			flush()
			continue
		}
		// "paracetamol/caffeine", "a+b"
		pieces := strings.FieldsFunc(tok, func(r rune) bool { return r == '+' || r == '/' })
		for i, p := range pieces {
			if i > 0 {
				flush()
			}
			cur = append(cur, p)
		}
	}
	flush()

	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, comp := range components {
		phrase := lx.activePhrase(comp)
		if phrase == "" {
			continue
		}
		if parts, ok := lx.comboOf[phrase]; ok {
			for _, p := range parts {
				add(p)
			}
			continue
		}
		add(lx.canonicalIngredient(phrase))
	}
	sort.Strings(out)
	return out
}

// activePhrase strips strength, salt and dosage-form tokens from one component.
// A phrase that is a known synonym as a whole ("potassium clavulanate") is kept.
func (lx *Lexicon) activePhrase(tokens []string) string {
	var keep []string
	for _, t := range tokens {
		if t == "" || isStrengthToken(t) {
			continue
		}
		if _, ok := lx.formOf[t]; ok {
			continue
		}
		keep = append(keep, t)
	}
	whole := strings.Join(keep, " ")
	if _, ok := lx.ingredientOf[whole]; ok {
		return whole
	}
	if _, ok := lx.comboOf[whole]; ok {
		return whole
	}
	active := keep[:0:0]
	for _, t := range keep {
		if _, ok := lx.salt[t]; ok {
			continue
		}
		active = append(active, t)
	}
	if len(active) == 0 {
		// a salt on its own ("sodium chloride") is the active ingredient
		return whole
	}
	return strings.Join(active, " ")
}

func isStrengthToken(t string) bool {
	return t != "" && (t[0] >= '0' && t[0] <= '9')
}
