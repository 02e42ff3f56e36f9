package service

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// 1,000 -> 1000, applied before decComma. Same rule as utils.ParsePrice:
// a comma followed by exactly three digits groups thousands.
var thousandsComma = regexp.MustCompile(`(\d),(\d{3})(\D|$)`)

// 0,5 -> 0.5
var decComma = regexp.MustCompile(`(\d),(\d)`)

// Units are glued to the number in front of them so that "500 mg" and "500mg"
// end up as the same token.
const unitWord = `mcg|μg|ug|mg|g|kg|ml|l|iu|units?|mmol|meq`

var reAttachNumUnit = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s+(` + unitWord + `)\b`)
var reAttachPercent = regexp.MustCompile(`(\d)\s+%`)

// keep letters, digits, whitespace and the separators used in strengths and combinations
var punct = regexp.MustCompile(`[^\p{L}\p{N}\s./%+&]+`)

// Normalize canonicalizes a catalog value before comparison: compatibility
// decomposition, accent stripping, lower case, decimal comma, punctuation
// cleanup, number+unit gluing and whitespace collapsing.
func Normalize(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	// transformers keep state, a fresh chain per call keeps Normalize safe for concurrent use
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(out)
	out = dropThousands(out)
	out = decComma.ReplaceAllString(out, "$1.$2")
	out = punct.ReplaceAllString(out, " ")
	out = strings.ReplaceAll(out, "&", " + ")
	out = attachNumberUnits(out)
	return cleanTokens(out)
}

func dropThousands(s string) string {
	for {
		next := thousandsComma.ReplaceAllString(s, "$1$2$3")
		if next == s {
			return s
		}
		s = next
	}
}

func attachNumberUnits(s string) string {
	prev := ""
	out := collapseSpaces(s)
	for out != prev {
		prev = out
		out = reAttachNumUnit.ReplaceAllString(out, "$1$2")
		out = reAttachPercent.ReplaceAllString(out, "$1%")
	}
	return out
}

// cleanTokens drops separators left dangling at token edges ("tab." -> "tab")
// while keeping the internal ones ("250mg/5ml", "0.5g").
func cleanTokens(s string) string {
	f := strings.Fields(s)
	out := f[:0]
	for _, tok := range f {
		if tok == "+" || tok == "/" {
			out = append(out, "+")
			continue
		}
		tok = strings.Trim(tok, "./")
		if tok != "" {
			out = append(out, tok)
		}
	}
	return strings.Join(out, " ")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func tokenSort(s string) string {
	f := strings.Fields(s)
	sort.Strings(f)
	return strings.Join(f, " ")
}
