package service

import "github.com/agnivade/levenshtein"

// BrandScore compares two brand names by Levenshtein distance over the
// normalized text. Both empty is a perfect match, one empty is no match.
func BrandScore(a, b string) float64 {
	return brandSimilarity(Normalize(a), Normalize(b))
}

func brandSimilarity(na, nb string) float64 {
	if na == nb {
		return 1
	}
	if na == "" || nb == "" {
		return 0
	}
	d := levenshtein.ComputeDistance(na, nb)
	m := max(len([]rune(na)), len([]rune(nb)))
	return clamp01(1 - float64(d)/float64(m))
}
