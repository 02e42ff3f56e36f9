package service

import (
	"math"
	"strings"
)

// Corpus holds inverse document frequencies over the generic names of both
// catalogs. It is built once before scoring starts and is read-only
// afterwards, so workers share it without locking.
type Corpus struct {
	docs int
	df   map[string]int
}

// NewCorpus builds term statistics from normalized generic names. Duplicate
// names count once.
func NewCorpus(names []string) *Corpus {
	c := &Corpus{df: make(map[string]int)}
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		c.docs++
		terms := make(map[string]struct{})
		for _, t := range corpusTerms(n) {
			terms[t] = struct{}{}
		}
		for t := range terms {
			c.df[t]++
		}
	}
	return c
}

func (c *Corpus) Docs() int  { return c.docs }
func (c *Corpus) Terms() int { return len(c.df) }

// idf is smoothed so that unseen terms and terms present in every document
// still carry a positive weight.
func (c *Corpus) idf(term string) float64 {
	return math.Log(float64(1+c.docs)/float64(1+c.df[term])) + 1
}

// corpusTerms returns word unigrams and bigrams.
func corpusTerms(norm string) []string {
	f := strings.Fields(norm)
	out := make([]string, 0, 2*len(f))
	out = append(out, f...)
	for i := 1; i < len(f); i++ {
		out = append(out, f[i-1]+" "+f[i])
	}
	return out
}

// termVector is a tf-idf weighted vector with its norm precomputed.
type termVector struct {
	w    map[string]float64
	norm float64
}

func (c *Corpus) Vector(norm string) termVector {
	v := termVector{w: make(map[string]float64)}
	for _, t := range corpusTerms(norm) {
		v.w[t]++
	}
	var sq float64
	for t, tf := range v.w {
		x := tf * c.idf(t)
		v.w[t] = x
		sq += x * x
	}
	v.norm = math.Sqrt(sq)
	return v
}

func cosine(a, b termVector) float64 {
	if a.norm == 0 || b.norm == 0 {
		return 0
	}
	small, large := a.w, b.w
	if len(small) > len(large) {
		small, large = large, small
	}
	var dot float64
	for t, x := range small {
		if y, ok := large[t]; ok {
			dot += x * y
		}
	}
	return clamp01(dot / (a.norm * b.norm))
}
