package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Paracetamol 500 MG Tab.":   "paracetamol 500mg tab",
		"Amoxicillin & Clavulanate": "amoxicillin + clavulanate",
		"0,5 g":                     "0.5g",
		"1,000 IU":                  "1000iu",
		"10,000 units":              "10000units",
		"1,000,000 IU":              "1000000iu",
		"2,5 mg/1,000 ml":           "2.5mg/1000ml",
		"Crème  Hydratante":         "creme hydratante",
		"Hydrocortisone 1 %":        "hydrocortisone 1%",
		"Co-Amoxiclav":              "co amoxiclav",
		"   ":                       "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, s := range []string{"PANADOL Extra", "500 mg/5 ml", "Film-Coated Tablet", "Vitamin D3 1000 IU"} {
		once := Normalize(s)
		assert.Equal(t, once, Normalize(once), s)
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, similarity("abc", "abc"))
	assert.Equal(t, 0.0, similarity("", "abc"))
	// one transposition
	assert.InDelta(t, 1-1.0/11, similarity("paracetamol", "paracetaoml"), 1e-9)
	assert.Equal(t, 1.0, bestSimilarity("sodium chloride", "chloride sodium"))
}
