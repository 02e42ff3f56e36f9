package model

import "time"

// Source tells which catalog a record was loaded from.
type Source string

const (
	SourceReference Source = "REFERENCE"
	SourceCandidate Source = "CANDIDATE"
)

// DrugRecord is one catalog row. Price 0 means the price is absent.
type DrugRecord struct {
	Source      Source  `json:"source"`
	Index       int     `json:"index"` // position in its catalog, 0-based
	Code        string  `json:"code"`
	BrandName   string  `json:"brandName"`
	GenericName string  `json:"genericName"`
	Strength    string  `json:"strength"`
	DosageForm  string  `json:"dosageForm"`
	Price       float64 `json:"price"`
}

func (r DrugRecord) HasPrice() bool { return r.Price > 0 }

// GenericScore keeps the three sub-scores next to the blended generic-name similarity.
type GenericScore struct {
	Score    float64 `json:"score"`
	Fuzzy    float64 `json:"fuzzy"`
	Vector   float64 `json:"vector"`
	Semantic float64 `json:"semantic"`
	Method   string  `json:"method"` // exact | semantic | fuzzy | vector | combined
}

type AttributeScores struct {
	Brand    float64      `json:"brand"`
	Generic  GenericScore `json:"generic"`
	Strength float64      `json:"strength"`
	Dosage   float64      `json:"dosage"`
	Price    float64      `json:"price"`
}

// Weights for brand, generic, strength, dosage and price. Must sum to 1.
type Weights struct {
	Brand    float64 `json:"brand"`
	Generic  float64 `json:"generic"`
	Strength float64 `json:"strength"`
	Dosage   float64 `json:"dosage"`
	Price    float64 `json:"price"`
}

func (w Weights) Sum() float64 { return w.Brand + w.Generic + w.Strength + w.Dosage + w.Price }

// Breakpoint is one step of the confidence step function.
type Breakpoint struct {
	Label string  `json:"label"`
	Min   float64 `json:"min"`
}

type MatchResult struct {
	Reference     DrugRecord      `json:"reference"`
	Candidate     DrugRecord      `json:"candidate"`
	Scores        AttributeScores `json:"scores"`
	Overall       float64         `json:"overall"`
	Confidence    string          `json:"confidence"`
	Method        string          `json:"method"`
	AppliedWeight Weights         `json:"appliedWeights"`
	ManualReview  bool            `json:"manualReview,omitempty"`
}

type UnmatchedRecord struct {
	Record        DrugRecord `json:"record"`
	BestScore     float64    `json:"bestScore"`
	BestCandidate *string    `json:"bestCandidate"` // code of the best scoring candidate, nil if none was scored
	Reason        string     `json:"reason"`
}

// Outcome is the single result for one reference record: exactly one field is set.
type Outcome struct {
	Match     *MatchResult     `json:"match,omitempty"`
	Unmatched *UnmatchedRecord `json:"unmatched,omitempty"`
}

func (o Outcome) Matched() bool { return o.Match != nil }

// Reference returns the reference record the outcome belongs to.
func (o Outcome) Reference() DrugRecord {
	if o.Match != nil {
		return o.Match.Reference
	}
	if o.Unmatched != nil {
		return o.Unmatched.Record
	}
	return DrugRecord{}
}

type Counters struct {
	Processed      int `json:"processed"`
	Matched        int `json:"matched"`
	Unmatched      int `json:"unmatched"`
	Skipped        int `json:"skipped"`
	PersistFailure int `json:"persistFailures"`
}

type SessionMetadata struct {
	ID                 string        `json:"id"`
	ReferenceName      string        `json:"referenceName"`
	CandidateName      string        `json:"candidateName"`
	ReferenceCount     int           `json:"referenceCount"`
	CandidateCount     int           `json:"candidateCount"`
	Threshold          float64       `json:"threshold"`
	Weights            Weights       `json:"weights"`
	Weighting          string        `json:"weighting"`
	PriceTolerancePct  float64       `json:"priceTolerancePct"`
	MaxPriceRatio      float64       `json:"maxPriceRatio"`
	Counters           Counters      `json:"counters"`
	StartedAt          time.Time     `json:"startedAt"`
	CompletedAt        *time.Time    `json:"completedAt,omitempty"`
	ProcessingDuration time.Duration `json:"processingDuration"`
}
