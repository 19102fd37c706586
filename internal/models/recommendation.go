package models

import "time"

// Level is a discrete impact or confidence band.
type Level string

const (
	LevelHigh   Level = "HIGH"
	LevelMedium Level = "MEDIUM"
	LevelLow    Level = "LOW"
)

// Weight maps a level to its numeric rank (HIGH=3, MEDIUM=2, LOW=1) for the
// display-time product ordering.
func (l Level) Weight() int {
	switch l {
	case LevelHigh:
		return 3
	case LevelMedium:
		return 2
	case LevelLow:
		return 1
	}
	return 0
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool { return l.Weight() > 0 }

// RecStatus is a recommendation's lifecycle state.
type RecStatus string

const (
	RecStatusNew         RecStatus = "NEW"
	RecStatusPlanned     RecStatus = "PLANNED"
	RecStatusImplemented RecStatus = "IMPLEMENTED"
	RecStatusDismissed   RecStatus = "DISMISSED"
)

// Valid reports whether s is a known lifecycle state.
func (s RecStatus) Valid() bool {
	switch s {
	case RecStatusNew, RecStatusPlanned, RecStatusImplemented, RecStatusDismissed:
		return true
	}
	return false
}

// MaxRecommendationNotes bounds the implementation notes a business may
// attach when marking a recommendation implemented.
const MaxRecommendationNotes = 500

// Recommendation is the engine's output: a ranked, explainable action item.
// Impact and confidence levels are pure functions of the source pattern's
// severity and confidence; they are never hand-edited. Recommendations are
// never deleted, only status-transitioned by the owning business.
type Recommendation struct {
	ID         string `json:"id"`
	BusinessID string `json:"businessId"`
	// TemplateKey identifies which rule template produced this
	// recommendation; together with Target it forms the dedup key.
	TemplateKey string `json:"templateKey"`
	Target      string `json:"target"`

	Title          string   `json:"title"`
	Problem        string   `json:"problem"`
	Steps          []string `json:"steps"`
	ExpectedImpact string   `json:"expectedImpact"`

	ImpactLevel     Level `json:"impactLevel"`
	ConfidenceLevel Level `json:"confidenceLevel"`

	// PeerInsight is present only when at least one peer implemented the
	// same template; absent otherwise.
	PeerInsight string `json:"peerInsight,omitempty"`

	Status        RecStatus  `json:"status"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	ImplementedAt *time.Time `json:"implementedAt,omitempty"`
	DismissedAt   *time.Time `json:"dismissedAt,omitempty"`

	// PatternDetectedAt carries the source pattern's detection time for
	// generation-time tie-breaking; it is not part of the stored row's
	// public contract.
	PatternDetectedAt time.Time `json:"-"`
}

// DisplayRank returns the product ordering key used by the list surface:
// impact weight times confidence weight.
func (r Recommendation) DisplayRank() int {
	return r.ImpactLevel.Weight() * r.ConfidenceLevel.Weight()
}
