package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// PatternType enumerates the detected pattern families.
type PatternType string

const (
	PatternAbandonment   PatternType = "abandonment"
	PatternHesitation    PatternType = "hesitation"
	PatternLowEngagement PatternType = "low_engagement"
)

// PatternMetadata is the family-specific detail attached to a Pattern.
// Each family carries only its own fields; Target returns the page, stage,
// or field the pattern points at, which doubles as the dedup target for
// recommendation generation.
type PatternMetadata interface {
	Target() string
	patternMetadata()
}

// AbandonmentMetadata describes a funnel stage where sessions stop.
type AbandonmentMetadata struct {
	Stage             string  `json:"stage"`
	AbandonRate       float64 `json:"abandonRate"`
	SessionsAtStage   int     `json:"sessionsAtStage"`
	SessionsContinued int     `json:"sessionsContinued"`
}

func (m AbandonmentMetadata) Target() string { return m.Stage }
func (AbandonmentMetadata) patternMetadata() {}

// HesitationMetadata describes a form field users re-enter repeatedly.
type HesitationMetadata struct {
	Field             string  `json:"field"`
	ReentryRate       float64 `json:"reentryRate"`
	SessionsWithField int     `json:"sessionsWithField"`
	SessionsReentered int     `json:"sessionsReentered"`
}

func (m HesitationMetadata) Target() string { return m.Field }
func (HesitationMetadata) patternMetadata() {}

// EngagementMetadata describes a page with below-average time on page.
type EngagementMetadata struct {
	Page           string  `json:"page"`
	AvgSeconds     float64 `json:"avgSeconds"`
	SiteAvgSeconds float64 `json:"siteAvgSeconds"`
	PageViews      int     `json:"pageViews"`
}

func (m EngagementMetadata) Target() string { return m.Page }
func (EngagementMetadata) patternMetadata() {}

// UnmarshalPatternMetadata decodes the stored metadata JSON for a pattern of
// the given type back into its typed variant.
func UnmarshalPatternMetadata(t PatternType, raw []byte) (PatternMetadata, error) {
	switch t {
	case PatternAbandonment:
		var m AbandonmentMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case PatternHesitation:
		var m HesitationMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case PatternLowEngagement:
		var m EngagementMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, fmt.Errorf("unknown pattern type %q", t)
}

// Pattern is the Pattern Detector's output for one site. Patterns are
// immutable once stored; re-detections of the same (site, type, window) are
// skipped on conflict rather than overwritten.
type Pattern struct {
	ID          string      `json:"id"`
	SiteID      string      `json:"siteId"`
	Type        PatternType `json:"type"`
	Description string      `json:"description"`
	// Severity combines the pattern's rate and its affected-session share,
	// always in [0,1].
	Severity     float64 `json:"severity"`
	SessionCount int     `json:"sessionCount"`
	// ConfidenceScore is a step function of sample size: 0 below 100
	// sessions (discarded before storage), 0.6/0.8/1.0 at 100/200/500.
	ConfidenceScore float64         `json:"confidenceScore"`
	Metadata        PatternMetadata `json:"metadata"`
	DetectedAt      time.Time       `json:"detectedAt"`
}
