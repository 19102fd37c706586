package models

import "time"

// Session is the append-once aggregate the session materializer derives from
// raw event streams. This pipeline only reads sessions; it never creates or
// mutates them.
type Session struct {
	SiteID    string `json:"siteId"`
	SessionID string `json:"sessionId"`
	EntryPage string `json:"entryPage"`
	ExitPage  string `json:"exitPage"`
	// DurationSeconds is nil when the session never produced an exit signal.
	DurationSeconds *int `json:"durationSeconds,omitempty"`
	PageCount       int  `json:"pageCount"`
	Bounced         bool `json:"bounced"`
	Converted       bool `json:"converted"`
	// OrderValue is the checkout total for converted sessions; nil for
	// sessions that did not convert.
	OrderValue *float64 `json:"orderValue,omitempty"`
	// JourneyPath is the ordered sequence of pages visited. Order is
	// significant: reordering changes funnel semantics.
	JourneyPath []string  `json:"journeyPath"`
	StartedAt   time.Time `json:"startedAt"`
}
