package models

// EventType enumerates the kinds of behavioral telemetry a storefront emits.
type EventType string

const (
	EventPageView EventType = "pageview"
	EventClick    EventType = "click"
	EventForm     EventType = "form"
	EventScroll   EventType = "scroll"
	EventTime     EventType = "time"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventPageView, EventClick, EventForm, EventScroll, EventTime:
		return true
	}
	return false
}

// TrackingEvent is an immutable behavioral fact captured by client-side
// instrumentation. Events are retained for a bounded window and aggregated
// into sessions upstream; this pipeline never mutates them.
type TrackingEvent struct {
	EventID     string                 `json:"eventId"`
	SiteID      string                 `json:"siteId"`
	SessionID   string                 `json:"sessionId"`
	Type        EventType              `json:"type"`
	TimestampMs int64                  `json:"timestampMs"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

// Payload keys recognized on form events. Instrumentation sends one form
// event per focus/blur with the field name attached.
const (
	PayloadField  = "field"
	PayloadAction = "action"
	PayloadPage   = "page"
)

// FormActionFocus and FormActionBlur are the form event payload actions.
const (
	FormActionFocus = "focus"
	FormActionBlur  = "blur"
)

// EventSubmission is one event in the POST /events batch payload.
type EventSubmission struct {
	SessionID   string                 `json:"session_id"`
	Type        string                 `json:"type"`
	TimestampMs int64                  `json:"timestamp_ms"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

// IngestResponse is returned by POST /events.
type IngestResponse struct {
	Accepted int  `json:"accepted"`
	Buffered bool `json:"buffered"`
}
