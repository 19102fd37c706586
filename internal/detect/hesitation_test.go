package detect

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/storesight/storesight/internal/models"
)

func formEvent(session, field, action string) models.TrackingEvent {
	return models.TrackingEvent{
		SiteID:    "site1",
		SessionID: session,
		Type:      models.EventForm,
		Payload: map[string]interface{}{
			models.PayloadField:  field,
			models.PayloadAction: action,
		},
	}
}

func TestDetectHesitationReentryRate(t *testing.T) {
	var events []models.TrackingEvent
	// 50 sessions interact with the email field; 15 of them focus it twice
	// (30% re-entry, above the 20% threshold).
	for i := 0; i < 50; i++ {
		session := fmt.Sprintf("s%d", i)
		events = append(events, formEvent(session, "email", models.FormActionFocus))
		if i < 15 {
			events = append(events, formEvent(session, "email", models.FormActionBlur))
			events = append(events, formEvent(session, "email", models.FormActionFocus))
		}
	}

	d := New(nil, nil, nil, DefaultConfig(), zerolog.Nop())
	patterns := d.detectHesitation("site1", 200, events)

	if len(patterns) != 1 {
		t.Fatalf("got %d patterns, want 1: %+v", len(patterns), patterns)
	}
	meta, ok := patterns[0].Metadata.(models.HesitationMetadata)
	if !ok {
		t.Fatalf("metadata is %T, want HesitationMetadata", patterns[0].Metadata)
	}
	if meta.Field != "email" {
		t.Errorf("field = %q, want %q", meta.Field, "email")
	}
	if meta.SessionsWithField != 50 || meta.SessionsReentered != 15 {
		t.Errorf("counts = %d/%d, want 50/15", meta.SessionsWithField, meta.SessionsReentered)
	}
	if meta.ReentryRate != 0.3 {
		t.Errorf("re-entry rate = %v, want 0.3", meta.ReentryRate)
	}
	if patterns[0].SessionCount != 200 {
		t.Errorf("session count = %d, want 200", patterns[0].SessionCount)
	}
}

func TestDetectHesitationBelowFieldMinimum(t *testing.T) {
	var events []models.TrackingEvent
	// Only 10 sessions touch the field; heavy re-entry but sample too small.
	for i := 0; i < 10; i++ {
		session := fmt.Sprintf("s%d", i)
		events = append(events,
			formEvent(session, "phone", models.FormActionFocus),
			formEvent(session, "phone", models.FormActionFocus),
		)
	}

	d := New(nil, nil, nil, DefaultConfig(), zerolog.Nop())
	if patterns := d.detectHesitation("site1", 200, events); len(patterns) != 0 {
		t.Errorf("got %d patterns, want 0", len(patterns))
	}
}

func TestDetectHesitationSingleFocusIsNotReentry(t *testing.T) {
	var events []models.TrackingEvent
	for i := 0; i < 60; i++ {
		events = append(events, formEvent(fmt.Sprintf("s%d", i), "name", models.FormActionFocus))
	}

	d := New(nil, nil, nil, DefaultConfig(), zerolog.Nop())
	if patterns := d.detectHesitation("site1", 200, events); len(patterns) != 0 {
		t.Errorf("single-focus sessions produced patterns: %+v", patterns)
	}
}

func TestDetectHesitationIgnoresMalformedPayloads(t *testing.T) {
	events := []models.TrackingEvent{
		{SiteID: "site1", SessionID: "s1", Type: models.EventForm, Payload: nil},
		{SiteID: "site1", SessionID: "s2", Type: models.EventForm, Payload: map[string]interface{}{
			models.PayloadAction: models.FormActionFocus,
		}},
	}

	d := New(nil, nil, nil, DefaultConfig(), zerolog.Nop())
	if patterns := d.detectHesitation("site1", 200, events); len(patterns) != 0 {
		t.Errorf("malformed payloads produced patterns: %+v", patterns)
	}
}
