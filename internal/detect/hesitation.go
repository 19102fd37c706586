package detect

import (
	"fmt"
	"math"
	"sort"

	"github.com/storesight/storesight/internal/models"
)

// detectHesitation flags form fields users re-enter repeatedly. A re-entry
// is more than one focus on the same field within a session; the rate is
// sessions-with-reentry over sessions-interacting-with-field.
func (d *Detector) detectHesitation(siteID string, totalSessions int, events []models.TrackingEvent) []models.Pattern {
	type key struct {
		session string
		field   string
	}
	focusCounts := make(map[key]int)
	interacted := make(map[key]bool)

	for _, e := range events {
		field, ok := e.Payload[models.PayloadField].(string)
		if !ok || field == "" {
			continue
		}
		k := key{session: e.SessionID, field: field}
		interacted[k] = true
		if action, _ := e.Payload[models.PayloadAction].(string); action == models.FormActionFocus {
			focusCounts[k]++
		}
	}

	sessionsWith := make(map[string]int)
	reentered := make(map[string]int)
	for k := range interacted {
		sessionsWith[k.field]++
		if focusCounts[k] > 1 {
			reentered[k.field]++
		}
	}

	fields := make([]string, 0, len(sessionsWith))
	for field := range sessionsWith {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var patterns []models.Pattern
	for _, field := range fields {
		with := sessionsWith[field]
		if with < d.cfg.MinFieldSessions {
			continue
		}
		rate := float64(reentered[field]) / float64(with)
		if rate < d.cfg.ReentryRateThreshold {
			continue
		}

		patterns = append(patterns, models.Pattern{
			SiteID:       siteID,
			Type:         models.PatternHesitation,
			Severity:     Severity(rate, reentered[field], totalSessions),
			SessionCount: totalSessions,
			Description: fmt.Sprintf("%d%% of users hesitate on the %s field (%d sessions)",
				int(math.Round(rate*100)), field, with),
			Metadata: models.HesitationMetadata{
				Field:             field,
				ReentryRate:       rate,
				SessionsWithField: with,
				SessionsReentered: reentered[field],
			},
		})
	}
	return patterns
}
