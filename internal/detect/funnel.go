package detect

import (
	"fmt"
	"math"

	"github.com/storesight/storesight/internal/models"
)

// Funnel is the per-stage transition count table built from ordered journey
// paths. A session is counted once per stage it visited; it "continued" from
// a stage when any later stage follows it in the path, or when the session
// converted (a converted session did not abandon anywhere).
type Funnel struct {
	// Stages in first-seen order, for deterministic iteration.
	Stages    []string
	AtStage   map[string]int
	Continued map[string]int
}

// BuildFunnel folds the sessions' journey paths into a transition table.
func BuildFunnel(sessions []models.Session) *Funnel {
	f := &Funnel{
		AtStage:   make(map[string]int),
		Continued: make(map[string]int),
	}
	for _, s := range sessions {
		seen := make(map[string]bool, len(s.JourneyPath))
		last := len(s.JourneyPath) - 1
		for i, page := range s.JourneyPath {
			if seen[page] {
				continue
			}
			seen[page] = true
			if f.AtStage[page] == 0 {
				f.Stages = append(f.Stages, page)
			}
			f.AtStage[page]++
			if i < last || s.Converted {
				f.Continued[page]++
			}
		}
	}
	return f
}

// AbandonRate returns (sessions at stage - sessions continuing) / sessions
// at stage, or 0 for an unseen stage.
func (f *Funnel) AbandonRate(stage string) float64 {
	at := f.AtStage[stage]
	if at == 0 {
		return 0
	}
	return float64(at-f.Continued[stage]) / float64(at)
}

// detectAbandonment flags funnel stages where enough sessions stop.
func (d *Detector) detectAbandonment(siteID string, sessions []models.Session) []models.Pattern {
	f := BuildFunnel(sessions)
	total := len(sessions)

	var patterns []models.Pattern
	for _, stage := range f.Stages {
		at := f.AtStage[stage]
		if at < d.cfg.MinStageSessions {
			continue
		}
		rate := f.AbandonRate(stage)
		if rate < d.cfg.AbandonRateThreshold {
			continue
		}

		abandoned := at - f.Continued[stage]
		patterns = append(patterns, models.Pattern{
			SiteID:       siteID,
			Type:         models.PatternAbandonment,
			Severity:     Severity(rate, abandoned, total),
			SessionCount: total,
			Description: fmt.Sprintf("%d%% of users abandon at %s (%d sessions)",
				int(math.Round(rate*100)), stage, at),
			Metadata: models.AbandonmentMetadata{
				Stage:             stage,
				AbandonRate:       rate,
				SessionsAtStage:   at,
				SessionsContinued: f.Continued[stage],
			},
		})
	}
	return patterns
}
