package detect

import (
	"fmt"
	"math"
	"sort"

	"github.com/storesight/storesight/internal/models"
)

// detectLowEngagement flags pages whose approximate time-on-page falls below
// the configured fraction of the site-wide average. Per-page time is
// approximated as session duration spread evenly over the session's pages.
func (d *Detector) detectLowEngagement(siteID string, sessions []models.Session) []models.Pattern {
	pageSeconds := make(map[string]float64)
	pageViews := make(map[string]int)
	var totalSeconds float64
	var totalViews int

	for _, s := range sessions {
		if s.DurationSeconds == nil || s.PageCount <= 0 || len(s.JourneyPath) == 0 {
			continue
		}
		perPage := float64(*s.DurationSeconds) / float64(s.PageCount)
		for _, page := range s.JourneyPath {
			pageSeconds[page] += perPage
			pageViews[page]++
			totalSeconds += perPage
			totalViews++
		}
	}

	if totalViews == 0 {
		return nil
	}
	siteAvg := totalSeconds / float64(totalViews)
	if siteAvg <= 0 {
		return nil
	}

	pages := make([]string, 0, len(pageViews))
	for page := range pageViews {
		pages = append(pages, page)
	}
	sort.Strings(pages)

	var patterns []models.Pattern
	for _, page := range pages {
		views := pageViews[page]
		if views < d.cfg.MinPageViews {
			continue
		}
		avg := pageSeconds[page] / float64(views)
		if avg >= siteAvg*d.cfg.EngagementRatio {
			continue
		}

		// The shortfall fraction is the pattern's rate: 1 when users spend
		// no time on the page, 0 at the site average.
		rate := 1 - avg/siteAvg
		patterns = append(patterns, models.Pattern{
			SiteID:       siteID,
			Type:         models.PatternLowEngagement,
			Severity:     Severity(rate, views, totalViews),
			SessionCount: len(sessions),
			Description: fmt.Sprintf("Average time on %s is %.0fs, %d%% below the site average (%d views)",
				page, avg, int(math.Round(rate*100)), views),
			Metadata: models.EngagementMetadata{
				Page:           page,
				AvgSeconds:     avg,
				SiteAvgSeconds: siteAvg,
				PageViews:      views,
			},
		})
	}
	return patterns
}
