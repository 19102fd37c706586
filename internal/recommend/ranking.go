package recommend

import (
	"sort"

	"github.com/storesight/storesight/internal/models"
)

// Level bands. Impact discretizes severity; confidence discretizes the
// pattern's confidence score. The bands are fixed and non-overlapping.
const (
	impactMediumFloor = 0.41
	impactHighFloor   = 0.71

	confidenceMediumFloor = 0.66
	confidenceHighFloor   = 0.86
)

// ImpactLevel maps a pattern's severity to its discrete impact band.
func ImpactLevel(severity float64) models.Level {
	switch {
	case severity >= impactHighFloor:
		return models.LevelHigh
	case severity >= impactMediumFloor:
		return models.LevelMedium
	default:
		return models.LevelLow
	}
}

// ConfidenceLevel maps a pattern's confidence score to its discrete band.
func ConfidenceLevel(score float64) models.Level {
	switch {
	case score >= confidenceHighFloor:
		return models.LevelHigh
	case score >= confidenceMediumFloor:
		return models.LevelMedium
	default:
		return models.LevelLow
	}
}

// RankForDisplay sorts stored recommendations for the list surface: impact
// weight times confidence weight descending, ties broken by newest creation
// time. This is deliberately distinct from the generation-time impactScore
// ordering and must stay that way.
func RankForDisplay(recs []models.Recommendation) []models.Recommendation {
	sorted := make([]models.Recommendation, len(recs))
	copy(sorted, recs)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := sorted[i].DisplayRank(), sorted[j].DisplayRank()
		if ri != rj {
			return ri > rj
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	return sorted
}
