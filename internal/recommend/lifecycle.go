package recommend

import (
	"context"
	"time"

	"github.com/storesight/storesight/internal/models"
	"github.com/storesight/storesight/internal/pipeline"
	"github.com/storesight/storesight/internal/store"
)

// Transition describes a requested lifecycle change.
type Transition struct {
	Status models.RecStatus
	// ImplementedAt is required for IMPLEMENTED and must not be in the
	// future.
	ImplementedAt *time.Time
	// Notes are stored only on IMPLEMENTED, capped at
	// models.MaxRecommendationNotes characters.
	Notes string
}

// Lifecycle applies owner-scoped status transitions. All reads go through
// the store's business-scoped lookup, so a non-owner probing any ID gets
// ErrNotFound and the stored row is untouched.
type Lifecycle struct {
	recs store.RecommendationStore
	now  func() time.Time
}

// NewLifecycle builds the transition service.
func NewLifecycle(recs store.RecommendationStore) *Lifecycle {
	return &Lifecycle{recs: recs, now: time.Now}
}

// Apply validates and persists one transition, returning the updated
// recommendation.
func (l *Lifecycle) Apply(ctx context.Context, businessID, id string, t Transition) (models.Recommendation, error) {
	rec, err := l.recs.GetRecommendation(ctx, businessID, id)
	if err != nil {
		return models.Recommendation{}, err
	}

	now := l.now().UTC()
	switch t.Status {
	case models.RecStatusPlanned:
		if rec.Status != models.RecStatusNew {
			return models.Recommendation{}, pipeline.Validationf("cannot plan a %s recommendation", rec.Status)
		}
		rec.Status = models.RecStatusPlanned

	case models.RecStatusImplemented:
		if rec.Status != models.RecStatusNew && rec.Status != models.RecStatusPlanned {
			return models.Recommendation{}, pipeline.Validationf("cannot implement a %s recommendation", rec.Status)
		}
		implementedAt := now
		if t.ImplementedAt != nil {
			implementedAt = t.ImplementedAt.UTC()
		}
		if implementedAt.After(now) {
			return models.Recommendation{}, pipeline.Validationf("implementation date cannot be in the future")
		}
		if len(t.Notes) > models.MaxRecommendationNotes {
			return models.Recommendation{}, pipeline.Validationf("notes exceed %d characters", models.MaxRecommendationNotes)
		}
		rec.Status = models.RecStatusImplemented
		rec.ImplementedAt = &implementedAt
		rec.Notes = t.Notes

	case models.RecStatusDismissed:
		if rec.Status != models.RecStatusNew && rec.Status != models.RecStatusPlanned {
			return models.Recommendation{}, pipeline.Validationf("cannot dismiss a %s recommendation", rec.Status)
		}
		rec.Status = models.RecStatusDismissed
		rec.DismissedAt = &now

	default:
		return models.Recommendation{}, pipeline.Validationf("invalid target status %q", t.Status)
	}

	if err := l.recs.UpdateRecommendationStatus(ctx, businessID, rec); err != nil {
		return models.Recommendation{}, err
	}
	return rec, nil
}
