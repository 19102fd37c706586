// Package store defines the durable persistence contracts the pipeline
// consumes and their Postgres and ClickHouse implementations. The pipeline
// does not care how storage is implemented; every component takes the
// narrowest interface it needs.
package store

import (
	"context"
	"time"

	"github.com/storesight/storesight/internal/models"
)

// EventStore persists raw tracking events and serves windowed reads for the
// hesitation detector. Writes are at-least-once: callers may retry a failed
// batch, and the store must tolerate (or collapse) duplicates.
type EventStore interface {
	InsertEvents(ctx context.Context, events []models.TrackingEvent) error
	// FormEvents returns form-interaction events for a site within
	// [from, to), ordered by timestamp.
	FormEvents(ctx context.Context, siteID string, from, to time.Time) ([]models.TrackingEvent, error)
	Ping(ctx context.Context) error
}

// SessionStore reads the materialized sessions this pipeline analyzes.
type SessionStore interface {
	// SessionsInWindow returns a site's sessions started within [from, to).
	SessionsInWindow(ctx context.Context, siteID string, from, to time.Time) ([]models.Session, error)
	// SessionsForSites returns sessions across several sites, used for peer
	// aggregate metrics.
	SessionsForSites(ctx context.Context, siteIDs []string, from, to time.Time) ([]models.Session, error)
}

// PatternStore persists detector output. InsertPatterns is a bulk write with
// duplicate-skip semantics; InsertPattern is the single-row fallback the
// detector uses when a bulk write fails.
type PatternStore interface {
	InsertPatterns(ctx context.Context, patterns []models.Pattern, windowStart time.Time) error
	InsertPattern(ctx context.Context, pattern models.Pattern, windowStart time.Time) error
	// PatternsBySite returns patterns detected within [from, to) with
	// severity >= minSeverity, newest first.
	PatternsBySite(ctx context.Context, siteID string, from, to time.Time, minSeverity float64) ([]models.Pattern, error)
}

// RecommendationFilter narrows the list surface.
type RecommendationFilter struct {
	Status     models.RecStatus
	Impact     models.Level
	Confidence models.Level
	Limit      int
}

// RecommendationStore persists engine output and serves the owner-scoped
// query/transition surface. All reads and writes are scoped by businessID;
// a mismatch is reported as pipeline.ErrNotFound.
type RecommendationStore interface {
	// CreateRecommendation inserts rec unless an unaddressed NEW
	// recommendation with the same (business, templateKey, target) already
	// exists; it reports whether a row was created.
	CreateRecommendation(ctx context.Context, rec models.Recommendation) (bool, error)
	ListRecommendations(ctx context.Context, businessID string, f RecommendationFilter) ([]models.Recommendation, error)
	GetRecommendation(ctx context.Context, businessID, id string) (models.Recommendation, error)
	// UpdateRecommendationStatus persists a lifecycle transition's outcome.
	UpdateRecommendationStatus(ctx context.Context, businessID string, rec models.Recommendation) error
	// PeerImplementationStats reports how many of the given businesses
	// implemented a recommendation from the same template, and their average
	// conversion-rate improvement (percent) after implementation.
	PeerImplementationStats(ctx context.Context, businessIDs []string, templateKey string) (int, float64, error)
}

// BusinessStore reads business profiles and site linkage.
type BusinessStore interface {
	GetBusiness(ctx context.Context, id string) (models.Business, error)
	BusinessBySite(ctx context.Context, siteID string) (models.Business, error)
	ListBusinesses(ctx context.Context) ([]models.Business, error)
	// ListSiteIDs returns every site with a business attached, the job
	// orchestrator's work list.
	ListSiteIDs(ctx context.Context) ([]string, error)
	SetPeerGroup(ctx context.Context, businessID, peerGroupID string) error
}
