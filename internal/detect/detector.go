// Package detect finds abandonment, hesitation, and low-engagement patterns
// in a site's session window. Only patterns meeting the statistical minimum
// sample size are produced; a site with too few sessions yields zero
// patterns, not an error.
package detect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/storesight/storesight/internal/models"
	"github.com/storesight/storesight/internal/store"
)

// Config holds the statistical thresholds. Zero values fall back to the
// defaults in DefaultConfig.
type Config struct {
	// MinSessions gates the whole analysis: fewer sessions in the window
	// yields zero patterns.
	MinSessions int
	// MinStageSessions, MinFieldSessions, and MinPageViews are the
	// per-target sub-thresholds for the three families.
	MinStageSessions int
	MinFieldSessions int
	MinPageViews     int

	AbandonRateThreshold float64
	ReentryRateThreshold float64
	// EngagementRatio is the fraction of the site average below which a
	// page counts as low-engagement.
	EngagementRatio float64
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		MinSessions:          100,
		MinStageSessions:     50,
		MinFieldSessions:     50,
		MinPageViews:         50,
		AbandonRateThreshold: 0.30,
		ReentryRateThreshold: 0.20,
		EngagementRatio:      0.70,
	}
}

// Detector runs the three pattern families over a session window and
// persists qualifying patterns.
type Detector struct {
	sessions store.SessionStore
	events   store.EventStore
	patterns store.PatternStore
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time
}

// New builds a detector over the given stores.
func New(sessions store.SessionStore, events store.EventStore, patterns store.PatternStore, cfg Config, log zerolog.Logger) *Detector {
	def := DefaultConfig()
	if cfg.MinSessions <= 0 {
		cfg.MinSessions = def.MinSessions
	}
	if cfg.MinStageSessions <= 0 {
		cfg.MinStageSessions = def.MinStageSessions
	}
	if cfg.MinFieldSessions <= 0 {
		cfg.MinFieldSessions = def.MinFieldSessions
	}
	if cfg.MinPageViews <= 0 {
		cfg.MinPageViews = def.MinPageViews
	}
	if cfg.AbandonRateThreshold <= 0 {
		cfg.AbandonRateThreshold = def.AbandonRateThreshold
	}
	if cfg.ReentryRateThreshold <= 0 {
		cfg.ReentryRateThreshold = def.ReentryRateThreshold
	}
	if cfg.EngagementRatio <= 0 {
		cfg.EngagementRatio = def.EngagementRatio
	}
	return &Detector{
		sessions: sessions,
		events:   events,
		patterns: patterns,
		cfg:      cfg,
		log:      log.With().Str("component", "detector").Logger(),
		now:      time.Now,
	}
}

// DetectSite analyzes the site's sessions in [from, to), persists qualifying
// patterns, and returns them. Too few sessions is not an error: the result
// is simply empty.
func (d *Detector) DetectSite(ctx context.Context, siteID string, from, to time.Time) ([]models.Pattern, error) {
	sessions, err := d.sessions.SessionsInWindow(ctx, siteID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load sessions for %s: %w", siteID, err)
	}
	if len(sessions) < d.cfg.MinSessions {
		d.log.Debug().Str("site", siteID).Int("sessions", len(sessions)).
			Msg("below minimum sample size, skipping")
		return nil, nil
	}

	formEvents, err := d.events.FormEvents(ctx, siteID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load form events for %s: %w", siteID, err)
	}

	var patterns []models.Pattern
	patterns = append(patterns, d.detectAbandonment(siteID, sessions)...)
	patterns = append(patterns, d.detectHesitation(siteID, len(sessions), formEvents)...)
	patterns = append(patterns, d.detectLowEngagement(siteID, sessions)...)

	detectedAt := d.now().UTC()
	kept := patterns[:0]
	for _, p := range patterns {
		p.ConfidenceScore = ConfidenceScore(p.SessionCount)
		if p.ConfidenceScore == 0 {
			continue
		}
		p.ID = uuid.New().String()
		p.DetectedAt = detectedAt
		kept = append(kept, p)
	}
	patterns = kept

	if len(patterns) == 0 {
		return nil, nil
	}

	if err := d.save(ctx, patterns, from); err != nil {
		return patterns, err
	}

	d.log.Info().Str("site", siteID).Int("patterns", len(patterns)).Msg("detection complete")
	return patterns, nil
}

// save bulk-inserts with duplicate-skip; if the bulk write fails it falls
// back to row-at-a-time inserts so one bad record cannot block the rest,
// accumulating per-record errors.
func (d *Detector) save(ctx context.Context, patterns []models.Pattern, windowStart time.Time) error {
	bulkErr := d.patterns.InsertPatterns(ctx, patterns, windowStart)
	if bulkErr == nil {
		return nil
	}
	d.log.Warn().Err(bulkErr).Msg("bulk pattern insert failed, falling back to per-row inserts")

	var errs []error
	for _, p := range patterns {
		if err := d.patterns.InsertPattern(ctx, p, windowStart); err != nil {
			errs = append(errs, fmt.Errorf("pattern %s (%s): %w", p.ID, p.Type, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d patterns failed to persist: %w", len(errs), len(patterns), errors.Join(errs...))
}
