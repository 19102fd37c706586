// Package jobs runs the scheduled analysis passes: daily pattern detection
// and the recommendation generation chained after it. A single site's
// failure never aborts the rest of a run; failures are folded into the run
// result instead.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/storesight/storesight/internal/detect"
	"github.com/storesight/storesight/internal/recommend"
	"github.com/storesight/storesight/internal/store"
)

// Config tunes the runs.
type Config struct {
	// AnalysisWindowDays is the trailing window each run analyzes.
	AnalysisWindowDays int
	// SiteBatchSize bounds peak memory: sites are processed in fixed-size
	// batches, sequentially within and across batches.
	SiteBatchSize int
	// SeverityFloor and MaxResults scope recommendation generation.
	SeverityFloor float64
	MaxResults    int
}

// DefaultConfig returns the standard job tuning.
func DefaultConfig() Config {
	return Config{
		AnalysisWindowDays: 7,
		SiteBatchSize:      10,
		SeverityFloor:      0.3,
		MaxResults:         5,
	}
}

// SiteError records one site's failure within a run.
type SiteError struct {
	SiteID string `json:"siteId"`
	Error  string `json:"error"`
}

// Result is a run's outcome: how many sites were processed and produced
// output, plus the per-site error tally. The run as a whole succeeds even
// with site errors; only a failure before any site is processed (e.g. the
// site list cannot be loaded) fails the run.
type Result struct {
	Sites      int         `json:"sites"`
	Produced   int         `json:"produced"`
	Errors     []SiteError `json:"errors,omitempty"`
	StartedAt  time.Time   `json:"startedAt"`
	FinishedAt time.Time   `json:"finishedAt"`
}

// Runner executes detection and recommendation passes over the site list.
type Runner struct {
	businesses store.BusinessStore
	detector   *detect.Detector
	engine     *recommend.Engine
	cfg        Config
	log        zerolog.Logger
	now        func() time.Time
}

// NewRunner builds a runner.
func NewRunner(businesses store.BusinessStore, detector *detect.Detector, engine *recommend.Engine, cfg Config, log zerolog.Logger) *Runner {
	def := DefaultConfig()
	if cfg.AnalysisWindowDays <= 0 {
		cfg.AnalysisWindowDays = def.AnalysisWindowDays
	}
	if cfg.SiteBatchSize <= 0 {
		cfg.SiteBatchSize = def.SiteBatchSize
	}
	if cfg.SeverityFloor <= 0 {
		cfg.SeverityFloor = def.SeverityFloor
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = def.MaxResults
	}
	return &Runner{
		businesses: businesses,
		detector:   detector,
		engine:     engine,
		cfg:        cfg,
		log:        log.With().Str("component", "jobs").Logger(),
		now:        time.Now,
	}
}

// RunDetection runs pattern detection over every site (or just siteID when
// given). Returns an error only when no site could even be attempted.
func (r *Runner) RunDetection(ctx context.Context, siteID string) (Result, error) {
	return r.run(ctx, "detection", siteID, func(ctx context.Context, site string, from, to time.Time) (int, error) {
		patterns, err := r.detector.DetectSite(ctx, site, from, to)
		return len(patterns), err
	})
}

// RunRecommendations generates recommendations for every site (or just
// siteID when given), using each site's owning business.
func (r *Runner) RunRecommendations(ctx context.Context, siteID string) (Result, error) {
	return r.run(ctx, "recommendations", siteID, func(ctx context.Context, site string, from, to time.Time) (int, error) {
		business, err := r.businesses.BusinessBySite(ctx, site)
		if err != nil {
			return 0, fmt.Errorf("resolve business for %s: %w", site, err)
		}
		recs, err := r.engine.Generate(ctx, recommend.Params{
			BusinessID:      business.ID,
			SiteID:          site,
			From:            from,
			To:              to,
			SeverityFloor:   r.cfg.SeverityFloor,
			MaxResults:      r.cfg.MaxResults,
			IncludePeerData: true,
		})
		return len(recs), err
	})
}

// run folds the per-site step over the site list in fixed-size batches,
// producing (results, errors) rather than aborting on the first failure.
func (r *Runner) run(ctx context.Context, name, siteID string, step func(context.Context, string, time.Time, time.Time) (int, error)) (Result, error) {
	result := Result{StartedAt: r.now().UTC()}

	var sites []string
	if siteID != "" {
		sites = []string{siteID}
	} else {
		var err error
		sites, err = r.businesses.ListSiteIDs(ctx)
		if err != nil {
			return result, fmt.Errorf("load site list: %w", err)
		}
	}

	to := result.StartedAt
	from := to.AddDate(0, 0, -r.cfg.AnalysisWindowDays)

	for start := 0; start < len(sites); start += r.cfg.SiteBatchSize {
		end := start + r.cfg.SiteBatchSize
		if end > len(sites) {
			end = len(sites)
		}
		for _, site := range sites[start:end] {
			produced, err := step(ctx, site, from, to)
			result.Sites++
			if err != nil {
				r.log.Error().Err(err).Str("job", name).Str("site", site).Msg("site failed")
				result.Errors = append(result.Errors, SiteError{SiteID: site, Error: err.Error()})
				continue
			}
			result.Produced += produced
		}
	}

	result.FinishedAt = r.now().UTC()
	r.log.Info().Str("job", name).Int("sites", result.Sites).
		Int("produced", result.Produced).Int("errors", len(result.Errors)).
		Msg("run complete")
	return result, nil
}
