package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/storesight/storesight/internal/auth"
	"github.com/storesight/storesight/internal/jobs"
	"github.com/storesight/storesight/internal/peer"
	"github.com/storesight/storesight/internal/pipeline"
	"github.com/storesight/storesight/internal/store"
)

// JobHandlers exposes on-demand analysis triggers and the peer benchmarking
// view.
type JobHandlers struct {
	runner     *jobs.Runner
	matcher    *peer.Matcher
	businesses store.BusinessStore
	windowDays int
	log        zerolog.Logger
}

// NewJobHandlers builds the trigger/benchmark surface.
func NewJobHandlers(runner *jobs.Runner, matcher *peer.Matcher, businesses store.BusinessStore, windowDays int, log zerolog.Logger) *JobHandlers {
	return &JobHandlers{
		runner:     runner,
		matcher:    matcher,
		businesses: businesses,
		windowDays: windowDays,
		log:        log.With().Str("component", "jobs-api").Logger(),
	}
}

// Detect handles POST /jobs/detect. ?scope=site limits the run to the
// authenticated site; by default it covers every site.
func (h *JobHandlers) Detect(c *gin.Context) {
	result, err := h.runner.RunDetection(c.Request.Context(), h.scope(c))
	if err != nil {
		h.log.Error().Err(err).Msg("detection run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "detection run failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Recommend handles POST /jobs/recommend.
func (h *JobHandlers) Recommend(c *gin.Context) {
	result, err := h.runner.RunRecommendations(c.Request.Context(), h.scope(c))
	if err != nil {
		h.log.Error().Err(err).Msg("recommendation run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "recommendation run failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Benchmark handles GET /benchmarks: the authenticated site's metrics next
// to its peer group's, with the matching tier recorded.
func (h *JobHandlers) Benchmark(c *gin.Context) {
	siteID := auth.SiteID(c)
	business, err := h.businesses.BusinessBySite(c.Request.Context(), siteID)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		h.log.Error().Err(err).Str("site", siteID).Msg("resolve business failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -h.windowDays)
	benchmark, err := h.matcher.Benchmark(c.Request.Context(), business, from, to)
	if err != nil {
		if pipeline.IsInsufficientData(err) {
			// Not a failure: a defined placeholder result.
			c.JSON(http.StatusOK, gin.H{"status": "insufficient_data", "reason": err.Error()})
			return
		}
		h.log.Error().Err(err).Str("business", business.ID).Msg("benchmark failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, benchmark)
}

func (h *JobHandlers) scope(c *gin.Context) string {
	if c.Query("scope") == "site" {
		return auth.SiteID(c)
	}
	return ""
}
