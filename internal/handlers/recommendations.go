package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/storesight/storesight/internal/auth"
	"github.com/storesight/storesight/internal/models"
	"github.com/storesight/storesight/internal/pipeline"
	"github.com/storesight/storesight/internal/recommend"
	"github.com/storesight/storesight/internal/store"
)

// RecommendationHandlers serves the query/transition surface the dashboard
// consumes. Every operation is scoped to the business owning the
// authenticated site; probing another business's IDs yields 404.
type RecommendationHandlers struct {
	recs       store.RecommendationStore
	businesses store.BusinessStore
	lifecycle  *recommend.Lifecycle
	log        zerolog.Logger
}

// NewRecommendationHandlers builds the recommendation surface.
func NewRecommendationHandlers(recs store.RecommendationStore, businesses store.BusinessStore, lifecycle *recommend.Lifecycle, log zerolog.Logger) *RecommendationHandlers {
	return &RecommendationHandlers{
		recs:       recs,
		businesses: businesses,
		lifecycle:  lifecycle,
		log:        log.With().Str("component", "recommendations").Logger(),
	}
}

// List handles GET /recommendations with optional status/impact/confidence
// filters, sorted by the display ranking (impact × confidence, newest first
// on ties).
func (h *RecommendationHandlers) List(c *gin.Context) {
	business, ok := h.owner(c)
	if !ok {
		return
	}

	filter := store.RecommendationFilter{}
	if v := c.Query("status"); v != "" {
		s := models.RecStatus(v)
		if !s.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}
		filter.Status = s
	}
	if v := c.Query("impact"); v != "" {
		l := models.Level(v)
		if !l.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid impact filter"})
			return
		}
		filter.Impact = l
	}
	if v := c.Query("confidence"); v != "" {
		l := models.Level(v)
		if !l.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid confidence filter"})
			return
		}
		filter.Confidence = l
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	recs, err := h.recs.ListRecommendations(c.Request.Context(), business.ID, filter)
	if err != nil {
		h.fail(c, err, "list recommendations")
		return
	}

	ranked := recommend.RankForDisplay(recs)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": ranked})
}

// Get handles GET /recommendations/:id.
func (h *RecommendationHandlers) Get(c *gin.Context) {
	business, ok := h.owner(c)
	if !ok {
		return
	}

	rec, err := h.recs.GetRecommendation(c.Request.Context(), business.ID, c.Param("id"))
	if err != nil {
		h.fail(c, err, "get recommendation")
		return
	}
	c.JSON(http.StatusOK, rec)
}

// transitionRequest is the POST /recommendations/:id/status payload.
type transitionRequest struct {
	Status        string  `json:"status"`
	ImplementedAt *string `json:"implemented_at,omitempty"` // RFC3339
	Notes         string  `json:"notes,omitempty"`
}

// Transition handles POST /recommendations/:id/status.
func (h *RecommendationHandlers) Transition(c *gin.Context) {
	business, ok := h.owner(c)
	if !ok {
		return
	}

	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
		return
	}

	t := recommend.Transition{Status: models.RecStatus(req.Status), Notes: req.Notes}
	if req.ImplementedAt != nil {
		ts, err := time.Parse(time.RFC3339, *req.ImplementedAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "implemented_at must be RFC3339"})
			return
		}
		utc := ts.UTC()
		t.ImplementedAt = &utc
	}

	rec, err := h.lifecycle.Apply(c.Request.Context(), business.ID, c.Param("id"), t)
	if err != nil {
		h.fail(c, err, "transition recommendation")
		return
	}
	c.JSON(http.StatusOK, rec)
}

// owner resolves the authenticated site's business, ending the request on
// failure.
func (h *RecommendationHandlers) owner(c *gin.Context) (models.Business, bool) {
	siteID := auth.SiteID(c)
	if siteID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return models.Business{}, false
	}
	business, err := h.businesses.BusinessBySite(c.Request.Context(), siteID)
	if err != nil {
		h.fail(c, err, "resolve business")
		return models.Business{}, false
	}
	return business, true
}

// fail maps pipeline errors to HTTP statuses. Internal detail is logged,
// never returned.
func (h *RecommendationHandlers) fail(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case pipeline.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("op", op).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
