package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/storesight/storesight/internal/auth"
	"github.com/storesight/storesight/internal/buffer"
	"github.com/storesight/storesight/internal/models"
	"github.com/storesight/storesight/internal/ratelimit"
)

// EventHandlers serves the ingestion path.
//
// POST /events
//   - Requires X-API-Key (site context)
//   - Accepts a non-empty array of events; the whole batch is rejected if
//     any event fails schema checks
//   - Buffered by default; ?sync=1 writes through to storage in-request
//   - Per-site quota; rejected requests carry limit/remaining/reset headers
type EventHandlers struct {
	buf     *buffer.Buffer
	sink    buffer.Sink
	limiter *ratelimit.Limiter
	log     zerolog.Logger
}

// NewEventHandlers builds the ingestion handlers.
func NewEventHandlers(buf *buffer.Buffer, sink buffer.Sink, limiter *ratelimit.Limiter, log zerolog.Logger) *EventHandlers {
	return &EventHandlers{
		buf:     buf,
		sink:    sink,
		limiter: limiter,
		log:     log.With().Str("component", "ingest").Logger(),
	}
}

// Ingest handles POST /events.
func (h *EventHandlers) Ingest(c *gin.Context) {
	siteID := auth.SiteID(c)
	if siteID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	res := h.limiter.Allow(siteID)
	setRateLimitHeaders(c, res)
	if err := res.Err(); err != nil {
		h.log.Debug().Str("site", siteID).Msg(err.Error())
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":     "rate limit exceeded",
			"limit":     res.Limit,
			"remaining": res.Remaining,
			"reset":     res.Reset.Unix(),
		})
		return
	}

	var submissions []models.EventSubmission
	if err := c.ShouldBindJSON(&submissions); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
		return
	}
	if len(submissions) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batch must not be empty"})
		return
	}

	events := make([]models.TrackingEvent, 0, len(submissions))
	for i, sub := range submissions {
		event, err := validateSubmission(siteID, sub)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("event %d: %s", i, err)})
			return
		}
		events = append(events, event)
	}

	// Request-scoped bulk submissions may bypass the buffer for simpler
	// consistency at a small latency cost.
	if c.Query("sync") == "1" {
		if err := h.sink.InsertEvents(c.Request.Context(), events); err != nil {
			h.log.Error().Err(err).Str("site", siteID).Msg("write-through failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record events"})
			return
		}
		c.JSON(http.StatusOK, models.IngestResponse{Accepted: len(events), Buffered: false})
		return
	}

	if err := h.buf.AddBatch(events); err != nil {
		h.log.Error().Err(err).Str("site", siteID).Msg("buffer rejected batch")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ingestion unavailable"})
		return
	}
	c.JSON(http.StatusAccepted, models.IngestResponse{Accepted: len(events), Buffered: true})
}

func validateSubmission(siteID string, sub models.EventSubmission) (models.TrackingEvent, error) {
	if sub.SessionID == "" {
		return models.TrackingEvent{}, fmt.Errorf("session_id required")
	}
	eventType := models.EventType(sub.Type)
	if !eventType.Valid() {
		return models.TrackingEvent{}, fmt.Errorf("unknown event type %q", sub.Type)
	}
	if sub.TimestampMs <= 0 {
		return models.TrackingEvent{}, fmt.Errorf("timestamp_ms must be positive")
	}
	return models.TrackingEvent{
		EventID:     uuid.New().String(),
		SiteID:      siteID,
		SessionID:   sub.SessionID,
		Type:        eventType,
		TimestampMs: sub.TimestampMs,
		Payload:     sub.Payload,
	}, nil
}

func setRateLimitHeaders(c *gin.Context, res ratelimit.Result) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))
}
