package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is the reachability probe a durable store exposes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Backlog reports the event buffer's current depth.
type Backlog interface {
	Len() int
}

// HealthHandlers derives overall service health from durable-store
// reachability and buffer backlog: unhealthy when a store is unreachable,
// degraded when the backlog exceeds the high-water mark.
type HealthHandlers struct {
	stores    []Pinger
	backlog   Backlog
	highWater int
}

// NewHealthHandlers builds the health surface.
func NewHealthHandlers(backlog Backlog, highWater int, stores ...Pinger) *HealthHandlers {
	return &HealthHandlers{stores: stores, backlog: backlog, highWater: highWater}
}

// Status handles GET /health.
func (h *HealthHandlers) Status(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
	defer cancel()

	for _, s := range h.stores {
		if err := s.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "durable store unreachable",
			})
			return
		}
	}

	backlog := h.backlog.Len()
	status := "healthy"
	if backlog > h.highWater {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  status,
		"backlog": backlog,
	})
}
