package httpserver

import (
	"github.com/gin-gonic/gin"

	"github.com/storesight/storesight/internal/auth"
	"github.com/storesight/storesight/internal/config"
	"github.com/storesight/storesight/internal/handlers"
)

// Deps are the wired services the router exposes.
type Deps struct {
	Events          *handlers.EventHandlers
	Health          *handlers.HealthHandlers
	Recommendations *handlers.RecommendationHandlers
	Jobs            *handlers.JobHandlers
}

// NewRouter wires public endpoints and authenticated APIs.
// Public: /health
// Authenticated (X-API-Key → site): /events, /recommendations, /benchmarks, /jobs
func NewRouter(cfg config.Config, d Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", d.Health.Status)

	authGroup := r.Group("/")
	authGroup.Use(auth.APIKeyMiddleware(cfg.APIKeys))

	authGroup.POST("/events", d.Events.Ingest)

	authGroup.GET("/recommendations", d.Recommendations.List)
	authGroup.GET("/recommendations/:id", d.Recommendations.Get)
	authGroup.POST("/recommendations/:id/status", d.Recommendations.Transition)

	authGroup.GET("/benchmarks", d.Jobs.Benchmark)
	authGroup.POST("/jobs/detect", d.Jobs.Detect)
	authGroup.POST("/jobs/recommend", d.Jobs.Recommend)

	return r
}
