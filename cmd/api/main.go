package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/storesight/storesight/internal/buffer"
	"github.com/storesight/storesight/internal/config"
	"github.com/storesight/storesight/internal/detect"
	"github.com/storesight/storesight/internal/handlers"
	"github.com/storesight/storesight/internal/httpserver"
	"github.com/storesight/storesight/internal/jobs"
	"github.com/storesight/storesight/internal/logging"
	"github.com/storesight/storesight/internal/peer"
	"github.com/storesight/storesight/internal/ratelimit"
	"github.com/storesight/storesight/internal/recommend"
	"github.com/storesight/storesight/internal/store"
)

// main boots the service: config → stores → pipeline → HTTP server + scheduler.
func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	log := logging.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Postgres holds sessions, patterns, recommendations, and businesses.
	pg, err := store.NewPostgresStore(cfg.PostgresURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to postgres")
	}
	defer pg.Close()
	if err := pg.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("bootstrap postgres schema")
	}

	// ClickHouse holds the raw tracking-event time series.
	ch, err := store.NewClickHouseStore(store.ClickHouseConfig{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDB,
		Username: cfg.ClickHouseUser,
		Password: cfg.ClickHousePassword,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect to clickhouse")
	}
	defer ch.Close()
	if err := ch.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("bootstrap clickhouse schema")
	}

	buf := buffer.New(ch, buffer.Config{
		MaxSize:       cfg.BufferMaxSize,
		FlushInterval: cfg.BufferFlushInterval,
		RetryDelay:    cfg.BufferRetryDelay,
	}, log)

	limiter := ratelimit.New(cfg.RateLimitPerWindow, cfg.RateLimitWindow)

	detector := detect.New(pg, ch, pg, detect.DefaultConfig(), log)
	matcher := peer.NewMatcher(pg, pg, peer.DefaultConfig(), log)
	engine := recommend.NewEngine(pg, pg, pg, matcher, log)
	lifecycle := recommend.NewLifecycle(pg)

	runner := jobs.NewRunner(pg, detector, engine, jobs.Config{
		AnalysisWindowDays: cfg.AnalysisWindowDays,
		SiteBatchSize:      cfg.SiteBatchSize,
		SeverityFloor:      cfg.SeverityFloor,
		MaxResults:         cfg.MaxRecommendations,
	}, log)

	scheduler, err := jobs.NewScheduler(runner, cfg.DetectionSchedule, log)
	if err != nil {
		log.Fatal().Err(err).Str("spec", cfg.DetectionSchedule).Msg("invalid detection schedule")
	}
	scheduler.Start()

	router := httpserver.NewRouter(cfg, httpserver.Deps{
		Events:          handlers.NewEventHandlers(buf, ch, limiter, log),
		Health:          handlers.NewHealthHandlers(buf, cfg.BufferHighWater, pg, ch),
		Recommendations: handlers.NewRecommendationHandlers(pg, pg, lifecycle, log),
		Jobs:            handlers.NewJobHandlers(runner, matcher, pg, cfg.AnalysisWindowDays, log),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}

	// Final drain so buffered events survive the restart.
	if err := buf.Close(ctx); err != nil {
		log.Error().Err(err).Msg("final buffer flush failed")
	}

	log.Info().Msg("server exited")
}
