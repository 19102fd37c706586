package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains runtime configuration required by the service.
type Config struct {
	HTTPPort string

	// Durable stores.
	PostgresURL        string
	ClickHouseAddr     string
	ClickHouseDB       string
	ClickHouseUser     string
	ClickHousePassword string

	// APIKeys maps apiKey -> siteID for ingestion auth.
	APIKeys map[string]string

	// Event buffer.
	BufferMaxSize       int
	BufferFlushInterval time.Duration
	BufferRetryDelay    time.Duration
	// BufferHighWater is the backlog size above which health degrades.
	BufferHighWater int

	// Per-site ingestion quota.
	RateLimitPerWindow int
	RateLimitWindow    time.Duration

	// Analysis jobs.
	DetectionSchedule  string // cron spec
	AnalysisWindowDays int
	SiteBatchSize      int
	MaxRecommendations int
	SeverityFloor      float64
}

// Load reads required values from environment variables.
// SITE_KEYS format: "site1:key1,site2:key2"
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:            envOr("PORT", "8080"),
		PostgresURL:         strings.TrimSpace(os.Getenv("DB_URL")),
		ClickHouseAddr:      envOr("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDB:        envOr("CLICKHOUSE_DB", "storesight"),
		ClickHouseUser:      envOr("CLICKHOUSE_USER", "default"),
		ClickHousePassword:  os.Getenv("CLICKHOUSE_PASSWORD"),
		BufferMaxSize:       100,
		BufferFlushInterval: 5 * time.Second,
		BufferRetryDelay:    5 * time.Second,
		BufferHighWater:     500,
		RateLimitPerWindow:  600,
		RateLimitWindow:     time.Minute,
		DetectionSchedule:   envOr("DETECTION_SCHEDULE", "0 3 * * *"),
		AnalysisWindowDays:  7,
		SiteBatchSize:       10,
		MaxRecommendations:  5,
		SeverityFloor:       0.3,
	}

	if cfg.PostgresURL == "" {
		return Config{}, errors.New("DB_URL required")
	}

	var err error
	if cfg.BufferMaxSize, err = envInt("BUFFER_MAX_SIZE", cfg.BufferMaxSize); err != nil {
		return Config{}, err
	}
	if cfg.BufferHighWater, err = envInt("BUFFER_HIGH_WATER", cfg.BufferHighWater); err != nil {
		return Config{}, err
	}
	if cfg.BufferFlushInterval, err = envDuration("BUFFER_FLUSH_INTERVAL", cfg.BufferFlushInterval); err != nil {
		return Config{}, err
	}
	if cfg.BufferRetryDelay, err = envDuration("BUFFER_RETRY_DELAY", cfg.BufferRetryDelay); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitPerWindow, err = envInt("RATE_LIMIT_PER_WINDOW", cfg.RateLimitPerWindow); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitWindow, err = envDuration("RATE_LIMIT_WINDOW", cfg.RateLimitWindow); err != nil {
		return Config{}, err
	}
	if cfg.AnalysisWindowDays, err = envInt("ANALYSIS_WINDOW_DAYS", cfg.AnalysisWindowDays); err != nil {
		return Config{}, err
	}
	if cfg.SiteBatchSize, err = envInt("SITE_BATCH_SIZE", cfg.SiteBatchSize); err != nil {
		return Config{}, err
	}
	if cfg.MaxRecommendations, err = envInt("MAX_RECOMMENDATIONS", cfg.MaxRecommendations); err != nil {
		return Config{}, err
	}

	keys, err := parseSiteKeys(os.Getenv("SITE_KEYS"))
	if err != nil {
		return Config{}, err
	}
	// Local dev fallback so the service runs out-of-the-box.
	if len(keys) == 0 {
		keys["site-key-123"] = "site1"
	}
	cfg.APIKeys = keys

	return cfg, nil
}

// parseSiteKeys parses "site:key,site:key" into apiKey -> siteID.
func parseSiteKeys(raw string) (map[string]string, error) {
	keys := map[string]string{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return keys, nil
	}
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 {
			return nil, errors.New(`SITE_KEYS must be "site:key,site:key"`)
		}
		site := strings.TrimSpace(parts[0])
		key := strings.TrimSpace(parts[1])
		if site == "" || key == "" {
			return nil, errors.New(`SITE_KEYS must be "site:key,site:key"`)
		}
		keys[key] = site
	}
	return keys, nil
}

func envOr(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return n, nil
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration", name)
	}
	return d, nil
}
