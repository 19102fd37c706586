package config

import (
	"testing"
	"time"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DB_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without DB_URL")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost:5432/storesight")
	t.Setenv("SITE_KEYS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPPort != "8080" {
		t.Errorf("HTTPPort = %s", cfg.HTTPPort)
	}
	if cfg.BufferMaxSize != 100 || cfg.BufferFlushInterval != 5*time.Second {
		t.Errorf("buffer defaults = %d/%v", cfg.BufferMaxSize, cfg.BufferFlushInterval)
	}
	if cfg.RateLimitPerWindow != 600 || cfg.RateLimitWindow != time.Minute {
		t.Errorf("rate limit defaults = %d/%v", cfg.RateLimitPerWindow, cfg.RateLimitWindow)
	}
	if cfg.DetectionSchedule != "0 3 * * *" {
		t.Errorf("DetectionSchedule = %q", cfg.DetectionSchedule)
	}
	if cfg.AnalysisWindowDays != 7 || cfg.MaxRecommendations != 5 {
		t.Errorf("analysis defaults = %d/%d", cfg.AnalysisWindowDays, cfg.MaxRecommendations)
	}
	// Dev fallback key so the service runs without SITE_KEYS.
	if cfg.APIKeys["site-key-123"] != "site1" {
		t.Errorf("APIKeys = %v", cfg.APIKeys)
	}
}

func TestLoadParsesSiteKeys(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost:5432/storesight")
	t.Setenv("SITE_KEYS", "site1:key-abc, site2:key-def")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIKeys["key-abc"] != "site1" || cfg.APIKeys["key-def"] != "site2" {
		t.Errorf("APIKeys = %v", cfg.APIKeys)
	}
	if _, ok := cfg.APIKeys["site-key-123"]; ok {
		t.Error("dev fallback key present despite configured keys")
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"bad site keys", "SITE_KEYS", "justasite"},
		{"non-numeric buffer size", "BUFFER_MAX_SIZE", "lots"},
		{"negative rate limit", "RATE_LIMIT_PER_WINDOW", "-5"},
		{"bad flush interval", "BUFFER_FLUSH_INTERVAL", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DB_URL", "postgres://localhost:5432/storesight")
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}
