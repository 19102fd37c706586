package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

////////////////////////////////////////////////////////////////////////////////
// INTEGRATION TEST SUITE
//
// These tests validate the service end-to-end:
//
//   Client → HTTP API → Auth → Buffer → ClickHouse / Postgres → Response
//
// The service must already be running (for example via docker compose).
//
// Optional environment overrides:
//
//   BASE_URL   default http://localhost:8080
//   SITE1_KEY  default site-key-123
//   SITE2_KEY  default site-key-456
//
////////////////////////////////////////////////////////////////////////////////

func baseURL() string {
	if v := os.Getenv("BASE_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

// site1Key returns the default API key for site1.
func site1Key() string {
	if v := os.Getenv("SITE1_KEY"); v != "" {
		return v
	}
	return "site-key-123"
}

// site2Key returns the default API key for site2.
func site2Key() string {
	if v := os.Getenv("SITE2_KEY"); v != "" {
		return v
	}
	return "site-key-456"
}

// unique generates a unique string so tests never collide with previous runs.
func unique(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

////////////////////////////////////////////////////////////////////////////////
// SERVICE READINESS HELPER
//
// waitReady polls /health until the stores are reachable.
// Prevents flaky failures when containers are still booting.
////////////////////////////////////////////////////////////////////////////////

func waitReady(t *testing.T) {
	t.Helper()

	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(30 * time.Second)

	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL() + "/health")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(300 * time.Millisecond)
	}

	t.Fatalf("service not ready after 30s")
}

////////////////////////////////////////////////////////////////////////////////
// GENERIC HTTP HELPERS
////////////////////////////////////////////////////////////////////////////////

// httpGet performs a GET request with optional API key.
func httpGet(t *testing.T, apiKey string, path string) (int, []byte) {
	t.Helper()

	req, _ := http.NewRequest("GET", baseURL()+path, nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b
}

// postJSON performs a POST with a JSON body and optional API key, returning
// status, body, and response headers.
func postJSON(t *testing.T, apiKey, path string, payload any) (int, []byte, http.Header) {
	t.Helper()

	b, _ := json.Marshal(payload)

	req, _ := http.NewRequest("POST", baseURL()+path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, resp.Header
}

// eventBatch builds a valid /events payload for one session.
func eventBatch(sessionID string, pages ...string) []map[string]any {
	now := time.Now().UnixMilli()
	batch := make([]map[string]any, 0, len(pages))
	for i, page := range pages {
		batch = append(batch, map[string]any{
			"session_id":   sessionID,
			"type":         "pageview",
			"timestamp_ms": now + int64(i)*1000,
			"payload":      map[string]any{"page": page},
		})
	}
	return batch
}

////////////////////////////////////////////////////////////////////////////////
// HEALTH TESTS
////////////////////////////////////////////////////////////////////////////////

// Health endpoint is public and reports store reachability.
func TestHealth_ReturnsOK(t *testing.T) {
	waitReady(t)

	s, b := httpGet(t, "", "/health")
	if s != http.StatusOK {
		t.Fatalf("health expected 200 got %d", s)
	}

	var r struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(b, &r); err != nil {
		t.Fatalf("invalid health JSON: %v", err)
	}
	if r.Status != "healthy" && r.Status != "degraded" {
		t.Fatalf("unexpected health status %q", r.Status)
	}
}

////////////////////////////////////////////////////////////////////////////////
// EVENTS CONTRACT TESTS
////////////////////////////////////////////////////////////////////////////////

// Request without API key must be rejected before anything is buffered.
func TestEvents_UnauthorizedWithoutAPIKey(t *testing.T) {
	waitReady(t)

	s, _, _ := postJSON(t, "", "/events", eventBatch(unique("s"), "/"))
	if s != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", s)
	}
}

// A valid batch is accepted and buffered.
func TestEvents_AcceptedAndBuffered(t *testing.T) {
	waitReady(t)

	s, b, _ := postJSON(t, site1Key(), "/events", eventBatch(unique("s"), "/", "/products", "/cart"))
	if s != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", s, b)
	}

	var r struct {
		Accepted int  `json:"accepted"`
		Buffered bool `json:"buffered"`
	}
	if err := json.Unmarshal(b, &r); err != nil {
		t.Fatalf("invalid ingest JSON: %v", err)
	}
	if r.Accepted != 3 || !r.Buffered {
		t.Fatalf("unexpected ingest response %+v", r)
	}
}

// ?sync=1 writes through to storage within the request.
func TestEvents_SyncWriteThrough(t *testing.T) {
	waitReady(t)

	s, b, _ := postJSON(t, site1Key(), "/events?sync=1", eventBatch(unique("s"), "/"))
	if s != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", s, b)
	}
}

// An empty batch must return 400.
func TestEvents_BadRequestOnEmptyBatch(t *testing.T) {
	waitReady(t)

	s, _, _ := postJSON(t, site1Key(), "/events", []map[string]any{})
	if s != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", s)
	}
}

// One malformed event rejects the whole batch.
func TestEvents_BadRequestOnInvalidEvent(t *testing.T) {
	waitReady(t)

	batch := eventBatch(unique("s"), "/")
	batch = append(batch, map[string]any{"type": "pageview", "timestamp_ms": 1})

	s, _, _ := postJSON(t, site1Key(), "/events", batch)
	if s != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", s)
	}
}

// Every ingestion response carries the quota headers.
func TestEvents_RateLimitHeadersPresent(t *testing.T) {
	waitReady(t)

	s, _, h := postJSON(t, site1Key(), "/events", eventBatch(unique("s"), "/"))
	if s != http.StatusAccepted {
		t.Fatalf("expected 202 got %d", s)
	}
	for _, header := range []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"} {
		if h.Get(header) == "" {
			t.Fatalf("missing %s header", header)
		}
	}
}

////////////////////////////////////////////////////////////////////////////////
// RECOMMENDATIONS CONTRACT TESTS
////////////////////////////////////////////////////////////////////////////////

// The list surface requires an API key.
func TestRecommendations_UnauthorizedWithoutAPIKey(t *testing.T) {
	waitReady(t)

	s, _ := httpGet(t, "", "/recommendations")
	if s != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", s)
	}
}

// Listing always succeeds for an authenticated site, even with no data yet.
func TestRecommendations_ListReturnsOK(t *testing.T) {
	waitReady(t)

	s, b := httpGet(t, site1Key(), "/recommendations")
	if s != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", s, b)
	}

	var r struct {
		Recommendations []json.RawMessage `json:"recommendations"`
	}
	if err := json.Unmarshal(b, &r); err != nil {
		t.Fatalf("invalid recommendations JSON: %v", err)
	}
}

// Bogus filter values are rejected.
func TestRecommendations_InvalidFilterRejected(t *testing.T) {
	waitReady(t)

	s, _ := httpGet(t, site1Key(), "/recommendations?status=BOGUS")
	if s != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", s)
	}
}

// One site must never see another site's recommendation by ID.
func TestRecommendations_CrossSiteProbeIsNotFound(t *testing.T) {
	waitReady(t)

	s1, b := httpGet(t, site1Key(), "/recommendations")
	if s1 != http.StatusOK {
		t.Fatalf("list expected 200 got %d", s1)
	}
	var r struct {
		Recommendations []struct {
			ID string `json:"id"`
		} `json:"recommendations"`
	}
	if err := json.Unmarshal(b, &r); err != nil {
		t.Fatalf("invalid recommendations JSON: %v", err)
	}
	if len(r.Recommendations) == 0 {
		t.Skip("no recommendation to probe; run the detection and recommendation jobs first")
	}

	s2, _ := httpGet(t, site2Key(), "/recommendations/"+r.Recommendations[0].ID)
	if s2 != http.StatusNotFound {
		t.Fatalf("cross-site probe expected 404 got %d", s2)
	}
}

////////////////////////////////////////////////////////////////////////////////
// JOBS AND BENCHMARK TESTS
////////////////////////////////////////////////////////////////////////////////

// A scoped detection run completes and reports its tally.
func TestJobs_DetectScopedRun(t *testing.T) {
	waitReady(t)

	s, b, _ := postJSON(t, site1Key(), "/jobs/detect?scope=site", nil)
	if s != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", s, b)
	}

	var r struct {
		Sites int `json:"sites"`
	}
	if err := json.Unmarshal(b, &r); err != nil {
		t.Fatalf("invalid job result JSON: %v", err)
	}
	if r.Sites != 1 {
		t.Fatalf("scoped run touched %d sites, want 1", r.Sites)
	}
}

// The benchmark surface answers 200 with either data or an explicit
// insufficient_data status; it never errors for a small group.
func TestBenchmarks_AlwaysAnswers(t *testing.T) {
	waitReady(t)

	s, b := httpGet(t, site1Key(), "/benchmarks")
	if s != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", s, b)
	}

	var r struct {
		Status string `json:"status"`
		Tier   string `json:"tier"`
	}
	if err := json.Unmarshal(b, &r); err != nil {
		t.Fatalf("invalid benchmark JSON: %v", err)
	}
	if r.Status != "insufficient_data" && r.Tier == "" {
		t.Fatalf("benchmark carries neither data nor a reason: %s", b)
	}
}
