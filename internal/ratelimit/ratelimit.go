// Package ratelimit implements the per-site ingestion quota: a fixed-window
// counter per key. Requests past the window's limit are rejected, not
// queued, and the result carries limit/remaining/reset so clients can back
// off.
package ratelimit

import (
	"sync"
	"time"

	"github.com/storesight/storesight/internal/pipeline"
)

// Result is the outcome of one quota check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Err returns nil for an allowed request and a RateLimitError carrying the
// retry metadata otherwise.
func (r Result) Err() error {
	if r.Allowed {
		return nil
	}
	return &pipeline.RateLimitError{Limit: r.Limit, Remaining: r.Remaining, Reset: r.Reset}
}

type window struct {
	start time.Time
	count int
}

// Limiter tracks one counter per key over a fixed window.
type Limiter struct {
	limit  int
	period time.Duration

	mu      sync.Mutex
	windows map[string]*window

	// now is swappable for tests.
	now func() time.Time
}

// New builds a limiter allowing limit requests per period per key.
func New(limit int, period time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		period:  period,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow consumes one request from key's quota and reports the window state.
func (l *Limiter) Allow(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.start.Add(l.period)) {
		w = &window{start: now}
		l.windows[key] = w
	}

	reset := w.start.Add(l.period)
	if w.count >= l.limit {
		return Result{Allowed: false, Limit: l.limit, Remaining: 0, Reset: reset}
	}

	w.count++
	return Result{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit - w.count,
		Reset:     reset,
	}
}
