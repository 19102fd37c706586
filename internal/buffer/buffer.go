// Package buffer absorbs bursty tracking-event traffic in memory and flushes
// it to durable storage in bulk. The contract is at-least-once: a failed
// flush re-queues the exact batch and retries, so events are delayed on
// write failure, never dropped.
package buffer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/storesight/storesight/internal/models"
)

// ErrClosed is returned by Add/AddBatch after Close.
var ErrClosed = errors.New("event buffer closed")

// Sink is the durable bulk-write target the buffer drains into.
type Sink interface {
	InsertEvents(ctx context.Context, events []models.TrackingEvent) error
}

// Config tunes flush behavior.
type Config struct {
	// MaxSize triggers an immediate flush when the buffer reaches it.
	MaxSize int
	// FlushInterval is how long the first unflushed event may wait before a
	// timer-driven flush.
	FlushInterval time.Duration
	// RetryDelay is the one-shot delay armed after a failed flush.
	RetryDelay time.Duration
}

// DefaultConfig returns the standard buffer tuning.
func DefaultConfig() Config {
	return Config{
		MaxSize:       100,
		FlushInterval: 5 * time.Second,
		RetryDelay:    5 * time.Second,
	}
}

// Buffer is the in-process event buffer. It is owned by the ingestion
// service and injected at startup; all state lives behind one mutex and only
// one flush runs at a time.
type Buffer struct {
	sink Sink
	cfg  Config
	log  zerolog.Logger

	mu         sync.Mutex
	events     []models.TrackingEvent
	flushing   bool
	closed     bool
	flushTimer *time.Timer
	retryTimer *time.Timer
}

// New builds a buffer draining into sink.
func New(sink Sink, cfg Config, log zerolog.Logger) *Buffer {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultConfig().MaxSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultConfig().RetryDelay
	}
	return &Buffer{
		sink: sink,
		cfg:  cfg,
		log:  log.With().Str("component", "buffer").Logger(),
	}
}

// Add appends one event. Reaching MaxSize triggers an asynchronous flush.
func (b *Buffer) Add(event models.TrackingEvent) error {
	return b.AddBatch([]models.TrackingEvent{event})
}

// AddBatch appends events in order. The first unflushed event arms the flush
// timer; reaching MaxSize triggers an asynchronous flush.
func (b *Buffer) AddBatch(events []models.TrackingEvent) error {
	if len(events) == 0 {
		return nil
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}

	wasEmpty := len(b.events) == 0
	b.events = append(b.events, events...)
	full := len(b.events) >= b.cfg.MaxSize

	if wasEmpty && b.flushTimer == nil && !full {
		b.flushTimer = time.AfterFunc(b.cfg.FlushInterval, func() {
			if err := b.Flush(context.Background()); err != nil {
				b.log.Warn().Err(err).Msg("timer flush failed")
			}
		})
	}
	b.mu.Unlock()

	if full {
		go func() {
			if err := b.Flush(context.Background()); err != nil {
				b.log.Warn().Err(err).Msg("size-triggered flush failed")
			}
		}()
	}
	return nil
}

// Len returns the current backlog size, the health surface's backpressure
// signal.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Flush drains the buffer and performs one bulk durable write. A flush
// arriving while another is in flight is a no-op; the next trigger catches
// whatever arrived in the meantime. On write failure the drained batch is
// prepended back in insertion order and a one-shot retry is armed.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	if b.flushing || len(b.events) == 0 {
		b.mu.Unlock()
		return nil
	}
	b.flushing = true
	batch := b.events
	b.events = nil
	b.stopTimersLocked()
	b.mu.Unlock()

	err := b.sink.InsertEvents(ctx, batch)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushing = false

	if err != nil {
		// Requeue ahead of anything added during the write. batch is
		// exclusively owned here, so appending into it is safe.
		b.events = append(batch, b.events...)
		if !b.closed && b.retryTimer == nil {
			b.retryTimer = time.AfterFunc(b.cfg.RetryDelay, func() {
				b.mu.Lock()
				b.retryTimer = nil
				b.mu.Unlock()
				if ferr := b.Flush(context.Background()); ferr != nil {
					b.log.Warn().Err(ferr).Msg("retry flush failed")
				}
			})
		}
		b.log.Error().Err(err).Int("batch", len(batch)).Msg("flush failed, batch requeued")
		return err
	}

	b.log.Debug().Int("batch", len(batch)).Msg("flushed events")
	return nil
}

// Close stops the timers and performs a final drain. Add calls after Close
// are rejected.
func (b *Buffer) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.stopTimersLocked()
	b.mu.Unlock()
	return b.Flush(ctx)
}

func (b *Buffer) stopTimersLocked() {
	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}
	if b.retryTimer != nil {
		b.retryTimer.Stop()
		b.retryTimer = nil
	}
}
