package buffer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/storesight/storesight/internal/models"
)

type captureSink struct {
	mu      sync.Mutex
	batches [][]models.TrackingEvent
	fail    int // first N calls fail
	calls   int
	block   chan struct{} // when set, InsertEvents waits on it
}

func (s *captureSink) InsertEvents(ctx context.Context, events []models.TrackingEvent) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.fail {
		return errors.New("sink unavailable")
	}
	batch := make([]models.TrackingEvent, len(events))
	copy(batch, events)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *captureSink) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func mkEvents(n int) []models.TrackingEvent {
	events := make([]models.TrackingEvent, n)
	for i := range events {
		events[i] = models.TrackingEvent{
			SessionID:   "s1",
			Type:        models.EventPageView,
			TimestampMs: int64(i + 1),
		}
	}
	return events
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestAddBelowThresholdDoesNotFlush(t *testing.T) {
	sink := &captureSink{}
	b := New(sink, Config{MaxSize: 10, FlushInterval: time.Hour, RetryDelay: time.Hour}, zerolog.Nop())

	if err := b.AddBatch(mkEvents(9)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if got := sink.batchCount(); got != 0 {
		t.Errorf("sink received %d batches before threshold, want 0", got)
	}
	if b.Len() != 9 {
		t.Errorf("Len = %d, want 9", b.Len())
	}
}

func TestReachingMaxSizeTriggersFlush(t *testing.T) {
	sink := &captureSink{}
	b := New(sink, Config{MaxSize: 10, FlushInterval: time.Hour, RetryDelay: time.Hour}, zerolog.Nop())

	if err := b.AddBatch(mkEvents(10)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return sink.batchCount() == 1 })

	sink.mu.Lock()
	got := len(sink.batches[0])
	sink.mu.Unlock()
	if got != 10 {
		t.Errorf("flushed batch size = %d, want 10", got)
	}
	if b.Len() != 0 {
		t.Errorf("backlog = %d after flush, want 0", b.Len())
	}
}

func TestTimerFlushesPartialBatch(t *testing.T) {
	sink := &captureSink{}
	b := New(sink, Config{MaxSize: 100, FlushInterval: 20 * time.Millisecond, RetryDelay: time.Hour}, zerolog.Nop())

	if err := b.Add(mkEvents(1)[0]); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return sink.batchCount() == 1 })
}

func TestFailedFlushRequeuesInOrder(t *testing.T) {
	sink := &captureSink{fail: 1}
	b := New(sink, Config{MaxSize: 100, FlushInterval: time.Hour, RetryDelay: 10 * time.Millisecond}, zerolog.Nop())

	if err := b.AddBatch(mkEvents(3)); err != nil {
		t.Fatal(err)
	}
	if err := b.Flush(context.Background()); err == nil {
		t.Fatal("expected flush error from failing sink")
	}
	if b.Len() != 3 {
		t.Errorf("backlog = %d after failed flush, want 3 requeued", b.Len())
	}

	// The armed retry drains it.
	waitFor(t, func() bool { return sink.batchCount() == 1 })
	sink.mu.Lock()
	batch := sink.batches[0]
	sink.mu.Unlock()
	for i, e := range batch {
		if e.TimestampMs != int64(i+1) {
			t.Fatalf("event %d has timestamp %d, order not preserved", i, e.TimestampMs)
		}
	}
}

func TestConcurrentFlushIsSingleFlight(t *testing.T) {
	sink := &captureSink{block: make(chan struct{})}
	b := New(sink, Config{MaxSize: 100, FlushInterval: time.Hour, RetryDelay: time.Hour}, zerolog.Nop())

	if err := b.AddBatch(mkEvents(5)); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- b.Flush(context.Background()) }()

	// Wait until the first flush is inside the sink, then race a second one:
	// it must return immediately without a second write.
	waitFor(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.flushing
	})
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("overlapping flush should no-op, got %v", err)
	}

	close(sink.block)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if got := sink.batchCount(); got != 1 {
		t.Errorf("sink received %d batches, want 1", got)
	}
}

func TestCloseDrainsAndRejectsAdds(t *testing.T) {
	sink := &captureSink{}
	b := New(sink, Config{MaxSize: 100, FlushInterval: time.Hour, RetryDelay: time.Hour}, zerolog.Nop())

	if err := b.AddBatch(mkEvents(4)); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := sink.batchCount(); got != 1 {
		t.Errorf("Close flushed %d batches, want 1", got)
	}
	if err := b.Add(mkEvents(1)[0]); !errors.Is(err, ErrClosed) {
		t.Errorf("Add after Close = %v, want ErrClosed", err)
	}
}
