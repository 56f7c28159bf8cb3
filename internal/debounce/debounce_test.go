package debounce

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/mmcdole/plexmirror/internal/domain"
)

type fakeProcessor struct {
	mu     sync.Mutex
	events []domain.RemoteEvent
	err    error
}

func (f *fakeProcessor) ProcessEvent(ctx context.Context, ev domain.RemoteEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeProcessor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// clock is a manual time source for the debouncer's test hook.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestDebouncer(proc Processor, opts Options) (*Debouncer, *clock) {
	opts.ProcessRate = rate.Inf
	d := New(proc, opts, nil)
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	d.now = c.Now
	return d, c
}

func TestSafetyMargin(t *testing.T) {
	proc := &fakeProcessor{}
	d, clk := newTestDebouncer(proc, Options{SafetyMargin: 10 * time.Second})
	ctx := context.Background()

	d.Ingest(domain.RemoteEvent{ID: "1", State: domain.EventUpdated})
	d.Flush(ctx)
	if proc.count() != 0 {
		t.Fatal("event processed before safety margin passed")
	}

	clk.Advance(10 * time.Second)
	d.Flush(ctx)
	if proc.count() != 1 {
		t.Fatalf("processed %d events after margin, want 1", proc.count())
	}
}

func TestDeleteBypassesMargin(t *testing.T) {
	proc := &fakeProcessor{}
	d, _ := newTestDebouncer(proc, Options{SafetyMargin: time.Hour})
	ctx := context.Background()

	d.Ingest(domain.RemoteEvent{ID: "1", State: domain.EventDeleted})
	d.Flush(ctx)
	if proc.count() != 1 {
		t.Fatalf("delete not processed immediately (count=%d)", proc.count())
	}
}

func TestCoalescing(t *testing.T) {
	proc := &fakeProcessor{}
	d, clk := newTestDebouncer(proc, Options{SafetyMargin: 10 * time.Second})
	ctx := context.Background()

	d.Ingest(domain.RemoteEvent{ID: "1", State: domain.EventCreated})
	clk.Advance(5 * time.Second)
	d.Ingest(domain.RemoteEvent{ID: "1", State: domain.EventUpdated})

	// The second event restarted the rest period.
	clk.Advance(5 * time.Second)
	d.Flush(ctx)
	if proc.count() != 0 {
		t.Fatal("coalesced event did not restart its rest period")
	}

	clk.Advance(5 * time.Second)
	d.Flush(ctx)
	if proc.count() != 1 {
		t.Fatalf("processed %d events, want exactly 1", proc.count())
	}
	if proc.events[0].State != domain.EventUpdated {
		t.Errorf("state = %v, want the newer event's state", proc.events[0].State)
	}
}

func TestEchoSuppression(t *testing.T) {
	proc := &fakeProcessor{}
	d, clk := newTestDebouncer(proc, Options{IgnoreWindow: 10 * time.Minute})
	ctx := context.Background()

	d.RecordApplied("1")
	d.Ingest(domain.RemoteEvent{ID: "1", State: domain.EventUpdated})
	d.Flush(ctx)
	if proc.count() != 0 || d.Pending() != 0 {
		t.Fatal("echo event not suppressed")
	}

	// Outside the window the id notifies normally again.
	clk.Advance(11 * time.Minute)
	d.Ingest(domain.RemoteEvent{ID: "1", State: domain.EventUpdated})
	d.Flush(ctx)
	if proc.count() != 1 {
		t.Fatalf("processed %d events after window expiry, want 1", proc.count())
	}
}

func TestSuppressionArrivingWhileResting(t *testing.T) {
	proc := &fakeProcessor{}
	d, clk := newTestDebouncer(proc, Options{SafetyMargin: 10 * time.Second})
	ctx := context.Background()

	d.Ingest(domain.RemoteEvent{ID: "1", State: domain.EventUpdated})
	d.RecordApplied("1")
	clk.Advance(10 * time.Second)
	d.Flush(ctx)
	if proc.count() != 0 {
		t.Fatal("event processed despite suppression arriving while it rested")
	}
	if d.Pending() != 0 {
		t.Error("suppressed event left pending")
	}
}

func TestRetryBudget(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("server hiccup")}
	d, clk := newTestDebouncer(proc, Options{SafetyMargin: time.Second, MaxAttempts: 3})
	ctx := context.Background()

	d.Ingest(domain.RemoteEvent{ID: "1", State: domain.EventUpdated})
	for i := 0; i < 10; i++ {
		clk.Advance(time.Second)
		d.Flush(ctx)
	}

	// Initial try plus three retries, then dropped.
	if proc.count() != 4 {
		t.Errorf("processed %d times, want 4", proc.count())
	}
	if d.Pending() != 0 {
		t.Error("exhausted event still pending")
	}
}

func TestRetryThenSuccess(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("transient")}
	d, clk := newTestDebouncer(proc, Options{SafetyMargin: time.Second, MaxAttempts: 3})
	ctx := context.Background()

	d.Ingest(domain.RemoteEvent{ID: "1", State: domain.EventUpdated})
	clk.Advance(time.Second)
	d.Flush(ctx)

	proc.mu.Lock()
	proc.err = nil
	proc.mu.Unlock()

	clk.Advance(time.Second)
	d.Flush(ctx)
	if proc.count() != 2 || d.Pending() != 0 {
		t.Errorf("count=%d pending=%d, want a clean second attempt", proc.count(), d.Pending())
	}
}

func TestReset(t *testing.T) {
	proc := &fakeProcessor{}
	d, _ := newTestDebouncer(proc, Options{})
	ctx := context.Background()

	d.RecordApplied("1")
	d.Reset()
	d.Ingest(domain.RemoteEvent{ID: "1", State: domain.EventDeleted})
	d.Flush(ctx)
	if proc.count() != 1 {
		t.Fatal("Reset did not clear the suppression registry")
	}
}

func TestRunDeliversEvents(t *testing.T) {
	proc := &fakeProcessor{}
	d := New(proc, Options{SafetyMargin: 0, PollInterval: 5 * time.Millisecond, ProcessRate: rate.Inf}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan domain.RemoteEvent)
	done := make(chan struct{})
	go func() {
		d.Run(ctx, events)
		close(done)
	}()

	events <- domain.RemoteEvent{ID: "1", State: domain.EventUpdated}
	deadline := time.After(2 * time.Second)
	for proc.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("event never processed")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}
