// Package debounce defers, deduplicates and rate-limits live remote change
// events before they reach the single-item sync path. Servers notify before
// their own metadata pipeline settles, and they echo notifications for
// writes this process performed itself; both need absorbing.
package debounce

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mmcdole/plexmirror/internal/domain"
)

// Processor applies one settled event.
type Processor interface {
	ProcessEvent(ctx context.Context, ev domain.RemoteEvent) error
}

// Options tunes the debouncer.
type Options struct {
	// SafetyMargin is how long a create/update event rests before the fetch
	// is attempted, giving the server time to finish its own processing.
	// Deletes are never delayed.
	SafetyMargin time.Duration

	// IgnoreWindow is how long an id stays suppressed after this process
	// wrote it, so the server's echo notifications are dropped.
	IgnoreWindow time.Duration

	// MaxAttempts bounds retries of a failing event; after the budget is
	// spent the event is dropped with an error log.
	MaxAttempts int

	// PollInterval is how often the pending queue is swept.
	PollInterval time.Duration

	// ProcessRate throttles event processing against the remote server.
	ProcessRate rate.Limit
}

func (o *Options) fillDefaults() {
	if o.SafetyMargin < 0 {
		o.SafetyMargin = 0
	}
	if o.IgnoreWindow <= 0 {
		o.IgnoreWindow = 10 * time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 200 * time.Millisecond
	}
	if o.ProcessRate <= 0 {
		o.ProcessRate = rate.Every(100 * time.Millisecond)
	}
}

// Debouncer holds incoming events until they are safe to process. It also
// implements the applied-id registry the sync engine reports into, which is
// what makes echo suppression work.
type Debouncer struct {
	proc    Processor
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time // test hook

	mu      sync.Mutex
	order   []string // pending ids, arrival order
	pending map[string]*domain.RemoteEvent
	applied map[string]time.Time
}

func New(proc Processor, opts Options, logger *slog.Logger) *Debouncer {
	if logger == nil {
		logger = slog.Default()
	}
	opts.fillDefaults()
	return &Debouncer{
		proc:    proc,
		opts:    opts,
		limiter: rate.NewLimiter(opts.ProcessRate, 1),
		logger:  logger,
		now:     time.Now,
		pending: make(map[string]*domain.RemoteEvent),
		applied: make(map[string]time.Time),
	}
}

// RecordApplied marks remote ids as just written by this process. Incoming
// events for them are dropped for the ignore window.
func (d *Debouncer) RecordApplied(ids ...string) {
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		d.applied[id] = now
	}
}

// Reset clears the applied-id registry, e.g. when a manual repair sync
// should re-process everything the server reports.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.applied = make(map[string]time.Time)
}

// Ingest accepts one raw event. A newer event for a pending id replaces the
// older one and restarts its rest period; suppressed ids are dropped.
func (d *Debouncer) Ingest(ev domain.RemoteEvent) {
	if ev.ID == "" {
		return
	}
	if ev.ArrivedAt.IsZero() {
		ev.ArrivedAt = d.now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.suppressedLocked(ev.ID) {
		d.logger.Debug("suppressing echo event", "remoteID", ev.ID, "state", ev.State)
		return
	}

	if prev, exists := d.pending[ev.ID]; exists {
		*prev = ev // coalesce, keeping queue position
		return
	}
	d.pending[ev.ID] = &ev
	d.order = append(d.order, ev.ID)
}

// suppressedLocked reports whether an id is inside the ignore window,
// pruning the registry entry once the window has passed.
func (d *Debouncer) suppressedLocked(id string) bool {
	at, ok := d.applied[id]
	if !ok {
		return false
	}
	if d.now().Sub(at) > d.opts.IgnoreWindow {
		delete(d.applied, id)
		return false
	}
	return true
}

// due reports whether an event has rested long enough to process.
func (d *Debouncer) due(ev *domain.RemoteEvent, now time.Time) bool {
	if ev.State == domain.EventDeleted {
		return true
	}
	return now.Sub(ev.ArrivedAt) >= d.opts.SafetyMargin
}

// Flush processes every currently due event. Failing events go back into
// the queue until their attempt budget is spent.
func (d *Debouncer) Flush(ctx context.Context) {
	for {
		ev, ok := d.takeDue()
		if !ok {
			return
		}
		if err := d.limiter.Wait(ctx); err != nil {
			d.requeue(ev)
			return
		}
		if err := d.proc.ProcessEvent(ctx, ev); err != nil {
			ev.Attempts++
			if ev.Attempts > d.opts.MaxAttempts {
				d.logger.Error("dropping event after repeated failures",
					"remoteID", ev.ID, "state", ev.State, "attempts", ev.Attempts, "error", err)
				continue
			}
			d.logger.Warn("event processing failed, will retry",
				"remoteID", ev.ID, "attempt", ev.Attempts, "error", err)
			// Rest for a full margin again before the next try.
			ev.ArrivedAt = d.now()
			d.requeue(ev)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// takeDue pops the first due event from the queue. Entries that got
// suppressed while resting are discarded along the way.
func (d *Debouncer) takeDue() (domain.RemoteEvent, bool) {
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()

	i := 0
	for i < len(d.order) {
		id := d.order[i]
		ev, ok := d.pending[id]
		if !ok {
			d.order = append(d.order[:i:i], d.order[i+1:]...)
			continue
		}
		if !d.due(ev, now) {
			i++
			continue
		}
		delete(d.pending, id)
		d.order = append(d.order[:i:i], d.order[i+1:]...)
		if d.suppressedLocked(id) {
			continue
		}
		return *ev, true
	}
	return domain.RemoteEvent{}, false
}

func (d *Debouncer) requeue(ev domain.RemoteEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.pending[ev.ID]; exists {
		// A fresh event arrived meanwhile; it wins.
		return
	}
	d.pending[ev.ID] = &ev
	d.order = append(d.order, ev.ID)
}

// Pending returns the number of events waiting to process.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Run consumes raw events from the feed and sweeps the pending queue until
// the context is cancelled.
func (d *Debouncer) Run(ctx context.Context, events <-chan domain.RemoteEvent) error {
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			d.Ingest(ev)
			// Deletes are due immediately; sweep right away.
			if ev.State == domain.EventDeleted {
				d.Flush(ctx)
			}
		case <-ticker.C:
			d.Flush(ctx)
		}
	}
}
