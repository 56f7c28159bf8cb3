// Package libsync orchestrates full library syncs: view maintenance, the
// two-pass diff over every content category, the scheduled sync loop and
// the single-item path used for live change events.
package libsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mmcdole/plexmirror/internal/domain"
	"github.com/mmcdole/plexmirror/internal/pipeline"
)

// ErrSyncRunning is returned when a full sync is requested while another is
// still in flight. Full syncs never overlap.
var ErrSyncRunning = errors.New("a full sync is already running")

// AppliedRecorder is told about every remote id this engine just wrote, so
// the live event path can suppress the server's echo notifications.
type AppliedRecorder interface {
	RecordApplied(ids ...string)
}

type noopRecorder struct{}

func (noopRecorder) RecordApplied(...string) {}

// Options tunes the sync engine.
type Options struct {
	// Interval between scheduled full syncs.
	Interval time.Duration

	// Repair makes the startup sync re-apply every item regardless of
	// fingerprints. Scheduled syncs stay incremental.
	Repair bool

	// StartupAttempts bounds how often the initial sync is retried before
	// Run gives up.
	StartupAttempts int

	// StartupRetryDelay separates initial sync retries.
	StartupRetryDelay time.Duration
}

func (o *Options) fillDefaults() {
	if o.Interval <= 0 {
		o.Interval = time.Hour
	}
	if o.StartupAttempts <= 0 {
		o.StartupAttempts = 3
	}
	if o.StartupRetryDelay <= 0 {
		o.StartupRetryDelay = 30 * time.Second
	}
}

// Engine drives the sync of all content categories against one server.
type Engine struct {
	provider domain.MetadataProvider
	store    domain.CatalogStore
	pipe     *pipeline.Pipeline
	mats     map[domain.MediaCategory]domain.Materializer
	recorder AppliedRecorder
	notifier domain.Notifier
	logger   *slog.Logger
	opts     Options

	runMu     sync.Mutex
	suspended atomic.Bool
}

func New(provider domain.MetadataProvider, store domain.CatalogStore, pipe *pipeline.Pipeline, mats map[domain.MediaCategory]domain.Materializer, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	opts.fillDefaults()
	return &Engine{
		provider: provider,
		store:    store,
		pipe:     pipe,
		mats:     mats,
		recorder: noopRecorder{},
		notifier: domain.NoOpNotifier{},
		logger:   logger,
		opts:     opts,
	}
}

// SetRecorder wires the echo-suppression registry of the live event path.
func (e *Engine) SetRecorder(r AppliedRecorder) {
	if r != nil {
		e.recorder = r
	}
}

// SetNotifier wires operator notifications.
func (e *Engine) SetNotifier(n domain.Notifier) {
	if n != nil {
		e.notifier = n
	}
}

// Suspend pauses scheduled syncs; a sync already in flight finishes.
func (e *Engine) Suspend() { e.suspended.Store(true) }

// Resume re-enables scheduled syncs.
func (e *Engine) Resume() { e.suspended.Store(false) }

// Suspended reports whether scheduled syncs are paused.
func (e *Engine) Suspended() bool { return e.suspended.Load() }

// Run performs the initial full sync (with a bounded retry budget) and then
// keeps the library fresh on the configured interval until the context is
// cancelled. With Options.Repair set, the initial sync is a repair sync
// instead. A scheduled sync failure is logged and the loop continues; only
// repeated startup failure is fatal.
func (e *Engine) Run(ctx context.Context) error {
	startup := e.FullSync
	if e.opts.Repair {
		startup = e.RepairSync
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = e.safeSync(ctx, startup)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt >= e.opts.StartupAttempts {
			return fmt.Errorf("startup sync failed after %d attempts: %w", attempt, lastErr)
		}
		e.logger.Warn("startup sync failed, retrying", "attempt", attempt, "error", lastErr)
		select {
		case <-time.After(e.opts.StartupRetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if e.suspended.Load() {
				continue
			}
			if err := e.safeSync(ctx, e.FullSync); err != nil && !errors.Is(err, ErrSyncRunning) {
				e.logger.Error("scheduled sync failed", "error", err)
			}
		}
	}
}

// safeSync keeps a panic inside one sync from taking down the loop.
func (e *Engine) safeSync(ctx context.Context, sync func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("sync panicked", "panic", r)
			err = fmt.Errorf("sync panicked: %v", r)
		}
	}()
	return sync(ctx)
}

// ProcessEvent applies one debounced remote change event: a delete tears the
// item down, anything else resolves and re-applies it. A remote id that no
// longer exists on either side is a no-op.
func (e *Engine) ProcessEvent(ctx context.Context, ev domain.RemoteEvent) error {
	if ev.State == domain.EventDeleted {
		ref, ok := e.store.GetItem(ev.ID)
		if !ok {
			return nil
		}
		mat, ok := e.mats[ref.Category]
		if !ok {
			return nil
		}
		if err := mat.Remove(ctx, ev.ID); err != nil {
			return err
		}
		e.recorder.RecordApplied(ev.ID)
		return nil
	}

	kind := ev.Kind
	if kind == domain.KindUnknown {
		ref, ok := e.store.GetItem(ev.ID)
		if !ok {
			return fmt.Errorf("event for unknown item %s carries no kind", ev.ID)
		}
		kind = ref.Kind
	}
	mat, ok := e.mats[kind.Category()]
	if !ok {
		return nil // category not synced
	}

	rec := domain.ChangeRecord{
		RemoteID:      ev.ID,
		Category:      kind.Category(),
		Kind:          kind,
		FetchChildren: kind == domain.KindShow,
	}
	err := e.pipe.ProcessOne(ctx, rec, mat)
	if errors.Is(err, domain.ErrItemNotFound) {
		// The event raced a remote delete.
		return nil
	}
	if err != nil {
		return err
	}
	e.recorder.RecordApplied(ev.ID)
	return nil
}
