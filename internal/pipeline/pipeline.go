// Package pipeline resolves a changeset into fully materialized records and
// applies them through a bounded-concurrency fetch/apply pipeline.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mmcdole/plexmirror/internal/domain"
)

// applyQueueSize bounds the resolved-record queue between fetch workers and
// the single apply worker. When local-store applies lag behind remote
// fetches, a full queue throttles the fetch workers.
const applyQueueSize = 100

// DefaultWorkers is the fetch worker count used when none is configured.
const DefaultWorkers = 3

// Stats summarizes one pipeline run over a changeset. Every submitted record
// ends up in exactly one of Applied, Skipped or Dropped; Fetched counts
// resolutions, which a later abort or cancellation can still discard.
type Stats struct {
	Fetched int  // Records successfully resolved
	Applied int  // Records successfully applied to the local store
	Skipped int  // Records dropped after an individual failure
	Dropped int  // Records drained unprocessed on abort or cancellation
	Aborted bool // Run ended early on an unauthorized/overload signal
}

// counters is the shared progress state updated by the workers. Updates are
// atomic; the struct is owned by one Run call and never escapes it.
type counters struct {
	fetched atomic.Int64
	applied atomic.Int64
	skipped atomic.Int64
	dropped atomic.Int64
	aborted atomic.Bool
}

// Pipeline turns Change Records into resolved records via the Metadata
// Provider and serializes all local-store applies through one worker.
type Pipeline struct {
	provider domain.MetadataProvider
	workers  int
	logger   *slog.Logger
}

// New creates a pipeline with the given fetch worker count.
func New(provider domain.MetadataProvider, workers int, logger *slog.Logger) *Pipeline {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{provider: provider, workers: workers, logger: logger}
}

// Run resolves and applies every record of one changeset, returning once the
// changeset has fully drained: each record was either applied or has
// permanently failed. Within the changeset, apply order follows
// fetch-completion order. An unauthorized signal from the provider aborts
// the remainder and is returned as domain.ErrUnauthorized; individual
// failures are counted and skipped. On cancellation both queues drain
// without error.
func (p *Pipeline) Run(ctx context.Context, records []domain.ChangeRecord, mat domain.Materializer) (Stats, error) {
	if len(records) == 0 {
		return Stats{}, nil
	}

	work := make(chan domain.ChangeRecord, len(records))
	for _, rec := range records {
		work <- rec
	}
	close(work)

	resolved := make(chan *domain.FetchResult, applyQueueSize)

	// One wg count per submitted record; released on skip or after apply.
	// Waiting on it is the join primitive the orchestrator relies on.
	var wg sync.WaitGroup
	wg.Add(len(records))

	var c counters

	workers := p.workers
	if workers > len(records) {
		workers = len(records)
	}
	for i := 0; i < workers; i++ {
		go p.fetchWorker(ctx, work, resolved, &wg, &c)
	}

	applyDone := make(chan struct{})
	go func() {
		defer close(applyDone)
		for res := range resolved {
			p.applyOne(ctx, res, mat, &c)
			wg.Done()
		}
	}()

	wg.Wait()
	close(resolved)
	<-applyDone

	stats := Stats{
		Fetched: int(c.fetched.Load()),
		Applied: int(c.applied.Load()),
		Skipped: int(c.skipped.Load()),
		Dropped: int(c.dropped.Load()),
		Aborted: c.aborted.Load(),
	}
	if stats.Aborted {
		return stats, domain.ErrUnauthorized
	}
	return stats, nil
}

func (p *Pipeline) fetchWorker(ctx context.Context, work <-chan domain.ChangeRecord, resolved chan<- *domain.FetchResult, wg *sync.WaitGroup, c *counters) {
	for rec := range work {
		if ctx.Err() != nil || c.aborted.Load() {
			// Drain remaining work so callers blocked on the join return.
			c.dropped.Add(1)
			wg.Done()
			continue
		}

		res, err := p.fetch(ctx, rec)
		if errors.Is(err, domain.ErrUnauthorized) {
			p.logger.Error("provider rejected request, aborting changeset", "remoteID", rec.RemoteID)
			c.aborted.Store(true)
			c.dropped.Add(1)
			wg.Done()
			continue
		}
		if err != nil {
			p.logger.Warn("skipping item after fetch failure", "remoteID", rec.RemoteID, "title", rec.Title, "error", err)
			c.skipped.Add(1)
			wg.Done()
			continue
		}
		c.fetched.Add(1)

		select {
		case resolved <- res:
		case <-ctx.Done():
			c.dropped.Add(1)
			wg.Done()
		}
	}
}

func (p *Pipeline) applyOne(ctx context.Context, res *domain.FetchResult, mat domain.Materializer, c *counters) {
	if ctx.Err() != nil || c.aborted.Load() {
		c.dropped.Add(1)
		return
	}
	if err := mat.AddOrUpdate(ctx, res); err != nil {
		p.logger.Error("apply failed", "remoteID", res.Record.RemoteID, "title", res.Record.Title, "error", err)
		c.skipped.Add(1)
		return
	}
	c.applied.Add(1)
}

// ProcessOne resolves and applies a single record synchronously. Used by the
// debounced background path, which bypasses the diff engine.
func (p *Pipeline) ProcessOne(ctx context.Context, rec domain.ChangeRecord, mat domain.Materializer) error {
	res, err := p.fetch(ctx, rec)
	if err != nil {
		return err
	}
	return mat.AddOrUpdate(ctx, res)
}

// fetch resolves a record's full details and, if requested, each of its
// children individually.
func (p *Pipeline) fetch(ctx context.Context, rec domain.ChangeRecord) (*domain.FetchResult, error) {
	item, err := p.provider.GetItem(ctx, rec.RemoteID)
	if err != nil {
		return nil, err
	}
	res := &domain.FetchResult{Record: rec, Item: *item}

	if rec.FetchChildren {
		children, err := p.provider.GetChildren(ctx, rec.RemoteID)
		if err != nil {
			if errors.Is(err, domain.ErrUnauthorized) {
				return nil, err
			}
			p.logger.Warn("could not enumerate children", "remoteID", rec.RemoteID, "error", err)
			return res, nil
		}
		res.ChildrenResolved = true
		for _, child := range children {
			if child.ID == "" {
				continue
			}
			full, err := p.provider.GetItem(ctx, child.ID)
			if err != nil {
				if errors.Is(err, domain.ErrUnauthorized) {
					return nil, err
				}
				p.logger.Warn("could not resolve child", "remoteID", child.ID, "error", err)
				// An incomplete child set must not trigger pruning.
				res.ChildrenResolved = false
				continue
			}
			res.Children = append(res.Children, *full)
		}
	}
	return res, nil
}
