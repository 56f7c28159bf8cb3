// Package playqueue keeps the remote playback queue converged with the
// local one: it tracks the remote queue's entry order and issues the
// minimal move/insert/delete sequence whenever the local side changes.
package playqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/plexmirror/internal/domain"
)

// Options tunes the reconciler.
type Options struct {
	// PollInterval is how often Run samples the local queue.
	PollInterval time.Duration

	// OwnPrefix identifies plugin-path entries produced by this product.
	// Plugin entries with a different prefix belong to other producers and
	// are never mirrored or touched.
	OwnPrefix string

	// Suspended, when set, pauses the poll loop while it reports true
	// (shared with the sync engine's suspend flag).
	Suspended func() bool
}

func (o *Options) fillDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
}

// Reconciler mirrors the local playback queue onto a remote play queue.
// All remote mutations are serialized and the queue version returned by
// each mutation is captured before the next one is issued.
type Reconciler struct {
	remote domain.RemoteQueue
	local  domain.LocalQueue
	store  domain.CatalogStore
	logger *slog.Logger
	opts   Options

	mu    sync.Mutex
	state domain.QueueState
	items []*domain.QueueItem // tracked remote order
}

func New(remote domain.RemoteQueue, local domain.LocalQueue, store domain.CatalogStore, opts Options, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	opts.fillDefaults()
	r := &Reconciler{remote: remote, local: local, store: store, logger: logger, opts: opts}
	r.restore()
	return r
}

// restore picks up queue tracking from the persisted snapshot, if any.
func (r *Reconciler) restore() {
	if r.store == nil {
		return
	}
	snap, ok := r.store.LoadQueueSnapshot()
	if !ok {
		return
	}
	r.state = snap.State
	r.items = make([]*domain.QueueItem, len(snap.Items))
	for i := range snap.Items {
		item := snap.Items[i]
		r.items[i] = &item
	}
	r.logger.Info("restored queue tracking", "queueID", r.state.ID, "version", r.state.Version, "items", len(r.items))
}

func (r *Reconciler) persistLocked() {
	if r.store == nil {
		return
	}
	snap := &domain.QueueSnapshot{State: r.state}
	for _, item := range r.items {
		snap.Items = append(snap.Items, *item)
	}
	if err := r.store.SaveQueueSnapshot(snap); err != nil {
		r.logger.Warn("could not persist queue snapshot", "error", err)
	}
}

// State returns the tracked remote queue identity.
func (r *Reconciler) State() domain.QueueState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Items returns the tracked remote queue order.
func (r *Reconciler) Items() []domain.QueueItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.QueueItem, len(r.items))
	for i, item := range r.items {
		out[i] = *item
	}
	return out
}

// foreign reports whether a queue entry belongs to another producer.
func (r *Reconciler) foreign(item domain.QueueItem) bool {
	if !strings.HasPrefix(item.File, "plugin://") {
		return false
	}
	return r.opts.OwnPrefix == "" || !strings.HasPrefix(item.File, r.opts.OwnPrefix)
}

// resolve fills in the remote id of a local queue entry via the catalog
// store when the entry itself does not carry one.
func (r *Reconciler) resolve(item *domain.QueueItem) bool {
	if item.RemoteID != "" {
		return true
	}
	if r.store == nil || item.LocalID == 0 {
		return false
	}
	ref, ok := r.store.GetItemByLocal(item.LocalID, item.LocalType)
	if !ok {
		return false
	}
	item.RemoteID = ref.RemoteID
	return true
}

// Adopt starts tracking an existing remote queue, e.g. one created by a
// companion request.
func (r *Reconciler) Adopt(ctx context.Context, id string) error {
	state, items, err := r.remote.FetchQueue(ctx, id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	r.items = make([]*domain.QueueItem, len(items))
	for i := range items {
		item := items[i]
		r.items[i] = &item
	}
	r.persistLocked()
	return nil
}

// Refresh re-fetches the tracked queue, discarding local tracking drift
// (e.g. after a rejected stale-version mutation).
func (r *Reconciler) Refresh(ctx context.Context) error {
	r.mu.Lock()
	id := r.state.ID
	r.mu.Unlock()
	if id == "" {
		return domain.ErrQueueUninitialized
	}
	return r.Adopt(ctx, id)
}

// Reconcile converges the remote queue onto the desired local order. The
// first call with a non-empty queue bootstraps the remote queue. Entries
// from other producers are excluded on both sides. On error the tracked
// state reflects every mutation that succeeded, so a retry resumes rather
// than restarts.
func (r *Reconciler) Reconcile(ctx context.Context, desired []domain.QueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make([]domain.QueueItem, 0, len(desired))
	for _, item := range desired {
		if r.foreign(item) {
			continue
		}
		wanted = append(wanted, item)
	}

	if !r.state.Initialized() {
		return r.bootstrapLocked(ctx, wanted)
	}
	return r.convergeLocked(ctx, wanted)
}

func (r *Reconciler) bootstrapLocked(ctx context.Context, wanted []domain.QueueItem) error {
	if len(wanted) == 0 {
		return nil
	}
	first := wanted[0]
	if !r.resolve(&first) {
		return fmt.Errorf("cannot resolve queue head %q", first.File)
	}

	state, created, err := r.remote.CreateQueue(ctx, first)
	if err != nil {
		return err
	}
	r.state = state
	r.items = []*domain.QueueItem{&created}
	r.logger.Info("remote queue created", "queueID", state.ID)

	for _, item := range wanted[1:] {
		item := item
		if !r.resolve(&item) {
			r.logger.Warn("skipping unresolvable queue entry", "file", item.File)
			continue
		}
		state, appended, err := r.remote.AppendItem(ctx, r.state, item)
		if err != nil {
			r.persistLocked()
			return err
		}
		r.state = state
		r.items = append(r.items, &appended)
	}
	r.persistLocked()
	return nil
}

// convergeLocked walks the desired order front to back, fixing the tracked
// remote order one position at a time; leftovers are deleted back to front.
func (r *Reconciler) convergeLocked(ctx context.Context, wanted []domain.QueueItem) (err error) {
	defer r.persistLocked()

	cur := r.items
	k := 0 // cur[:k] matches wanted[:k]

	for _, want := range wanted {
		j := -1
		for i := k; i < len(cur); i++ {
			if cur[i].SameIdentity(want) {
				j = i
				break
			}
		}

		if j == -1 {
			item := want
			if !r.resolve(&item) {
				r.logger.Warn("skipping unresolvable queue entry", "file", item.File)
				continue
			}
			state, appended, aerr := r.remote.AppendItem(ctx, r.state, item)
			if aerr != nil {
				r.items = cur
				return aerr
			}
			r.state = state
			cur = append(cur, &appended)
			j = len(cur) - 1
		}

		if j != k {
			after := ""
			if k > 0 {
				after = cur[k-1].PositionID
			}
			moved := cur[j]
			state, merr := r.remote.MoveItem(ctx, r.state, moved.PositionID, after)
			if merr != nil {
				r.items = cur
				return merr
			}
			r.state = state
			cur = append(cur[:j], cur[j+1:]...)
			cur = append(cur[:k], append([]*domain.QueueItem{moved}, cur[k:]...)...)
		}
		k++
	}

	// Delete back to front so earlier deletions never shift what the
	// remaining position ids point at.
	for i := len(cur) - 1; i >= k; i-- {
		state, derr := r.remote.RemoveItem(ctx, r.state, cur[i].PositionID)
		if derr != nil {
			r.items = cur
			return derr
		}
		r.state = state
		cur = append(cur[:i], cur[i+1:]...)
	}

	r.items = cur
	return nil
}

// Run polls the local queue and reconciles whenever its order changed,
// until the context is cancelled. A failed reconcile triggers a tracked
// state refresh before the next attempt.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.local == nil {
		return errors.New("no local queue to observe")
	}
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	var last []domain.QueueItem
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if r.opts.Suspended != nil && r.opts.Suspended() {
			continue
		}

		items, err := r.local.Items(ctx)
		if err != nil {
			r.logger.Warn("could not read local queue", "error", err)
			continue
		}
		if sameOrder(items, last) {
			continue
		}

		if err := r.Reconcile(ctx, items); err != nil {
			r.logger.Warn("queue reconcile failed", "error", err)
			if rerr := r.Refresh(ctx); rerr != nil && !errors.Is(rerr, domain.ErrQueueUninitialized) {
				r.logger.Warn("queue refresh failed", "error", rerr)
			}
			continue // leave last unchanged so the next tick retries
		}
		last = items
	}
}

func sameOrder(a, b []domain.QueueItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].SameIdentity(b[i]) {
			return false
		}
	}
	return true
}
