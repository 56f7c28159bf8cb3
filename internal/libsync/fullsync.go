package libsync

import (
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/plexmirror/internal/diff"
	"github.com/mmcdole/plexmirror/internal/domain"
)

// subPass is one enumeration+diff step within a category sync. Container
// kinds resolve their children alongside.
type subPass struct {
	kind          domain.MediaKind // section filter; KindUnknown = default listing
	fetchChildren bool
}

// categoryPasses returns the sub-passes of a category, in dependency order
// (containers before the leaves that reference them).
func categoryPasses(cat domain.MediaCategory) []subPass {
	switch cat {
	case domain.CategoryShows:
		return []subPass{
			{kind: domain.KindShow, fetchChildren: true},
			{kind: domain.KindEpisode},
		}
	case domain.CategoryMusic:
		return []subPass{
			{kind: domain.KindArtist},
			{kind: domain.KindAlbum},
			{kind: domain.KindTrack},
		}
	default:
		return []subPass{{kind: domain.KindUnknown}}
	}
}

// FullSync reconciles the whole local mirror against the remote catalog in
// two passes: first additions only (so new content is available as early as
// possible) plus the playback-state update, then a delta pass that applies
// changes and removals. Categories run strictly in order within each pass.
// Returns ErrSyncRunning if another full sync is in flight.
func (e *Engine) FullSync(ctx context.Context) error {
	return e.runSync(ctx, "full", []diff.Mode{diff.AdditionsOnly, diff.Delta})
}

// RepairSync re-applies every remote item regardless of fingerprints, then
// removes what vanished. Used when the local mirror is suspected stale or
// corrupt.
func (e *Engine) RepairSync(ctx context.Context) error {
	return e.runSync(ctx, "repair", []diff.Mode{diff.ForceAll})
}

func (e *Engine) runSync(ctx context.Context, label string, modes []diff.Mode) error {
	if !e.runMu.TryLock() {
		return ErrSyncRunning
	}
	defer e.runMu.Unlock()

	start := time.Now()
	e.logger.Info("sync started", "kind", label)

	// A fresh sync re-earns its echo suppressions.
	if r, ok := e.recorder.(interface{ Reset() }); ok {
		r.Reset()
	}

	if err := e.MaintainViews(ctx); err != nil {
		return err
	}

	for _, mode := range modes {
		for _, cat := range domain.Categories() {
			if _, enabled := e.mats[cat]; !enabled {
				continue
			}
			if err := e.syncCategory(ctx, cat, mode); err != nil {
				return fmt.Errorf("%s pass of %s: %w", mode, cat, err)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}

	e.reportPendingArtwork()
	e.logger.Info("sync finished", "kind", label, "duration", time.Since(start))
	e.notifier.Notify("Library sync finished")
	return nil
}

// reportPendingArtwork surfaces how much secondary artwork an external
// downloader still has to fetch.
func (e *Engine) reportPendingArtwork() {
	for cat := range e.mats {
		refs, err := e.store.PendingArtwork(cat)
		if err != nil {
			e.logger.Warn("could not query pending artwork", "category", cat, "error", err)
			continue
		}
		if len(refs) > 0 {
			e.logger.Info("artwork pending", "category", cat, "items", len(refs))
		}
	}
}

func (e *Engine) syncCategory(ctx context.Context, cat domain.MediaCategory, mode diff.Mode) error {
	mat := e.mats[cat]
	views, err := e.syncableViews(cat)
	if err != nil {
		return err
	}

	for _, view := range views {
		refs, err := e.store.ItemsByView(view.RemoteID)
		if err != nil {
			return err
		}

		for _, pass := range categoryPasses(cat) {
			items, err := e.provider.GetSectionItems(ctx, view.RemoteID, domain.SectionFilter{Kind: pass.kind})
			if err != nil {
				return err
			}

			local := localPrints(refs, pass.kind)
			records, remote := diff.Compute(diff.Request{
				Items:         items,
				Local:         local,
				Mode:          mode,
				Kind:          pass.kind,
				ViewID:        view.RemoteID,
				ViewName:      view.Name,
				FetchChildren: pass.fetchChildren,
			})

			if len(records) > 0 {
				e.logger.Info("changeset computed",
					"view", view.Name, "pass", pass.kind.String(), "mode", mode.String(), "records", len(records))
			}
			stats, err := e.pipe.Run(ctx, records, mat)
			if err != nil {
				return err
			}
			for _, rec := range records {
				e.recorder.RecordApplied(rec.RemoteID)
			}
			if stats.Skipped > 0 {
				e.logger.Warn("items skipped", "view", view.Name, "skipped", stats.Skipped)
			}

			if mode != diff.AdditionsOnly {
				if err := e.removeVanished(ctx, mat, local, remote); err != nil {
					return err
				}
			}
		}

		// Watched flags and resume positions change without bumping item
		// timestamps, so the leaf enumeration carries them separately.
		if mode != diff.Delta {
			leaves, err := e.provider.GetSectionLeaves(ctx, view.RemoteID)
			if err != nil {
				return err
			}
			if err := mat.UpdatePlaybackState(ctx, playbackStates(leaves)); err != nil {
				return err
			}
		}
	}
	return nil
}

// localPrints builds the locally known id -> fingerprint map for one
// sub-pass. A zero kind matches every reference of the view.
func localPrints(refs []domain.ItemRef, kind domain.MediaKind) map[string]string {
	prints := make(map[string]string, len(refs))
	for _, ref := range refs {
		if kind != domain.KindUnknown && ref.Kind != kind {
			continue
		}
		prints[ref.RemoteID] = ref.Fingerprint
	}
	return prints
}

// removeVanished tears down every locally known item the remote enumeration
// no longer contains.
func (e *Engine) removeVanished(ctx context.Context, mat domain.Materializer, local, remote map[string]string) error {
	for id := range local {
		if _, present := remote[id]; present {
			continue
		}
		e.logger.Info("item vanished remotely, removing", "remoteID", id)
		if err := mat.Remove(ctx, id); err != nil {
			return err
		}
		e.recorder.RecordApplied(id)
	}
	return nil
}

func playbackStates(items []domain.RemoteItem) []domain.PlaybackState {
	states := make([]domain.PlaybackState, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		states = append(states, domain.PlaybackState{
			RemoteID:   item.ID,
			Watched:    item.Watched,
			ViewOffset: item.ViewOffset,
		})
	}
	return states
}
