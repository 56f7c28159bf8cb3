package libsync

import (
	"context"
	"fmt"

	"github.com/mmcdole/plexmirror/internal/domain"
)

// MaintainViews reconciles the local view set against the remote sections:
// new sections are registered, renamed sections get their items retagged,
// vanished sections are torn down with their items. Any failure aborts the
// surrounding sync so enumeration never runs against a stale view set.
func (e *Engine) MaintainViews(ctx context.Context) error {
	remote, err := e.provider.GetSections(ctx)
	if err != nil {
		return fmt.Errorf("enumerate remote sections: %w", err)
	}

	local, err := e.store.Views()
	if err != nil {
		return fmt.Errorf("load local views: %w", err)
	}
	localByID := make(map[string]domain.View, len(local))
	for _, v := range local {
		localByID[v.RemoteID] = v
	}

	for _, rv := range remote {
		prev, known := localByID[rv.RemoteID]
		if !known {
			e.logger.Info("registering new view", "view", rv.Name, "id", rv.RemoteID)
			if err := e.store.UpsertView(&rv); err != nil {
				return fmt.Errorf("register view %s: %w", rv.RemoteID, err)
			}
			continue
		}
		delete(localByID, rv.RemoteID)

		if prev.Name != rv.Name {
			e.logger.Info("view renamed, retagging items", "id", rv.RemoteID, "from", prev.Name, "to", rv.Name)
			if err := e.store.RetagView(rv.RemoteID, rv.Name); err != nil {
				return fmt.Errorf("retag view %s: %w", rv.RemoteID, err)
			}
		}
		// Operator's sync opt-out survives remote metadata changes.
		rv.SyncEnabled = prev.SyncEnabled
		if err := e.store.UpsertView(&rv); err != nil {
			return fmt.Errorf("update view %s: %w", rv.RemoteID, err)
		}
	}

	// Anything left in localByID no longer exists remotely.
	for _, lv := range localByID {
		e.logger.Info("view removed remotely, deleting items", "view", lv.Name, "id", lv.RemoteID)
		if err := e.removeViewItems(ctx, lv); err != nil {
			return err
		}
		if err := e.store.DeleteView(lv.RemoteID); err != nil {
			return fmt.Errorf("delete view %s: %w", lv.RemoteID, err)
		}
	}

	return nil
}

func (e *Engine) removeViewItems(ctx context.Context, view domain.View) error {
	mat, ok := e.mats[view.Category]
	if !ok {
		return nil
	}
	refs, err := e.store.ItemsByView(view.RemoteID)
	if err != nil {
		return fmt.Errorf("list items of view %s: %w", view.RemoteID, err)
	}
	for _, ref := range refs {
		if err := mat.Remove(ctx, ref.RemoteID); err != nil {
			return fmt.Errorf("remove item %s: %w", ref.RemoteID, err)
		}
	}
	return nil
}

// syncableViews returns the enabled views of one category, post-maintenance.
func (e *Engine) syncableViews(cat domain.MediaCategory) ([]domain.View, error) {
	all, err := e.store.Views()
	if err != nil {
		return nil, err
	}
	var out []domain.View
	for _, v := range all {
		if v.Category == cat && v.SyncEnabled {
			out = append(out, v)
		}
	}
	return out, nil
}
