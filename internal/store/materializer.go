package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmcdole/plexmirror/internal/domain"
)

// localType maps a media kind to its local store row type.
func localType(k domain.MediaKind) string {
	switch k {
	case domain.KindMovie:
		return "movie"
	case domain.KindMusicVideo:
		return "musicvideo"
	case domain.KindShow:
		return "tvshow"
	case domain.KindSeason:
		return "season"
	case domain.KindEpisode:
		return "episode"
	case domain.KindArtist:
		return "artist"
	case domain.KindAlbum:
		return "album"
	case domain.KindTrack:
		return "song"
	default:
		return "unknown"
	}
}

// Materializer writes resolved remote records into the catalog store as item
// references for one content category. It implements domain.Materializer.
type Materializer struct {
	store    *CatalogStore
	category domain.MediaCategory
	logger   *slog.Logger
}

func NewMaterializer(store *CatalogStore, category domain.MediaCategory, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{store: store, category: category, logger: logger}
}

// AddOrUpdate writes the resolved record and any resolved children. Local
// identities of existing references survive the update. When the child set
// was fully resolved, previously known children missing from it are pruned,
// so a container refresh also removes children deleted remotely.
func (m *Materializer) AddOrUpdate(ctx context.Context, res *domain.FetchResult) error {
	if err := m.upsert(&res.Item, res.Record.ViewID, res.Record.ViewName, res.Item.ParentID); err != nil {
		return err
	}
	for i := range res.Children {
		child := &res.Children[i]
		if err := m.upsert(child, res.Record.ViewID, res.Record.ViewName, res.Item.ID); err != nil {
			return err
		}
	}
	if res.ChildrenResolved {
		return m.pruneChildren(ctx, res.Item.ID, res.Children)
	}
	return nil
}

// pruneChildren removes known children of parentID absent from the fresh
// child set, cascading into their own descendants.
func (m *Materializer) pruneChildren(ctx context.Context, parentID string, fresh []domain.RemoteItem) error {
	known, err := m.store.ItemsByParent(parentID)
	if err != nil {
		return err
	}
	current := make(map[string]bool, len(fresh))
	for _, child := range fresh {
		current[child.ID] = true
	}
	for _, ref := range known {
		if current[ref.RemoteID] {
			continue
		}
		m.logger.Info("child vanished remotely, removing", "remoteID", ref.RemoteID, "parentID", parentID)
		if err := m.Remove(ctx, ref.RemoteID); err != nil {
			return err
		}
	}
	return nil
}

func (m *Materializer) upsert(item *domain.RemoteItem, viewID, viewName, parentID string) error {
	if item.ID == "" {
		return fmt.Errorf("record without remote id (%q)", item.Title)
	}

	kind := item.Kind
	if kind == domain.KindUnknown {
		return fmt.Errorf("record %s has no kind", item.ID)
	}

	if item.ViewID != "" {
		viewID = item.ViewID
	}
	if item.ViewName != "" {
		viewName = item.ViewName
	}
	if item.ParentID != "" {
		parentID = item.ParentID
	}

	ref := domain.ItemRef{
		RemoteID:    item.ID,
		Category:    m.category,
		Kind:        kind,
		LocalType:   localType(kind),
		ParentID:    parentID,
		ViewID:      viewID,
		Tag:         viewName,
		Fingerprint: item.Fingerprint(),
		Watched:     item.Watched,
		ViewOffset:  item.ViewOffset,
	}

	if prev, ok := m.store.GetItem(item.ID); ok {
		ref.LocalID = prev.LocalID
		ref.FileID = prev.FileID
		// Updates invalidate previously synced artwork.
	} else {
		ref.LocalID = m.store.AllocLocalID()
		if item.File != "" {
			ref.FileID = m.store.AllocLocalID()
		}
	}

	return m.store.UpsertItem(&ref)
}

// Remove deletes the reference and, for container kinds, every descendant.
func (m *Materializer) Remove(ctx context.Context, remoteID string) error {
	children, err := m.store.ItemsByParent(remoteID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := m.Remove(ctx, child.RemoteID); err != nil {
			return err
		}
	}
	return m.store.DeleteItem(remoteID)
}

// UpdatePlaybackState applies watched flags and resume positions in bulk.
// Unknown remote ids are skipped without error.
func (m *Materializer) UpdatePlaybackState(ctx context.Context, states []domain.PlaybackState) error {
	for _, st := range states {
		ref, ok := m.store.GetItem(st.RemoteID)
		if !ok {
			continue
		}
		if ref.Watched == st.Watched && ref.ViewOffset == st.ViewOffset {
			continue
		}
		ref.Watched = st.Watched
		ref.ViewOffset = st.ViewOffset
		if err := m.store.UpsertItem(ref); err != nil {
			return err
		}
	}
	return nil
}
