package domain

import "context"

// SectionFilter narrows a section enumeration to one item kind. The zero
// value enumerates the section's default (top-level) contents.
type SectionFilter struct {
	Kind MediaKind
}

// MetadataProvider resolves records from the remote catalog. Implementations
// must return ErrUnauthorized for auth/overload rejections and
// ErrItemNotFound for missing records so callers can abort vs. skip.
type MetadataProvider interface {
	// GetSections returns all remote library sections.
	GetSections(ctx context.Context) ([]View, error)

	// GetSectionItems enumerates a section's contents, optionally filtered
	// to one kind. Enumeration entries carry only cheap fields.
	GetSectionItems(ctx context.Context, viewID string, filter SectionFilter) ([]RemoteItem, error)

	// GetSectionLeaves enumerates every playable leaf (episode, track, movie)
	// of a section, including playback-state fields.
	GetSectionLeaves(ctx context.Context, viewID string) ([]RemoteItem, error)

	// GetItem resolves full details for a single record.
	GetItem(ctx context.Context, id string) (*RemoteItem, error)

	// GetChildren resolves a record's immediate children.
	GetChildren(ctx context.Context, id string) ([]RemoteItem, error)
}

// CatalogStore is the local mirror database. All operations are scoped to an
// explicit transaction boundary acquired and released per call.
type CatalogStore interface {
	// === Item references ===
	GetItem(remoteID string) (*ItemRef, bool)
	GetItemByLocal(localID int64, localType string) (*ItemRef, bool)
	UpsertItem(ref *ItemRef) error
	DeleteItem(remoteID string) error

	// Fingerprints returns the remote-id -> fingerprint map for a category.
	Fingerprints(cat MediaCategory) (map[string]string, error)

	// ItemsByView returns every reference belonging to a view.
	ItemsByView(viewID string) ([]ItemRef, error)

	// RetagView rewrites the tag of every reference in a view in one
	// transaction. Used when a remote section is renamed.
	RetagView(viewID, tag string) error

	// PendingArtwork returns references whose secondary artwork sync has not
	// completed yet.
	PendingArtwork(cat MediaCategory) ([]ItemRef, error)

	// === Views ===
	Views() ([]View, error)
	GetView(remoteID string) (*View, bool)
	UpsertView(v *View) error
	DeleteView(remoteID string) error

	// === Play queue snapshot ===
	SaveQueueSnapshot(s *QueueSnapshot) error
	LoadQueueSnapshot() (*QueueSnapshot, bool)

	Close() error
}

// Materializer translates resolved remote records into local store rows for
// one content category. The core treats it as an opaque callback; the
// reference implementation writes ItemRefs into the CatalogStore.
type Materializer interface {
	// AddOrUpdate applies a resolved record (and its children, if fetched).
	AddOrUpdate(ctx context.Context, res *FetchResult) error

	// Remove deletes the record and any dependent local rows.
	Remove(ctx context.Context, remoteID string) error

	// UpdatePlaybackState applies watched flags and resume positions in bulk
	// for already-known items; unknown ids are ignored.
	UpdatePlaybackState(ctx context.Context, states []PlaybackState) error
}

// Notifier delivers best-effort operator notifications. Never required for
// correctness.
type Notifier interface {
	Notify(message string)
}

// NoOpNotifier discards notifications (for testing/batch operations).
type NoOpNotifier struct{}

func (NoOpNotifier) Notify(string) {}
