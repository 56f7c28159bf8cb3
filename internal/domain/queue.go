package domain

import "context"

// QueueItem is one entry of an ordered playback queue. Identity for queue
// comparison is (LocalID, LocalType) when the local id is known, else the
// file path.
type QueueItem struct {
	RemoteID   string    `json:"remoteID,omitempty"`
	Kind       MediaKind `json:"kind"`
	LocalID    int64     `json:"localID,omitempty"`
	LocalType  string    `json:"localType,omitempty"`
	File       string    `json:"file,omitempty"`
	PositionID string    `json:"positionID,omitempty"` // Remote-assigned queue entry id
}

// SameIdentity reports whether two queue entries refer to the same media.
func (q QueueItem) SameIdentity(other QueueItem) bool {
	if q.LocalID != 0 && other.LocalID != 0 {
		return q.LocalID == other.LocalID && q.LocalType == other.LocalType
	}
	return q.File != "" && q.File == other.File
}

// QueueState is the identity of a remote play queue. It is undefined (zero
// ID) until the queue is first initialized from either side; every remote
// mutation returns an updated Version which must be captured before the
// next mutation.
type QueueState struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
}

// Initialized reports whether a remote queue identity has been established.
func (s QueueState) Initialized() bool { return s.ID != "" }

// QueueSnapshot is the reconciler's persisted view of the tracked remote
// queue, so tracking survives a process restart.
type QueueSnapshot struct {
	State QueueState  `json:"state"`
	Items []QueueItem `json:"items"`
}

// RemoteQueue mutates the remote side of the playback queue. Every mutation
// returns the queue's new state; callers must serialize mutations and use
// the freshest state to avoid stale-version rejection.
type RemoteQueue interface {
	// CreateQueue initializes a remote queue from a first item. The returned
	// item carries its remote-assigned position id.
	CreateQueue(ctx context.Context, item QueueItem) (QueueState, QueueItem, error)

	// FetchQueue returns the remote queue's current items and state.
	FetchQueue(ctx context.Context, id string) (QueueState, []QueueItem, error)

	// AppendItem adds an item at the end of the remote queue.
	AppendItem(ctx context.Context, state QueueState, item QueueItem) (QueueState, QueueItem, error)

	// MoveItem repositions the entry positionID directly after afterID;
	// an empty afterID moves it to the head.
	MoveItem(ctx context.Context, state QueueState, positionID, afterID string) (QueueState, error)

	// RemoveItem deletes the entry positionID from the remote queue.
	RemoveItem(ctx context.Context, state QueueState, positionID string) (QueueState, error)
}

// LocalQueue observes and mutates the local playback queue.
type LocalQueue interface {
	// Items returns the local queue's current ordered contents.
	Items(ctx context.Context) ([]QueueItem, error)

	// Replace overwrites the local queue's contents, e.g. when a companion
	// request swaps in a new remote queue.
	Replace(ctx context.Context, items []QueueItem) error
}
