package domain

import "time"

// EventState is the lifecycle state carried by a remote change notification.
type EventState int

const (
	EventCreated EventState = iota
	EventUpdated
	EventDeleted
)

// String returns a human-readable representation of the state.
func (s EventState) String() string {
	switch s {
	case EventCreated:
		return "created"
	case EventUpdated:
		return "updated"
	case EventDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// RemoteEvent is an asynchronous notification that the remote catalog
// mutated an entity. Events are deferred and deduplicated by the debouncer
// before any fetch is attempted.
type RemoteEvent struct {
	ID        string     // Remote entity id
	Kind      MediaKind  // Entity kind, as far as the notification reveals it
	State     EventState // created/updated/deleted
	ArrivedAt time.Time  // When this process received the notification
	Attempts  int        // Failed processing attempts so far
}
