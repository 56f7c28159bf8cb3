package playqueue

import (
	"context"
	"sync"

	"github.com/mmcdole/plexmirror/internal/domain"
)

// MemoryQueue is an in-process local queue. It is the integration point for
// an embedding player: the player replaces its contents, the reconciler
// observes them.
type MemoryQueue struct {
	mu    sync.Mutex
	items []domain.QueueItem
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Items(ctx context.Context) ([]domain.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.QueueItem(nil), q.items...), nil
}

func (q *MemoryQueue) Replace(ctx context.Context, items []domain.QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]domain.QueueItem(nil), items...)
	return nil
}
