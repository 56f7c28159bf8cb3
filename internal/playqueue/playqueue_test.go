package playqueue

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"testing"

	"github.com/mmcdole/plexmirror/internal/domain"
	"github.com/mmcdole/plexmirror/internal/store"
)

// fakeRemote simulates the server side of a play queue: entries get
// position ids on insertion and every mutation bumps the version.
type fakeRemote struct {
	mu      sync.Mutex
	id      string
	version int
	nextPos int
	items   []domain.QueueItem
	ops     []string
}

func (f *fakeRemote) assign(item domain.QueueItem) domain.QueueItem {
	f.nextPos++
	item.PositionID = strconv.Itoa(500 + f.nextPos)
	return item
}

func (f *fakeRemote) CreateQueue(ctx context.Context, item domain.QueueItem) (domain.QueueState, domain.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.id = "q1"
	f.version = 1
	item = f.assign(item)
	f.items = []domain.QueueItem{item}
	f.ops = append(f.ops, "create:"+item.RemoteID)
	return domain.QueueState{ID: f.id, Version: f.version}, item, nil
}

func (f *fakeRemote) FetchQueue(ctx context.Context, id string) (domain.QueueState, []domain.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != f.id {
		return domain.QueueState{}, nil, domain.ErrQueueUninitialized
	}
	return domain.QueueState{ID: f.id, Version: f.version}, append([]domain.QueueItem(nil), f.items...), nil
}

func (f *fakeRemote) AppendItem(ctx context.Context, state domain.QueueState, item domain.QueueItem) (domain.QueueState, domain.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if state.ID != f.id {
		return state, item, fmt.Errorf("unknown queue %q", state.ID)
	}
	item = f.assign(item)
	f.items = append(f.items, item)
	f.version++
	f.ops = append(f.ops, "append:"+item.RemoteID)
	return domain.QueueState{ID: f.id, Version: f.version}, item, nil
}

func (f *fakeRemote) find(positionID string) int {
	for i, item := range f.items {
		if item.PositionID == positionID {
			return i
		}
	}
	return -1
}

func (f *fakeRemote) MoveItem(ctx context.Context, state domain.QueueState, positionID, afterID string) (domain.QueueState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.find(positionID)
	if i == -1 {
		return state, fmt.Errorf("no entry %s", positionID)
	}
	item := f.items[i]
	f.items = append(f.items[:i], f.items[i+1:]...)
	at := 0
	if afterID != "" {
		j := f.find(afterID)
		if j == -1 {
			return state, fmt.Errorf("no anchor entry %s", afterID)
		}
		at = j + 1
	}
	f.items = append(f.items[:at], append([]domain.QueueItem{item}, f.items[at:]...)...)
	f.version++
	f.ops = append(f.ops, "move:"+positionID+":after:"+afterID)
	return domain.QueueState{ID: f.id, Version: f.version}, nil
}

func (f *fakeRemote) RemoveItem(ctx context.Context, state domain.QueueState, positionID string) (domain.QueueState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.find(positionID)
	if i == -1 {
		return state, fmt.Errorf("no entry %s", positionID)
	}
	f.items = append(f.items[:i], f.items[i+1:]...)
	f.version++
	f.ops = append(f.ops, "remove:"+positionID)
	return domain.QueueState{ID: f.id, Version: f.version}, nil
}

func (f *fakeRemote) remoteOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.items))
	for i, item := range f.items {
		out[i] = item.RemoteID
	}
	return out
}

func (f *fakeRemote) opCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ops)
}

func entry(id string) domain.QueueItem {
	n, _ := strconv.ParseInt(id, 10, 64)
	return domain.QueueItem{RemoteID: id, Kind: domain.KindMovie, LocalID: n, LocalType: "movie", File: "/m/" + id + ".mkv"}
}

func entries(ids ...string) []domain.QueueItem {
	out := make([]domain.QueueItem, len(ids))
	for i, id := range ids {
		out[i] = entry(id)
	}
	return out
}

func equalOrder(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestBootstrap(t *testing.T) {
	remote := &fakeRemote{}
	r := New(remote, nil, nil, Options{}, nil)

	if err := r.Reconcile(context.Background(), entries("1", "2", "3")); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	equalOrder(t, remote.remoteOrder(), "1", "2", "3")
	if got := r.State(); got.ID != "q1" || got.Version != remote.version {
		t.Errorf("state = %+v, remote version %d", got, remote.version)
	}
}

func TestBootstrapEmptyIsNoOp(t *testing.T) {
	remote := &fakeRemote{}
	r := New(remote, nil, nil, Options{}, nil)
	if err := r.Reconcile(context.Background(), nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if r.State().Initialized() {
		t.Error("queue initialized from empty input")
	}
}

func TestConvergeReorderInsertDelete(t *testing.T) {
	remote := &fakeRemote{}
	r := New(remote, nil, nil, Options{}, nil)
	ctx := context.Background()

	if err := r.Reconcile(ctx, entries("1", "2", "3")); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	// [1,2,3] -> [2,1,4]: move 2 to head, append 4 into place, drop 3.
	if err := r.Reconcile(ctx, entries("2", "1", "4")); err != nil {
		t.Fatalf("converge: %v", err)
	}
	equalOrder(t, remote.remoteOrder(), "2", "1", "4")
	if r.State().Version != remote.version {
		t.Errorf("tracked version %d, remote %d", r.State().Version, remote.version)
	}
}

func TestConvergeIdempotent(t *testing.T) {
	remote := &fakeRemote{}
	r := New(remote, nil, nil, Options{}, nil)
	ctx := context.Background()

	if err := r.Reconcile(ctx, entries("1", "2", "3")); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	before := remote.opCount()
	if err := r.Reconcile(ctx, entries("1", "2", "3")); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if remote.opCount() != before {
		t.Errorf("unchanged queue produced %d extra ops", remote.opCount()-before)
	}
}

func TestConvergeDeletesBackToFront(t *testing.T) {
	remote := &fakeRemote{}
	r := New(remote, nil, nil, Options{}, nil)
	ctx := context.Background()

	if err := r.Reconcile(ctx, entries("1", "2", "3")); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	tracked := r.Items()
	if err := r.Reconcile(ctx, entries("1")); err != nil {
		t.Fatalf("converge: %v", err)
	}

	// Entry 3 (later position) must go before entry 2.
	wantFirst := "remove:" + tracked[2].PositionID
	wantSecond := "remove:" + tracked[1].PositionID
	ops := remote.ops[len(remote.ops)-2:]
	if ops[0] != wantFirst || ops[1] != wantSecond {
		t.Errorf("delete ops = %v, want [%s %s]", ops, wantFirst, wantSecond)
	}
}

func TestForeignEntriesExcluded(t *testing.T) {
	remote := &fakeRemote{}
	r := New(remote, nil, nil, Options{OwnPrefix: "plugin://plexmirror"}, nil)
	ctx := context.Background()

	desired := []domain.QueueItem{
		entry("1"),
		{File: "plugin://some.other.addon/play?id=9", Kind: domain.KindMovie},
		entry("2"),
	}
	if err := r.Reconcile(ctx, desired); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	equalOrder(t, remote.remoteOrder(), "1", "2")
}

func TestResolveViaStore(t *testing.T) {
	st, err := store.NewCatalogStore("")
	if err != nil {
		t.Fatalf("NewCatalogStore: %v", err)
	}
	defer st.Close()
	if err := st.UpsertItem(&domain.ItemRef{RemoteID: "77", LocalID: 5, LocalType: "movie"}); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}

	remote := &fakeRemote{}
	r := New(remote, nil, st, Options{}, nil)

	desired := []domain.QueueItem{{LocalID: 5, LocalType: "movie", File: "/m/77.mkv"}}
	if err := r.Reconcile(context.Background(), desired); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	equalOrder(t, remote.remoteOrder(), "77")
}

func TestSnapshotSurvivesRestart(t *testing.T) {
	st, err := store.NewCatalogStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewCatalogStore: %v", err)
	}
	defer st.Close()

	remote := &fakeRemote{}
	r := New(remote, nil, st, Options{}, nil)
	if err := r.Reconcile(context.Background(), entries("1", "2")); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	want := r.State()

	r2 := New(remote, nil, st, Options{}, nil)
	if got := r2.State(); got != want {
		t.Errorf("restored state = %+v, want %+v", got, want)
	}
	if len(r2.Items()) != 2 {
		t.Errorf("restored %d items, want 2", len(r2.Items()))
	}

	// The restored tracker keeps converging without a re-bootstrap.
	if err := r2.Reconcile(context.Background(), entries("2", "1")); err != nil {
		t.Fatalf("post-restore reconcile: %v", err)
	}
	equalOrder(t, remote.remoteOrder(), "2", "1")
}

func TestRandomizedConvergence(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	remote := &fakeRemote{}
	r := New(remote, nil, nil, Options{}, nil)
	ctx := context.Background()

	pool := []string{"1", "2", "3", "4", "5", "6", "7", "8"}
	for round := 0; round < 50; round++ {
		n := 1 + rng.Intn(len(pool))
		perm := rng.Perm(len(pool))[:n]
		ids := make([]string, n)
		for i, p := range perm {
			ids[i] = pool[p]
		}

		if err := r.Reconcile(ctx, entries(ids...)); err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		equalOrder(t, remote.remoteOrder(), ids...)
		if r.State().Version != remote.version {
			t.Fatalf("round %d: tracked version %d, remote %d", round, r.State().Version, remote.version)
		}
	}
}
