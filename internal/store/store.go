// Package store persists the local mirror state (item references, views,
// play-queue snapshot) in BoltDB with a write-through memory cache.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mmcdole/plexmirror/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketItems   = []byte("items")
	bucketByLocal = []byte("bylocal")
	bucketViews   = []byte("views")
	bucketQueue   = []byte("queue")
)

const queueSnapshotKey = "snapshot"

// CatalogStore implements domain.CatalogStore using BoltDB.
type CatalogStore struct {
	db *bolt.DB
	mu sync.RWMutex // Protects memory cache

	// In-memory cache for hot-path reads (promoted on access)
	cache map[string][]byte

	// Monotonic local-id allocator, seeded from the highest id on open
	nextLocal atomic.Int64
}

// NewCatalogStore opens (or creates) the mirror database under dir. An empty
// dir gives a memory-only store with no persistence.
func NewCatalogStore(dir string) (*CatalogStore, error) {
	if dir == "" {
		// Memory-only mode (no persistence)
		return &CatalogStore{cache: make(map[string][]byte)}, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "plexmirror.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketItems, bucketByLocal, bucketViews, bucketQueue} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &CatalogStore{db: db, cache: make(map[string][]byte)}
	if err := s.seedAllocator(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *CatalogStore) seedAllocator() error {
	var max int64
	err := s.scan(bucketItems, func(key string, data []byte) error {
		var ref domain.ItemRef
		if err := json.Unmarshal(data, &ref); err != nil {
			return err
		}
		if ref.LocalID > max {
			max = ref.LocalID
		}
		if ref.FileID > max {
			max = ref.FileID
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.nextLocal.Store(max)
	return nil
}

// AllocLocalID hands out the next free local store id.
func (s *CatalogStore) AllocLocalID() int64 {
	return s.nextLocal.Add(1)
}

func (s *CatalogStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// === Generic helpers ===

func (s *CatalogStore) get(bucket []byte, key string, dest interface{}) bool {
	cacheKey := string(bucket) + ":" + key

	// Check memory cache first
	s.mu.RLock()
	if data, ok := s.cache[cacheKey]; ok {
		s.mu.RUnlock()
		return json.Unmarshal(data, dest) == nil
	}
	s.mu.RUnlock()

	if s.db == nil {
		return false
	}

	// Read from BoltDB
	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})

	if data == nil {
		return false
	}

	// Promote to memory cache
	s.mu.Lock()
	s.cache[cacheKey] = data
	s.mu.Unlock()

	return json.Unmarshal(data, dest) == nil
}

func (s *CatalogStore) set(bucket []byte, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	cacheKey := string(bucket) + ":" + key

	// Update memory cache
	s.mu.Lock()
	s.cache[cacheKey] = data
	s.mu.Unlock()

	if s.db == nil {
		return nil // Memory-only mode
	}

	// Write to BoltDB
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		return b.Put([]byte(key), data)
	})
}

func (s *CatalogStore) delete(bucket []byte, key string) {
	cacheKey := string(bucket) + ":" + key

	// Clear from memory cache
	s.mu.Lock()
	delete(s.cache, cacheKey)
	s.mu.Unlock()

	if s.db == nil {
		return
	}

	s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b != nil {
			b.Delete([]byte(key))
		}
		return nil
	})
}

// scan visits every key/value of a bucket. In memory-only mode the cache is
// authoritative; with a database open, BoltDB is.
func (s *CatalogStore) scan(bucket []byte, visit func(key string, data []byte) error) error {
	if s.db == nil {
		prefix := string(bucket) + ":"
		s.mu.RLock()
		pairs := make(map[string][]byte, len(s.cache))
		for k, v := range s.cache {
			if strings.HasPrefix(k, prefix) {
				pairs[strings.TrimPrefix(k, prefix)] = v
			}
		}
		s.mu.RUnlock()
		for k, v := range pairs {
			if err := visit(k, v); err != nil {
				return err
			}
		}
		return nil
	}

	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			return visit(string(k), v)
		})
	})
}

// === Item references ===

func localKey(localID int64, localType string) string {
	return fmt.Sprintf("%s:%d", localType, localID)
}

func (s *CatalogStore) GetItem(remoteID string) (*domain.ItemRef, bool) {
	var ref domain.ItemRef
	if !s.get(bucketItems, remoteID, &ref) {
		return nil, false
	}
	return &ref, true
}

func (s *CatalogStore) GetItemByLocal(localID int64, localType string) (*domain.ItemRef, bool) {
	var remoteID string
	if !s.get(bucketByLocal, localKey(localID, localType), &remoteID) {
		return nil, false
	}
	return s.GetItem(remoteID)
}

func (s *CatalogStore) UpsertItem(ref *domain.ItemRef) error {
	if err := s.set(bucketItems, ref.RemoteID, ref); err != nil {
		return err
	}
	if ref.LocalID != 0 {
		return s.set(bucketByLocal, localKey(ref.LocalID, ref.LocalType), ref.RemoteID)
	}
	return nil
}

func (s *CatalogStore) DeleteItem(remoteID string) error {
	ref, ok := s.GetItem(remoteID)
	if !ok {
		return nil
	}
	if ref.LocalID != 0 {
		s.delete(bucketByLocal, localKey(ref.LocalID, ref.LocalType))
	}
	s.delete(bucketItems, remoteID)
	return nil
}

func (s *CatalogStore) Fingerprints(cat domain.MediaCategory) (map[string]string, error) {
	prints := make(map[string]string)
	err := s.scan(bucketItems, func(key string, data []byte) error {
		var ref domain.ItemRef
		if err := json.Unmarshal(data, &ref); err != nil {
			return err
		}
		if ref.Category == cat {
			prints[ref.RemoteID] = ref.Fingerprint
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prints, nil
}

func (s *CatalogStore) ItemsByView(viewID string) ([]domain.ItemRef, error) {
	var refs []domain.ItemRef
	err := s.scan(bucketItems, func(key string, data []byte) error {
		var ref domain.ItemRef
		if err := json.Unmarshal(data, &ref); err != nil {
			return err
		}
		if ref.ViewID == viewID {
			refs = append(refs, ref)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// ItemsByParent returns every reference whose parent is the given remote id.
func (s *CatalogStore) ItemsByParent(parentID string) ([]domain.ItemRef, error) {
	var refs []domain.ItemRef
	err := s.scan(bucketItems, func(key string, data []byte) error {
		var ref domain.ItemRef
		if err := json.Unmarshal(data, &ref); err != nil {
			return err
		}
		if ref.ParentID == parentID {
			refs = append(refs, ref)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// RetagView rewrites the tag of every reference in a view. With a database
// open the rewrite happens in one transaction so a crash cannot leave the
// view half-retagged.
func (s *CatalogStore) RetagView(viewID, tag string) error {
	if s.db == nil {
		refs, err := s.ItemsByView(viewID)
		if err != nil {
			return err
		}
		for i := range refs {
			refs[i].Tag = tag
			if err := s.UpsertItem(&refs[i]); err != nil {
				return err
			}
		}
		return nil
	}

	updated := make(map[string][]byte)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketItems)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var ref domain.ItemRef
			if err := json.Unmarshal(v, &ref); err != nil {
				return err
			}
			if ref.ViewID != viewID || ref.Tag == tag {
				continue
			}
			ref.Tag = tag
			data, err := json.Marshal(&ref)
			if err != nil {
				return err
			}
			if err := b.Put(k, data); err != nil {
				return err
			}
			updated[string(k)] = data
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	for k, data := range updated {
		s.cache[string(bucketItems)+":"+k] = data
	}
	s.mu.Unlock()
	return nil
}

func (s *CatalogStore) PendingArtwork(cat domain.MediaCategory) ([]domain.ItemRef, error) {
	var refs []domain.ItemRef
	err := s.scan(bucketItems, func(key string, data []byte) error {
		var ref domain.ItemRef
		if err := json.Unmarshal(data, &ref); err != nil {
			return err
		}
		if ref.Category == cat && !ref.ArtworkSynced {
			refs = append(refs, ref)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// === Views ===

func (s *CatalogStore) Views() ([]domain.View, error) {
	var views []domain.View
	err := s.scan(bucketViews, func(key string, data []byte) error {
		var v domain.View
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		views = append(views, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

func (s *CatalogStore) GetView(remoteID string) (*domain.View, bool) {
	var v domain.View
	if !s.get(bucketViews, remoteID, &v) {
		return nil, false
	}
	return &v, true
}

func (s *CatalogStore) UpsertView(v *domain.View) error {
	return s.set(bucketViews, v.RemoteID, v)
}

func (s *CatalogStore) DeleteView(remoteID string) error {
	s.delete(bucketViews, remoteID)
	return nil
}

// === Play queue snapshot ===

func (s *CatalogStore) SaveQueueSnapshot(snap *domain.QueueSnapshot) error {
	return s.set(bucketQueue, queueSnapshotKey, snap)
}

func (s *CatalogStore) LoadQueueSnapshot() (*domain.QueueSnapshot, bool) {
	var snap domain.QueueSnapshot
	if !s.get(bucketQueue, queueSnapshotKey, &snap) {
		return nil, false
	}
	return &snap, true
}
