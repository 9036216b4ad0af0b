// Package cachestore provides the content-addressed artifact store shared
// by concurrent cells. Keys are opaque strings computed by the caller;
// entries are immutable once written and persist across runs (disk store)
// or for the life of the process (memory store). Eviction is delegated to
// external tooling; a hit only refreshes the entry's recency marker.
package cachestore

import (
	"context"
	"sync"
)

// Store is the cache contract the job runner programs against. Both
// methods must tolerate concurrent use: puts to the same key may race but
// must never leave a torn entry visible to a reader.
type Store interface {
	// Get returns the artifact stored under key. A miss is reported via
	// ok=false, never as an error; a non-nil error means the store itself
	// misbehaved (unreachable, corrupt entry) and the caller should
	// degrade to a miss.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)

	// Put stores an artifact under key. Writing an identical key twice is
	// a no-op: entries are content-addressed and immutable.
	Put(ctx context.Context, key string, data []byte) error
}

// MemStore is an ephemeral, thread-safe in-memory Store. It backs tests
// and cache-less runs where persisting artifacts is pointless.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string][]byte)}
}

// Get implements Store. The returned slice is a copy; callers may mutate it.
func (s *MemStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

// Put implements Store. The first write for a key wins; later writes to
// the same key are dropped without inspection.
func (s *MemStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; ok {
		return nil
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	s.entries[key] = stored
	return nil
}

// Len returns the number of stored entries.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
