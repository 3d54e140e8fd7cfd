package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process lock replica with the same semantics as
// RedisStore.  It backs single-node development runs where no redis is
// configured, and the test suite.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value    string
	expireAt time.Time
}

// NewMemoryStore returns an empty in-process replica.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Acquire sets key=value with TTL iff the key is absent or its previous
// lease has expired.
func (s *MemoryStore) Acquire(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && time.Now().Before(e.expireAt) {
		return false, nil
	}
	s.entries[key] = memoryEntry{value: value, expireAt: time.Now().Add(ttl)}
	return true, nil
}

// Release deletes key only while it still holds value.
func (s *MemoryStore) Release(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.value == value {
		delete(s.entries, key)
	}
	return nil
}

// Extend refreshes the TTL only while key still holds value and the lease
// has not already expired.
func (s *MemoryStore) Extend(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || e.value != value || time.Now().After(e.expireAt) {
		return false, nil
	}
	e.expireAt = time.Now().Add(ttl)
	s.entries[key] = e
	return true, nil
}
