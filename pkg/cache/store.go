package cache

import (
	"context"
	"sync"
	"time"
)

// Store is the storage contract used by the caching connector.
// Manager and MemoryStore implement it.
type Store interface {
	Get(ctx context.Context, key CacheKey) (*CacheEntry, error)
	Set(ctx context.Context, key CacheKey, entry *CacheEntry) error
	Delete(ctx context.Context, key CacheKey) error
	UpdateTTL(ctx context.Context, key CacheKey, newExpires time.Time) error
}

var (
	_ Store = (*Manager)(nil)
	_ Store = (*MemoryStore)(nil)
)

// MemoryStore keeps cache entries in a process-local map.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*CacheEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*CacheEntry)}
}

// Get returns a copy of the entry for key, or ErrCacheMiss.
func (s *MemoryStore) Get(_ context.Context, key CacheKey) (*CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key.String()
	entry, ok := s.entries[k]
	if !ok {
		CacheMisses.WithLabelValues(layerMemory).Inc()
		return nil, ErrCacheMiss
	}
	if entry.IsExpired() {
		delete(s.entries, k)
		CacheMisses.WithLabelValues(layerMemory).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(layerMemory).Inc()
	cp := *entry
	cp.Headers = entry.Headers.Clone()
	return &cp, nil
}

// Set stores a copy of entry unless it has already expired.
func (s *MemoryStore) Set(_ context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil || entry.TTL() <= 0 {
		return nil
	}
	cp := *entry
	cp.Headers = entry.Headers.Clone()

	s.mu.Lock()
	s.entries[key.String()] = &cp
	s.mu.Unlock()

	CacheEntryBytes.WithLabelValues(layerMemory).Observe(float64(len(entry.Data)))
	return nil
}

// Delete removes the entry for key.
func (s *MemoryStore) Delete(_ context.Context, key CacheKey) error {
	s.mu.Lock()
	delete(s.entries, key.String())
	s.mu.Unlock()
	return nil
}

// UpdateTTL moves the expiry of an existing entry.
func (s *MemoryStore) UpdateTTL(_ context.Context, key CacheKey, newExpires time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key.String()]
	if !ok {
		return ErrCacheMiss
	}
	entry.Expires = newExpires
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
