package kv

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for development and tests. Entries
// are dropped lazily on read and pruned when the map grows large.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]memoryEntry
	maxMemory int
}

type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:   make(map[string]memoryEntry),
		maxMemory: 5000,
	}
}

func (s *MemoryStore) Set(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{count: 1, expiresAt: time.Now().UTC().Add(ttl)}
	s.pruneLocked()
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if time.Now().UTC().After(entry.expiresAt) {
		delete(s.entries, key)
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || now.After(entry.expiresAt) {
		entry = memoryEntry{count: 0, expiresAt: now.Add(ttl)}
	}
	entry.count++
	s.entries[key] = entry
	s.pruneLocked()

	return entry.count, nil
}

func (s *MemoryStore) pruneLocked() {
	if len(s.entries) <= s.maxMemory {
		return
	}
	now := time.Now().UTC()
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}
