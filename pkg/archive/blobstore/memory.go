package blobstore

import (
	"context"
	"fmt"
	"sync"

	"archival-hq/keeper/pkg/archive"
)

// MemoryStore keeps payloads in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, id string, data []byte) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; ok {
		return fmt.Errorf("%w: %s", archive.ErrBlobExists, id)
	}
	s.blobs[id] = append([]byte(nil), data...)
	return nil
}

// Get implements Store. The returned slice is a copy.
func (s *MemoryStore) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[id]
	if !ok {
		return nil, notFound(id)
	}
	return append([]byte(nil), data...), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, id)
	return nil
}

// Exists implements Store.
func (s *MemoryStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[id]
	return ok, nil
}

// Corrupt overwrites a stored payload in place. Tests use it to simulate
// bit rot.
func (s *MemoryStore) Corrupt(id string, mutate func([]byte)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[id]
	if ok {
		mutate(data)
	}
	return ok
}

// Len returns the number of stored payloads.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
