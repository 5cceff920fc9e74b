package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"archival-hq/keeper/pkg/archive"
)

// MemoryIndex implements archive.Index using an in-memory map. Records are
// copied on the way in and out.
type MemoryIndex struct {
	records map[string]*archive.ArchiveRecord
	mu      sync.RWMutex
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		records: make(map[string]*archive.ArchiveRecord),
	}
}

// Create implements archive.Index.
func (m *MemoryIndex) Create(ctx context.Context, rec *archive.ArchiveRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c := rec.Clone()
	if err := prepareNew(c); err != nil {
		return "", err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[c.ID]; exists {
		return "", fmt.Errorf("%w: %s", archive.ErrDuplicateID, c.ID)
	}
	m.records[c.ID] = c
	rec.ID = c.ID
	rec.Status = c.Status
	return c.ID, nil
}

// Get implements archive.Index.
func (m *MemoryIndex) Get(ctx context.Context, id string) (*archive.ArchiveRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: archive %s", archive.ErrNotFound, id)
	}
	return rec.Clone(), nil
}

// List implements archive.Index.
func (m *MemoryIndex) List(ctx context.Context, query *archive.ListQuery) ([]*archive.ArchiveRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if query == nil {
		query = &archive.ListQuery{}
	}

	m.mu.RLock()
	var results []*archive.ArchiveRecord
	for _, rec := range m.records {
		if query.Matches(rec) {
			results = append(results, rec.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.After(results[j].CreatedAt)
		}
		return results[i].ID > results[j].ID
	})

	start := query.Offset
	if start > len(results) {
		return []*archive.ArchiveRecord{}, nil
	}
	results = results[start:]
	if query.Limit > 0 && query.Limit < len(results) {
		results = results[:query.Limit]
	}
	return results, nil
}

// Count implements archive.Index.
func (m *MemoryIndex) Count(ctx context.Context, query *archive.ListQuery) (int64, error) {
	if query == nil {
		query = &archive.ListQuery{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, rec := range m.records {
		if query.Matches(rec) {
			count++
		}
	}
	return count, nil
}

// Update implements archive.Index.
func (m *MemoryIndex) Update(ctx context.Context, id string, mutation archive.Mutation) (*archive.ArchiveRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: archive %s", archive.ErrNotFound, id)
	}
	next := rec.Clone()
	if err := mutation.Apply(next); err != nil {
		return nil, err
	}
	m.records[id] = next
	return next.Clone(), nil
}

// Delete implements archive.Index.
func (m *MemoryIndex) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return fmt.Errorf("%w: archive %s", archive.ErrNotFound, id)
	}
	delete(m.records, id)
	return nil
}

// Close implements archive.Index.
func (m *MemoryIndex) Close() error {
	return nil
}
