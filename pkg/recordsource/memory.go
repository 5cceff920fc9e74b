package recordsource

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"archival-hq/keeper/pkg/archive"
)

// MemorySource is an in-memory archive.RecordSource.
type MemorySource struct {
	mu       sync.RWMutex
	records  map[string]*archive.Record
	archived map[string]string // record id -> archive id
}

// NewMemorySource creates a source holding the given records.
func NewMemorySource(records ...*archive.Record) *MemorySource {
	s := &MemorySource{
		records:  make(map[string]*archive.Record),
		archived: make(map[string]string),
	}
	for _, rec := range records {
		s.records[rec.ID] = cloneRecord(rec)
	}
	return s
}

// Insert adds records, failing with archive.ErrDuplicateID if any id exists.
func (s *MemorySource) Insert(_ context.Context, records ...*archive.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		if _, exists := s.records[rec.ID]; exists {
			return fmt.Errorf("%w: record %s", archive.ErrDuplicateID, rec.ID)
		}
	}
	for _, rec := range records {
		s.records[rec.ID] = cloneRecord(rec)
	}
	return nil
}

// QueryRecords implements archive.RecordSource.
func (s *MemorySource) QueryRecords(ctx context.Context, entityType string, filters archive.Filters) ([]*archive.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*archive.Record
	for id, rec := range s.records {
		if rec.EntityType != entityType {
			continue
		}
		if _, done := s.archived[id]; done {
			continue
		}
		if !filters.Matches(rec) {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	sortOldestFirst(out)
	return out, nil
}

// MarkArchived implements archive.RecordSource. Unknown ids are reported
// after the known ones are marked.
func (s *MemorySource) MarkArchived(_ context.Context, archiveID string, recordIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var missing []string
	for _, id := range recordIDs {
		if _, ok := s.records[id]; !ok {
			missing = append(missing, id)
			continue
		}
		s.archived[id] = archiveID
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: records %v", archive.ErrNotFound, missing)
	}
	return nil
}

// ArchivedIn returns the archive a record was packaged into.
func (s *MemorySource) ArchivedIn(recordID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.archived[recordID]
	return id, ok
}

// Len returns the number of records held, archived or not.
func (s *MemorySource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func sortOldestFirst(records []*archive.Record) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
}

func cloneRecord(rec *archive.Record) *archive.Record {
	c := *rec
	c.CreatedAt = rec.CreatedAt.UTC()
	if rec.Attributes != nil {
		c.Attributes = make(map[string]string, len(rec.Attributes))
		for k, v := range rec.Attributes {
			c.Attributes[k] = v
		}
	}
	if rec.Data != nil {
		c.Data = append([]byte(nil), rec.Data...)
	}
	return &c
}
