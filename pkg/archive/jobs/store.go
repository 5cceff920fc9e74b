package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"archival-hq/keeper/pkg/archive"
)

// Store persists job history.
type Store interface {
	// Create records a new job. Fails with archive.ErrDuplicateID if the id
	// exists.
	Create(ctx context.Context, job *archive.Job) error

	// Update replaces a stored job or returns archive.ErrNotFound.
	Update(ctx context.Context, job *archive.Job) error

	// Get returns a job or archive.ErrNotFound.
	Get(ctx context.Context, id string) (*archive.Job, error)

	// List returns matching jobs, newest first.
	List(ctx context.Context, query JobQuery) ([]*archive.Job, error)

	// Close releases resources held by the store.
	Close() error
}

// JobQuery filters job listings.
type JobQuery struct {
	EntityType string
	Status     archive.JobStatus
	ActiveOnly bool // queued or running
	Limit      int  // 0 = unlimited
	Offset     int
}

// Matches reports whether job satisfies the query predicates.
func (q JobQuery) Matches(job *archive.Job) bool {
	if q.EntityType != "" && job.EntityType != q.EntityType {
		return false
	}
	if q.Status != "" && job.Status != q.Status {
		return false
	}
	if q.ActiveOnly && job.Status.Terminal() {
		return false
	}
	return true
}

// MemoryStore keeps job history in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*archive.Job
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*archive.Job)}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, job *archive.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: job %s", archive.ErrDuplicateID, job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, job *archive.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; !exists {
		return fmt.Errorf("%w: job %s", archive.ErrNotFound, job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*archive.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", archive.ErrNotFound, id)
	}
	return job.Clone(), nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, query JobQuery) ([]*archive.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []*archive.Job
	for _, job := range s.jobs {
		if query.Matches(job) {
			out = append(out, job.Clone())
		}
	}
	s.mu.RUnlock()

	sortJobs(out)
	return paginate(out, query.Offset, query.Limit), nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

func sortJobs(jobs []*archive.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID > jobs[j].ID
	})
}

func paginate(jobs []*archive.Job, offset, limit int) []*archive.Job {
	if offset >= len(jobs) {
		return nil
	}
	jobs = jobs[offset:]
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs
}
