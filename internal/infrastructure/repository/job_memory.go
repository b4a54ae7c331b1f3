package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/juicedmedia/lead-compliance-backend/internal/domain/errors"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/job"
)

// MemoryJobStore keeps jobs in process memory. Suitable for single-instance
// deployments and tests; the postgres store is the durable option.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]job.Job
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[uuid.UUID]job.Job)}
}

func (s *MemoryJobStore) Create(ctx context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = cloneJob(j)
	return nil
}

func (s *MemoryJobStore) Update(ctx context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; !ok {
		return errors.NewNotFoundError("job")
	}
	s.jobs[j.ID] = cloneJob(j)
	return nil
}

func (s *MemoryJobStore) Get(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.jobs[id]
	if !ok {
		return nil, errors.NewNotFoundError("job")
	}
	copied := stored
	copied.Errors = append([]string(nil), stored.Errors...)
	return &copied, nil
}

// cloneJob snapshots the job so later mutations by the owning task don't
// race readers
func cloneJob(j *job.Job) job.Job {
	copied := *j
	copied.Errors = append([]string(nil), j.Errors...)
	return copied
}
