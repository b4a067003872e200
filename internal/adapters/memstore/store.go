// Package memstore implements ports.JobStore in memory. Used by the test
// suite and by serve when no DATABASE_URL is configured.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"leadpipe/internal/core/domain"
	"leadpipe/internal/core/ports"
)

// Store keeps jobs and leads in maps guarded by one mutex. Terminal
// statuses are immutable the same way the SQL store enforces them.
type Store struct {
	mu    sync.Mutex
	jobs  map[string]*domain.ScrapeJob
	leads map[string][]domain.Lead
	now   func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		jobs:  make(map[string]*domain.ScrapeJob),
		leads: make(map[string][]domain.Lead),
		now:   time.Now,
	}
}

var _ ports.JobStore = (*Store)(nil)

// CreateJob persists a new job, assigning its id and creation time.
func (s *Store) CreateJob(ctx context.Context, job *domain.ScrapeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job.ID = uuid.New().String()
	job.CreatedAt = s.now().UTC()
	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

// UpdateJob applies a partial update. A status change out of a terminal
// state is refused; re-applying the same terminal status is a no-op.
func (s *Store) UpdateJob(ctx context.Context, id string, update ports.JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}

	if update.Status != nil && job.Status.Terminal() {
		if *update.Status == job.Status {
			return nil
		}
		return nil // terminal state wins, late transitions are dropped
	}

	if update.Status != nil {
		job.Status = *update.Status
	}
	if update.ProviderRunID != nil && job.ProviderRunID == "" {
		job.ProviderRunID = *update.ProviderRunID
	}
	if update.Extracted != nil {
		job.Extracted = *update.Extracted
	}
	if update.DownloadLink != nil {
		job.DownloadLink = *update.DownloadLink
	}
	if update.ErrorMessage != nil {
		job.ErrorMessage = *update.ErrorMessage
	}
	if update.CompletedAt != nil {
		completedAt := *update.CompletedAt
		job.CompletedAt = &completedAt
	}
	return nil
}

// GetJob fetches a single job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*domain.ScrapeJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	clone := *job
	return &clone, nil
}

// ListJobs returns all jobs ordered by creation time descending.
func (s *Store) ListJobs(ctx context.Context) ([]domain.ScrapeJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]domain.ScrapeJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// InsertLeads persists the extracted records for a job.
func (s *Store) InsertLeads(ctx context.Context, jobID string, leads []domain.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	for _, lead := range leads {
		lead.ID = uuid.New().String()
		lead.JobID = jobID
		s.leads[jobID] = append(s.leads[jobID], lead)
	}
	return nil
}

// LeadsForJob returns the persisted leads for one job.
func (s *Store) LeadsForJob(jobID string) []domain.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Lead, len(s.leads[jobID]))
	copy(out, s.leads[jobID])
	return out
}
