package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/expense-ledger/internal/domain"
	"github.com/dvloznov/expense-ledger/internal/jobs"
)

// DefaultHistory is how many finished jobs Store keeps.
const DefaultHistory = 200

// Store is an in-memory implementation of JobStore.
// It stores jobs in memory and is safe for concurrent use.
// Data is lost on service restart. Only the newest history jobs are kept.
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]*jobs.SyncJob
	history int
}

// NewStore creates a new in-memory job store.
func NewStore() *Store {
	return &Store{
		jobs:    make(map[string]*jobs.SyncJob),
		history: DefaultHistory,
	}
}

// SaveJob implements the JobStore interface.
// It saves or updates a job in memory.
func (s *Store) SaveJob(ctx context.Context, job *jobs.SyncJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Create a copy to avoid external modifications
	s.jobs[job.JobID] = copyJob(job)
	s.prune()

	return nil
}

// GetJob implements the JobStore interface.
// It retrieves a job by ID from memory.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}

	return copyJob(job), nil
}

// ListJobs implements the JobStore interface.
// It retrieves jobs with optional filtering from memory, newest first.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*jobs.SyncJob{}

	for _, job := range s.jobs {
		// Apply filters
		if filter.Trigger != "" && job.Trigger != filter.Trigger {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}

		result = append(result, copyJob(job))
	}

	sortNewestFirst(result)

	// Apply limit and offset
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.SyncJob{}, nil
		}
		result = result[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// prune drops the oldest finished jobs beyond the history limit.
// Callers hold s.mu.
func (s *Store) prune() {
	if len(s.jobs) <= s.history {
		return
	}

	var finished []*jobs.SyncJob
	for _, job := range s.jobs {
		if job.Status == jobs.JobStatusCompleted || job.Status == jobs.JobStatusFailed {
			finished = append(finished, job)
		}
	}
	sortNewestFirst(finished)

	for i := len(finished) - 1; i >= 0 && len(s.jobs) > s.history; i-- {
		delete(s.jobs, finished[i].JobID)
	}
}

func sortNewestFirst(js []*jobs.SyncJob) {
	sort.Slice(js, func(i, j int) bool {
		if js[i].CreatedAt.Equal(js[j].CreatedAt) {
			return js[i].JobID > js[j].JobID
		}
		return js[i].CreatedAt.After(js[j].CreatedAt)
	})
}

func copyJob(job *jobs.SyncJob) *jobs.SyncJob {
	jobCopy := *job
	if job.Report != nil {
		report := *job.Report
		jobCopy.Report = &report
	}
	return &jobCopy
}

// Ensure Store implements JobStore interface.
var _ jobs.JobStore = (*Store)(nil)
