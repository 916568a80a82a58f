// Package jobstore persists jobs. It is the durability boundary of the
// ingestion core and carries no business logic beyond the merge rules in
// models.Job.Apply.
package jobstore

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/raphaelgruber/docingest/internal/models"
)

var (
	// ErrNotFound is returned when a job id is unknown.
	ErrNotFound = errors.New("job not found")
	// ErrExists is returned when creating a job whose id is already taken.
	ErrExists = errors.New("job already exists")
)

// Store persists jobs. Implementations must be safe for concurrent use and
// apply every update atomically per job record.
type Store interface {
	// Create stores a new job. A zero CreatedAt is set to the current time
	// and UpdatedAt starts equal to CreatedAt.
	Create(ctx context.Context, job *models.Job) error
	// Get returns a copy of the job with the given id.
	Get(ctx context.Context, id string) (*models.Job, error)
	// Update merges u into the stored job and returns the merged copy.
	Update(ctx context.Context, id string, u models.JobUpdate) (*models.Job, error)
	// ListByStatus returns all jobs in status, newest first.
	ListByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error)
	// ListRecent returns up to limit jobs, newest first.
	ListRecent(ctx context.Context, limit int) ([]*models.Job, error)
}

// stamp returns a copy of job with its creation timestamps filled in.
func stamp(job *models.Job, now time.Time) *models.Job {
	j := job.Clone()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = j.CreatedAt
	return j
}

// sortNewestFirst orders jobs by creation time descending, breaking ties by id
// so listings are stable.
func sortNewestFirst(jobs []*models.Job) {
	slices.SortFunc(jobs, func(a, b *models.Job) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

func truncate(jobs []*models.Job, limit int) []*models.Job {
	if limit > 0 && len(jobs) > limit {
		return jobs[:limit]
	}
	return jobs
}
