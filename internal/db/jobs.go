package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/docingest/internal/jobstore"
	"github.com/raphaelgruber/docingest/internal/models"
)

// maxUpdateRetries bounds the compare-and-swap loop in JobStore.Update.
const maxUpdateRetries = 10

// jobRecord is the ingest_job row. ID is nil on writes.
type jobRecord struct {
	ID        *surrealmodels.RecordID `json:"id,omitempty"`
	JobType   string                  `json:"job_type"`
	Status    string                  `json:"status"`
	Progress  *models.Progress        `json:"progress,omitempty"`
	Metadata  models.JobMetadata      `json:"metadata"`
	Result    *models.JobResult       `json:"result,omitempty"`
	Error     string                  `json:"error,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

func newJobRecord(j *models.Job) jobRecord {
	return jobRecord{
		JobType:   string(j.Type),
		Status:    string(j.Status),
		Progress:  j.Progress,
		Metadata:  j.Metadata,
		Result:    j.Result,
		Error:     j.Error,
		CreatedAt: j.CreatedAt.UTC(),
		UpdatedAt: j.UpdatedAt.UTC(),
	}
}

func (r jobRecord) toJob() (*models.Job, error) {
	if r.ID == nil {
		return nil, errors.New("job record without id")
	}
	id, err := recordIDString(*r.ID)
	if err != nil {
		return nil, err
	}
	return &models.Job{
		ID:        id,
		Type:      models.JobType(r.JobType),
		Status:    models.JobStatus(r.Status),
		Progress:  r.Progress,
		Metadata:  r.Metadata,
		Result:    r.Result,
		Error:     r.Error,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// recordIDString extracts the string key of a record id.
func recordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected ID type: %T (expected string)", id.ID)
	}
	return s, nil
}

// JobStore is a jobstore.Store backed by the ingest_job table.
type JobStore struct {
	client *Client
	now    func() time.Time
}

var _ jobstore.Store = (*JobStore)(nil)

// NewJobStore creates a job store on client. The schema must be initialized.
func NewJobStore(client *Client) *JobStore {
	return &JobStore{client: client, now: time.Now}
}

func (s *JobStore) Create(ctx context.Context, job *models.Job) error {
	j := job.Clone()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = s.now()
	}
	j.UpdatedAt = j.CreatedAt

	_, err := surrealdb.Query[any](ctx, s.client.db, `
		CREATE type::record("ingest_job", $id) CONTENT $content RETURN NONE
	`, map[string]any{
		"id":      j.ID,
		"content": newJobRecord(j),
	})
	if err != nil {
		return fmt.Errorf("create job: %w", wrapQueryError(err))
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*models.Job, error) {
	record, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return record.toJob()
}

func (s *JobStore) get(ctx context.Context, id string) (*jobRecord, error) {
	results, err := surrealdb.Query[[]jobRecord](ctx, s.client.db, `
		SELECT * FROM type::record("ingest_job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("%w: %s", jobstore.ErrNotFound, id)
	}
	return &(*results)[0].Result[0], nil
}

// Update merges u into the job. The write only lands if updated_at still
// holds the value that was read; otherwise the merge is redone on the
// fresh record.
func (s *JobStore) Update(ctx context.Context, id string, u models.JobUpdate) (*models.Job, error) {
	for range maxUpdateRetries {
		record, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		job, err := record.toJob()
		if err != nil {
			return nil, err
		}
		prev := record.UpdatedAt

		job.Apply(u, s.now())

		results, err := surrealdb.Query[[]jobRecord](ctx, s.client.db, `
			UPDATE type::record("ingest_job", $id) CONTENT $content
			WHERE updated_at = $prev
			RETURN AFTER
		`, map[string]any{
			"id":      id,
			"content": newJobRecord(job),
			"prev":    prev,
		})
		if err != nil {
			if errors.Is(wrapQueryError(err), ErrTransactionConflict) {
				continue
			}
			return nil, fmt.Errorf("update job: %w", wrapQueryError(err))
		}
		if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
			// Lost the race against another writer.
			continue
		}
		return (*results)[0].Result[0].toJob()
	}
	return nil, fmt.Errorf("update job %s: %w", id, ErrTransactionConflict)
}

func (s *JobStore) ListByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	return s.list(ctx, `
		SELECT * FROM ingest_job WHERE status = $status ORDER BY created_at DESC, id DESC
	`, map[string]any{"status": string(status)})
}

func (s *JobStore) ListRecent(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		return s.list(ctx, `
			SELECT * FROM ingest_job ORDER BY created_at DESC, id DESC
		`, nil)
	}
	return s.list(ctx, `
		SELECT * FROM ingest_job ORDER BY created_at DESC, id DESC LIMIT $limit
	`, map[string]any{"limit": limit})
}

func (s *JobStore) list(ctx context.Context, sql string, vars map[string]any) ([]*models.Job, error) {
	results, err := surrealdb.Query[[]jobRecord](ctx, s.client.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", wrapQueryError(err))
	}
	jobs := []*models.Job{}
	if results == nil || len(*results) == 0 {
		return jobs, nil
	}
	for _, r := range (*results)[0].Result {
		job, err := r.toJob()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
