package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/docingest/internal/jobstore"
	"github.com/raphaelgruber/docingest/internal/models"
	"github.com/raphaelgruber/docingest/internal/service"
)

func TestIngestService_Submit(t *testing.T) {
	f := newFixture(t, nil)
	f.upload(t, "uploads/math-7-3-fractions.pdf", sections(3))
	svc := service.NewIngestService(f.proc, f.pipeline, discardLogger())
	ctx := context.Background()

	job, handle, err := svc.Submit(ctx, models.IngestMetadata{FileID: "uploads/math-7-3-fractions.pdf"})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.False(t, job.CreatedAt.IsZero())
	waitFor(t, handle)

	job, err = svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, 3, job.Result.Stored)

	key := models.DocumentKey{Subject: "math", Grade: "7", Chapter: "3", Source: "math-7-3-fractions.pdf"}
	assert.Len(t, f.kb.Chunks(key), 3)

	completed, err := svc.GetJobsByStatus(ctx, models.JobStatusCompleted)
	require.NoError(t, err)
	assert.Len(t, completed, 1)

	recent, err := svc.GetRecentJobs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestIngestService_SubmitInvalid(t *testing.T) {
	f := newFixture(t, nil)
	svc := service.NewIngestService(f.proc, f.pipeline, discardLogger())

	_, _, err := svc.Submit(context.Background(), models.IngestMetadata{})
	require.ErrorIs(t, err, service.ErrInvalidInput)

	jobs, err := svc.GetRecentJobs(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

// startFailingStore rejects the move to processing.
type startFailingStore struct {
	*jobstore.MemoryStore
}

func (s startFailingStore) Update(ctx context.Context, id string, u models.JobUpdate) (*models.Job, error) {
	if u.Status != nil && *u.Status == models.JobStatusProcessing {
		return nil, errors.New("store unavailable")
	}
	return s.MemoryStore.Update(ctx, id, u)
}

func TestIngestService_SubmitScheduleFailure(t *testing.T) {
	proc, err := service.NewJobProcessor(startFailingStore{jobstore.NewMemoryStore()},
		service.WithProcessorLogger(discardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = proc.Shutdown(5 * time.Second) })
	pipeline := service.NewPipeline(service.PipelineDeps{Jobs: proc, Logger: discardLogger()})
	svc := service.NewIngestService(proc, pipeline, discardLogger())

	job, handle, err := svc.Submit(context.Background(), models.IngestMetadata{FileID: "uploads/a.pdf"})
	require.Error(t, err)
	assert.Nil(t, handle)
	require.NotNil(t, job)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "store unavailable")

	failed, err := svc.GetJobsByStatus(context.Background(), models.JobStatusFailed)
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func TestIngestService_ProcessFinishedJob(t *testing.T) {
	f := newFixture(t, nil)
	f.upload(t, "uploads/x.pdf", sections(1))
	svc := service.NewIngestService(f.proc, f.pipeline, discardLogger())
	ctx := context.Background()

	job, handle, err := svc.Submit(ctx, models.IngestMetadata{FileID: "uploads/x.pdf"})
	require.NoError(t, err)
	waitFor(t, handle)

	_, err = svc.Process(ctx, job.ID)
	assert.ErrorIs(t, err, service.ErrJobFinished)

	cancelled, err := svc.Cancel(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, cancelled.Status)

	_, err = svc.Process(ctx, "missing")
	assert.ErrorIs(t, err, service.ErrNotFound)
}
