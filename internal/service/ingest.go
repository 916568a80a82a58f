package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/docingest/internal/models"
)

// IngestService is the entry point for document ingestion: it creates a
// job and schedules the pipeline for it in one call.
type IngestService struct {
	jobs     *JobProcessor
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewIngestService creates an ingest service.
func NewIngestService(jobs *JobProcessor, pipeline *Pipeline, logger *slog.Logger) *IngestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestService{jobs: jobs, pipeline: pipeline, logger: logger.With("component", "ingest")}
}

// Submit records an ingest_pdf job and starts processing it. The returned
// job is the pending record as created; progress is read with GetJob.
//
// If the job was created but could not be scheduled, it is marked failed
// and returned together with the error.
func (s *IngestService) Submit(ctx context.Context, meta models.IngestMetadata) (*models.Job, *Handle, error) {
	metadata := models.JobMetadata{IngestPDF: &meta}
	job, err := s.jobs.CreateJob(ctx, models.JobTypeIngestPDF, metadata)
	if err != nil {
		return nil, nil, err
	}

	handle, err := s.Process(ctx, job.ID)
	if err != nil {
		s.logger.Error("failed to schedule job", "job_id", job.ID, "error", err)
		s.jobs.failJob(job.ID, "schedule job: "+err.Error())
		if failed, getErr := s.jobs.GetJob(context.WithoutCancel(ctx), job.ID); getErr == nil {
			job = failed
		}
		return job, nil, fmt.Errorf("process job %s: %w", job.ID, err)
	}
	return job, handle, nil
}

// Process starts the pipeline for an existing pending job.
func (s *IngestService) Process(ctx context.Context, jobID string) (*Handle, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return s.jobs.ProcessJob(ctx, jobID, s.pipeline.Func(job.Metadata))
}

func (s *IngestService) GetJob(ctx context.Context, id string) (*models.Job, error) {
	return s.jobs.GetJob(ctx, id)
}

func (s *IngestService) GetJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	return s.jobs.GetJobsByStatus(ctx, status)
}

func (s *IngestService) GetRecentJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	return s.jobs.GetRecentJobs(ctx, limit)
}

func (s *IngestService) Cancel(ctx context.Context, id string) (*models.Job, error) {
	return s.jobs.Cancel(ctx, id)
}
