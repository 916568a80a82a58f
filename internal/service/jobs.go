// Package service provides the job lifecycle and the ingestion pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/raphaelgruber/docingest/internal/jobstore"
	"github.com/raphaelgruber/docingest/internal/metrics"
	"github.com/raphaelgruber/docingest/internal/models"
)

const (
	defaultConcurrency = 4
	defaultRecentLimit = 20

	interruptedError = "interrupted: the process stopped before the job finished"
)

// PipelineFunc runs the work of one job. It reports its own progress and
// terminal step; a returned error is only used when the job was left
// non-terminal.
type PipelineFunc func(ctx context.Context, jobID string) error

// JobNotifier is told about status changes the processor makes itself.
type JobNotifier interface {
	Publish(ctx context.Context, job *models.Job)
}

// Handle tracks a scheduled pipeline run.
type Handle struct {
	JobID string
	done  chan struct{}
	err   error
}

// Done is closed when the pipeline returns.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the pipeline returns or ctx is done. Pipeline failures
// are recorded on the job, not returned here.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the pipeline's error once Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// JobProcessor creates jobs and schedules their pipelines on a bounded
// worker pool.
type JobProcessor struct {
	store    jobstore.Store
	pool     *ants.Pool
	metrics  *metrics.Metrics
	notifier JobNotifier
	logger   *slog.Logger

	// ctx outlives the requests that trigger jobs; Shutdown cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running map[string]struct{}
}

// ProcessorOption configures a JobProcessor.
type ProcessorOption func(*processorConfig)

type processorConfig struct {
	concurrency int
	metrics     *metrics.Metrics
	notifier    JobNotifier
	logger      *slog.Logger
}

// WithWorkers caps how many pipelines run at once.
func WithWorkers(n int) ProcessorOption {
	return func(c *processorConfig) { c.concurrency = n }
}

// WithMetrics records job outcomes on m.
func WithMetrics(m *metrics.Metrics) ProcessorOption {
	return func(c *processorConfig) { c.metrics = m }
}

// WithJobNotifier publishes cancels and processor-side failures to n.
func WithJobNotifier(n JobNotifier) ProcessorOption {
	return func(c *processorConfig) { c.notifier = n }
}

// WithProcessorLogger sets the logger.
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(c *processorConfig) { c.logger = l }
}

// NewJobProcessor creates a processor backed by store.
func NewJobProcessor(store jobstore.Store, opts ...ProcessorOption) (*JobProcessor, error) {
	cfg := processorConfig{concurrency: defaultConcurrency}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.concurrency <= 0 {
		cfg.concurrency = defaultConcurrency
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	logger := cfg.logger.With("component", "jobs")
	pool, err := ants.NewPool(cfg.concurrency, ants.WithPanicHandler(func(r any) {
		logger.Error("job worker panicked", "panic", r)
	}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &JobProcessor{
		store:    store,
		pool:     pool,
		metrics:  cfg.metrics,
		notifier: cfg.notifier,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		running:  make(map[string]struct{}),
	}, nil
}

// CreateJob validates the metadata and records a pending job. No pipeline
// work starts until ProcessJob.
func (p *JobProcessor) CreateJob(ctx context.Context, jobType models.JobType, metadata models.JobMetadata) (*models.Job, error) {
	if err := metadata.Validate(jobType); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	job := &models.Job{
		ID:       uuid.New().String(),
		Type:     jobType,
		Status:   models.JobStatusPending,
		Metadata: metadata,
	}
	if err := p.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	p.logger.Info("job created", "job_id", job.ID, "type", jobType)
	return p.store.Get(ctx, job.ID)
}

// ProcessJob moves the job to processing and schedules fn on the worker
// pool. It returns as soon as the job is queued.
//
// A job that is already processing, or already queued by this processor,
// fails with ErrAlreadyProcessing. A terminal job fails with ErrJobFinished.
func (p *JobProcessor) ProcessJob(ctx context.Context, jobID string, fn PipelineFunc) (*Handle, error) {
	p.mu.Lock()
	if _, ok := p.running[jobID]; ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessing, jobID)
	}
	p.running[jobID] = struct{}{}
	p.mu.Unlock()

	handle, err := p.start(ctx, jobID, fn)
	if err != nil {
		p.release(jobID)
		return nil, err
	}
	return handle, nil
}

func (p *JobProcessor) start(ctx context.Context, jobID string, fn PipelineFunc) (*Handle, error) {
	job, err := p.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	switch {
	case job.Status.IsTerminal():
		return nil, fmt.Errorf("%w: %s is %s", ErrJobFinished, jobID, job.Status)
	case job.Status == models.JobStatusProcessing:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessing, jobID)
	}

	status := models.JobStatusProcessing
	job, err = p.store.Update(ctx, jobID, models.JobUpdate{Status: &status})
	if err != nil {
		return nil, fmt.Errorf("start job: %w", err)
	}
	if job.Status != models.JobStatusProcessing {
		// Cancelled between the read and the write.
		return nil, fmt.Errorf("%w: %s is %s", ErrJobFinished, jobID, job.Status)
	}

	handle := &Handle{JobID: jobID, done: make(chan struct{})}
	go p.submit(handle, fn)

	p.logger.Info("job scheduled", "job_id", jobID, "running", p.pool.Running())
	return handle, nil
}

// submit blocks until a worker is free, so it runs off the caller's goroutine.
func (p *JobProcessor) submit(h *Handle, fn PipelineFunc) {
	if err := p.pool.Submit(func() { p.execute(h, fn) }); err != nil {
		p.logger.Error("failed to schedule job", "job_id", h.JobID, "error", err)
		h.err = fmt.Errorf("schedule job: %w", err)
		p.failJob(h.JobID, h.err.Error())
		p.release(h.JobID)
		close(h.done)
	}
}

func (p *JobProcessor) execute(h *Handle, fn PipelineFunc) {
	p.metrics.JobStarted()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job goroutine panicked", "job_id", h.JobID, "panic", r)
			h.err = fmt.Errorf("internal panic: %v", r)
			p.failJob(h.JobID, h.err.Error())
		}
		p.finish(h.JobID)
		p.metrics.JobDone()
		p.release(h.JobID)
		close(h.done)
	}()

	h.err = fn(p.ctx, h.JobID)
	if h.err != nil {
		p.failJob(h.JobID, h.err.Error())
	}
}

// finish records the outcome of a job whose pipeline returned.
func (p *JobProcessor) finish(jobID string) {
	job, err := p.store.Get(context.Background(), jobID)
	if err != nil {
		p.logger.Warn("failed to read finished job", "job_id", jobID, "error", err)
		return
	}
	if !job.Status.IsTerminal() {
		p.logger.Warn("pipeline returned without a terminal status", "job_id", jobID, "status", job.Status)
		return
	}
	p.metrics.JobFinished(string(job.Status))
}

// failJob marks a job failed unless it already reached a terminal status.
func (p *JobProcessor) failJob(jobID, msg string) {
	if job, err := p.store.Get(context.Background(), jobID); err == nil && job.Status.IsTerminal() {
		return
	}
	status := models.JobStatusFailed
	job, err := p.store.Update(context.Background(), jobID, models.JobUpdate{
		Status: &status,
		Error:  &msg,
	})
	if err != nil {
		p.logger.Warn("failed to persist job failure", "job_id", jobID, "error", err)
		return
	}
	p.publish(context.Background(), job)
}

// publish tells the notifier about a job that reached a terminal status.
func (p *JobProcessor) publish(ctx context.Context, job *models.Job) {
	if p.notifier == nil || !job.Status.IsTerminal() {
		return
	}
	p.notifier.Publish(ctx, job)
}

func (p *JobProcessor) release(jobID string) {
	p.mu.Lock()
	delete(p.running, jobID)
	p.mu.Unlock()
}

// IsRunning reports whether this processor is executing the job.
func (p *JobProcessor) IsRunning(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.running[jobID]
	return ok
}

// GetJob returns the job or ErrNotFound.
func (p *JobProcessor) GetJob(ctx context.Context, id string) (*models.Job, error) {
	return p.store.Get(ctx, id)
}

// GetJobsByStatus lists jobs with status, newest first.
func (p *JobProcessor) GetJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return p.store.ListByStatus(ctx, status)
}

// GetRecentJobs lists up to limit jobs, newest first.
func (p *JobProcessor) GetRecentJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return p.store.ListRecent(ctx, limit)
}

// SaveJobResult attaches result to the job without touching its status.
func (p *JobProcessor) SaveJobResult(ctx context.Context, id string, result models.JobResult) error {
	_, err := p.store.Update(ctx, id, models.JobUpdate{Result: &result})
	return err
}

// Cancel marks the job cancelled unless it already finished. The pipeline
// stops at its next stage boundary.
func (p *JobProcessor) Cancel(ctx context.Context, id string) (*models.Job, error) {
	job, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return job, nil
	}

	status := models.JobStatusCancelled
	job, err = p.store.Update(ctx, id, models.JobUpdate{Status: &status})
	if err != nil {
		return nil, fmt.Errorf("cancel job: %w", err)
	}
	if job.Status == models.JobStatusCancelled && !p.IsRunning(id) {
		p.metrics.JobFinished(string(job.Status))
	}
	p.publish(ctx, job)
	p.logger.Info("job cancelled", "job_id", id, "status", job.Status)
	return job, nil
}

// RecoverInterrupted fails jobs left processing by a previous process. Jobs
// are never retried automatically; the caller submits a new job instead.
func (p *JobProcessor) RecoverInterrupted(ctx context.Context) (int, error) {
	jobs, err := p.store.ListByStatus(ctx, models.JobStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("list processing jobs: %w", err)
	}
	if len(jobs) == 0 {
		p.logger.Info("no interrupted jobs to recover")
		return 0, nil
	}

	recovered := 0
	for _, job := range jobs {
		if p.IsRunning(job.ID) {
			continue
		}
		status := models.JobStatusFailed
		msg := interruptedError
		if _, err := p.store.Update(ctx, job.ID, models.JobUpdate{Status: &status, Error: &msg}); err != nil {
			if errors.Is(err, jobstore.ErrNotFound) {
				continue
			}
			return recovered, fmt.Errorf("fail interrupted job %s: %w", job.ID, err)
		}
		p.metrics.JobFinished(string(status))
		recovered++
	}
	p.logger.Info("recovered interrupted jobs", "count", recovered)
	return recovered, nil
}

// Shutdown waits up to timeout for running pipelines, then cancels the
// ones still in flight.
func (p *JobProcessor) Shutdown(timeout time.Duration) error {
	err := p.pool.ReleaseTimeout(timeout)
	p.cancel()
	if err != nil {
		return fmt.Errorf("shutdown workers: %w", err)
	}
	return nil
}
