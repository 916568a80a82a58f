// Package progress records pipeline progress on jobs and fans it out to
// live subscribers.
package progress

import (
	"context"
	"log/slog"
	"time"

	"github.com/raphaelgruber/docingest/internal/jobstore"
	"github.com/raphaelgruber/docingest/internal/models"
)

// Event is a progress update as seen by subscribers.
type Event struct {
	JobID     string           `json:"job_id"`
	Status    models.JobStatus `json:"status"`
	Progress  models.Progress  `json:"progress"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Terminal reports whether e is the last event a job will emit.
func (e Event) Terminal() bool {
	return e.Status.IsTerminal()
}

// Notifier receives every persisted progress event.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Reporter persists progress on the job store. Every call performs exactly
// one store update; a failing store write is logged and dropped so that
// reporting never breaks the pipeline it instruments.
type Reporter struct {
	store     jobstore.Store
	notifiers []Notifier
	logger    *slog.Logger
}

// NewReporter creates a reporter writing to store.
func NewReporter(store jobstore.Store, logger *slog.Logger, notifiers ...Notifier) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		store:     store,
		notifiers: notifiers,
		logger:    logger.With("component", "progress"),
	}
}

// Report records p on the job. Percentage is clamped to [0,100]; the store
// clamps it further to the last recorded value. The complete and failed
// steps also move the job to completed or failed.
func (r *Reporter) Report(ctx context.Context, jobID string, p models.Progress) {
	p.Percentage = min(max(p.Percentage, 0), 100)

	update := models.JobUpdate{Progress: &p}
	if status, ok := p.Step.TerminalStatus(); ok {
		update.Status = &status
		if status == models.JobStatusFailed {
			msg := p.Message
			update.Error = &msg
		}
	}

	job, err := r.store.Update(ctx, jobID, update)
	if err != nil {
		r.logger.Warn("failed to persist job progress",
			"job_id", jobID, "step", p.Step, "percentage", p.Percentage, "error", err)
		return
	}

	r.logger.Debug("progress",
		"job_id", jobID, "step", p.Step, "percentage", p.Percentage, "message", p.Message)

	r.Publish(ctx, job)
}

// Publish sends the job's current state to every notifier without writing
// to the store. It is used for status changes made outside the pipeline,
// such as a cancel.
func (r *Reporter) Publish(ctx context.Context, job *models.Job) {
	if len(r.notifiers) == 0 {
		return
	}
	event := Event{
		JobID:     job.ID,
		Status:    job.Status,
		Error:     job.Error,
		Timestamp: job.UpdatedAt,
	}
	if job.Progress != nil {
		event.Progress = *job.Progress
	}
	for _, n := range r.notifiers {
		if err := n.Notify(ctx, event); err != nil {
			r.logger.Warn("failed to notify progress", "job_id", job.ID, "error", err)
		}
	}
}

// Fail reports a failed step carrying err as the message.
func (r *Reporter) Fail(ctx context.Context, jobID string, err error) {
	r.Report(ctx, jobID, models.Progress{
		Step:    models.StepFailed,
		Message: err.Error(),
	})
}
