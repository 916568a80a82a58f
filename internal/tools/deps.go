// Package tools provides MCP tool handlers and registration.
package tools

import (
	"context"
	"log/slog"

	"github.com/raphaelgruber/docingest/internal/models"
	"github.com/raphaelgruber/docingest/internal/service"
)

// JobService is the job lifecycle the tools drive.
type JobService interface {
	Submit(ctx context.Context, meta models.IngestMetadata) (*models.Job, *service.Handle, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	GetJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error)
	GetRecentJobs(ctx context.Context, limit int) ([]*models.Job, error)
	Cancel(ctx context.Context, id string) (*models.Job, error)
}

// Dependencies holds shared services for tool handlers.
// Passed to handler factories via closure capture.
type Dependencies struct {
	Jobs   JobService
	Logger *slog.Logger
}

func (d *Dependencies) logger() *slog.Logger {
	if d == nil || d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
