// Package httpapi exposes the job lifecycle over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/docingest/internal/models"
	"github.com/raphaelgruber/docingest/internal/service"
)

const maxListLimit = 200

// JobService is the job lifecycle the handlers drive.
type JobService interface {
	Submit(ctx context.Context, meta models.IngestMetadata) (*models.Job, *service.Handle, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	GetJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error)
	GetRecentJobs(ctx context.Context, limit int) ([]*models.Job, error)
	Cancel(ctx context.Context, id string) (*models.Job, error)
}

// CreateJobRequest is the body of POST /v1/jobs. Type defaults to ingest_pdf.
type CreateJobRequest struct {
	Type     models.JobType         `json:"type"`
	Metadata *models.IngestMetadata `json:"metadata" binding:"required"`
}

// JobList is the body of GET /v1/jobs.
type JobList struct {
	Jobs  []models.StatusView `json:"jobs"`
	Count int                 `json:"count"`
}

// JobHandler serves the /v1/jobs routes.
type JobHandler struct {
	jobs JobService
}

// NewJobHandler creates a handler backed by jobs.
func NewJobHandler(jobs JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

func (h *JobHandler) CreateJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Type == "" {
		req.Type = models.JobTypeIngestPDF
	}
	if req.Type != models.JobTypeIngestPDF {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown job type: " + string(req.Type)})
		return
	}

	job, _, err := h.jobs.Submit(c.Request.Context(), *req.Metadata)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Location", "/v1/jobs/"+job.ID)
	c.JSON(http.StatusAccepted, job.StatusView())
}

func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job.StatusView())
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = min(n, maxListLimit)
	}

	var (
		jobs []*models.Job
		err  error
	)
	if status := c.Query("status"); status != "" {
		jobs, err = h.jobs.GetJobsByStatus(c.Request.Context(), models.JobStatus(status))
		if err == nil && limit > 0 && len(jobs) > limit {
			jobs = jobs[:limit]
		}
	} else {
		jobs, err = h.jobs.GetRecentJobs(c.Request.Context(), limit)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	views := make([]models.StatusView, len(jobs))
	for i, j := range jobs {
		views[i] = j.StatusView()
	}
	c.JSON(http.StatusOK, JobList{Jobs: views, Count: len(views)})
}

func (h *JobHandler) CancelJob(c *gin.Context) {
	job, err := h.jobs.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job.StatusView())
}

// writeError maps service errors onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyProcessing), errors.Is(err, service.ErrJobFinished):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
