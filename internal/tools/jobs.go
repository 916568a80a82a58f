package tools

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/docingest/internal/models"
)

// IngestDocumentInput defines the input schema for ingest_document.
type IngestDocumentInput struct {
	FileURL         string `json:"file_url,omitempty" jsonschema:"HTTP(S) URL of the document. Mutually exclusive with file_id"`
	FileID          string `json:"file_id,omitempty" jsonschema:"Object key in the configured storage bucket. Mutually exclusive with file_url"`
	FileName        string `json:"file_name,omitempty" jsonschema:"Display name of the document"`
	Subject         string `json:"subject,omitempty" jsonschema:"Subject, e.g. math"`
	Grade           string `json:"grade,omitempty" jsonschema:"Grade level"`
	Chapter         string `json:"chapter,omitempty" jsonschema:"Chapter number or name"`
	Title           string `json:"title,omitempty" jsonschema:"Document title"`
	MaxChunkSize    int    `json:"max_chunk_size,omitempty" jsonschema:"Maximum characters per chunk"`
	Overlap         int    `json:"overlap,omitempty" jsonschema:"Characters shared between consecutive chunks"`
	SkipChunking    bool   `json:"skip_chunking,omitempty" jsonschema:"Store the whole document as one chunk"`
	DeleteOldChunks bool   `json:"delete_old_chunks,omitempty" jsonschema:"Replace chunks previously stored for the same document"`
}

func (in IngestDocumentInput) metadata() models.IngestMetadata {
	return models.IngestMetadata{
		FileURL:  strings.TrimSpace(in.FileURL),
		FileID:   strings.TrimSpace(in.FileID),
		FileName: in.FileName,
		Subject:  in.Subject,
		Grade:    in.Grade,
		Chapter:  in.Chapter,
		Title:    in.Title,
		Options: models.IngestOptions{
			SkipChunking:    in.SkipChunking,
			MaxChunkSize:    in.MaxChunkSize,
			Overlap:         in.Overlap,
			DeleteOldChunks: in.DeleteOldChunks,
		},
	}
}

// JobIDInput identifies one job.
type JobIDInput struct {
	JobID string `json:"job_id" jsonschema:"required,Job id returned by ingest_document"`
}

// ListJobsInput defines the input schema for list_jobs.
type ListJobsInput struct {
	Status string `json:"status,omitempty" jsonschema:"Filter by status: pending, processing, completed, failed, cancelled"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum jobs to return (default 20)"`
}

// ListJobsResult is the response from list_jobs.
type ListJobsResult struct {
	Jobs  []models.StatusView `json:"jobs"`
	Count int                 `json:"count"`
}

// NewIngestDocumentHandler creates the ingest_document tool handler.
func NewIngestDocumentHandler(deps *Dependencies) mcp.ToolHandlerFor[IngestDocumentInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IngestDocumentInput) (*mcp.CallToolResult, any, error) {
		job, _, err := deps.Jobs.Submit(ctx, input.metadata())
		if err != nil {
			deps.logger().Warn("ingest_document failed", "error", err)
			return serviceError(err), nil, nil
		}
		deps.logger().Info("ingest_document queued", "job_id", job.ID)
		return JSONResult(job.StatusView()), nil, nil
	}
}

// NewGetJobHandler creates the get_job tool handler.
func NewGetJobHandler(deps *Dependencies) mcp.ToolHandlerFor[JobIDInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input JobIDInput) (*mcp.CallToolResult, any, error) {
		id := strings.TrimSpace(input.JobID)
		if id == "" {
			return ErrorResult("job_id is required", ""), nil, nil
		}
		job, err := deps.Jobs.GetJob(ctx, id)
		if err != nil {
			return serviceError(err), nil, nil
		}
		return JSONResult(job.StatusView()), nil, nil
	}
}

// NewListJobsHandler creates the list_jobs tool handler.
func NewListJobsHandler(deps *Dependencies) mcp.ToolHandlerFor[ListJobsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListJobsInput) (*mcp.CallToolResult, any, error) {
		var (
			jobs []*models.Job
			err  error
		)
		if input.Status != "" {
			jobs, err = deps.Jobs.GetJobsByStatus(ctx, models.JobStatus(strings.ToLower(input.Status)))
			if err == nil && input.Limit > 0 && len(jobs) > input.Limit {
				jobs = jobs[:input.Limit]
			}
		} else {
			jobs, err = deps.Jobs.GetRecentJobs(ctx, input.Limit)
		}
		if err != nil {
			return serviceError(err), nil, nil
		}

		result := ListJobsResult{Jobs: make([]models.StatusView, len(jobs)), Count: len(jobs)}
		for i, j := range jobs {
			result.Jobs[i] = j.StatusView()
		}
		return JSONResult(result), nil, nil
	}
}

// NewCancelJobHandler creates the cancel_job tool handler.
func NewCancelJobHandler(deps *Dependencies) mcp.ToolHandlerFor[JobIDInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input JobIDInput) (*mcp.CallToolResult, any, error) {
		id := strings.TrimSpace(input.JobID)
		if id == "" {
			return ErrorResult("job_id is required", ""), nil, nil
		}
		job, err := deps.Jobs.Cancel(ctx, id)
		if err != nil {
			return serviceError(err), nil, nil
		}
		deps.logger().Info("cancel_job", "job_id", id, "status", job.Status)
		return JSONResult(job.StatusView()), nil, nil
	}
}
