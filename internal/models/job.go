// Package models defines the data structures shared by the ingestion core.
package models

import (
	"errors"
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// JobType selects the pipeline a job runs.
type JobType string

const (
	JobTypeIngestPDF JobType = "ingest_pdf"
)

// Job is a tracked unit of asynchronous work.
type Job struct {
	ID        string      `json:"id"`
	Type      JobType     `json:"type"`
	Status    JobStatus   `json:"status"`
	Progress  *Progress   `json:"progress,omitempty"`
	Metadata  JobMetadata `json:"metadata"`
	Result    *JobResult  `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// JobResult is the output payload attached to a finished ingestion job.
type JobResult struct {
	ChunksProcessed  int `json:"chunksProcessed"`
	EmbeddingCount   int `json:"embeddingCount"`
	FailedEmbeddings int `json:"failedEmbeddings"`
	Stored           int `json:"stored"`
}

// JobMetadata holds the typed input of a job. Exactly one field is set,
// matching the job's Type.
type JobMetadata struct {
	IngestPDF *IngestMetadata `json:"ingest_pdf,omitempty"`
}

// Errors returned by metadata validation.
var (
	ErrUnknownJobType   = errors.New("unknown job type")
	ErrMissingMetadata  = errors.New("missing metadata for job type")
	ErrAmbiguousSource  = errors.New("exactly one of file_url or file_id is required")
	ErrInvalidChunkSize = errors.New("invalid chunking options")
)

// Validate checks that the variant matching jobType is present and well formed.
func (m JobMetadata) Validate(jobType JobType) error {
	switch jobType {
	case JobTypeIngestPDF:
		if m.IngestPDF == nil {
			return fmt.Errorf("%w: %s", ErrMissingMetadata, jobType)
		}
		return m.IngestPDF.Validate()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJobType, jobType)
	}
}

// IngestMetadata is the input of an ingest_pdf job.
type IngestMetadata struct {
	FileURL  string        `json:"file_url,omitempty"`
	FileID   string        `json:"file_id,omitempty"`
	FileName string        `json:"file_name,omitempty"`
	Subject  string        `json:"subject,omitempty"`
	Grade    string        `json:"grade,omitempty"`
	Chapter  string        `json:"chapter,omitempty"`
	Title    string        `json:"title,omitempty"`
	Options  IngestOptions `json:"options"`
}

// IngestOptions tunes chunking and storage for one ingestion.
type IngestOptions struct {
	SkipChunking    bool `json:"skip_chunking,omitempty"`
	MaxChunkSize    int  `json:"max_chunk_size,omitempty"`
	Overlap         int  `json:"overlap,omitempty"`
	DeleteOldChunks bool `json:"delete_old_chunks,omitempty"`
}

// Validate enforces the file_url/file_id exclusivity and sane chunk options.
func (m *IngestMetadata) Validate() error {
	hasURL := m.FileURL != ""
	hasID := m.FileID != ""
	if hasURL == hasID {
		return ErrAmbiguousSource
	}
	if m.Options.MaxChunkSize < 0 || m.Options.Overlap < 0 {
		return fmt.Errorf("%w: negative size", ErrInvalidChunkSize)
	}
	if m.Options.MaxChunkSize > 0 && m.Options.Overlap >= m.Options.MaxChunkSize {
		return fmt.Errorf("%w: overlap %d must be smaller than max chunk size %d",
			ErrInvalidChunkSize, m.Options.Overlap, m.Options.MaxChunkSize)
	}
	return nil
}

// SourceName returns the best available name for the ingested file.
func (m *IngestMetadata) SourceName() string {
	switch {
	case m.FileName != "":
		return m.FileName
	case m.FileID != "":
		return m.FileID
	default:
		return m.FileURL
	}
}

// JobUpdate is a partial update merged into a stored job. Nil fields are
// left untouched.
type JobUpdate struct {
	Status   *JobStatus
	Progress *Progress
	Result   *JobResult
	Error    *string
}

// Apply merges u into j and refreshes UpdatedAt.
//
// A terminal status is absorbing: status and progress writes on a terminal
// job are dropped. Progress percentage never moves backwards; a lower value
// is clamped to the last stored one. Error only sticks on failed jobs.
func (j *Job) Apply(u JobUpdate, now time.Time) {
	terminal := j.Status.IsTerminal()

	if u.Status != nil && !terminal {
		j.Status = *u.Status
	}
	if u.Progress != nil && !terminal {
		p := *u.Progress
		p.Percentage = clampPercentage(p.Percentage)
		if j.Progress != nil && p.Percentage < j.Progress.Percentage {
			p.Percentage = j.Progress.Percentage
		}
		if p.Details != nil {
			d := *p.Details
			p.Details = &d
		}
		j.Progress = &p
	}
	if u.Result != nil {
		r := *u.Result
		j.Result = &r
	}
	if u.Error != nil && j.Status == JobStatusFailed {
		j.Error = *u.Error
	}
	if j.Status != JobStatusFailed {
		j.Error = ""
	}
	if now.After(j.UpdatedAt) {
		j.UpdatedAt = now
	} else {
		j.UpdatedAt = j.UpdatedAt.Add(time.Nanosecond)
	}
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	c := *j
	if j.Progress != nil {
		p := *j.Progress
		if p.Details != nil {
			d := *p.Details
			p.Details = &d
		}
		c.Progress = &p
	}
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	if j.Metadata.IngestPDF != nil {
		m := *j.Metadata.IngestPDF
		c.Metadata.IngestPDF = &m
	}
	return &c
}

// StatusView is the read-only projection served to polling clients.
type StatusView struct {
	JobID     string      `json:"job_id"`
	Filename  string      `json:"filename"`
	Status    JobStatus   `json:"status"`
	Progress  int         `json:"progress"`
	Step      string      `json:"step,omitempty"`
	Message   string      `json:"message"`
	Error     string      `json:"error,omitempty"`
	Metadata  JobMetadata `json:"metadata"`
	Result    *JobResult  `json:"result,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// StatusView builds the polling projection of j.
func (j *Job) StatusView() StatusView {
	v := StatusView{
		JobID:     j.ID,
		Status:    j.Status,
		Metadata:  j.Metadata,
		Result:    j.Result,
		Error:     j.Error,
		CreatedAt: j.CreatedAt,
	}
	if j.Metadata.IngestPDF != nil {
		v.Filename = j.Metadata.IngestPDF.SourceName()
	}
	if j.Progress != nil {
		v.Progress = j.Progress.Percentage
		v.Step = string(j.Progress.Step)
		v.Message = j.Progress.Message
	}
	if j.Status == JobStatusFailed && j.Error != "" {
		v.Message = j.Error
	}
	return v
}
