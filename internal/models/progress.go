package models

// ProgressStep names the pipeline stage a progress report belongs to.
type ProgressStep string

const (
	StepDownloading ProgressStep = "downloading"
	StepParsing     ProgressStep = "parsing"
	StepChunking    ProgressStep = "chunking"
	StepEmbedding   ProgressStep = "embedding"
	StepStoring     ProgressStep = "storing"
	StepComplete    ProgressStep = "complete"
	StepFailed      ProgressStep = "failed"
)

// TerminalStatus maps the complete/failed steps to the job status they
// imply. ok is false for every other step.
func (s ProgressStep) TerminalStatus() (status JobStatus, ok bool) {
	switch s {
	case StepComplete:
		return JobStatusCompleted, true
	case StepFailed:
		return JobStatusFailed, true
	}
	return "", false
}

// Progress is a structured status update attached to a job.
type Progress struct {
	Step       ProgressStep     `json:"step"`
	Percentage int              `json:"percentage"`
	Message    string           `json:"message"`
	Details    *ProgressDetails `json:"details,omitempty"`
}

// ProgressDetails carries optional counters for the current step.
type ProgressDetails struct {
	Current    int    `json:"current,omitempty"`
	Total      int    `json:"total,omitempty"`
	FileName   string `json:"file_name,omitempty"`
	TextLength int    `json:"text_length,omitempty"`
}

func clampPercentage(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
