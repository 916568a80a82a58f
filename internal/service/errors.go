package service

import (
	"errors"
	"fmt"

	"github.com/raphaelgruber/docingest/internal/jobstore"
	"github.com/raphaelgruber/docingest/internal/models"
)

// Errors returned by the job processor and pipeline.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = jobstore.ErrNotFound
	ErrAlreadyProcessing = errors.New("job is already processing")
	ErrJobFinished       = errors.New("job already finished")
	ErrDownload          = errors.New("download failed")
	ErrParse             = errors.New("parse failed")
	ErrStore             = errors.New("store failed")
)

// StageError records the pipeline stage a job failed in.
type StageError struct {
	Stage models.ProgressStep
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage models.ProgressStep, kind, err error) error {
	if errors.Is(err, kind) {
		return &StageError{Stage: stage, Err: err}
	}
	return &StageError{Stage: stage, Err: fmt.Errorf("%w: %w", kind, err)}
}
