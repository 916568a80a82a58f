package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/docingest/internal/embedding"
	"github.com/raphaelgruber/docingest/internal/extract"
	"github.com/raphaelgruber/docingest/internal/kb"
	"github.com/raphaelgruber/docingest/internal/metrics"
	"github.com/raphaelgruber/docingest/internal/models"
	"github.com/raphaelgruber/docingest/internal/parser"
	"github.com/raphaelgruber/docingest/internal/source"
)

// Progress checkpoints of the pipeline stages.
const (
	pctDownloading   = 10
	pctParsing       = 30
	pctChunking      = 50
	pctEmbeddingFrom = 70
	pctEmbeddingTo   = 90
	pctStoring       = 90
	pctComplete      = 100

	// embedReportEvery bounds progress writes during the embedding stage.
	embedReportEvery = 10
)

// DocumentFetcher resolves ingestion metadata into raw document bytes.
type DocumentFetcher interface {
	Fetch(ctx context.Context, meta *models.IngestMetadata) (*source.Document, error)
}

// TextExtractor turns document bytes into text.
type TextExtractor interface {
	Extract(ctx context.Context, name string, data []byte) (*extract.Result, error)
}

// ChunkEmbedder embeds chunks, returning one result per chunk in order.
type ChunkEmbedder interface {
	EmbedChunks(ctx context.Context, chunks []models.Chunk, progress embedding.ProgressFunc) ([]models.EmbeddingResult, error)
}

// ProgressReporter records pipeline progress on a job.
type ProgressReporter interface {
	Report(ctx context.Context, jobID string, p models.Progress)
	Fail(ctx context.Context, jobID string, err error)
}

// JobTracker is the slice of the job processor the pipeline needs.
type JobTracker interface {
	GetJob(ctx context.Context, id string) (*models.Job, error)
	SaveJobResult(ctx context.Context, id string, result models.JobResult) error
}

// PipelineDeps holds the collaborators of a Pipeline.
type PipelineDeps struct {
	Fetcher   DocumentFetcher
	Extractor TextExtractor
	Embedder  ChunkEmbedder
	KB        kb.KnowledgeBase
	Reporter  ProgressReporter
	Jobs      JobTracker
	Chunking  parser.ChunkOptions
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Pipeline runs the download → parse → chunk → embed → store stages for
// one ingestion job.
type Pipeline struct {
	deps   PipelineDeps
	logger *slog.Logger
}

// NewPipeline creates a pipeline. A zero Chunking uses DefaultChunkOptions.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Chunking == (parser.ChunkOptions{}) {
		deps.Chunking = parser.DefaultChunkOptions()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{deps: deps, logger: logger.With("component", "pipeline")}
}

// Func binds the pipeline to a job for JobProcessor.ProcessJob.
func (p *Pipeline) Func(metadata models.JobMetadata) PipelineFunc {
	return func(ctx context.Context, jobID string) error {
		return p.Run(ctx, jobID, metadata)
	}
}

// errCancelled stops the stage loop when the job was cancelled externally.
var errCancelled = errors.New("job cancelled")

// Run executes every stage in order. Stage failures are reported on the job
// as a failed step and returned. A job cancelled between stages stops
// silently and Run returns nil.
func (p *Pipeline) Run(ctx context.Context, jobID string, metadata models.JobMetadata) error {
	logger := p.logger.With("job_id", jobID)
	start := time.Now()

	err := p.run(ctx, jobID, metadata, logger)
	p.deps.Metrics.ObserveStage(metrics.OpJob, time.Since(start))

	switch {
	case err == nil:
		logger.Info("ingestion completed", "duration", time.Since(start))
		return nil
	case errors.Is(err, errCancelled):
		logger.Info("ingestion cancelled", "duration", time.Since(start))
		return nil
	}

	logger.Error("ingestion failed", "error", err)
	reportCtx := ctx
	if ctx.Err() != nil {
		reportCtx = context.WithoutCancel(ctx)
	}
	p.deps.Reporter.Fail(reportCtx, jobID, err)
	return err
}

func (p *Pipeline) run(ctx context.Context, jobID string, metadata models.JobMetadata, logger *slog.Logger) error {
	if metadata.IngestPDF == nil {
		return &StageError{Stage: models.StepDownloading, Err: fmt.Errorf("%w: %w", ErrInvalidInput, models.ErrMissingMetadata)}
	}
	meta := *metadata.IngestPDF
	if err := meta.Validate(); err != nil {
		return &StageError{Stage: models.StepDownloading, Err: fmt.Errorf("%w: %w", ErrInvalidInput, err)}
	}

	// downloading
	if err := p.checkpoint(ctx, jobID); err != nil {
		return err
	}
	p.report(ctx, jobID, models.StepDownloading, pctDownloading, "Downloading "+meta.SourceName(), nil)
	stageStart := time.Now()
	doc, err := p.deps.Fetcher.Fetch(ctx, &meta)
	if err != nil {
		return stageErr(models.StepDownloading, ErrDownload, err)
	}
	p.deps.Metrics.ObserveStage(metrics.OpDownload, time.Since(stageStart))
	logger.Debug("document downloaded", "name", doc.Name, "bytes", len(doc.Data))

	// parsing
	if err := p.checkpoint(ctx, jobID); err != nil {
		return err
	}
	p.report(ctx, jobID, models.StepParsing, pctParsing, "Extracting text", &models.ProgressDetails{FileName: doc.Name})
	stageStart = time.Now()
	extracted, err := p.deps.Extractor.Extract(ctx, doc.Name, doc.Data)
	if err != nil {
		return stageErr(models.StepParsing, ErrParse, err)
	}
	if strings.TrimSpace(extracted.Text) == "" {
		return stageErr(models.StepParsing, ErrParse, errors.New("text extraction produced no text"))
	}
	p.deps.Metrics.ObserveStage(metrics.OpParse, time.Since(stageStart))
	meta = resolveMetadata(meta, extracted.Hints, doc.Name)

	// chunking
	if err := p.checkpoint(ctx, jobID); err != nil {
		return err
	}
	p.report(ctx, jobID, models.StepChunking, pctChunking, "Splitting document into chunks",
		&models.ProgressDetails{TextLength: len(extracted.Text)})
	stageStart = time.Now()
	chunks := parser.Chunk(extracted.Text, p.deps.Chunking.Merge(meta.Options))
	if len(chunks) == 0 {
		return stageErr(models.StepChunking, ErrParse, errors.New("document produced no chunks"))
	}
	p.deps.Metrics.ObserveStage(metrics.OpChunk, time.Since(stageStart))
	logger.Debug("document chunked", "chunks", len(chunks), "text_length", len(extracted.Text))

	// embedding
	if err := p.checkpoint(ctx, jobID); err != nil {
		return err
	}
	total := len(chunks)
	p.report(ctx, jobID, models.StepEmbedding, pctEmbeddingFrom,
		fmt.Sprintf("Generating embeddings (0/%d)", total), &models.ProgressDetails{Total: total})
	stageStart = time.Now()
	results, err := p.deps.Embedder.EmbedChunks(ctx, chunks, func(done, total int) {
		if done%embedReportEvery != 0 && done != total {
			return
		}
		pct := pctEmbeddingFrom + (pctEmbeddingTo-pctEmbeddingFrom)*done/total
		p.report(ctx, jobID, models.StepEmbedding, pct,
			fmt.Sprintf("Generating embeddings (%d/%d)", done, total),
			&models.ProgressDetails{Current: done, Total: total})
	})
	if err != nil {
		return &StageError{Stage: models.StepEmbedding, Err: err}
	}
	failed := embedding.CountFailed(results)
	p.deps.Metrics.ObserveStage(metrics.OpEmbed, time.Since(stageStart))
	p.deps.Metrics.EmbeddingFailures(failed)
	if failed > 0 {
		logger.Warn("some chunks were stored without embeddings", "failed", failed, "total", total)
	}

	// storing
	if err := p.checkpoint(ctx, jobID); err != nil {
		return err
	}
	p.report(ctx, jobID, models.StepStoring, pctStoring, "Storing chunks", &models.ProgressDetails{Total: total})
	stageStart = time.Now()
	key := models.DocumentKey{
		Subject: meta.Subject,
		Grade:   meta.Grade,
		Chapter: meta.Chapter,
		Source:  doc.Name,
	}
	if meta.Options.DeleteOldChunks {
		deleted, err := p.deps.KB.DeleteChunks(ctx, key)
		if err != nil {
			return stageErr(models.StepStoring, ErrStore, fmt.Errorf("delete old chunks: %w", err))
		}
		logger.Info("deleted old chunks", "count", deleted)
	}
	stored, err := p.deps.KB.StoreChunks(ctx, key, buildRecords(chunks, results, meta, doc.Name))
	if err != nil {
		return stageErr(models.StepStoring, ErrStore, err)
	}
	if stored != total {
		return stageErr(models.StepStoring, ErrStore, fmt.Errorf("stored %d of %d chunks", stored, total))
	}
	p.deps.Metrics.ObserveStage(metrics.OpStore, time.Since(stageStart))
	p.report(ctx, jobID, models.StepStoring, pctComplete, fmt.Sprintf("Stored %d chunks", stored),
		&models.ProgressDetails{Current: stored, Total: total})

	// complete
	result := models.JobResult{
		ChunksProcessed:  total,
		EmbeddingCount:   total - failed,
		FailedEmbeddings: failed,
		Stored:           stored,
	}
	if err := p.deps.Jobs.SaveJobResult(ctx, jobID, result); err != nil {
		logger.Warn("failed to save job result", "error", err)
	}
	p.report(ctx, jobID, models.StepComplete, pctComplete,
		fmt.Sprintf("Ingested %d chunks from %s", stored, doc.Name), nil)
	return nil
}

// checkpoint runs at every stage boundary. It stops the pipeline when the
// job was cancelled or the context is done.
func (p *Pipeline) checkpoint(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	job, err := p.deps.Jobs.GetJob(ctx, jobID)
	if err != nil {
		p.logger.Warn("failed to check job status", "job_id", jobID, "error", err)
		return nil
	}
	if job.Status == models.JobStatusCancelled {
		return errCancelled
	}
	return nil
}

func (p *Pipeline) report(ctx context.Context, jobID string, step models.ProgressStep, pct int, msg string, details *models.ProgressDetails) {
	p.deps.Reporter.Report(ctx, jobID, models.Progress{
		Step:       step,
		Percentage: pct,
		Message:    msg,
		Details:    details,
	})
}

func buildRecords(chunks []models.Chunk, results []models.EmbeddingResult, meta models.IngestMetadata, sourceName string) []models.ChunkRecord {
	records := make([]models.ChunkRecord, len(chunks))
	for i, c := range chunks {
		md := map[string]string{"source": sourceName}
		for k, v := range map[string]string{
			"subject": meta.Subject,
			"grade":   meta.Grade,
			"chapter": meta.Chapter,
			"title":   meta.Title,
			"heading": c.HeadingPath(),
		} {
			if v != "" {
				md[k] = v
			}
		}
		records[i] = models.ChunkRecord{
			Index:            c.Index,
			Content:          c.Content,
			HeadingHierarchy: c.HeadingHierarchy,
			Embedding:        results[i].Embedding,
			Metadata:         md,
		}
	}
	return records
}
