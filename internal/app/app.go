// Package app wires configuration into a running ingestion service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/docingest/internal/config"
	"github.com/raphaelgruber/docingest/internal/db"
	"github.com/raphaelgruber/docingest/internal/embedding"
	"github.com/raphaelgruber/docingest/internal/extract"
	"github.com/raphaelgruber/docingest/internal/jobstore"
	"github.com/raphaelgruber/docingest/internal/kb"
	"github.com/raphaelgruber/docingest/internal/metrics"
	"github.com/raphaelgruber/docingest/internal/parser"
	"github.com/raphaelgruber/docingest/internal/progress"
	"github.com/raphaelgruber/docingest/internal/service"
	"github.com/raphaelgruber/docingest/internal/source"
)

// App holds the wired components of the service.
type App struct {
	Config      config.Config
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Broadcaster *progress.Broadcaster
	Storage     source.Storage
	Jobs        jobstore.Store
	Processor   *service.JobProcessor
	Ingest      *service.IngestService

	closers []func(context.Context) error
}

// Option overrides a component built from config.
type Option func(*options)

type options struct {
	embedder embedding.Embedder
	storage  source.Storage
}

// WithEmbedder uses e instead of the configured provider.
func WithEmbedder(e embedding.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithStorage uses s instead of the configured object storage.
func WithStorage(s source.Storage) Option {
	return func(o *options) { o.storage = s }
}

// New builds every component described by cfg and fails interrupted jobs
// left over from a previous run.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{
		Config:      cfg,
		Logger:      logger,
		Metrics:     metrics.New(),
		Broadcaster: progress.NewBroadcaster(),
	}
	defer func() {
		if err != nil {
			_ = a.Shutdown(context.WithoutCancel(ctx), time.Second)
		}
	}()

	embedder := o.embedder
	if embedder == nil {
		embedder, err = embedding.New(ctx, embeddingConfig(cfg.Embedding))
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
	}
	dimension := embedder.Dimension()
	logger.Info("embedder ready", "provider", cfg.Embedding.Provider, "model", embedder.Model(), "dimension", dimension)

	var surreal *db.Client
	if cfg.UsesSurreal() {
		surreal, err = a.connectSurreal(ctx, dimension)
		if err != nil {
			return nil, err
		}
	}

	a.Jobs, err = a.openJobStore(surreal)
	if err != nil {
		return nil, err
	}

	knowledge, err := a.openKnowledgeBase(ctx, surreal, dimension)
	if err != nil {
		return nil, err
	}

	a.Storage = o.storage
	if a.Storage == nil {
		a.Storage, err = openStorage(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
	}

	notifiers := []progress.Notifier{a.Broadcaster}
	if cfg.Redis.Addr != "" {
		rdb, err := progress.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.onClose(func(context.Context) error { return rdb.Close() })
		notifiers = append(notifiers, progress.NewRedisNotifier(rdb))
		logger.Info("publishing progress to redis", "addr", cfg.Redis.Addr)
	}

	reporter := progress.NewReporter(a.Jobs, logger, notifiers...)
	a.Processor, err = service.NewJobProcessor(a.Jobs,
		service.WithWorkers(cfg.Jobs.Workers),
		service.WithMetrics(a.Metrics),
		service.WithJobNotifier(reporter),
		service.WithProcessorLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	pipeline := service.NewPipeline(service.PipelineDeps{
		Fetcher: source.NewFetcher(a.Storage, cfg.Storage.Bucket,
			source.WithTimeout(cfg.Fetch.Timeout),
			source.WithMaxBytes(cfg.Fetch.MaxBytes),
			source.WithFetchLogger(logger),
		),
		Extractor: extract.NewRegistry(),
		Embedder: embedding.NewAdapter(embedder,
			embedding.WithRateLimit(cfg.Embedding.RateLimit, cfg.Embedding.Burst),
			embedding.WithConcurrency(cfg.Embedding.Concurrency),
			embedding.WithLogger(logger),
		),
		KB:       knowledge,
		Reporter: reporter,
		Jobs:     a.Processor,
		Chunking: parser.ChunkOptions{
			MaxChunkSize: cfg.Chunking.MaxChunkSize,
			Overlap:      cfg.Chunking.Overlap,
		},
		Metrics: a.Metrics,
		Logger:  logger,
	})
	a.Ingest = service.NewIngestService(a.Processor, pipeline, logger)

	recovered, err := a.Processor.RecoverInterrupted(ctx)
	if err != nil {
		return nil, fmt.Errorf("recover interrupted jobs: %w", err)
	}
	if recovered > 0 {
		logger.Warn("failed jobs interrupted by a previous run", "count", recovered)
	}
	return a, nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

func (a *App) connectSurreal(ctx context.Context, dimension int) (*db.Client, error) {
	cfg := a.Config.SurrealDB
	client, err := db.NewClient(ctx, db.Config{
		URL:       cfg.URL,
		Namespace: cfg.Namespace,
		Database:  cfg.Database,
		Username:  cfg.User,
		Password:  cfg.Pass,
		AuthLevel: cfg.AuthLevel,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("connect surrealdb: %w", err)
	}
	a.onClose(client.Close)

	if err := client.InitSchema(ctx, dimension); err != nil {
		return nil, fmt.Errorf("init surrealdb schema: %w", err)
	}
	return client, nil
}

func (a *App) openJobStore(surreal *db.Client) (jobstore.Store, error) {
	switch a.Config.Jobs.Store {
	case "memory":
		return jobstore.NewMemoryStore(), nil
	case "badger":
		store, err := jobstore.OpenBadgerStore(a.Config.Jobs.BadgerDir, false, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("open badger job store: %w", err)
		}
		a.onClose(func(context.Context) error { return store.Close() })
		return store, nil
	case "surreal":
		return db.NewJobStore(surreal), nil
	default:
		return nil, fmt.Errorf("unknown job store %q", a.Config.Jobs.Store)
	}
}

func (a *App) openKnowledgeBase(ctx context.Context, surreal *db.Client, dimension int) (kb.KnowledgeBase, error) {
	switch a.Config.KB.Backend {
	case "memory":
		return kb.NewMemoryKB(), nil
	case "surreal":
		return db.NewKnowledgeBase(surreal), nil
	case "pgvector":
		store, err := kb.NewPGVectorStore(ctx, a.Config.KB.PostgresDSN, dimension)
		if err != nil {
			return nil, fmt.Errorf("connect pgvector: %w", err)
		}
		a.onClose(func(context.Context) error { store.Close(); return nil })
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("init pgvector schema: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown knowledge base backend %q", a.Config.KB.Backend)
	}
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (source.Storage, error) {
	switch cfg.Backend {
	case "local":
		return source.NewLocalStorage(cfg.Root), nil
	case "memory":
		return source.NewMemoryStorage(), nil
	case "s3":
		s, err := source.NewS3Storage(ctx, source.S3Config{Region: cfg.Region, Endpoint: cfg.Endpoint})
		if err != nil {
			return nil, fmt.Errorf("create s3 storage: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func embeddingConfig(cfg config.EmbeddingConfig) embedding.Config {
	return embedding.Config{
		Provider:     embedding.ProviderType(cfg.Provider),
		Model:        cfg.Model,
		Dimension:    cfg.Dimension,
		OllamaHost:   cfg.OllamaHost,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		VoyageAPIKey: cfg.VoyageAPIKey,
		AWSRegion:    cfg.AWSRegion,
	}
}

// Shutdown drains running jobs for up to timeout, then closes every
// connection.
func (a *App) Shutdown(ctx context.Context, timeout time.Duration) error {
	var errs []error
	if a.Processor != nil {
		if err := a.Processor.Shutdown(timeout); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases connections in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
