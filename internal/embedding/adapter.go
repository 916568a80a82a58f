package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/raphaelgruber/docingest/internal/models"
)

// ProgressFunc is called after each chunk is embedded with the number of
// chunks finished so far. Calls are serialized.
type ProgressFunc func(done, total int)

// Adapter turns an Embedder into the chunk-level embedding stage. A provider
// failure on one chunk yields an empty vector for that chunk and never fails
// the batch. The adapter does not retry.
type Adapter struct {
	embedder    Embedder
	limiter     *rate.Limiter
	concurrency int
	logger      *slog.Logger
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithRateLimit caps provider calls at perSecond with the given burst.
// perSecond <= 0 disables limiting.
func WithRateLimit(perSecond float64, burst int) AdapterOption {
	return func(a *Adapter) {
		if perSecond <= 0 {
			a.limiter = nil
			return
		}
		a.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// WithConcurrency embeds up to n chunks at once. n <= 1 is sequential.
func WithConcurrency(n int) AdapterOption {
	return func(a *Adapter) {
		a.concurrency = max(n, 1)
	}
}

// WithLogger sets the adapter's logger.
func WithLogger(logger *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// NewAdapter wraps e. Embedding is sequential unless WithConcurrency is set.
func NewAdapter(e Embedder, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		embedder:    e,
		concurrency: 1,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "embedding", "model", e.Model())
	return a
}

// Embedder returns the wrapped provider.
func (a *Adapter) Embedder() Embedder {
	return a.embedder
}

// Embed generates one vector. Any provider failure, including an empty
// vector, is reported as ErrEmbedding.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: rate limiter: %w", ErrEmbedding, err)
		}
	}
	vec, err := a.embedder.Embed(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrEmbedding)
	}
	return vec, nil
}

// EmbedChunks embeds every chunk and returns results index-aligned with
// chunks. Failed chunks get an empty, non-nil vector. The only error
// returned is the context's.
func (a *Adapter) EmbedChunks(ctx context.Context, chunks []models.Chunk, progress ProgressFunc) ([]models.EmbeddingResult, error) {
	results := make([]models.EmbeddingResult, len(chunks))
	total := len(chunks)

	var (
		mu   sync.Mutex
		done int
	)
	finish := func(i int, vec []float32) {
		results[i] = models.EmbeddingResult{Content: chunks[i].Content, Embedding: vec}
		mu.Lock()
		defer mu.Unlock()
		done++
		if progress != nil {
			progress(done, total)
		}
	}

	embedOne := func(ctx context.Context, i int) error {
		vec, err := a.Embed(ctx, chunks[i].Content)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("chunk embedding failed", "chunk_index", i, "error", err)
			vec = []float32{}
		}
		finish(i, vec)
		return nil
	}

	if a.concurrency <= 1 {
		for i := range chunks {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := embedOne(ctx, i); err != nil {
				return nil, err
			}
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return embedOne(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// CountFailed returns how many results carry an empty vector.
func CountFailed(results []models.EmbeddingResult) int {
	n := 0
	for _, r := range results {
		if r.Failed() {
			n++
		}
	}
	return n
}
