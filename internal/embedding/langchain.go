package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	DefaultOllamaModel     = "nomic-embed-text"
	DefaultOllamaDimension = 768
	DefaultOllamaHost      = "http://localhost:11434"

	DefaultOpenAIModel     = "text-embedding-3-small"
	DefaultOpenAIDimension = 1536
)

// LangchainClient embeds through langchaingo with dimension validation.
type LangchainClient struct {
	model     embeddings.Embedder
	dimension int
	modelName string
}

var _ Embedder = (*LangchainClient)(nil)

// NewLangchainClient creates an ollama or openai backed embedder.
func NewLangchainClient(provider ProviderType, cfg Config) (*LangchainClient, error) {
	var (
		model     embeddings.Embedder
		modelName = cfg.Model
		dimension = cfg.Dimension
		err       error
	)

	switch provider {
	case ProviderOllama:
		if modelName == "" {
			modelName = DefaultOllamaModel
		}
		if dimension == 0 {
			dimension = DefaultOllamaDimension
		}
		host := cfg.OllamaHost
		if host == "" {
			host = DefaultOllamaHost
		}
		llm, ollamaErr := ollama.New(
			ollama.WithModel(modelName),
			ollama.WithServerURL(host),
		)
		if ollamaErr != nil {
			return nil, fmt.Errorf("create ollama client: %w", ollamaErr)
		}
		model, err = embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create ollama embedder: %w", err)
		}

	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		if modelName == "" {
			modelName = DefaultOpenAIModel
		}
		if dimension == 0 {
			dimension = DefaultOpenAIDimension
		}
		llm, openaiErr := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithEmbeddingModel(modelName),
		)
		if openaiErr != nil {
			return nil, fmt.Errorf("create openai client: %w", openaiErr)
		}
		model, err = embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create openai embedder: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported langchain provider: %s", provider)
	}

	return &LangchainClient{
		model:     model,
		dimension: dimension,
		modelName: modelName,
	}, nil
}

// Embed generates an embedding vector for text.
func (e *LangchainClient) Embed(ctx context.Context, text string) ([]float32, error) {
	textLen := len(text)
	start := time.Now()
	vectors, err := e.model.EmbedDocuments(ctx, []string{text})
	duration := time.Since(start)

	if err != nil {
		slog.Debug("embedding failed", "model", e.modelName, "text_len", textLen, "duration_ms", duration.Milliseconds(), "error", err)
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	embedding := vectors[0]
	if len(embedding) != e.dimension {
		return nil, fmt.Errorf("dimension mismatch: got %d, want %d", len(embedding), e.dimension)
	}

	slog.Debug("embedding complete", "model", e.modelName, "text_len", textLen, "duration_ms", duration.Milliseconds())
	return embedding, nil
}

func (e *LangchainClient) Model() string {
	return e.modelName
}

func (e *LangchainClient) Dimension() int {
	return e.dimension
}
