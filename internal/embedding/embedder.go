// Package embedding provides text embedding generation with multiple backend support.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmbedding marks a provider failure for a single text. It is always
// chunk-local: the Adapter converts it into an empty vector.
var ErrEmbedding = errors.New("embedding failed")

// Embedder defines the interface for text embedding providers.
type Embedder interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model returns the name of the embedding model being used.
	Model() string

	// Dimension returns the embedding vector dimension.
	// Must match the vector index dimension of the knowledge base.
	Dimension() int
}

// ProviderType identifies the embedding provider.
type ProviderType string

const (
	// ProviderOllama uses a local Ollama server through langchaingo.
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI uses the OpenAI embeddings API through langchaingo.
	ProviderOpenAI ProviderType = "openai"

	// ProviderVoyage uses the Voyage AI HTTP API.
	ProviderVoyage ProviderType = "voyage"

	// ProviderBedrock uses Amazon Titan embeddings on Bedrock.
	ProviderBedrock ProviderType = "bedrock"
)

// Config holds configuration for creating an Embedder.
type Config struct {
	Provider ProviderType

	// Model is the embedding model name (provider-specific).
	// Ollama: "nomic-embed-text" (768-dim)
	// OpenAI: "text-embedding-3-small" (1536-dim)
	// Voyage: "voyage-3" (1024-dim)
	// Bedrock: "amazon.titan-embed-text-v2:0" (1024-dim)
	Model string

	// Dimension is the required output dimension. 0 uses the provider default.
	Dimension int

	OllamaHost   string
	OpenAIAPIKey string
	VoyageAPIKey string
	AWSRegion    string
}

// New creates an Embedder based on the provided configuration.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case ProviderOllama, "":
		return NewLangchainClient(ProviderOllama, cfg)
	case ProviderOpenAI:
		return NewLangchainClient(ProviderOpenAI, cfg)
	case ProviderVoyage:
		return NewVoyageClient(cfg.VoyageAPIKey, cfg.Model, cfg.Dimension)
	case ProviderBedrock:
		return NewBedrockClient(ctx, cfg.AWSRegion, cfg.Model, cfg.Dimension)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
