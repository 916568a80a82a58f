// Package mock provides test doubles for the embedding package.
package mock

import (
	"context"
	"hash/fnv"
	"sync"
)

// DefaultDimension is the vector size produced when Dim is zero.
const DefaultDimension = 8

// Embedder is a test double for embedding.Embedder. EmbedFunc overrides the
// default deterministic behavior.
type Embedder struct {
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
	Dim       int

	mu    sync.Mutex
	calls []string
}

// NewEmbedder creates a mock embedder with deterministic vectors.
func NewEmbedder() *Embedder {
	return &Embedder{}
}

func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	m.mu.Unlock()

	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return Vector(text, m.Dimension()), nil
}

func (m *Embedder) Model() string {
	return "mock"
}

func (m *Embedder) Dimension() int {
	if m.Dim > 0 {
		return m.Dim
	}
	return DefaultDimension
}

// Calls returns the texts passed to Embed, in call order.
func (m *Embedder) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Vector derives a deterministic, non-zero vector from text.
func Vector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := range vector {
		seed = seed*1664525 + 1013904223
		vector[i] = float32(seed%1000+1) / 1000.0
	}
	return vector
}
