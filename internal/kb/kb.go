// Package kb writes embedded chunks into a searchable knowledge base.
package kb

import (
	"context"
	"slices"
	"sync"

	"github.com/raphaelgruber/docingest/internal/models"
)

// KnowledgeBase stores chunk records partitioned by document key.
type KnowledgeBase interface {
	// DeleteChunks removes every chunk stored under key and returns how many
	// were removed.
	DeleteChunks(ctx context.Context, key models.DocumentKey) (int, error)
	// StoreChunks writes records under key in a single batch and returns how
	// many were stored.
	StoreChunks(ctx context.Context, key models.DocumentKey, records []models.ChunkRecord) (int, error)
}

// MemoryKB keeps chunks in memory. Used in tests and for dry runs.
type MemoryKB struct {
	mu     sync.RWMutex
	chunks map[models.DocumentKey][]models.ChunkRecord
}

var _ KnowledgeBase = (*MemoryKB)(nil)

// NewMemoryKB creates an empty in-memory knowledge base.
func NewMemoryKB() *MemoryKB {
	return &MemoryKB{chunks: make(map[models.DocumentKey][]models.ChunkRecord)}
}

func (m *MemoryKB) DeleteChunks(_ context.Context, key models.DocumentKey) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.chunks[key])
	delete(m.chunks, key)
	return n, nil
}

func (m *MemoryKB) StoreChunks(_ context.Context, key models.DocumentKey, records []models.ChunkRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[key] = append(m.chunks[key], slices.Clone(records)...)
	return len(records), nil
}

// Chunks returns the records stored under key, ordered by index.
func (m *MemoryKB) Chunks(key models.DocumentKey) []models.ChunkRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := slices.Clone(m.chunks[key])
	slices.SortStableFunc(out, func(a, b models.ChunkRecord) int { return a.Index - b.Index })
	return out
}

// Keys returns every document key with stored chunks.
func (m *MemoryKB) Keys() []models.DocumentKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]models.DocumentKey, 0, len(m.chunks))
	for k := range m.chunks {
		keys = append(keys, k)
	}
	return keys
}
