package kb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/docingest/internal/models"
)

func TestMemoryKB(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryKB()
	key := models.DocumentKey{Subject: "math", Grade: "10", Chapter: "1", Source: "algebra.pdf"}
	other := models.DocumentKey{Subject: "math", Grade: "10", Chapter: "2", Source: "geometry.pdf"}

	n, err := m.StoreChunks(ctx, key, []models.ChunkRecord{
		{Index: 1, Content: "b", Embedding: []float32{}},
		{Index: 0, Content: "a", Embedding: []float32{0.1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = m.StoreChunks(ctx, other, []models.ChunkRecord{{Index: 0, Content: "c"}})
	require.NoError(t, err)

	got := m.Chunks(key)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Content)
	assert.Empty(t, got[1].Embedding)

	removed, err := m.DeleteChunks(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Empty(t, m.Chunks(key))
	assert.Len(t, m.Chunks(other), 1)
	assert.Equal(t, []models.DocumentKey{other}, m.Keys())
}
