package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/docingest/internal/kb"
	"github.com/raphaelgruber/docingest/internal/models"
)

// chunkRow is one doc_chunk record. A failed embedding is omitted so the
// field is stored as NONE.
type chunkRow struct {
	Subject          string            `json:"subject"`
	Grade            string            `json:"grade"`
	Chapter          string            `json:"chapter"`
	Source           string            `json:"source"`
	ChunkIndex       int               `json:"chunk_index"`
	Content          string            `json:"content"`
	HeadingHierarchy []string          `json:"heading_hierarchy"`
	Embedding        []float32         `json:"embedding,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

type rowID struct {
	ID surrealmodels.RecordID `json:"id"`
}

// KnowledgeBase stores document chunks in the doc_chunk table.
type KnowledgeBase struct {
	client *Client
}

var _ kb.KnowledgeBase = (*KnowledgeBase)(nil)

// NewKnowledgeBase creates a knowledge base on client.
func NewKnowledgeBase(client *Client) *KnowledgeBase {
	return &KnowledgeBase{client: client}
}

func keyVars(key models.DocumentKey) map[string]any {
	return map[string]any{
		"subject": key.Subject,
		"grade":   key.Grade,
		"chapter": key.Chapter,
		"source":  key.Source,
	}
}

// DeleteChunks removes every chunk stored under key and returns how many
// were deleted.
func (k *KnowledgeBase) DeleteChunks(ctx context.Context, key models.DocumentKey) (int, error) {
	results, err := surrealdb.Query[[]rowID](ctx, k.client.db, `
		DELETE doc_chunk
		WHERE subject = $subject AND grade = $grade AND chapter = $chapter AND source = $source
		RETURN BEFORE
	`, keyVars(key))
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

// StoreChunks inserts records under key in a single statement, so either
// all rows are written or none.
func (k *KnowledgeBase) StoreChunks(ctx context.Context, key models.DocumentKey, records []models.ChunkRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	rows := make([]chunkRow, len(records))
	for i, r := range records {
		hierarchy := r.HeadingHierarchy
		if hierarchy == nil {
			hierarchy = []string{}
		}
		rows[i] = chunkRow{
			Subject:          key.Subject,
			Grade:            key.Grade,
			Chapter:          key.Chapter,
			Source:           key.Source,
			ChunkIndex:       r.Index,
			Content:          r.Content,
			HeadingHierarchy: hierarchy,
			Embedding:        r.Embedding,
			Metadata:         r.Metadata,
		}
	}

	results, err := surrealdb.Query[[]rowID](ctx, k.client.db, `
		INSERT INTO doc_chunk $rows RETURN id
	`, map[string]any{"rows": rows})
	if err != nil {
		return 0, fmt.Errorf("store chunks: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

// CountChunks returns how many chunks are stored under key.
func (k *KnowledgeBase) CountChunks(ctx context.Context, key models.DocumentKey) (int, error) {
	results, err := surrealdb.Query[[]struct {
		Count int `json:"count"`
	}](ctx, k.client.db, `
		SELECT count() FROM doc_chunk
		WHERE subject = $subject AND grade = $grade AND chapter = $chapter AND source = $source
		GROUP ALL
	`, keyVars(key))
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].Count, nil
}
