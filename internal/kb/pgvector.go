package kb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/raphaelgruber/docingest/internal/models"
)

// PGVectorStore keeps chunks in Postgres with a pgvector embedding column.
// Failed embeddings are stored with a NULL vector.
type PGVectorStore struct {
	pool      *pgxpool.Pool
	dimension int
}

var _ KnowledgeBase = (*PGVectorStore)(nil)

// NewPGVectorStore connects to dsn. The vector extension is created first
// because every pooled connection registers its types on connect.
func NewPGVectorStore(ctx context.Context, dsn string, dimension int) (*PGVectorStore, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	_, err = conn.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	_ = conn.Close(ctx)
	if err != nil {
		return nil, fmt.Errorf("create vector extension: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PGVectorStore{pool: pool, dimension: dimension}, nil
}

// Close closes the connection pool.
func (s *PGVectorStore) Close() {
	s.pool.Close()
}

// EnsureSchema creates the table and indexes if missing.
func (s *PGVectorStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS document_chunks (
				id BIGSERIAL PRIMARY KEY,
				subject TEXT NOT NULL DEFAULT '',
				grade TEXT NOT NULL DEFAULT '',
				chapter TEXT NOT NULL DEFAULT '',
				source TEXT NOT NULL,
				chunk_index INT NOT NULL,
				content TEXT NOT NULL,
				heading_hierarchy TEXT[] NOT NULL DEFAULT '{}',
				metadata JSONB NOT NULL DEFAULT '{}',
				embedding vector(%d),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, s.dimension),
		`CREATE INDEX IF NOT EXISTS document_chunks_key_idx
			ON document_chunks (subject, grade, chapter, source)`,
		`CREATE INDEX IF NOT EXISTS document_chunks_embedding_idx
			ON document_chunks USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PGVectorStore) DeleteChunks(ctx context.Context, key models.DocumentKey) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM document_chunks
		WHERE subject = $1 AND grade = $2 AND chapter = $3 AND source = $4
	`, key.Subject, key.Grade, key.Chapter, key.Source)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// StoreChunks inserts all records in one transaction; either every record is
// stored or none is.
func (s *PGVectorStore) StoreChunks(ctx context.Context, key models.DocumentKey, records []models.ChunkRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, rec := range records {
		var vec any
		if len(rec.Embedding) > 0 {
			vec = pgvector.NewVector(rec.Embedding)
		}
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshal metadata %d: %w", rec.Index, err)
		}
		batch.Queue(`
			INSERT INTO document_chunks
				(subject, grade, chapter, source, chunk_index, content, heading_hierarchy, metadata, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, key.Subject, key.Grade, key.Chapter, key.Source,
			rec.Index, rec.Content, rec.HeadingHierarchy, meta, vec)
	}

	stored := 0
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("batch exec %d: %w", i, err)
		}
		stored += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}
