package db

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/docingest/internal/jobstore"
)

func TestSchemaSQLDimension(t *testing.T) {
	sql := SchemaSQL(1024)
	assert.Contains(t, sql, "HNSW DIMENSION 1024 DIST COSINE")
	assert.NotContains(t, sql, "%d")
	assert.Equal(t, 1, strings.Count(sql, "DEFINE TABLE IF NOT EXISTS ingest_job"))
	assert.Equal(t, 1, strings.Count(sql, "DEFINE TABLE IF NOT EXISTS doc_chunk"))
}

func TestWrapQueryError(t *testing.T) {
	exists := fmt.Errorf("query: %w", &surrealdb.QueryError{Message: "Database record `ingest_job:abc` already exists"})
	assert.ErrorIs(t, wrapQueryError(exists), jobstore.ErrExists)

	conflict := &surrealdb.QueryError{Message: "Transaction conflict: resource busy"}
	assert.ErrorIs(t, wrapQueryError(conflict), ErrTransactionConflict)

	other := errors.New("connection reset")
	assert.Equal(t, other, wrapQueryError(other))
	assert.NoError(t, wrapQueryError(nil))
}

func TestRPCBaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ws://localhost:8000/rpc", "ws://localhost:8000"},
		{"ws://localhost:8000/rpc/", "ws://localhost:8000"},
		{"wss://db.example.com", "wss://db.example.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rpcBaseURL(tt.in), tt.in)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{URL: "ws://localhost:8000/rpc"}.withDefaults()
	assert.Equal(t, defaultDialTimeout, cfg.DialTimeout)
	assert.Equal(t, defaultMaxRetries, cfg.MaxRetries)

	cfg = Config{MaxRetries: 3}.withDefaults()
	assert.Equal(t, 3, cfg.MaxRetries)
}
