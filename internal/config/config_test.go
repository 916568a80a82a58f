package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Jobs.Store)
	assert.Equal(t, 4, cfg.Jobs.Workers)
	assert.Equal(t, "memory", cfg.KB.Backend)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, 2000, cfg.Chunking.MaxChunkSize)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
	assert.Equal(t, int64(100<<20), cfg.Fetch.MaxBytes)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel())
	assert.False(t, cfg.UsesSurreal())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DOCINGEST_JOBS_STORE", "badger")
	t.Setenv("DOCINGEST_JOBS_WORKERS", "8")
	t.Setenv("DOCINGEST_KB_BACKEND", "surreal")
	t.Setenv("DOCINGEST_EMBEDDING_RATE_LIMIT", "2.5")
	t.Setenv("DOCINGEST_FETCH_TIMEOUT", "5s")
	t.Setenv("DOCINGEST_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "badger", cfg.Jobs.Store)
	assert.Equal(t, 8, cfg.Jobs.Workers)
	assert.Equal(t, "surreal", cfg.KB.Backend)
	assert.InDelta(t, 2.5, cfg.Embedding.RateLimit, 0.001)
	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
	assert.True(t, cfg.UsesSurreal())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docingest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9090"
kb:
  backend: pgvector
  postgres_dsn: postgres://localhost/docs
chunking:
  max_chunk_size: 800
  overlap: 80
embedding:
  provider: voyage
  model: voyage-3
  dimension: 1024
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "pgvector", cfg.KB.Backend)
	assert.Equal(t, "postgres://localhost/docs", cfg.KB.PostgresDSN)
	assert.Equal(t, 800, cfg.Chunking.MaxChunkSize)
	assert.Equal(t, "voyage-3", cfg.Embedding.Model)
	assert.Equal(t, 1024, cfg.Embedding.Dimension)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown job store", func(c *Config) { c.Jobs.Store = "sqlite" }},
		{"unknown kb backend", func(c *Config) { c.KB.Backend = "qdrant" }},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "gcs" }},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "cohere" }},
		{"pgvector without dsn", func(c *Config) { c.KB.Backend = "pgvector" }},
		{"badger without dir", func(c *Config) { c.Jobs.Store = "badger"; c.Jobs.BadgerDir = " " }},
		{"overlap too large", func(c *Config) { c.Chunking.Overlap = c.Chunking.MaxChunkSize }},
		{"negative size", func(c *Config) { c.Chunking.MaxChunkSize = -1 }},
		{"negative rate", func(c *Config) { c.Embedding.RateLimit = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, base.Validate())
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
