// Package config loads service configuration from defaults, an optional
// config file and DOCINGEST_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. DOCINGEST_JOBS_STORE.
const EnvPrefix = "DOCINGEST"

// Config holds all configuration values.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	SurrealDB SurrealDBConfig `mapstructure:"surrealdb"`
	KB        KBConfig        `mapstructure:"kb"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

// LogConfig controls the stderr/file logger.
type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// JobsConfig selects the job store and sizes the worker pool.
type JobsConfig struct {
	Store     string `mapstructure:"store"` // memory, badger, surreal
	BadgerDir string `mapstructure:"badger_dir"`
	Workers   int    `mapstructure:"workers"`
}

// SurrealDBConfig holds the SurrealDB connection.
type SurrealDBConfig struct {
	URL       string `mapstructure:"url"`
	Namespace string `mapstructure:"namespace"`
	Database  string `mapstructure:"database"`
	User      string `mapstructure:"user"`
	Pass      string `mapstructure:"pass"`
	AuthLevel string `mapstructure:"auth_level"` // root or database
}

// KBConfig selects where chunks are written.
type KBConfig struct {
	Backend     string `mapstructure:"backend"` // memory, surreal, pgvector
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// StorageConfig selects the object storage resolving file ids.
type StorageConfig struct {
	Backend  string `mapstructure:"backend"` // local, s3, memory
	Bucket   string `mapstructure:"bucket"`
	Root     string `mapstructure:"root"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// FetchConfig bounds document downloads.
type FetchConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxBytes int64         `mapstructure:"max_bytes"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider     string  `mapstructure:"provider"` // ollama, openai, voyage, bedrock
	Model        string  `mapstructure:"model"`
	Dimension    int     `mapstructure:"dimension"`
	OllamaHost   string  `mapstructure:"ollama_host"`
	OpenAIAPIKey string  `mapstructure:"openai_api_key"`
	VoyageAPIKey string  `mapstructure:"voyage_api_key"`
	AWSRegion    string  `mapstructure:"aws_region"`
	RateLimit    float64 `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	Burst        int     `mapstructure:"burst"`
	Concurrency  int     `mapstructure:"concurrency"`
}

// ChunkingConfig holds the defaults for jobs that set no chunk options.
type ChunkingConfig struct {
	MaxChunkSize int `mapstructure:"max_chunk_size"`
	Overlap      int `mapstructure:"overlap"`
}

// RedisConfig enables progress publishing when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.file", "/tmp/docingest.log")
	v.SetDefault("log.level", "INFO")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("jobs.store", "memory")
	v.SetDefault("jobs.badger_dir", "./data/jobs")
	v.SetDefault("jobs.workers", 4)

	v.SetDefault("surrealdb.url", "ws://localhost:8000/rpc")
	v.SetDefault("surrealdb.namespace", "docingest")
	v.SetDefault("surrealdb.database", "docingest")
	v.SetDefault("surrealdb.user", "root")
	v.SetDefault("surrealdb.pass", "root")
	v.SetDefault("surrealdb.auth_level", "root")

	v.SetDefault("kb.backend", "memory")
	v.SetDefault("kb.postgres_dsn", "")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.bucket", "documents")
	v.SetDefault("storage.root", "./data/storage")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.endpoint", "")

	v.SetDefault("fetch.timeout", 60*time.Second)
	v.SetDefault("fetch.max_bytes", 100<<20)

	v.SetDefault("embedding.provider", "ollama")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.dimension", 0)
	v.SetDefault("embedding.ollama_host", "http://localhost:11434")
	v.SetDefault("embedding.openai_api_key", "")
	v.SetDefault("embedding.voyage_api_key", "")
	v.SetDefault("embedding.aws_region", "us-east-1")
	v.SetDefault("embedding.rate_limit", 0)
	v.SetDefault("embedding.burst", 1)
	v.SetDefault("embedding.concurrency", 1)

	v.SetDefault("chunking.max_chunk_size", 2000)
	v.SetDefault("chunking.overlap", 200)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
}

// Load reads configuration. path names a config file; when empty,
// docingest.{yaml,json,toml} is looked up in the working directory and
// $HOME/.config/docingest, and a missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("docingest")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/docingest")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown backends and inconsistent settings.
func (c Config) Validate() error {
	if err := oneOf("jobs.store", c.Jobs.Store, "memory", "badger", "surreal"); err != nil {
		return err
	}
	if err := oneOf("kb.backend", c.KB.Backend, "memory", "surreal", "pgvector"); err != nil {
		return err
	}
	if err := oneOf("storage.backend", c.Storage.Backend, "local", "s3", "memory"); err != nil {
		return err
	}
	if err := oneOf("embedding.provider", c.Embedding.Provider, "ollama", "openai", "voyage", "bedrock"); err != nil {
		return err
	}
	if c.Jobs.Store == "badger" && strings.TrimSpace(c.Jobs.BadgerDir) == "" {
		return errors.New("jobs.badger_dir is required for the badger store")
	}
	if c.KB.Backend == "pgvector" && strings.TrimSpace(c.KB.PostgresDSN) == "" {
		return errors.New("kb.postgres_dsn is required for the pgvector backend")
	}
	if c.Chunking.MaxChunkSize < 0 || c.Chunking.Overlap < 0 {
		return errors.New("chunking sizes must not be negative")
	}
	if c.Chunking.MaxChunkSize > 0 && c.Chunking.Overlap >= c.Chunking.MaxChunkSize {
		return fmt.Errorf("chunking.overlap (%d) must be smaller than chunking.max_chunk_size (%d)",
			c.Chunking.Overlap, c.Chunking.MaxChunkSize)
	}
	if c.Embedding.RateLimit < 0 {
		return errors.New("embedding.rate_limit must not be negative")
	}
	return nil
}

// UsesSurreal reports whether any component needs a SurrealDB connection.
func (c Config) UsesSurreal() bool {
	return c.Jobs.Store == "surreal" || c.KB.Backend == "surreal"
}

// LogLevel parses Log.Level, defaulting to info.
func (c Config) LogLevel() slog.Level {
	return parseLogLevel(c.Log.Level)
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s: unknown value %q (want one of %s)", key, value, strings.Join(allowed, ", "))
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
