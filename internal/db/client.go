// Package db keeps ingestion jobs and document chunks in SurrealDB. The
// connection redials on its own when the socket drops, so a long-running
// server survives database restarts without re-creating its stores.
package db

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	"github.com/surrealdb/surrealdb.go/surrealcbor"
)

const (
	defaultDialTimeout = 5 * time.Second
	defaultMaxRetries  = 10

	authLevelDatabase = "database"
)

func init() {
	// wss endpoints behind proxies that offer h2 break the websocket upgrade.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// Config describes where the job and chunk tables live.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	// AuthLevel is "root" (default) or "database".
	AuthLevel string

	// DialTimeout bounds each connection attempt. Zero means 5s.
	DialTimeout time.Duration
	// MaxRetries caps reconnect attempts after a dropped socket. Zero means 10.
	MaxRetries int
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	return c
}

// Client is a signed-in SurrealDB session scoped to one namespace and
// database.
type Client struct {
	conn   *rews.Connection[*gorillaws.Connection]
	db     *surrealdb.DB
	cfg    Config
	logger logger.Logger
}

// NewClient dials cfg.URL, signs in and selects the namespace and database.
// SDK log output goes to log, or to slog.Default when log is nil.
func NewClient(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	sdkLogger := logger.New(log.With("component", "surrealdb").Handler())

	conn := dial(cfg, sdkLogger)
	sdkLogger.Info("connecting to surrealdb", "url", cfg.URL)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.URL, err)
	}

	c := &Client{conn: conn, cfg: cfg, logger: sdkLogger}
	if err := c.open(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	sdkLogger.Info("surrealdb ready", "namespace", cfg.Namespace, "database", cfg.Database)
	return c, nil
}

// dial builds the reconnecting socket. Encoding is CBOR so record ids and
// datetimes keep their SurrealDB types.
func dial(cfg Config, sdkLogger logger.Logger) *rews.Connection[*gorillaws.Connection] {
	codec := surrealcbor.New()
	baseURL := rpcBaseURL(cfg.URL)

	conn := rews.New(
		func(context.Context) (*gorillaws.Connection, error) {
			return gorillaws.New(&connection.Config{
				BaseURL:     baseURL,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			}), nil
		},
		cfg.DialTimeout,
		codec,
		sdkLogger,
	)

	retryer := rews.NewExponentialBackoffRetryer()
	retryer.InitialDelay = time.Second
	retryer.MaxDelay = 30 * time.Second
	retryer.Multiplier = 2.0
	retryer.MaxRetries = cfg.MaxRetries
	conn.Retryer = retryer
	return conn
}

// rpcBaseURL strips the /rpc suffix; gorillaws appends it itself.
func rpcBaseURL(url string) string {
	return strings.TrimSuffix(strings.TrimRight(url, "/"), "/rpc")
}

// open signs in and selects the namespace and database on an established
// connection.
func (c *Client) open(ctx context.Context) error {
	db, err := surrealdb.FromConnection(ctx, c.conn)
	if err != nil {
		return fmt.Errorf("from connection: %w", err)
	}

	auth := &surrealdb.Auth{Username: c.cfg.Username, Password: c.cfg.Password}
	if c.cfg.AuthLevel == authLevelDatabase {
		auth.Namespace = c.cfg.Namespace
		auth.Database = c.cfg.Database
	}
	if _, err := db.SignIn(ctx, *auth); err != nil {
		return fmt.Errorf("signin as %s: %w", c.cfg.Username, err)
	}

	if err := db.Use(ctx, c.cfg.Namespace, c.cfg.Database); err != nil {
		return fmt.Errorf("use %s/%s: %w", c.cfg.Namespace, c.cfg.Database, err)
	}
	c.db = db
	return nil
}

func (c *Client) Close(ctx context.Context) error {
	c.logger.Info("closing surrealdb connection")
	return c.conn.Close(ctx)
}

// InitSchema defines the job and chunk tables. dimension sizes the chunk
// embedding index and must match the embedding model.
func (c *Client) InitSchema(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("init schema: invalid embedding dimension %d", dimension)
	}
	if _, err := surrealdb.Query[any](ctx, c.db, SchemaSQL(dimension), nil); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	c.logger.Info("schema ready", "dimension", dimension)
	return nil
}

// Query runs raw SurrealQL.
func (c *Client) Query(ctx context.Context, sql string, vars map[string]any) (*[]surrealdb.QueryResult[any], error) {
	return surrealdb.Query[any](ctx, c.db, sql, vars)
}

// WipeData empties the chunk and job tables and keeps their definitions.
// Tests only.
func (c *Client) WipeData(ctx context.Context) error {
	for _, table := range []string{chunkTable, jobTable} {
		if _, err := surrealdb.Query[any](ctx, c.db, "DELETE "+table, nil); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	c.logger.Warn("wiped job and chunk tables")
	return nil
}
