package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/docingest/internal/app"
	"github.com/raphaelgruber/docingest/internal/config"
	"github.com/raphaelgruber/docingest/internal/httpapi"
	"github.com/raphaelgruber/docingest/internal/server"
	"github.com/raphaelgruber/docingest/internal/tools"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and ingestion workers",
	Long: `Run the job API, the MCP endpoint and the ingestion workers.

Routes:
  POST /v1/jobs                submit an ingestion job
  GET  /v1/jobs[?status=&limit=] list jobs
  GET  /v1/jobs/:id            job status
  POST /v1/jobs/:id/cancel     cancel a job
  GET  /v1/jobs/:id/watch      websocket progress stream
  /mcp                         MCP over streamable HTTP
  /metrics, /health`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.address)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Address = serveAddr
	}
	if verbose {
		cfg.Log.Level = "DEBUG"
	}

	logger, cleanup := config.SetupLogger(cfg.Log)
	defer func() { _ = cleanup() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	mcpServer := server.New(Version, logger)
	mcpServer.Setup()
	tools.RegisterAll(mcpServer.MCPServer(), &tools.Dependencies{Jobs: a.Ingest, Logger: logger})

	httpServer := &http.Server{
		Addr: cfg.Server.Address,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Jobs:    a.Ingest,
			Events:  a.Broadcaster,
			Metrics: a.Metrics.Handler(),
			MCP:     mcpServer.HTTPHandler(),
			Logger:  logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("docingest listening", "addr", cfg.Server.Address, "version", Version,
			"job_store", cfg.Jobs.Store, "kb", cfg.KB.Backend, "storage", cfg.Storage.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			_ = a.Shutdown(context.Background(), cfg.Server.ShutdownTimeout)
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.Shutdown(shutdownCtx, cfg.Server.ShutdownTimeout); err != nil {
		errs = append(errs, err)
	}
	logger.Info("server stopped")
	return errors.Join(errs...)
}
