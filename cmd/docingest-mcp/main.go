// Package main provides the stdio MCP server for docingest. It runs the
// ingestion workers in-process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/docingest/internal/app"
	"github.com/raphaelgruber/docingest/internal/config"
	"github.com/raphaelgruber/docingest/internal/server"
	"github.com/raphaelgruber/docingest/internal/tools"
)

const version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "docingest-mcp: %v\n", err)
		return 1
	}

	// Setup logger (dual output: stderr text + file JSON). stdout carries the protocol.
	logger, cleanup := config.SetupLogger(cfg.Log)
	defer func() { _ = cleanup() }()

	logger.Info("docingest-mcp starting",
		"version", version,
		"job_store", cfg.Jobs.Store,
		"kb", cfg.KB.Backend,
		"embedding_provider", cfg.Embedding.Provider,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start service", "error", err)
		return 1
	}
	defer func() {
		logger.Info("draining jobs")
		if err := a.Shutdown(context.Background(), 30*time.Second); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	srv := server.New(version, logger)
	srv.Setup()
	tools.RegisterAll(srv.MCPServer(), &tools.Dependencies{Jobs: a.Ingest, Logger: logger})

	logger.Info("server ready, awaiting connections")

	// Run server (blocks until disconnect or context cancelled)
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		return 1
	}

	logger.Info("shutdown complete")
	return 0
}
