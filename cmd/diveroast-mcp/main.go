// Package main provides the entry point for the DiveRoast MCP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/diveroast/internal/app"
	"github.com/raphaelgruber/diveroast/internal/config"
	"github.com/raphaelgruber/diveroast/internal/observability"
	"github.com/raphaelgruber/diveroast/internal/server"
)

const version = "0.1.0"

func main() {
	cfg := config.Load()

	// stdout carries the protocol, so logs go to stderr and the file only.
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()

	logger.Info("diveroast-mcp starting",
		"version", version,
		"retrieval_backend", cfg.RetrievalBackend,
		"embedding_model", cfg.EmbedModel,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, "diveroast-mcp", version, logger)
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
	a, err := app.Build(startCtx, cfg, app.Options{ModelOptional: true, AllowFiles: true}, logger)
	startCancel()
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer func() {
		logger.Info("closing stores")
		_ = a.Close(context.Background())
	}()

	srv := server.New(version, logger)
	srv.Setup(a.Toolbox, a.Current, a.Sessions, a.Corpus)
	logger.Info("server ready, awaiting connections")

	// Blocks until the client disconnects or ctx is cancelled.
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
