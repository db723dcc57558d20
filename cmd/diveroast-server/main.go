// Package main provides the HTTP API server for DiveRoast.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/diveroast/internal/app"
	"github.com/raphaelgruber/diveroast/internal/config"
	"github.com/raphaelgruber/diveroast/internal/httpapi"
	"github.com/raphaelgruber/diveroast/internal/observability"
)

const version = "0.1.0"

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe the corpus and job history on startup (testing only)")
	flag.Parse()

	cfg := config.Load()

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()
	slog.SetDefault(logger)

	if cfg.LogLevel > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("starting diveroast-server",
		"version", version,
		"port", cfg.ServerPort,
		"retrieval_backend", cfg.RetrievalBackend,
		"llm_provider", cfg.LLMProvider,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, "diveroast-server", version, logger)
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	a, err := app.Build(startCtx, cfg, app.Options{Prometheus: true}, logger)
	cancel()
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Error("failed to close", "error", err)
		}
	}()

	if *wipeDB || os.Getenv("DIVEROAST_WIPE_DB") == "true" {
		if err := a.Wipe(ctx); err != nil {
			logger.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
		logger.Warn("database wiped")
	}

	srv := httpapi.New(httpapi.Deps{
		Dives:          a.Dives,
		Chat:           a.Agent,
		Jobs:           a.Jobs,
		Sessions:       a.Sessions,
		Corpus:         a.Corpus,
		Metrics:        a.Metrics,
		Logger:         logger,
		Version:        version,
		Model:          a.Model.Model(),
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	logger.Info("API available", "url", fmt.Sprintf("http://localhost:%d/api", cfg.ServerPort))
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
