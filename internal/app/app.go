// Package app wires the configured stores, models and services into the
// graph shared by the HTTP server and the MCP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/diveroast/internal/agent"
	"github.com/raphaelgruber/diveroast/internal/config"
	"github.com/raphaelgruber/diveroast/internal/corpus"
	"github.com/raphaelgruber/diveroast/internal/db"
	"github.com/raphaelgruber/diveroast/internal/embedding"
	"github.com/raphaelgruber/diveroast/internal/llm"
	"github.com/raphaelgruber/diveroast/internal/metrics"
	"github.com/raphaelgruber/diveroast/internal/retrieval"
	"github.com/raphaelgruber/diveroast/internal/service"
	"github.com/raphaelgruber/diveroast/internal/session"
	"github.com/raphaelgruber/diveroast/internal/tools"
)

// Backend names accepted in DIVEROAST_RETRIEVAL_BACKEND.
const (
	BackendSurreal  = "surreal"
	BackendWeaviate = "weaviate"
)

// Options tune Build for the binary being started.
type Options struct {
	// ModelOptional keeps going without a chat model. The MCP server sets
	// it since its client brings its own model.
	ModelOptional bool
	// AllowFiles lets parse_dive_log read local paths.
	AllowFiles bool
	Prometheus bool
}

// App is the assembled service graph.
type App struct {
	Config    config.Config
	Metrics   *metrics.Collector
	Sessions  *session.MemoryStore
	Corpus    retrieval.Store
	Retriever *retrieval.Adapter
	Model     llm.Backend
	Dives     *service.DiveService
	Jobs      *service.JobManager
	Toolbox   *tools.Toolbox
	Agent     *agent.Orchestrator
	Current   *tools.CurrentSession
	db        *db.Client
	logger    *slog.Logger
}

// Build connects the configured backends and creates the services.
func Build(ctx context.Context, cfg config.Config, opts Options, logger *slog.Logger) (*App, error) {
	th, err := cfg.Thresholds()
	if err != nil {
		return nil, err
	}

	var prom *metrics.Prometheus
	if opts.Prometheus {
		prom = metrics.NewPrometheus()
	}
	a := &App{
		Config:   cfg,
		Metrics:  metrics.NewCollector(prom),
		Sessions: session.NewMemoryStore(cfg.SessionTTL, logger),
		Current:  &tools.CurrentSession{},
		logger:   logger,
	}

	embedder, err := embedding.New(embedding.Config{
		Provider:     embedding.ProviderType(cfg.EmbedProvider),
		Model:        cfg.EmbedModel,
		Dimension:    cfg.EmbedDimension,
		OllamaHost:   cfg.OllamaHost,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	embedder = embedding.WithMetrics(embedder, a.Metrics)
	logger.Info("embedder initialized", "provider", cfg.EmbedProvider, "model", embedder.Model())

	backend, err := a.openBackend(ctx, embedder)
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}
	a.Retriever = retrieval.NewAdapter(backend, retrieval.Options{
		Timeout: cfg.RetrievalTimeout,
		MaxK:    config.MaxRetrievalK,
	}, a.Metrics, logger)

	a.Model, err = llm.New(ctx, cfg)
	switch {
	case err == nil:
		logger.Info("model initialized", "provider", cfg.LLMProvider, "model", a.Model.Model())
	case opts.ModelOptional:
		logger.Warn("no chat model, dive notes use the built-in fallback", "error", err)
		a.Model = nil
	default:
		a.Close(context.Background())
		return nil, fmt.Errorf("create model: %w", err)
	}

	source, err := corpus.NewWordPressClient(cfg.CorpusBaseURL, cfg.CorpusRatePerSecond)
	if err != nil {
		a.Close(context.Background())
		return nil, fmt.Errorf("create corpus source: %w", err)
	}
	refresher := corpus.NewRefresher(source, embedder, a.Corpus, logger)

	var jobStore service.JobStore
	if a.db != nil {
		jobStore = a.db
	}
	a.Jobs = service.NewJobManager(refresher, jobStore, a.Metrics, logger)
	if err := a.Jobs.RecoverInterrupted(ctx); err != nil {
		logger.Warn("failed to mark interrupted refresh jobs", "error", err)
	}

	a.Dives = service.NewDiveService(a.Sessions, th, a.Retriever, a.Model, a.Metrics, logger)
	a.Toolbox = tools.NewToolbox(&tools.Dependencies{
		Retriever:  a.Retriever,
		Sessions:   a.Sessions,
		Uploader:   a.Dives,
		Refresher:  a.Jobs,
		Thresholds: th,
		DefaultK:   cfg.RetrievalK,
		AllowFiles: opts.AllowFiles,
		Metrics:    a.Metrics,
		Logger:     logger,
	})
	if a.Model != nil {
		a.Agent = agent.New(a.Sessions, a.Model, a.Toolbox, agent.Options{
			MaxToolCalls: cfg.MaxToolCalls,
			TurnTimeout:  cfg.TurnTimeout,
		}, a.Metrics, logger)
	}
	return a, nil
}

// openBackend connects the corpus store named by the configuration.
func (a *App) openBackend(ctx context.Context, embedder embedding.Embedder) (retrieval.Backend, error) {
	cfg := a.Config
	switch cfg.RetrievalBackend {
	case BackendSurreal, "":
		client, err := db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect surrealdb: %w", err)
		}
		a.db = client
		if err := client.InitSchema(ctx, embedder.Dimension()); err != nil {
			return nil, fmt.Errorf("init schema: %w", err)
		}
		b := retrieval.NewSurrealBackend(client, embedder)
		a.Corpus = b
		return b, nil

	case BackendWeaviate:
		b, err := retrieval.NewWeaviateBackend(cfg.WeaviateURL, embedder, a.logger)
		if err != nil {
			return nil, err
		}
		if err := b.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("weaviate schema: %w", err)
		}
		a.Corpus = b
		return b, nil

	default:
		return nil, fmt.Errorf("%w: %q", retrieval.ErrNoBackend, cfg.RetrievalBackend)
	}
}

// Close stops background jobs and disconnects the stores.
func (a *App) Close(ctx context.Context) error {
	if a.Jobs != nil {
		a.Jobs.Close()
	}
	if a.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return a.db.Close(ctx)
}

// Wipe drops all stored passages and job history. Only SurrealDB supports it.
func (a *App) Wipe(ctx context.Context) error {
	if a.db == nil {
		return fmt.Errorf("wipe: not supported by the %s backend", a.Config.RetrievalBackend)
	}
	return a.db.WipeData(ctx)
}
