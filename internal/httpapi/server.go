// Package httpapi serves the DiveRoast REST, SSE and websocket API.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/diveroast/internal/agent"
	"github.com/raphaelgruber/diveroast/internal/metrics"
	"github.com/raphaelgruber/diveroast/internal/models"
	"github.com/raphaelgruber/diveroast/internal/service"
)

// DefaultMaxUploadBytes caps logbook uploads when no limit is configured.
const DefaultMaxUploadBytes = 20 << 20

// Dives is the upload and dashboard use case.
type Dives interface {
	Upload(ctx context.Context, filename string, raw []byte) (*models.UploadResult, error)
	Dashboard(sessionID string) (models.Dashboard, error)
	EnrichedDashboard(ctx context.Context, sessionID string) (models.Dashboard, error)
	Delete(sessionID string) error
}

// Chatter runs one chat turn.
type Chatter interface {
	Chat(ctx context.Context, sessionID, message string, sink agent.Sink) error
}

// Jobs starts and reports corpus refreshes.
type Jobs interface {
	StartRefresh(ctx context.Context) (string, bool, error)
	GetJob(id string) (service.Job, bool)
	ListJobs() []service.Job
}

// Sessions answers existence checks before a stream is opened.
type Sessions interface {
	Get(id string) (models.Session, error)
	Len() int
}

// CorpusCounter reports the stored passage count.
type CorpusCounter interface {
	CountPassages(ctx context.Context) (int, error)
}

// Deps holds the server's collaborators. Corpus and Metrics may be nil.
type Deps struct {
	Dives          Dives
	Chat           Chatter
	Jobs           Jobs
	Sessions       Sessions
	Corpus         CorpusCounter
	Metrics        *metrics.Collector
	Logger         *slog.Logger
	Version        string
	Model          string
	MaxUploadBytes int64
}

// Server holds the HTTP handlers.
type Server struct {
	deps         Deps
	logger       *slog.Logger
	pingInterval time.Duration
	startedAt    time.Time
}

// New creates the API server.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Server{
		deps:         deps,
		logger:       deps.Logger,
		pingInterval: 15 * time.Second,
		startedAt:    time.Now(),
	}
}

// Router builds the gin engine with all routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.health)
	r.GET("/metrics", s.prometheus)

	api := r.Group("/api")
	api.POST("/upload", s.upload)
	api.GET("/dashboard/:id", s.dashboard)
	api.DELETE("/sessions/:id", s.deleteSession)
	api.POST("/chat/:id", s.chatSSE)
	api.GET("/chat/:id/ws", s.chatWebSocket)
	api.POST("/corpus/refresh", s.startRefresh)
	api.GET("/jobs", s.listJobs)
	api.GET("/jobs/:id", s.getJob)
	api.GET("/status", s.status)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
