// Package tools is the closed set of tools the agent and MCP clients can call.
package tools

import (
	"context"
	"log/slog"

	"github.com/raphaelgruber/diveroast/internal/analysis"
	"github.com/raphaelgruber/diveroast/internal/metrics"
	"github.com/raphaelgruber/diveroast/internal/models"
	"github.com/raphaelgruber/diveroast/internal/session"
)

// Retriever runs category-scoped hybrid searches.
type Retriever interface {
	RetrieveCategory(ctx context.Context, query, category string, k int) ([]models.RetrievedPassage, error)
}

// Uploader turns a raw logbook into an analysed session.
type Uploader interface {
	Upload(ctx context.Context, filename string, raw []byte) (*models.UploadResult, error)
}

// RefreshStarter starts a background corpus refresh. running is true when
// an earlier refresh is still in progress and its id is returned instead.
type RefreshStarter interface {
	StartRefresh(ctx context.Context) (jobID string, running bool, err error)
}

// Dependencies holds shared services for tool handlers.
// Passed to handler factories via closure capture.
type Dependencies struct {
	Retriever  Retriever
	Sessions   session.Store
	Uploader   Uploader
	Refresher  RefreshStarter
	Thresholds analysis.Thresholds
	DefaultK   int
	// AllowFiles lets parse_dive_log read file_path from local disk.
	AllowFiles bool
	Metrics    *metrics.Collector
	Logger     *slog.Logger
}

func (d *Dependencies) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
