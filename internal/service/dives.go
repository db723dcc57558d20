package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/diveroast/internal/analysis"
	"github.com/raphaelgruber/diveroast/internal/llm"
	"github.com/raphaelgruber/diveroast/internal/logbook"
	"github.com/raphaelgruber/diveroast/internal/metrics"
	"github.com/raphaelgruber/diveroast/internal/models"
	"github.com/raphaelgruber/diveroast/internal/session"
	"github.com/raphaelgruber/diveroast/internal/tools"
)

const (
	excerptsPerDive = 2
	enrichTimeout   = 45 * time.Second
)

const noteSystem = "You are a witty but accurate DAN diving safety expert. Write exactly two sentences: " +
	"one roasting the dive's main problem with its numbers, one with concrete advice. No preamble."

// DiveService runs uploads and builds dashboards.
type DiveService struct {
	sessions   session.Store
	thresholds analysis.Thresholds
	retriever  tools.Retriever
	model      llm.Backend
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// NewDiveService creates the service. retriever and model are only used
// for enrichment and may be nil; m may be nil.
func NewDiveService(sessions session.Store, th analysis.Thresholds, retriever tools.Retriever, model llm.Backend, m *metrics.Collector, logger *slog.Logger) *DiveService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiveService{
		sessions:   sessions,
		thresholds: th,
		retriever:  retriever,
		model:      model,
		metrics:    m,
		logger:     logger,
	}
}

// Upload decodes a logbook, computes features and ranking, and creates a
// session. Nothing is stored when decoding fails.
func (s *DiveService) Upload(ctx context.Context, filename string, raw []byte) (*models.UploadResult, error) {
	start := time.Now()

	var (
		dives []models.Dive
		err   error
	)
	if filepath.Ext(filename) == "" {
		dives, err = logbook.DecodeBytes(raw)
	} else {
		dives, err = logbook.Decode(filename, bytes.NewReader(raw))
	}
	if err != nil {
		s.metrics.RecordError(metrics.OpUpload, "parse")
		return nil, err
	}

	features, excluded := analysis.Analyze(dives, s.thresholds)
	if len(features) == 0 {
		s.metrics.RecordError(metrics.OpUpload, "parse")
		return nil, &models.ParseError{Sample: -1, Reason: "no dive has enough samples to analyse"}
	}
	ranking := analysis.Rank(features, s.thresholds.TopN, s.thresholds)

	id := s.sessions.Create(dives, session.Analysis{
		Features: features,
		Ranking:  ranking,
		Excluded: excluded,
	})
	s.metrics.Prometheus().SetSessions(s.sessions.Len())
	s.metrics.RecordTiming(metrics.OpUpload, time.Since(start))

	ids := make([]string, len(features))
	for i, f := range features {
		ids[i] = f.DiveID
	}
	msg := fmt.Sprintf("Parsed %d dives. Ask me to roast one, or about your most dangerous dive.", len(features))
	if len(excluded) > 0 {
		msg = fmt.Sprintf("Parsed %d dives (%d skipped with too few samples). Ask me to roast one.", len(features), len(excluded))
	}

	s.logger.Info("logbook uploaded", "session_id", id, "dives", len(features), "excluded", len(excluded),
		"duration_ms", time.Since(start).Milliseconds())
	return &models.UploadResult{
		SessionID:   id,
		DiveCount:   len(features),
		DiveNumbers: ids,
		Excluded:    excluded,
		Message:     msg,
	}, nil
}

// Dashboard returns the aggregate view of a session. It is a pure read.
func (s *DiveService) Dashboard(sessionID string) (models.Dashboard, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return models.Dashboard{}, err
	}
	return analysis.BuildDashboard(sess, s.thresholds), nil
}

// Delete evicts a session.
func (s *DiveService) Delete(sessionID string) error {
	if err := s.sessions.Delete(sessionID); err != nil {
		return err
	}
	s.metrics.Prometheus().SetSessions(s.sessions.Len())
	return nil
}

// EnrichedDashboard adds incident excerpts and a short note to each top
// dive. Retrieval failures leave the excerpts empty and model failures fall
// back to a template note; neither fails the call.
func (s *DiveService) EnrichedDashboard(ctx context.Context, sessionID string) (models.Dashboard, error) {
	dash, err := s.Dashboard(sessionID)
	if err != nil {
		return models.Dashboard{}, err
	}

	enrichCtx, cancel := context.WithTimeout(ctx, enrichTimeout)
	defer cancel()

	top := make([]models.ProblematicDive, len(dash.TopProblematicDives))
	copy(top, dash.TopProblematicDives)

	g, gctx := errgroup.WithContext(enrichCtx)
	g.SetLimit(3)
	for i := range top {
		g.Go(func() error {
			top[i].Excerpts = s.excerpts(gctx, top[i])
			top[i].Note = s.note(gctx, top[i])
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return models.Dashboard{}, err
	}
	dash.TopProblematicDives = top
	return dash, nil
}

func (s *DiveService) excerpts(ctx context.Context, p models.ProblematicDive) []models.RetrievedPassage {
	if s.retriever == nil {
		return nil
	}
	query := "diving incident: " + strings.ToLower(p.PickReason)
	if len(p.Issues) > 0 {
		query += " " + strings.Join(p.Issues, " ")
	}
	passages, err := s.retriever.RetrieveCategory(ctx, query, models.CategoryIncident, excerptsPerDive)
	if err != nil {
		s.logger.Debug("no excerpts for dive", "dive_id", p.DiveID, "error", err)
		return nil
	}
	return passages
}

func (s *DiveService) note(ctx context.Context, p models.ProblematicDive) string {
	if s.model == nil {
		return analysis.FallbackNote(p)
	}
	prompt := analysis.ProfileReport(p.Features, s.thresholds)
	if len(p.Excerpts) > 0 {
		prompt += "\n\nRelated DAN incident: " + tools.Snippet(p.Excerpts[0].Text)
	}
	text, err := llm.Complete(ctx, s.model, noteSystem, prompt)
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		if err != nil {
			s.logger.Debug("dive note fell back to template", "dive_id", p.DiveID, "error", err)
		}
		return analysis.FallbackNote(p)
	}
	return text
}
