package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/raphaelgruber/diveroast/internal/analysis"
	"github.com/raphaelgruber/diveroast/internal/models"
)

const maxLogBytes = 20 << 20

func (t *Toolbox) parseLog(ctx context.Context, a ParseArgs) Result {
	_, res := t.upload(ctx, a)
	return res
}

// upload parses a logbook into a new session. The upload result is nil when
// parsing failed.
func (t *Toolbox) upload(ctx context.Context, a ParseArgs) (*models.UploadResult, Result) {
	if t.deps.Uploader == nil {
		return nil, errorResult("Log parsing is not available here", "")
	}

	name := "upload.ssrf"
	raw := []byte(a.Raw)
	if a.Raw == "" {
		if !t.deps.AllowFiles {
			return nil, errorResult("file_path is only available to local clients", "Pass the XML content in raw")
		}
		info, err := os.Stat(a.FilePath)
		if err != nil {
			return nil, errorResult(fmt.Sprintf("Cannot read %s", a.FilePath), "Check the path")
		}
		if info.Size() > maxLogBytes {
			return nil, errorResult("Log file too large", "Export fewer dives")
		}
		raw, err = os.ReadFile(a.FilePath)
		if err != nil {
			return nil, errorResult(fmt.Sprintf("Cannot read %s", a.FilePath), "Check the path")
		}
		name = a.FilePath
	}

	res, err := t.deps.Uploader.Upload(ctx, name, raw)
	if err != nil {
		return nil, errorResult("Could not parse the dive log: "+err.Error(), "Provide a valid Subsurface XML export")
	}
	return res, textResult("Parsed %d dives into session %s.\nDives: %s\n%s",
		res.DiveCount, res.SessionID, strings.Join(res.DiveNumbers, ", "), res.Message)
}

func (t *Toolbox) lookupDive(sessionID, diveID string) (models.Dive, models.DiveFeatures, *Result) {
	s, err := t.deps.Sessions.Get(sessionID)
	if err != nil {
		r := sessionError(err)
		return models.Dive{}, models.DiveFeatures{}, &r
	}
	d, ok := s.Dive(diveID)
	if !ok {
		r := errorResult(fmt.Sprintf("Dive #%s not found", diveID), "Call list_dives for valid dive numbers")
		return models.Dive{}, models.DiveFeatures{}, &r
	}
	f, ok := s.FeaturesFor(diveID)
	if !ok {
		r := errorResult(fmt.Sprintf("Dive #%s was excluded from analysis", diveID), "It has too few samples")
		return models.Dive{}, models.DiveFeatures{}, &r
	}
	return d, f, nil
}

func (t *Toolbox) analyzeProfile(sessionID string, a DiveArgs) Result {
	_, f, fail := t.lookupDive(sessionID, a.DiveID)
	if fail != nil {
		return *fail
	}
	return Result{Content: analysis.ProfileReport(f, t.deps.Thresholds)}
}

func (t *Toolbox) diveSummary(sessionID string, a DiveArgs) Result {
	d, f, fail := t.lookupDive(sessionID, a.DiveID)
	if fail != nil {
		return *fail
	}
	return Result{Content: analysis.Summary(d, f)}
}

func (t *Toolbox) listDives(sessionID string, a ListArgs) Result {
	if a.SessionID != "" {
		sessionID = a.SessionID
	}
	s, err := t.deps.Sessions.Get(sessionID)
	if err != nil {
		return sessionError(err)
	}
	if len(s.Features) == 0 {
		return textResult("Session %s has no analysed dives.", s.ID)
	}

	lines := make([]string, 0, len(s.Features)+len(s.Excluded)+1)
	lines = append(lines, fmt.Sprintf("%d dives:", len(s.Features)))
	for _, f := range s.Features {
		lines = append(lines, analysis.ListLine(f))
	}
	for _, x := range s.Excluded {
		lines = append(lines, fmt.Sprintf("#%s: excluded (%s)", x.DiveID, x.Reason))
	}
	return Result{Content: FormatResults(lines)}
}

func (t *Toolbox) refresh(ctx context.Context) Result {
	if t.deps.Refresher == nil {
		return errorResult("Corpus refresh is not available here", "")
	}
	id, running, err := t.deps.Refresher.StartRefresh(ctx)
	if err != nil {
		t.deps.logger().Error("start refresh failed", "error", err)
		return errorResult("Could not start the corpus refresh", "Try again later")
	}
	if running {
		return textResult("A corpus refresh is already running (job %s).", id)
	}
	return textResult("Corpus refresh started in the background (job %s). Searches keep using the current corpus until it finishes.", id)
}
