package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/raphaelgruber/diveroast/internal/models"
)

// Query prefixes steer each search towards its half of the corpus.
const (
	incidentPrefix  = "diving incident: "
	guidelinePrefix = "diving safety guideline: "
)

const maxSnippet = 300

func (t *Toolbox) search(ctx context.Context, name Name, a SearchArgs) Result {
	query := strings.TrimSpace(a.Query)
	if query == "" {
		return errorResult("Query cannot be empty", "Provide a search query")
	}
	k := a.K
	if k <= 0 {
		k = t.deps.DefaultK
	}

	prefix, category, label := incidentPrefix, models.CategoryIncident, "incident reports"
	if name == SearchGuidelines {
		prefix, category, label = guidelinePrefix, models.CategoryGuideline, "safety guidelines"
	}

	if t.deps.Retriever == nil {
		return unavailable(label)
	}
	passages, err := t.deps.Retriever.RetrieveCategory(ctx, prefix+query, category, k)
	switch {
	case errors.Is(err, models.ErrRetrievalUnavailable):
		return unavailable(label)
	case err != nil:
		t.deps.logger().Error("search failed", "tool", name, "error", err)
		return errorResult("Search failed", "")
	}

	if len(passages) == 0 {
		return textResult("No DAN %s matched %q.", label, query)
	}
	return Result{Content: FormatPassages(passages)}
}

func unavailable(label string) Result {
	return Result{
		Content: fmt.Sprintf("DAN %s are unavailable right now (search backend unreachable). "+
			"Answer from general diving safety knowledge and say that no DAN evidence could be retrieved.", label),
		Unavailable: true,
	}
}

// FormatPassages renders passages as numbered citations:
//
//	[1] TITLE (0.87) URL
//	first sentence of the passage
func FormatPassages(passages []models.RetrievedPassage) string {
	var sb strings.Builder
	for i, p := range passages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		title := p.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&sb, "[%d] %s (%.2f) %s\n%s", i+1, title, p.Score, p.URL, Snippet(p.Text))
	}
	return sb.String()
}

// Snippet returns the first sentence of text, capped at 300 characters.
func Snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if end := sentenceEnd(text); end > 0 {
		text = text[:end]
	}
	if utf8.RuneCountInString(text) <= maxSnippet {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxSnippet-3])) + "..."
}

// sentenceEnd is the byte offset just past the first ". ", "! " or "? ", or 0.
func sentenceEnd(text string) int {
	for i := 0; i+1 < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' {
				return i + 1
			}
		}
	}
	return 0
}
