package tools

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raphaelgruber/diveroast/internal/models"
)

func TestSnippet(t *testing.T) {
	long := strings.Repeat("a", 400)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"first sentence", "The diver surfaced. She felt pain.", "The diver surfaced."},
		{"question mark", "Was it DCS? Probably.", "Was it DCS?"},
		{"no terminator", "no sentence end here", "no sentence end here"},
		{"decimal point kept", "Ascended at 1.5 m/s. Then", "Ascended at 1.5 m/s."},
		{"whitespace collapsed", "  two\n\nlines ", "two lines"},
		{"capped", long, strings.Repeat("a", 297) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Snippet(tt.in))
		})
	}
}

func TestFormatPassages(t *testing.T) {
	out := FormatPassages([]models.RetrievedPassage{
		{Title: "Case A", URL: "https://dan.org/a", Score: 0.5, Text: "First. Second."},
		{URL: "https://dan.org/b", Score: 0.25, Text: "Only"},
	})
	assert.Equal(t, "[1] Case A (0.50) https://dan.org/a\nFirst.\n\n[2] Untitled (0.25) https://dan.org/b\nOnly", out)
}
