package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Corpus categories.
const (
	CategoryIncident  = "incident"
	CategoryGuideline = "guideline"
)

// Passage is a stored chunk of the incident/guideline corpus.
type Passage struct {
	ID        surrealmodels.RecordID `json:"id"`
	Content   string                 `json:"content"`
	Title     string                 `json:"title"`
	URL       string                 `json:"url"`
	Category  string                 `json:"category"`
	Position  int                    `json:"position"`
	CreatedAt time.Time              `json:"created"`
}

// PassageInput is a chunk ready to be written to the corpus store.
type PassageInput struct {
	Content   string    `json:"content"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Category  string    `json:"category"`
	Position  int       `json:"position"`
	Embedding []float32 `json:"embedding"`
}

// SearchMode tells which sub-query produced a passage.
type SearchMode string

const (
	SearchSemantic SearchMode = "semantic"
	SearchLexical  SearchMode = "lexical"
)

// ScoredPassage is a raw backend hit before the hybrid merge.
type ScoredPassage struct {
	SourceID string
	Content  string
	Title    string
	URL      string
	Category string
	Score    float64
	Mode     SearchMode
}

// RetrievedPassage is a ranked corpus excerpt returned to callers.
type RetrievedPassage struct {
	Text     string     `json:"text"`
	SourceID string     `json:"source_id"`
	Title    string     `json:"title,omitempty"`
	URL      string     `json:"url,omitempty"`
	Category string     `json:"category,omitempty"`
	Score    float64    `json:"score"`
	Query    string     `json:"query"`
	Mode     SearchMode `json:"mode"`
}
