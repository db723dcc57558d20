package corpus

import (
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	chunkSize    = 2000
	chunkOverlap = 100
)

// Chunker splits cleaned article text into overlapping passages.
type Chunker struct {
	splitter textsplitter.TextSplitter
}

// NewChunker returns the recursive character splitter used for the corpus.
func NewChunker() *Chunker {
	return &Chunker{splitter: textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)}
}

// Split chunks text. Blank text yields no chunks.
func (c *Chunker) Split(text string) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	chunks, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	return chunks, nil
}
