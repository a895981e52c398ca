// Package chunker splits documents into overlapping chunks sized for the
// embedding model's context window.
package chunker

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/fyrsmithlabs/vectord/internal/config"
)

// Chunk is one piece of a split document.
type Chunk struct {
	// Index is the zero-based position of the chunk within its document.
	Index int
	Text  string
}

// Chunker splits text recursively on paragraph, line, and word boundaries.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
}

// New creates a Chunker from config. Overlap must be smaller than size,
// which config validation already guarantees for loaded configs.
func New(cfg config.ChunkerConfig) (*Chunker, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		),
	}, nil
}

// Split splits text into indexed chunks. Whitespace-only input yields no
// chunks.
func (c *Chunker) Split(text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("splitting text: %w", err)
	}
	chunks := make([]Chunk, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Text: part})
	}
	return chunks, nil
}
