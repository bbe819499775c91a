// Package ingest provides document chunking and the processing pipeline that
// turns uploaded files into a project's retrieval indexes.
package ingest

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hyperjump/kaiwa/internal/models"
)

// Chunker splits raw text into overlapping character windows.
type Chunker struct {
	chunkSize int
	overlap   int
	separator string
}

// NewChunker creates a chunker with the given window size and overlap (in
// runes) and fragment separator.
func NewChunker(chunkSize, overlap int, separator string) *Chunker {
	if separator == "" {
		separator = "\n"
	}
	return &Chunker{
		chunkSize: chunkSize,
		overlap:   overlap,
		separator: separator,
	}
}

// Chunk splits text into Chunks of at most chunkSize runes, each window
// carrying the last overlap runes of the previous one. Separator runs are
// normalized to a single separator first. Empty or whitespace-only input
// yields no chunks.
func (c *Chunker) Chunk(docID, text string) []models.Chunk {
	fragments := make([]string, 0)
	for _, f := range strings.Split(text, c.separator) {
		if f != "" {
			fragments = append(fragments, f)
		}
	}
	norm := strings.Join(fragments, c.separator)
	if strings.TrimSpace(norm) == "" {
		return nil
	}

	runes := []rune(norm)
	step := c.chunkSize - c.overlap
	if step <= 0 {
		step = 1
	}
	chunks := make([]models.Chunk, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, models.Chunk{
			ID:         fmt.Sprintf("%s_%s", docID, uuid.New().String()[:8]),
			DocumentID: docID,
			Text:       string(runes[start:end]),
			Index:      len(chunks),
		})
		if end >= len(runes) {
			break
		}
	}
	return chunks
}
