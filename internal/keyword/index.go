// Package keyword provides an in-memory lexical index over document chunks.
// It backs fallback mode, where the best-matching chunk is selected without
// the embeddings collaborator.
package keyword

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/hyperjump/kaiwa/internal/models"
)

// Result is a single lexical search hit.
type Result struct {
	Chunk models.Chunk
	Score float64
}

// ChunkIndex is a Bleve memory-only index over chunk texts. Like the vector
// index, it is built once per processing run and read-only afterwards.
type ChunkIndex struct {
	index  bleve.Index
	chunks map[string]models.Chunk
}

type chunkDoc struct {
	Text string `json:"text"`
}

// BuildChunkIndex indexes all chunks into a fresh in-memory Bleve index.
func BuildChunkIndex(chunks []models.Chunk) (*ChunkIndex, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textField := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so query words
	// match chunk words exactly.
	textField.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textField)
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("create chunk index: %w", err)
	}

	byID := make(map[string]models.Chunk, len(chunks))
	batch := index.NewBatch()
	for _, ch := range chunks {
		if err := batch.Index(ch.ID, chunkDoc{Text: ch.Text}); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("index chunk %s: %w", ch.ID, err)
		}
		byID[ch.ID] = ch
	}
	if err := index.Batch(batch); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("commit chunk batch: %w", err)
	}
	return &ChunkIndex{index: index, chunks: byID}, nil
}

// Search returns up to limit chunks matching query by BM25 relevance.
// No match returns an empty slice, never an error.
func (c *ChunkIndex) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = limit
	res, err := c.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chunk search: %w", err)
	}
	out := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ch, ok := c.chunks[hit.ID]
		if !ok {
			continue
		}
		out = append(out, Result{Chunk: ch, Score: hit.Score})
	}
	return out, nil
}

// Size returns the number of indexed chunks.
func (c *ChunkIndex) Size() int {
	return len(c.chunks)
}

// Close releases the underlying Bleve index.
func (c *ChunkIndex) Close() error {
	if c.index == nil {
		return nil
	}
	return c.index.Close()
}
