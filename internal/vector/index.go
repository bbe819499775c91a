// Package vector provides the per-project vector index and similarity search.
package vector

import (
	"context"
	"fmt"
	"sort"

	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/models"
)

// Result is a single retrieval hit.
type Result struct {
	Chunk models.Chunk
	Score float64
}

// Index holds embedded chunks for one project. An index is built once from a
// chunk set and is read-only afterwards; re-processing documents replaces it
// with a fresh build (no incremental mutation).
type Index struct {
	embedder   embedding.Embedder
	dimensions int
	chunks     []models.Chunk
	vectors    [][]float32
}

// Build embeds all chunks in one batched call and returns the index.
// Any embedder failure fails the whole build; no partial index is returned.
func Build(ctx context.Context, embedder embedding.Embedder, chunks []models.Chunk) (*Index, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to index")
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("index build: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("index build: got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	dims := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("index build: vector %d has dimension %d, expected %d", i, len(v), dims)
		}
	}
	stored := make([]models.Chunk, len(chunks))
	copy(stored, chunks)
	return &Index{
		embedder:   embedder,
		dimensions: dims,
		chunks:     stored,
		vectors:    vectors,
	}, nil
}

// Query embeds text with the index's embedder and returns the k nearest
// chunks by cosine similarity (vectors are normalized, so inner product).
// Ties are broken by original insertion order.
func (ix *Index) Query(ctx context.Context, text string, k int) ([]Result, error) {
	if k <= 0 || len(ix.chunks) == 0 {
		return nil, nil
	}
	query, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}
	if len(query) != ix.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), ix.dimensions)
	}

	scores := make([]Result, len(ix.chunks))
	for i, vec := range ix.vectors {
		scores[i] = Result{Chunk: ix.chunks[i], Score: InnerProduct(query, vec)}
	}
	// Stable sort keeps insertion order among equal scores.
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if k > len(scores) {
		k = len(scores)
	}
	return scores[:k], nil
}

// Size returns the number of embedded chunks in the index.
func (ix *Index) Size() int {
	return len(ix.chunks)
}

// Dimensions returns the embedding dimension of the stored vectors.
func (ix *Index) Dimensions() int {
	return ix.dimensions
}

// Chunks returns the indexed chunks in insertion order.
func (ix *Index) Chunks() []models.Chunk {
	return ix.chunks
}
