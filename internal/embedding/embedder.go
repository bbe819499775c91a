// Package embedding provides text embedding via a hosted embeddings API.
package embedding

import (
	"context"
	"fmt"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// RequestError reports a failed call to the embeddings collaborator.
// Index builds wrap it; no partial index is ever committed on top of one.
type RequestError struct {
	Status int
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("embedding request failed with status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("embedding request failed: %v", e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }
