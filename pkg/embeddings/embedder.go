// Package embeddings
package embeddings

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no embedding model is configured.
var ErrUnavailable = errors.New("no embedding model configured")

// ErrEmbedding is returned when embedding generation fails.
var ErrEmbedding = errors.New("embedding failed")

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}
