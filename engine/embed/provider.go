// Package embed turns text into fixed-length vectors. Both the ingestion
// and the query paths go through the Provider interface; concrete providers
// wrap Ollama's HTTP API and the OpenAI embeddings endpoint.
package embed

import (
	"context"
	"errors"
)

// ErrUnavailable means the embedding backend cannot be reached or errored.
// It is surfaced, never retried at this layer.
var ErrUnavailable = errors.New("embedding backend unavailable")

// Provider produces embeddings of a fixed dimensionality. Implementations
// must be safe for concurrent use. Output is deterministic for a given
// model version; not across model upgrades.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}
