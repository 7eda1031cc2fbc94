// Package embed implements the Embedding Backend (C1), the Retry Transport
// (C2, in the httpretry subpackage), and the Query Embedding Cache (C6, in
// querycache.go).
package embed

import (
	"context"
	"math"
	"time"
)

// Common embedding constants.
const (
	// DefaultBatchSize is the default number of texts per embedding request.
	DefaultBatchSize = 32

	// DefaultRequestTimeout bounds a single embedding request. Generous
	// because a local server may still be loading the model into memory
	// when the first request of a run arrives.
	DefaultRequestTimeout = 120 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for embedding calls.
	DefaultMaxRetries = 3
)

// DefaultDimensions is the embedding dimension used when a model's native
// dimensionality can't be determined up front.
const DefaultDimensions = 768

// StaticDimensions is the embedding dimension produced by the static backend.
const StaticDimensions = 256

// Embedder is the uniform contract for an embedding backend (C1). All
// variants (local-HTTP, remote-API, static) implement it identically so the
// orchestrator and ranker never special-case a backend.
type Embedder interface {
	// Name returns a short backend identifier, e.g. "ollama", "static".
	Name() string

	// ModelName returns the model identifier in use.
	ModelName() string

	// Dimensions returns the fixed embedding dimension this instance produces.
	Dimensions() int

	// BatchSize returns the upper bound on texts per EmbedBatch call.
	BatchSize() int

	// Initialize probes reachability and verifies the selected model is
	// available. Returns a *errs.IndexError tagged backend_unreachable or
	// model_not_found on failure.
	Initialize(ctx context.Context) error

	// Embed generates an embedding for a single text; a convenience wrapper
	// over EmbedBatch([]string{text}).
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, splitting into
	// chunks of at most BatchSize() and preserving input order. On any
	// permanent failure the whole call fails with embedding_failed.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Available reports whether the backend is currently reachable.
	Available(ctx context.Context) bool

	// Close releases resources held by the embedder.
	Close() error
}

// normalizeVector normalizes v to unit length, returning it unchanged if its
// magnitude is zero.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
