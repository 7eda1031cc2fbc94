// Package search implements the Hybrid Search Ranker (C7): it fetches
// semantic-nearest candidates from the vector store, scores each by a
// linear blend of rank-derived semantic similarity and a closed-form
// keyword match score, then applies path/language post-filters.
package search

import (
	"context"

	"github.com/codeindex/codeindex/internal/chunk"
)

// Defaults for the ranker.
const (
	DefaultLimit          = 10
	DefaultSemanticWeight = 0.7
	DefaultKeywordWeight  = 0.3
	maxFetchLimit         = 50
)

// Options configures a single search call.
type Options struct {
	// Query is the natural-language or keyword search string. Required.
	Query string

	// Limit caps the number of returned results. Defaults to DefaultLimit
	// when non-positive.
	Limit int

	// PathPattern, if set, keeps only results whose FilePath matches the
	// glob. A leading "!" inverts the match.
	PathPattern string

	// Languages, if non-empty, keeps only results whose canonicalized
	// language case-insensitively matches one of these entries.
	Languages []string
}

// Result is a single ranked search hit.
type Result struct {
	Chunk *chunk.Chunk

	// Score is the final combined score used for ranking.
	Score float64

	// SemanticScore and KeywordScore are the two components Score blends,
	// kept for callers that want to display a score breakdown.
	SemanticScore float64
	KeywordScore  float64
}

// QueryEmbedder is the subset of the embedding pipeline the ranker needs:
// a single query string in, a vector out. Satisfied by C6's query cache
// wrapping C1, or by a bare Embedder for callers that don't want caching.
type QueryEmbedder interface {
	Embed(ctx context.Context, query string) ([]float32, error)
}
