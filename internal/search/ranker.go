package search

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/codeindex/codeindex/internal/chunk"
	"github.com/codeindex/codeindex/internal/errs"
	"github.com/codeindex/codeindex/internal/store"
)

// Ranker implements the Hybrid Search Ranker (C7).
type Ranker struct {
	Vectors  store.VectorStore
	Metadata store.MetadataStore
	Queries  QueryEmbedder

	SemanticWeight float64
	KeywordWeight  float64
}

// NewRanker builds a Ranker. A zero (semanticWeight, keywordWeight) pair
// falls back to the package defaults (0.7 / 0.3).
func NewRanker(vectors store.VectorStore, metadata store.MetadataStore, queries QueryEmbedder, semanticWeight, keywordWeight float64) *Ranker {
	if semanticWeight == 0 && keywordWeight == 0 {
		semanticWeight, keywordWeight = DefaultSemanticWeight, DefaultKeywordWeight
	}
	return &Ranker{
		Vectors:        vectors,
		Metadata:       metadata,
		Queries:        queries,
		SemanticWeight: semanticWeight,
		KeywordWeight:  keywordWeight,
	}
}

// Search fetches the top min(limit*3, 50) vector-nearest candidates, scores
// each by a weighted blend of its rank-derived semantic score and keyword
// score, applies the path/language post-filters, and returns the top limit.
func (r *Ranker) Search(ctx context.Context, opts Options) ([]Result, error) {
	if r.Vectors.Count() == 0 {
		return nil, errs.NotIndexed("no index exists")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	fetchLimit := limit * 3
	if fetchLimit > maxFetchLimit {
		fetchLimit = maxFetchLimit
	}

	queryVec, err := r.Queries.Embed(ctx, opts.Query)
	if err != nil {
		return nil, err
	}

	candidates, err := r.Vectors.Search(ctx, queryVec, fetchLimit)
	if err != nil {
		return nil, errs.Store("vector search failed", err)
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	chunks, err := r.Metadata.GetChunks(ctx, ids)
	if err != nil {
		return nil, errs.Store("failed to load chunks for search candidates", err)
	}
	byID := make(map[string]*chunk.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	invertPath := strings.HasPrefix(opts.PathPattern, "!")
	pathPattern := strings.TrimPrefix(opts.PathPattern, "!")

	langSet := make(map[string]struct{}, len(opts.Languages))
	for _, l := range opts.Languages {
		langSet[strings.ToLower(l)] = struct{}{}
	}

	tokens := keywordTokens(opts.Query)

	results := make([]Result, 0, len(candidates))
	for i, cand := range candidates {
		c, ok := byID[cand.ID]
		if !ok {
			continue
		}

		if pathPattern != "" {
			matched, _ := doublestar.Match(pathPattern, c.FilePath)
			if matched == invertPath {
				continue
			}
		}
		if len(langSet) > 0 {
			if _, ok := langSet[strings.ToLower(c.Language)]; !ok {
				continue
			}
		}

		semanticScore := 1 - float64(i)/float64(fetchLimit)
		kwScore := keywordScore(tokens, c)
		combined := r.SemanticWeight*semanticScore + r.KeywordWeight*kwScore

		results = append(results, Result{
			Chunk:         c,
			Score:         combined,
			SemanticScore: semanticScore,
			KeywordScore:  kwScore,
		})
	}

	// Stable sort preserves vector-store rank order as the tiebreaker for
	// equal combined scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// keywordTokens tokenizes a query by whitespace, lowercases, and drops
// tokens of length <= 2.
func keywordTokens(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// keywordScore scores a chunk against the query tokens: +1.0 per token found
// as a content substring, +0.5 bonus for a whole-word content match, +0.5
// bonus for a filepath substring match. The base is normalized by token
// count; the bonus term is normalized and capped at 0.5; the sum is capped
// at 1.
func keywordScore(tokens []string, c *chunk.Chunk) float64 {
	if len(tokens) == 0 {
		return 0
	}

	content := strings.ToLower(c.Content)
	filePath := strings.ToLower(c.FilePath)

	var matchCount, exactBonus float64
	for _, tok := range tokens {
		if strings.Contains(content, tok) {
			matchCount++
			if wordBoundaryMatch(content, tok) {
				exactBonus += 0.5
			}
		}
		if strings.Contains(filePath, tok) {
			exactBonus += 0.5
		}
	}

	b := matchCount / float64(len(tokens))
	e := exactBonus / float64(len(tokens))
	if e > 0.5 {
		e = 0.5
	}

	score := b + e
	if score > 1 {
		score = 1
	}
	return score
}

func wordBoundaryMatch(content, token string) bool {
	pattern := `\b` + regexp.QuoteMeta(token) + `\b`
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(content)
}
