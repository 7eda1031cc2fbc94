// Package codeindex is the public façade over the code indexing and hybrid
// semantic search engine: it wires together the Configuration Resolver, the
// Embedding Backend, the Structural Chunker, the Vector Store Gateway, the
// Hybrid Search Ranker, and the Indexing Orchestrator behind a small
// surface: Initialize, IndexCodebase, Search, SearchSimilar, GetStatus,
// CheckIfStale, and ClearIndex.
package codeindex

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/codeindex/codeindex/internal/chunk"
	"github.com/codeindex/codeindex/internal/config"
	"github.com/codeindex/codeindex/internal/embed"
	"github.com/codeindex/codeindex/internal/errs"
	"github.com/codeindex/codeindex/internal/index"
	"github.com/codeindex/codeindex/internal/search"
	"github.com/codeindex/codeindex/internal/store"
)

// Re-exported types so callers don't need to import internal packages.
type (
	// Chunk is a single indexed unit of source code.
	Chunk = chunk.Chunk
	// SearchOptions configures a Search call.
	SearchOptions = search.Options
	// SearchResult is a single ranked search hit.
	SearchResult = search.Result
	// IndexResult summarizes the outcome of an IndexCodebase call.
	IndexResult = index.Result
	// Progress is a single point-in-time indexing progress report.
	Progress = index.Progress
	// ProgressSink receives Progress events during IndexCodebase.
	ProgressSink = index.ProgressSink
	// Status is the outcome of GetStatus.
	Status = index.Status
	// StaleResult is the outcome of CheckIfStale.
	StaleResult = index.StaleResult
)

// SimilarOptions configures a SearchSimilar call. Exactly one of Code or
// (FilePath, StartLine, EndLine) must identify the input snippet.
type SimilarOptions struct {
	// Code, if set, is used directly as the similarity query.
	Code string

	// FilePath/StartLine/EndLine identify a stored chunk to use as the
	// similarity query when Code is empty.
	FilePath  string
	StartLine int
	EndLine   int

	Limit       int
	Threshold   float64
	ExcludeSelf bool
}

// SimilarResult is a single SearchSimilar hit.
type SimilarResult struct {
	Chunk      *chunk.Chunk
	Similarity float64
}

// Engine is the entry point for indexing and searching one project. The
// zero value is not usable; construct with New and call Initialize before
// any other method.
type Engine struct {
	root    string
	dataDir string

	once    sync.Once
	initErr error

	cfg        *config.Config
	metadata   store.MetadataStore
	vectors    *store.HNSWStore
	embedder   embed.Embedder
	queryCache *embed.QueryCache
	chunker    *chunk.CodeChunker

	runner  *index.Runner
	ranker  *search.Ranker
	checker *index.Checker
}

// New constructs an Engine for the project rooted at root. Call Initialize
// before using it.
func New(root string) *Engine {
	return &Engine{
		root:    root,
		dataDir: filepath.Join(root, ".codeindex"),
	}
}

// Initialize loads configuration, opens the metadata and vector stores, and
// constructs the embedding backend. Safe to call more than once: only the
// first call does any work, and later callers observe its result.
func (e *Engine) Initialize(ctx context.Context) error {
	e.once.Do(func() {
		e.initErr = e.initialize(ctx)
	})
	return e.initErr
}

func (e *Engine) initialize(ctx context.Context) error {
	cfg, err := config.Load(e.root)
	if err != nil {
		return errs.Config("failed to load configuration", err)
	}
	e.cfg = cfg

	if err := os.MkdirAll(e.dataDir, 0o755); err != nil {
		return errs.Internal("failed to create index directory", err)
	}

	metadata, err := store.NewSQLiteMetadataStore(filepath.Join(e.dataDir, "metadata.db"))
	if err != nil {
		return errs.Store("failed to open metadata store", err)
	}
	e.metadata = metadata

	provider, err := embed.ParseProvider(cfg.Embedding.Backend)
	if err != nil {
		return err
	}
	embedder, err := embed.NewEmbedder(provider, cfg.Embedding.Model)
	if err != nil {
		return err
	}
	if err := embedder.Initialize(ctx); err != nil {
		return err
	}
	e.embedder = embedder
	e.queryCache = embed.NewQueryCacheWithDefaults(embedder)

	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	if err != nil {
		return errs.Store("failed to create vector store", err)
	}
	vectorPath := filepath.Join(e.dataDir, "vectors.hnsw")
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		if err := vectors.Load(vectorPath); err != nil {
			return errs.Store("failed to load vector store", err)
		}
	}
	e.vectors = vectors

	e.chunker = chunk.NewCodeChunkerWithOptions(chunk.CodeChunkerOptions{
		MaxLines: cfg.Chunking.MaxLines,
		MinLines: chunk.DefaultMinLines,
		Overlap:  cfg.Chunking.Overlap,
	})

	e.runner = index.NewRunner(e.root, e.dataDir, e.metadata, e.vectors, e.embedder, e.chunker, e.cfg)
	e.ranker = search.NewRanker(e.vectors, e.metadata, e.queryCache, cfg.Search.SemanticWeight, cfg.Search.KeywordWeight)
	e.checker = index.NewChecker(e.metadata, e.root, e.dataDir, e.cfg)

	return nil
}

// IndexCodebase runs a single indexing pass over the project: a checkpoint
// resume, a full reindex, or an incremental update, chosen automatically
// unless forceReindex is set. A nil patterns/excludePatterns falls back to
// the resolved configuration. sink, if non-nil, receives progress events.
func (e *Engine) IndexCodebase(ctx context.Context, patterns, excludePatterns []string, forceReindex bool, sink ProgressSink) (*IndexResult, error) {
	if err := e.Initialize(ctx); err != nil {
		return nil, err
	}
	return e.runner.IndexCodebase(ctx, patterns, excludePatterns, forceReindex, sink)
}

// Search executes a hybrid semantic+keyword search and returns ranked
// chunks, stripped of their embeddings. When search.autoReindex is enabled
// and the on-disk project has drifted from an existing index, an incremental
// reindex runs first so results reflect the current file contents.
func (e *Engine) Search(ctx context.Context, opts SearchOptions) ([]SearchResult, error) {
	if err := e.Initialize(ctx); err != nil {
		return nil, err
	}
	e.maybeAutoReindex(ctx)
	results, err := e.ranker.Search(ctx, opts)
	if err != nil {
		return nil, err
	}
	for i := range results {
		stripEmbedding(results[i].Chunk)
	}
	return results, nil
}

// maybeAutoReindex runs an incremental reindex before a search when the
// configuration asks for it and an index already exists but is stale. An
// empty index is left alone so searches still surface not_indexed, and a
// reindex failure degrades to searching the stale index rather than failing
// the query.
func (e *Engine) maybeAutoReindex(ctx context.Context) {
	if !e.cfg.Search.AutoReindexEnabled() {
		return
	}
	status, err := e.checker.GetStatus(ctx)
	if err != nil || !status.Indexed {
		return
	}
	stale, err := e.checker.CheckIfStale(ctx)
	if err != nil || !stale.Stale {
		return
	}
	if _, err := e.runner.IndexCodebase(ctx, nil, nil, false, nil); err != nil {
		slog.Warn("auto-reindex before search failed, searching the stale index",
			slog.String("reason", stale.Reason), slog.String("error", err.Error()))
	}
}

// SearchSimilar finds chunks semantically similar to a given code snippet or
// an existing chunk identified by file path and line range.
func (e *Engine) SearchSimilar(ctx context.Context, opts SimilarOptions) ([]SimilarResult, error) {
	if err := e.Initialize(ctx); err != nil {
		return nil, err
	}

	inputContent := opts.Code
	if strings.TrimSpace(inputContent) == "" {
		if opts.FilePath == "" {
			return nil, errs.Validation("searchSimilar requires either code or a filepath/line range", nil)
		}
		chunks, err := e.metadata.GetChunksByFilePath(ctx, opts.FilePath)
		if err != nil {
			return nil, errs.Store("failed to load chunks for similarity lookup", err)
		}
		var match *chunk.Chunk
		for _, c := range chunks {
			if c.StartLine <= opts.EndLine && c.EndLine >= opts.StartLine {
				match = c
				break
			}
		}
		if match == nil {
			return nil, errs.Validation(fmt.Sprintf("no indexed chunk overlaps %s:%d-%d", opts.FilePath, opts.StartLine, opts.EndLine), nil)
		}
		inputContent = match.Content
	}

	vec, err := e.embedder.Embed(ctx, inputContent)
	if err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = search.DefaultLimit
	}
	fetch := limit + 1
	if opts.ExcludeSelf {
		fetch = limit * 2
	}

	candidates, err := e.vectors.Search(ctx, vec, fetch)
	if err != nil {
		return nil, errs.Store("vector search failed", err)
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	chunks, err := e.metadata.GetChunks(ctx, ids)
	if err != nil {
		return nil, errs.Store("failed to load candidate chunks", err)
	}
	byID := make(map[string]*chunk.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	results := make([]SimilarResult, 0, limit)
	for _, cand := range candidates {
		c, ok := byID[cand.ID]
		if !ok {
			continue
		}
		if opts.ExcludeSelf && strings.TrimSpace(c.Content) == strings.TrimSpace(inputContent) {
			continue
		}
		if opts.Threshold > 0 && float64(cand.Score) < opts.Threshold {
			continue
		}
		dup := *c
		stripEmbedding(&dup)
		results = append(results, SimilarResult{Chunk: &dup, Similarity: float64(cand.Score)})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// GetStatus reports whether an index exists, basic counts, and whether it
// appears corrupted.
func (e *Engine) GetStatus(ctx context.Context) (*Status, error) {
	if err := e.Initialize(ctx); err != nil {
		return nil, err
	}
	return e.checker.GetStatus(ctx)
}

// CheckIfStale reports whether the on-disk project has drifted from the
// stored index.
func (e *Engine) CheckIfStale(ctx context.Context) (*StaleResult, error) {
	if err := e.Initialize(ctx); err != nil {
		return nil, err
	}
	return e.checker.CheckIfStale(ctx)
}

// ClearIndex drops the chunk table, clears the vector store and query
// cache, and deletes any in-flight checkpoint.
func (e *Engine) ClearIndex(ctx context.Context) error {
	if err := e.Initialize(ctx); err != nil {
		return err
	}
	if err := e.metadata.DropChunks(ctx); err != nil {
		return errs.Store("failed to drop chunk table", err)
	}
	if ids := e.vectors.AllIDs(); len(ids) > 0 {
		if err := e.vectors.Delete(ctx, ids); err != nil {
			return errs.Store("failed to clear vector store", err)
		}
	}
	if err := e.vectors.Save(filepath.Join(e.dataDir, "vectors.hnsw")); err != nil {
		return errs.Store("failed to persist cleared vector store", err)
	}
	e.queryCache.Clear()
	return index.ClearCheckpoint(e.dataDir)
}

// Close releases the metadata store, vector store, and embedding backend.
func (e *Engine) Close() error {
	var firstErr error
	if e.chunker != nil {
		e.chunker.Close()
	}
	if e.vectors != nil {
		if err := e.vectors.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.metadata != nil {
		if err := e.metadata.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.embedder != nil {
		if err := e.embedder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func stripEmbedding(c *chunk.Chunk) {
	if c != nil {
		c.Embedding = nil
	}
}
