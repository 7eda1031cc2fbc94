// Package store provides the persistence layer: an HNSW-backed vector store
// (C5's ANN index) and a SQLite-backed metadata store holding the chunk
// table and per-file mtime table, plus the shapes of the JSON-file
// descriptor and checkpoint records that internal/index reads and writes.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/codeindex/codeindex/internal/chunk"
)

// FileMeta records the mtime observed when a file was last indexed. One row
// per indexed file.
type FileMeta struct {
	FilePath string
	MtimeMs  int64
}

// IndexDescriptor is the persisted record describing an index as a whole,
// written to index-metadata.json at the end of a successful indexing run.
type IndexDescriptor struct {
	LastUpdated         time.Time `json:"lastUpdated"`
	FileCount           int       `json:"fileCount"`
	ChunkCount          int       `json:"chunkCount"`
	EmbeddingBackend    string    `json:"embeddingBackend"`
	EmbeddingModel      string    `json:"embeddingModel"`
	EmbeddingDimensions int       `json:"embeddingDimensions"`
	Version             string    `json:"version"`
	// Checksum is a stable hash over the sorted list of (filepath, mtime)
	// pairs in the file-metadata table; optional.
	Checksum string `json:"checksum,omitempty"`
}

// CheckpointPhase is the phase an in-flight indexing run was in when its
// checkpoint was last written.
type CheckpointPhase string

const (
	PhaseChunking CheckpointPhase = "chunking"
	PhaseEmbedding CheckpointPhase = "embedding"
)

// Checkpoint lets an interrupted indexing run resume. Written at phase
// transitions, deleted on success. Only one of PendingChunks/EmbeddedChunks
// is populated, depending on Phase.
type Checkpoint struct {
	Phase     CheckpointPhase `json:"phase"`
	StartedAt time.Time       `json:"startedAt"`

	// Incremental records whether the interrupted run was an incremental
	// update. A resumed incremental run appends its chunks; a resumed full
	// reindex rewrites every table.
	Incremental bool `json:"incremental,omitempty"`

	// Files lists the project-relative paths being processed this run;
	// absolute paths are not stored.
	Files []string `json:"files"`
	// ProcessedFiles lists files already persisted this run.
	ProcessedFiles []string `json:"processedFiles"`

	// PendingChunks holds chunked-but-not-yet-embedded chunks; set only
	// when Phase == PhaseChunking.
	PendingChunks []*chunk.Chunk `json:"pendingChunks,omitempty"`
	// EmbeddedChunks holds chunks with embeddings attached; set only when
	// Phase == PhaseEmbedding.
	EmbeddedChunks []*chunk.Chunk `json:"embeddedChunks,omitempty"`

	EmbeddingBackend string `json:"embeddingBackend"`
	EmbeddingModel   string `json:"embeddingModel"`

	// FileMtimes maps relative path to the mtime observed at chunk time.
	FileMtimes map[string]int64 `json:"fileMtimes"`
}

// MetadataStore persists the chunk table (`code_chunks`) and the per-file
// mtime table (`file_metadata`). The descriptor and checkpoint are plain
// JSON files, owned and read/written directly by the indexing orchestrator
// (C8), not through this interface.
type MetadataStore interface {
	// SaveChunks inserts chunks into the chunk table. Existing rows with
	// the same ID are replaced.
	SaveChunks(ctx context.Context, chunks []*chunk.Chunk) error

	// GetChunk retrieves a single chunk by ID.
	GetChunk(ctx context.Context, id string) (*chunk.Chunk, error)

	// GetChunks retrieves multiple chunks by ID in one round trip,
	// omitting any ID with no matching row.
	GetChunks(ctx context.Context, ids []string) ([]*chunk.Chunk, error)

	// GetChunksByFilePath returns all chunks for one file, ascending by
	// startLine.
	GetChunksByFilePath(ctx context.Context, filePath string) ([]*chunk.Chunk, error)

	// DeleteChunksByFilePath removes every chunk for one file.
	DeleteChunksByFilePath(ctx context.Context, filePath string) error

	// DropChunks truncates the chunk table entirely (full-reindex path).
	DropChunks(ctx context.Context) error

	// ChunkCount reports the live row count of the chunk table.
	ChunkCount(ctx context.Context) (int, error)

	// SaveFileMetadata rewrites the file-metadata table from scratch with
	// the given rows.
	SaveFileMetadata(ctx context.Context, metas []FileMeta) error

	// GetFileMetadata returns every row of the file-metadata table.
	GetFileMetadata(ctx context.Context) ([]FileMeta, error)

	// FileMetadataCount reports the live row count of the file-metadata
	// table.
	FileMetadataCount(ctx context.Context) (int, error)

	// Close releases the underlying database handle.
	Close() error
}

// VectorResult represents a single vector search result.
type VectorResult struct {
	ID       string  // Chunk ID
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	// Dimensions is the vector dimension, fixed per embedding backend.
	Dimensions int

	// Quantization is the vector precision: "f32", "f16", "i8" (default: "f16")
	Quantization string

	// Metric is the distance metric: "cos" (cosine), "l2" (euclidean) (default: "cos")
	Metric string

	// M is HNSW max connections per layer (default: 32)
	M int

	// EfConstruction is HNSW build-time search width (default: 128)
	EfConstruction int

	// EfSearch is HNSW query-time search width (default: 64)
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults for vector store.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Quantization:   "f16",
		Metric:         "cos",
		M:              32,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

// VectorStore provides semantic search using HNSW algorithm.
type VectorStore interface {
	// Add inserts vectors with their IDs. If an ID exists, it is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds k nearest neighbors to query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete removes vectors by ID.
	Delete(ctx context.Context, ids []string) error

	// AllIDs returns all vector IDs in the store (used to clear it)
	AllIDs() []string

	// Contains checks if ID exists.
	Contains(id string) bool

	// Count returns number of vectors.
	Count() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (reindex with --force)", e.Expected, e.Got)
}
