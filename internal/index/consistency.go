package index

import (
	"context"
	"time"

	"github.com/codeindex/codeindex/internal/config"
	"github.com/codeindex/codeindex/internal/errs"
	"github.com/codeindex/codeindex/internal/scanner"
	"github.com/codeindex/codeindex/internal/store"
)

// Status is the point-in-time health report produced by Checker.GetStatus.
type Status struct {
	// Indexed reports whether the chunk table holds at least one row.
	// SQLite's CREATE TABLE IF NOT EXISTS means the table itself always
	// physically exists once the store opens, so "an index exists" is
	// operationalized as "the table is non-empty": an index that was
	// cleared or never built reports Indexed = false either way.
	Indexed bool

	FileCount        int
	ChunkCount       int
	LastUpdated      time.Time
	IndexPath        string
	EmbeddingBackend string
	EmbeddingModel   string

	Corrupted        bool
	CorruptionReason string
}

// StaleResult is the outcome of Checker.CheckIfStale.
type StaleResult struct {
	Stale  bool
	Reason string
}

// Checker implements the Corruption & Staleness Detector (C9): it compares
// the persisted descriptor against the chunk table's actual row count and
// the project's current filesystem state, rather than cross-checking
// multiple search indices against each other.
type Checker struct {
	metadata store.MetadataStore
	root     string
	dataDir  string
	cfg      *config.Config
}

// NewChecker builds a Checker.
func NewChecker(metadata store.MetadataStore, root, dataDir string, cfg *config.Config) *Checker {
	return &Checker{metadata: metadata, root: root, dataDir: dataDir, cfg: cfg}
}

// GetStatus reports whether an index exists, basic counts, and whether it
// appears corrupted. The checks run in order and the first mismatch found
// is reported as the corruption reason; later checks are skipped.
func (c *Checker) GetStatus(ctx context.Context) (*Status, error) {
	chunkCount, err := c.metadata.ChunkCount(ctx)
	if err != nil {
		return nil, errs.Store("failed to read chunk count", err)
	}

	status := &Status{
		Indexed:    chunkCount > 0,
		ChunkCount: chunkCount,
		IndexPath:  c.dataDir,
	}
	if !status.Indexed {
		return status, nil
	}

	descriptor, err := loadDescriptor(c.dataDir)
	if err != nil {
		status.Corrupted = true
		status.CorruptionReason = "index metadata file is unreadable"
		return status, nil
	}
	if descriptor == nil {
		status.Corrupted = true
		status.CorruptionReason = "index metadata file is missing"
		return status, nil
	}

	status.FileCount = descriptor.FileCount
	status.LastUpdated = descriptor.LastUpdated
	status.EmbeddingBackend = descriptor.EmbeddingBackend
	status.EmbeddingModel = descriptor.EmbeddingModel

	if descriptor.ChunkCount != chunkCount {
		status.Corrupted = true
		status.CorruptionReason = "chunk count mismatch between index metadata and the chunk table"
		return status, nil
	}

	if descriptor.Checksum != "" {
		metas, err := c.metadata.GetFileMetadata(ctx)
		if err == nil {
			if actual := store.FileMetadataChecksum(metas); actual != descriptor.Checksum {
				status.Corrupted = true
				status.CorruptionReason = "file metadata checksum does not match the index metadata's recorded checksum"
				return status, nil
			}
		}
	}

	return status, nil
}

// CheckIfStale reports whether the on-disk project has drifted from the
// stored index, implementing C9's checkIfStale operation. The checks run
// in order (no index, no file metadata, new files, deleted files, modified
// files); the first category to trigger wins.
func (c *Checker) CheckIfStale(ctx context.Context) (*StaleResult, error) {
	chunkCount, err := c.metadata.ChunkCount(ctx)
	if err != nil {
		return nil, errs.Store("failed to read chunk count", err)
	}
	if chunkCount == 0 {
		return &StaleResult{Stale: true, Reason: "index does not exist"}, nil
	}

	storedMetas, err := c.metadata.GetFileMetadata(ctx)
	if err != nil {
		return nil, errs.Store("failed to read stored file metadata", err)
	}
	if len(storedMetas) == 0 {
		return &StaleResult{Stale: true, Reason: "no file metadata is stored"}, nil
	}

	stored := make([]scanner.StoredMeta, len(storedMetas))
	for i, m := range storedMetas {
		stored[i] = scanner.StoredMeta{FilePath: m.FilePath, MtimeMs: m.MtimeMs}
	}

	current, err := scanner.Enumerate(ctx, scanner.Options{
		RootDir:         c.root,
		IncludePatterns: c.cfg.Patterns,
		ExcludePatterns: c.cfg.ExcludePatterns,
	})
	if err != nil {
		return nil, errs.Internal("failed to scan project files", err)
	}

	result := scanner.Classify(current, stored)
	switch {
	case len(result.Added) > 0:
		return &StaleResult{Stale: true, Reason: "new files exist on disk that are not in the index"}, nil
	case len(result.Deleted) > 0:
		return &StaleResult{Stale: true, Reason: "indexed files have been deleted from disk"}, nil
	case len(result.Modified) > 0:
		return &StaleResult{Stale: true, Reason: "indexed files have been modified since they were last indexed"}, nil
	default:
		return &StaleResult{Stale: false}, nil
	}
}
