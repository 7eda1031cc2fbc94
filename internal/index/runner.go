package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codeindex/codeindex/internal/chunk"
	"github.com/codeindex/codeindex/internal/config"
	"github.com/codeindex/codeindex/internal/embed"
	"github.com/codeindex/codeindex/internal/errs"
	"github.com/codeindex/codeindex/internal/logging"
	"github.com/codeindex/codeindex/internal/scanner"
	"github.com/codeindex/codeindex/internal/store"
)

// runnerLog returns the default logger scoped to the orchestrator component,
// so every record the Runner emits can be filtered alongside the rest of the
// engine's component-tagged logs.
func runnerLog() *slog.Logger {
	return logging.For(slog.Default(), logging.ComponentOrchestrator)
}

// vectorCompactor is implemented by vector stores that can reclaim
// lazily-deleted nodes. store.VectorStore itself stays minimal since not
// every backend needs compaction; the Runner type-asserts for it so
// HNSWStore's CompactIfNeeded gets exercised after every store write
// without widening the shared interface for a single backend's concern.
type vectorCompactor interface {
	CompactIfNeeded(ctx context.Context) (bool, error)
}

// compactVectors gives the vector store a chance to rebuild itself when
// accumulated deletes have left it mostly orphan nodes. Errors are logged
// rather than failing the run: a stale but correct index is preferable to
// aborting an otherwise-successful indexing pass.
func (r *Runner) compactVectors(ctx context.Context) {
	compactor, ok := r.vectors.(vectorCompactor)
	if !ok {
		return
	}
	compacted, err := compactor.CompactIfNeeded(ctx)
	if err != nil {
		runnerLog().Warn("vector store compaction failed", slog.String("error", err.Error()))
		return
	}
	if compacted {
		runnerLog().Info("vector store compacted to reclaim orphaned nodes")
	}
}

// Phase names a stage of an indexing run, reported through Progress events.
type Phase string

const (
	PhaseScanning  Phase = "scanning"
	PhaseChunking  Phase = "chunking"
	PhaseEmbedding Phase = "embedding"
	PhaseStoring   Phase = "storing"
	PhaseComplete  Phase = "complete"
)

// Progress is a single point-in-time report of an indexing run.
type Progress struct {
	Phase      Phase
	Current    int
	Total      int
	Message    string
	ETASeconds float64
}

// ProgressSink receives Progress events. Call sites are best-effort: a
// panicking sink never aborts the indexing run.
type ProgressSink func(Progress)

// Result summarizes the outcome of a single IndexCodebase call.
type Result struct {
	FilesIndexed  int
	ChunksCreated int
	Incremental   bool
}

// Runner is the Indexing Orchestrator (C8). One Runner owns one project's
// indexing lifecycle: scanning, chunking, embedding, and writing the
// metadata/vector stores, with crash-resumable checkpointing and a
// cross-process concurrency guard.
type Runner struct {
	root    string
	dataDir string

	metadata store.MetadataStore
	vectors  store.VectorStore
	embedder embed.Embedder
	chunker  chunk.Chunker
	cfg      *config.Config

	lock *indexLock
	mu   sync.Mutex
}

// NewRunner builds a Runner. dataDir is the project's hidden index
// directory (e.g. "<root>/.codeindex"), holding the vector store file, the
// descriptor, and the checkpoint.
func NewRunner(root, dataDir string, metadata store.MetadataStore, vectors store.VectorStore, embedder embed.Embedder, chunker chunk.Chunker, cfg *config.Config) *Runner {
	return &Runner{
		root:     root,
		dataDir:  dataDir,
		metadata: metadata,
		vectors:  vectors,
		embedder: embedder,
		chunker:  chunker,
		cfg:      cfg,
		lock:     newIndexLock(dataDir),
	}
}

func (r *Runner) vectorPath() string {
	return filepath.Join(r.dataDir, "vectors.hnsw")
}

// IndexCodebase runs a single indexing pass: a checkpoint resume if a
// compatible checkpoint exists, otherwise a full reindex (forced, empty
// chunk table, or embedding-dimension change) or an incremental update.
// patterns/excludePatterns, when nil, fall back to the resolved
// configuration. sink, if non-nil, receives progress events.
func (r *Runner) IndexCodebase(ctx context.Context, patterns, excludePatterns []string, forceReindex bool, sink ProgressSink) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.lock.acquire(); err != nil {
		return nil, errs.Store("failed to acquire indexing lock", err)
	}
	defer func() { _ = r.lock.release() }()

	if len(patterns) == 0 {
		patterns = r.cfg.Patterns
	}
	if len(excludePatterns) == 0 {
		excludePatterns = r.cfg.ExcludePatterns
	}

	emit := func(p Progress) { safeEmit(sink, p) }

	checkpoint, err := loadCheckpoint(r.dataDir)
	if err != nil {
		runnerLog().Warn("failed to read checkpoint, ignoring", slog.String("error", err.Error()))
		checkpoint = nil
	}
	if checkpoint != nil && (checkpoint.EmbeddingBackend != r.embedder.Name() || checkpoint.EmbeddingModel != r.embedder.ModelName()) {
		runnerLog().Warn("discarding checkpoint from a different embedding backend/model",
			slog.String("checkpoint_backend", checkpoint.EmbeddingBackend),
			slog.String("checkpoint_model", checkpoint.EmbeddingModel))
		_ = deleteCheckpoint(r.dataDir)
		checkpoint = nil
	}

	if checkpoint != nil {
		return r.resumeFromCheckpoint(ctx, checkpoint, emit)
	}

	chunkCount, err := r.metadata.ChunkCount(ctx)
	if err != nil {
		return nil, errs.Store("failed to read chunk count", err)
	}

	descriptor, err := loadDescriptor(r.dataDir)
	if err != nil {
		runnerLog().Warn("failed to read index descriptor, treating as absent", slog.String("error", err.Error()))
		descriptor = nil
	}

	needFull := forceReindex || chunkCount == 0
	if !needFull && descriptor != nil && descriptor.EmbeddingDimensions != r.embedder.Dimensions() {
		runnerLog().Info("embedding dimensions changed since last index, forcing full reindex",
			slog.Int("previous_dimensions", descriptor.EmbeddingDimensions),
			slog.Int("current_dimensions", r.embedder.Dimensions()))
		needFull = true
	}

	if needFull {
		return r.runFull(ctx, patterns, excludePatterns, emit)
	}
	return r.runIncremental(ctx, patterns, excludePatterns, emit)
}

// runFull performs a complete reindex: every matching file is enumerated,
// chunked, and embedded from scratch, and the chunk table, vector store,
// file-metadata table, and descriptor are all rewritten.
func (r *Runner) runFull(ctx context.Context, patterns, excludePatterns []string, emit func(Progress)) (*Result, error) {
	emit(Progress{Phase: PhaseScanning, Message: "scanning files"})
	files, err := scanner.Enumerate(ctx, scanner.Options{
		RootDir:         r.root,
		IncludePatterns: patterns,
		ExcludePatterns: excludePatterns,
	})
	if err != nil {
		return nil, errs.Internal("failed to scan project files", err)
	}
	emit(Progress{Phase: PhaseScanning, Current: len(files), Total: len(files), Message: "scan complete"})

	pendingChunks, err := r.chunkFiles(ctx, files, emit)
	if err != nil {
		return nil, err
	}

	startedAt := time.Now()
	fileMtimes := fileMtimeMap(files)
	if err := saveCheckpoint(r.dataDir, &store.Checkpoint{
		Phase:            store.PhaseChunking,
		StartedAt:        startedAt,
		Files:            filePaths(files),
		PendingChunks:    pendingChunks,
		EmbeddingBackend: r.embedder.Name(),
		EmbeddingModel:   r.embedder.ModelName(),
		FileMtimes:       fileMtimes,
	}); err != nil {
		runnerLog().Warn("failed to write chunking checkpoint", slog.String("error", err.Error()))
	}

	embedded, err := r.embedChunks(ctx, pendingChunks, emit)
	if err != nil {
		return nil, err
	}

	if err := saveCheckpoint(r.dataDir, &store.Checkpoint{
		Phase:            store.PhaseEmbedding,
		StartedAt:        startedAt,
		Files:            filePaths(files),
		EmbeddedChunks:   embedded,
		EmbeddingBackend: r.embedder.Name(),
		EmbeddingModel:   r.embedder.ModelName(),
		FileMtimes:       fileMtimes,
	}); err != nil {
		runnerLog().Warn("failed to write embedding checkpoint", slog.String("error", err.Error()))
	}

	if err := r.storeFull(ctx, files, embedded, emit); err != nil {
		return nil, err
	}

	_ = deleteCheckpoint(r.dataDir)
	emit(Progress{Phase: PhaseComplete, Current: len(embedded), Total: len(embedded), Message: "indexing complete"})

	return &Result{FilesIndexed: len(files), ChunksCreated: len(embedded), Incremental: false}, nil
}

// resumeFromCheckpoint completes an interrupted indexing run from its
// checkpoint, re-embedding any pending chunks if the interruption happened
// mid-chunking. A full-reindex checkpoint rewrites every table from scratch;
// an incremental one appends its chunks and rewrites the file-metadata table
// from the surviving file set recorded at checkpoint time (the deletions for
// that run's modified/removed files happened before the checkpoint was first
// written, so appending is safe to repeat).
func (r *Runner) resumeFromCheckpoint(ctx context.Context, cp *store.Checkpoint, emit func(Progress)) (*Result, error) {
	embedded := cp.EmbeddedChunks
	if cp.Phase == store.PhaseChunking {
		var err error
		embedded, err = r.embedChunks(ctx, cp.PendingChunks, emit)
		if err != nil {
			return nil, err
		}
	}

	files := make([]scanner.FileMtime, 0, len(cp.FileMtimes))
	for path, mtime := range cp.FileMtimes {
		files = append(files, scanner.FileMtime{FilePath: path, MtimeMs: mtime})
	}

	if cp.Incremental {
		if err := r.storeIncremental(ctx, files, embedded, emit); err != nil {
			return nil, err
		}
		_ = deleteCheckpoint(r.dataDir)
		emit(Progress{Phase: PhaseComplete, Current: len(embedded), Total: len(embedded), Message: "resumed incremental update complete"})
		return &Result{FilesIndexed: len(cp.Files), ChunksCreated: len(embedded), Incremental: true}, nil
	}

	if err := r.storeFull(ctx, files, embedded, emit); err != nil {
		return nil, err
	}

	_ = deleteCheckpoint(r.dataDir)
	emit(Progress{Phase: PhaseComplete, Current: len(embedded), Total: len(embedded), Message: "resumed indexing complete"})

	return &Result{FilesIndexed: len(files), ChunksCreated: len(embedded), Incremental: false}, nil
}

// storeFull replaces the chunk table, vector store contents, and
// file-metadata table wholesale, then writes a fresh descriptor.
func (r *Runner) storeFull(ctx context.Context, files []scanner.FileMtime, chunks []*chunk.Chunk, emit func(Progress)) error {
	emit(Progress{Phase: PhaseStoring, Message: "writing index"})

	if err := r.metadata.DropChunks(ctx); err != nil {
		return errs.Store("failed to clear chunk table", err)
	}
	if err := r.metadata.SaveChunks(ctx, chunks); err != nil {
		return errs.Store("failed to save chunks", err)
	}

	if existing := r.vectors.AllIDs(); len(existing) > 0 {
		if err := r.vectors.Delete(ctx, existing); err != nil {
			return errs.Store("failed to clear vector store", err)
		}
	}
	ids, vecs := idsAndVectors(chunks)
	if len(ids) > 0 {
		if err := r.vectors.Add(ctx, ids, vecs); err != nil {
			return errs.Store("failed to add vectors", err)
		}
	}
	r.compactVectors(ctx)
	if err := r.vectors.Save(r.vectorPath()); err != nil {
		return errs.Store("failed to persist vector store", err)
	}

	metas := fileMetasFromMtimes(files)
	if err := r.metadata.SaveFileMetadata(ctx, metas); err != nil {
		return errs.Store("failed to save file metadata", err)
	}

	return saveDescriptor(r.dataDir, &store.IndexDescriptor{
		LastUpdated:         time.Now(),
		FileCount:           len(files),
		ChunkCount:          len(chunks),
		EmbeddingBackend:    r.embedder.Name(),
		EmbeddingModel:      r.embedder.ModelName(),
		EmbeddingDimensions: r.embedder.Dimensions(),
		Version:             "1",
		Checksum:            store.FileMetadataChecksum(metas),
	})
}

// runIncremental re-scans the project, classifies files against the stored
// file metadata, and applies only the delta: deleted/modified files lose
// their chunks and vectors, added/modified files are chunked and embedded.
func (r *Runner) runIncremental(ctx context.Context, patterns, excludePatterns []string, emit func(Progress)) (*Result, error) {
	emit(Progress{Phase: PhaseScanning, Message: "scanning files"})

	storedMetas, err := r.metadata.GetFileMetadata(ctx)
	if err != nil {
		return nil, errs.Store("failed to read stored file metadata", err)
	}
	stored := make([]scanner.StoredMeta, len(storedMetas))
	for i, m := range storedMetas {
		stored[i] = scanner.StoredMeta{FilePath: m.FilePath, MtimeMs: m.MtimeMs}
	}

	current, err := scanner.Enumerate(ctx, scanner.Options{
		RootDir:         r.root,
		IncludePatterns: patterns,
		ExcludePatterns: excludePatterns,
	})
	if err != nil {
		return nil, errs.Internal("failed to scan project files", err)
	}
	classified := scanner.Classify(current, stored)
	emit(Progress{Phase: PhaseScanning, Current: len(current), Total: len(current), Message: "scan complete"})

	if len(classified.Added) == 0 && len(classified.Modified) == 0 && len(classified.Deleted) == 0 {
		chunkCount, _ := r.metadata.ChunkCount(ctx)
		emit(Progress{Phase: PhaseComplete, Current: chunkCount, Total: chunkCount, Message: "no changes detected"})
		return &Result{FilesIndexed: 0, ChunksCreated: 0, Incremental: true}, nil
	}

	for _, f := range append(append([]scanner.FileMtime{}, classified.Modified...), classified.Deleted...) {
		existing, err := r.metadata.GetChunksByFilePath(ctx, f.FilePath)
		if err != nil {
			return nil, errs.Store(fmt.Sprintf("failed to load existing chunks for %s", f.FilePath), err)
		}
		if len(existing) > 0 {
			ids := make([]string, len(existing))
			for i, c := range existing {
				ids[i] = c.ID
			}
			if err := r.vectors.Delete(ctx, ids); err != nil {
				return nil, errs.Store(fmt.Sprintf("failed to delete vectors for %s", f.FilePath), err)
			}
		}
		if err := r.metadata.DeleteChunksByFilePath(ctx, f.FilePath); err != nil {
			return nil, errs.Store(fmt.Sprintf("failed to delete chunks for %s", f.FilePath), err)
		}
	}

	toChunk := append(append([]scanner.FileMtime{}, classified.Added...), classified.Modified...)
	surviving := append(append([]scanner.FileMtime{}, classified.Unchanged...), classified.Added...)
	surviving = append(surviving, classified.Modified...)

	pendingChunks, err := r.chunkFiles(ctx, toChunk, emit)
	if err != nil {
		return nil, err
	}

	startedAt := time.Now()
	if err := saveCheckpoint(r.dataDir, &store.Checkpoint{
		Phase:            store.PhaseChunking,
		Incremental:      true,
		StartedAt:        startedAt,
		Files:            filePaths(toChunk),
		PendingChunks:    pendingChunks,
		EmbeddingBackend: r.embedder.Name(),
		EmbeddingModel:   r.embedder.ModelName(),
		FileMtimes:       fileMtimeMap(surviving),
	}); err != nil {
		runnerLog().Warn("failed to write chunking checkpoint", slog.String("error", err.Error()))
	}

	embedded, err := r.embedChunks(ctx, pendingChunks, emit)
	if err != nil {
		return nil, err
	}

	if err := saveCheckpoint(r.dataDir, &store.Checkpoint{
		Phase:            store.PhaseEmbedding,
		Incremental:      true,
		StartedAt:        startedAt,
		Files:            filePaths(toChunk),
		EmbeddedChunks:   embedded,
		EmbeddingBackend: r.embedder.Name(),
		EmbeddingModel:   r.embedder.ModelName(),
		FileMtimes:       fileMtimeMap(surviving),
	}); err != nil {
		runnerLog().Warn("failed to write embedding checkpoint", slog.String("error", err.Error()))
	}

	if err := r.storeIncremental(ctx, surviving, embedded, emit); err != nil {
		return nil, err
	}

	_ = deleteCheckpoint(r.dataDir)
	emit(Progress{Phase: PhaseComplete, Current: len(embedded), Total: len(embedded), Message: "incremental update complete"})

	return &Result{
		FilesIndexed:  len(classified.Added) + len(classified.Modified),
		ChunksCreated: len(embedded),
		Incremental:   true,
	}, nil
}

// storeIncremental appends newly embedded chunks to the chunk table and
// vector store, rewrites the file-metadata table from the surviving file
// set, and refreshes the descriptor against the live chunk count. Unlike
// storeFull it never drops existing rows, so replaying it from a resumed
// checkpoint is idempotent (chunk saves upsert by ID, vector adds replace
// by ID).
func (r *Runner) storeIncremental(ctx context.Context, surviving []scanner.FileMtime, embedded []*chunk.Chunk, emit func(Progress)) error {
	emit(Progress{Phase: PhaseStoring, Message: "writing index"})
	if len(embedded) > 0 {
		if err := r.metadata.SaveChunks(ctx, embedded); err != nil {
			return errs.Store("failed to save new chunks", err)
		}
		ids, vecs := idsAndVectors(embedded)
		if err := r.vectors.Add(ctx, ids, vecs); err != nil {
			return errs.Store("failed to add new vectors", err)
		}
	}
	r.compactVectors(ctx)
	if err := r.vectors.Save(r.vectorPath()); err != nil {
		return errs.Store("failed to persist vector store", err)
	}

	metas := fileMetasFromMtimes(surviving)
	if err := r.metadata.SaveFileMetadata(ctx, metas); err != nil {
		return errs.Store("failed to save file metadata", err)
	}

	chunkCount, err := r.metadata.ChunkCount(ctx)
	if err != nil {
		return errs.Store("failed to read chunk count", err)
	}
	return saveDescriptor(r.dataDir, &store.IndexDescriptor{
		LastUpdated:         time.Now(),
		FileCount:           len(surviving),
		ChunkCount:          chunkCount,
		EmbeddingBackend:    r.embedder.Name(),
		EmbeddingModel:      r.embedder.ModelName(),
		EmbeddingDimensions: r.embedder.Dimensions(),
		Version:             "1",
		Checksum:            store.FileMetadataChecksum(metas),
	})
}

// chunkFiles reads and chunks every file in files, reporting progress as it
// goes. A file that fails to chunk (e.g. an AST parse failure with no line
// fallback available) is logged and skipped rather than failing the run.
func (r *Runner) chunkFiles(ctx context.Context, files []scanner.FileMtime, emit func(Progress)) ([]*chunk.Chunk, error) {
	var all []*chunk.Chunk
	for i, f := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		content, err := os.ReadFile(filepath.Join(r.root, f.FilePath))
		if err != nil {
			runnerLog().Warn("failed to read file for chunking, skipping", slog.String("path", f.FilePath), slog.String("error", err.Error()))
			continue
		}

		chunks, err := r.chunker.Chunk(ctx, &chunk.FileInput{
			Path:     f.FilePath,
			Content:  content,
			Language: chunk.CanonicalLanguage(filepath.Ext(f.FilePath)),
		})
		if err != nil {
			runnerLog().Warn("failed to chunk file, skipping", slog.String("path", f.FilePath), slog.String("error", err.Error()))
			continue
		}
		all = append(all, chunks...)

		emit(Progress{Phase: PhaseChunking, Current: i + 1, Total: len(files), Message: fmt.Sprintf("chunked %s", f.FilePath)})
	}
	return all, nil
}

// embedChunks embeds every chunk in backend-sized batches, attaching the
// resulting vector to each chunk and reporting an EMA-smoothed ETA.
func (r *Runner) embedChunks(ctx context.Context, chunks []*chunk.Chunk, emit func(Progress)) ([]*chunk.Chunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	batchSize := r.embedder.BatchSize()
	if batchSize <= 0 {
		batchSize = embed.DefaultBatchSize
	}

	var tracker throughputTracker
	done := 0
	for start := 0; start < len(chunks); start += batchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		batchIdx := start / batchSize
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		batchStart := time.Now()
		vectors, err := r.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, errs.EmbeddingFailed(fmt.Sprintf("failed to embed batch %d", batchIdx), err)
		}
		tracker.update(len(batch), time.Since(batchStart))

		for i, v := range vectors {
			batch[i].Embedding = v
		}
		done += len(batch)

		if delay := r.cfg.Indexing.BatchDelayMs; delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(delay) * time.Millisecond):
			}
		}

		emit(Progress{
			Phase:      PhaseEmbedding,
			Current:    done,
			Total:      len(chunks),
			Message:    fmt.Sprintf("embedded %d/%d chunks", done, len(chunks)),
			ETASeconds: tracker.etaSeconds(len(chunks) - done),
		})
	}

	return chunks, nil
}

// throughputTracker maintains an exponential moving average of
// chunks-per-second across embedding batches, used to estimate the
// remaining time for the embedding phase.
type throughputTracker struct {
	ema float64
	has bool
}

const throughputAlpha = 0.3

func (t *throughputTracker) update(count int, elapsed time.Duration) {
	if elapsed <= 0 || count <= 0 {
		return
	}
	rate := float64(count) / elapsed.Seconds()
	if !t.has {
		t.ema = rate
		t.has = true
		return
	}
	t.ema = throughputAlpha*rate + (1-throughputAlpha)*t.ema
}

func (t *throughputTracker) etaSeconds(remaining int) float64 {
	if !t.has || t.ema <= 0 || remaining <= 0 {
		return 0
	}
	return float64(remaining) / t.ema
}

func safeEmit(sink ProgressSink, p Progress) {
	if sink == nil {
		return
	}
	defer func() { _ = recover() }()
	sink(p)
}

func filePaths(files []scanner.FileMtime) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.FilePath
	}
	return out
}

func fileMtimeMap(files []scanner.FileMtime) map[string]int64 {
	out := make(map[string]int64, len(files))
	for _, f := range files {
		out[f.FilePath] = f.MtimeMs
	}
	return out
}

func fileMetasFromMtimes(files []scanner.FileMtime) []store.FileMeta {
	out := make([]store.FileMeta, len(files))
	for i, f := range files {
		out[i] = store.FileMeta{FilePath: f.FilePath, MtimeMs: f.MtimeMs}
	}
	return out
}

func idsAndVectors(chunks []*chunk.Chunk) ([]string, [][]float32) {
	ids := make([]string, 0, len(chunks))
	vecs := make([][]float32, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		ids = append(ids, c.ID)
		vecs = append(vecs, c.Embedding)
	}
	return ids, vecs
}
