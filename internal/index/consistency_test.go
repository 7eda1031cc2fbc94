package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeindex/codeindex/internal/chunk"
	"github.com/codeindex/codeindex/internal/config"
	"github.com/codeindex/codeindex/internal/store"
)

func writeFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func statFile(t *testing.T, root, relPath string) int64 {
	t.Helper()
	info, err := os.Stat(filepath.Join(root, relPath))
	require.NoError(t, err)
	return info.ModTime().UnixMilli()
}

type fakeMetadataStore struct {
	chunks       map[string]*chunk.Chunk
	fileMetadata []store.FileMeta
}

func (f *fakeMetadataStore) SaveChunks(ctx context.Context, chunks []*chunk.Chunk) error { return nil }
func (f *fakeMetadataStore) GetChunk(ctx context.Context, id string) (*chunk.Chunk, error) {
	return f.chunks[id], nil
}
func (f *fakeMetadataStore) GetChunks(ctx context.Context, ids []string) ([]*chunk.Chunk, error) {
	return nil, nil
}
func (f *fakeMetadataStore) GetChunksByFilePath(ctx context.Context, filePath string) ([]*chunk.Chunk, error) {
	return nil, nil
}
func (f *fakeMetadataStore) DeleteChunksByFilePath(ctx context.Context, filePath string) error {
	return nil
}
func (f *fakeMetadataStore) DropChunks(ctx context.Context) error { return nil }
func (f *fakeMetadataStore) ChunkCount(ctx context.Context) (int, error) {
	return len(f.chunks), nil
}
func (f *fakeMetadataStore) SaveFileMetadata(ctx context.Context, metas []store.FileMeta) error {
	f.fileMetadata = metas
	return nil
}
func (f *fakeMetadataStore) GetFileMetadata(ctx context.Context) ([]store.FileMeta, error) {
	return f.fileMetadata, nil
}
func (f *fakeMetadataStore) FileMetadataCount(ctx context.Context) (int, error) {
	return len(f.fileMetadata), nil
}
func (f *fakeMetadataStore) Close() error { return nil }

func newFakeMetadataStore(chunkIDs ...string) *fakeMetadataStore {
	chunks := make(map[string]*chunk.Chunk, len(chunkIDs))
	for _, id := range chunkIDs {
		chunks[id] = &chunk.Chunk{ID: id}
	}
	return &fakeMetadataStore{chunks: chunks}
}

func TestChecker_GetStatus_EmptyIsNotIndexed(t *testing.T) {
	metadata := newFakeMetadataStore()
	checker := NewChecker(metadata, t.TempDir(), t.TempDir(), config.Default())

	status, err := checker.GetStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Indexed)
	assert.False(t, status.Corrupted)
}

func TestChecker_GetStatus_MissingDescriptorIsCorrupted(t *testing.T) {
	metadata := newFakeMetadataStore("chunk-1")
	checker := NewChecker(metadata, t.TempDir(), t.TempDir(), config.Default())

	status, err := checker.GetStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Indexed)
	assert.True(t, status.Corrupted)
	assert.Contains(t, status.CorruptionReason, "missing")
}

func TestChecker_GetStatus_ChunkCountMismatchIsCorrupted(t *testing.T) {
	dataDir := t.TempDir()
	metadata := newFakeMetadataStore("chunk-1", "chunk-2")
	require.NoError(t, saveDescriptor(dataDir, &store.IndexDescriptor{
		LastUpdated: time.Now(),
		FileCount:   1,
		ChunkCount:  1,
	}))

	checker := NewChecker(metadata, t.TempDir(), dataDir, config.Default())
	status, err := checker.GetStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Corrupted)
	assert.Contains(t, status.CorruptionReason, "chunk count")
}

func TestChecker_GetStatus_MatchingDescriptorIsHealthy(t *testing.T) {
	dataDir := t.TempDir()
	metadata := newFakeMetadataStore("chunk-1", "chunk-2")
	require.NoError(t, saveDescriptor(dataDir, &store.IndexDescriptor{
		LastUpdated:      time.Now(),
		FileCount:        1,
		ChunkCount:       2,
		EmbeddingBackend: "static",
		EmbeddingModel:   "static-v1",
	}))

	checker := NewChecker(metadata, t.TempDir(), dataDir, config.Default())
	status, err := checker.GetStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Indexed)
	assert.False(t, status.Corrupted)
	assert.Equal(t, 2, status.ChunkCount)
	assert.Equal(t, "static", status.EmbeddingBackend)
}

func TestChecker_CheckIfStale_NoIndex(t *testing.T) {
	metadata := newFakeMetadataStore()
	checker := NewChecker(metadata, t.TempDir(), t.TempDir(), config.Default())

	result, err := checker.CheckIfStale(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Stale)
	assert.Contains(t, result.Reason, "does not exist")
}

func TestChecker_CheckIfStale_NoFileMetadata(t *testing.T) {
	metadata := newFakeMetadataStore("chunk-1")
	checker := NewChecker(metadata, t.TempDir(), t.TempDir(), config.Default())

	result, err := checker.CheckIfStale(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Stale)
	assert.Contains(t, result.Reason, "no file metadata")
}

func TestChecker_CheckIfStale_UpToDate(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")

	metadata := newFakeMetadataStore("chunk-1")
	info := statFile(t, root, "main.go")
	metadata.fileMetadata = []store.FileMeta{{FilePath: "main.go", MtimeMs: info}}

	cfg := config.Default()
	cfg.Patterns = []string{"**/*.go"}
	cfg.ExcludePatterns = nil

	checker := NewChecker(metadata, root, t.TempDir(), cfg)
	result, err := checker.CheckIfStale(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Stale)
}

func TestChecker_CheckIfStale_DetectsAddedFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "extra.go", "package main\n")

	metadata := newFakeMetadataStore("chunk-1")
	info := statFile(t, root, "main.go")
	metadata.fileMetadata = []store.FileMeta{{FilePath: "main.go", MtimeMs: info}}

	cfg := config.Default()
	cfg.Patterns = []string{"**/*.go"}
	cfg.ExcludePatterns = nil

	checker := NewChecker(metadata, root, t.TempDir(), cfg)
	result, err := checker.CheckIfStale(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Stale)
	assert.Contains(t, result.Reason, "new files")
}
