package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeindex/codeindex/internal/chunk"
)

func newTestMetadataStore(t *testing.T) *SQLiteMetadataStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), ".codeindex", "metadata.db")

	s, err := NewSQLiteMetadataStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleChunk(id, filePath string, line int) *chunk.Chunk {
	return &chunk.Chunk{
		ID:         id,
		FilePath:   filePath,
		Content:    "func Example() {}",
		StartLine:  line,
		EndLine:    line + 2,
		Language:   "go",
		SymbolKind: chunk.SymbolFunction,
		SymbolName: "Example",
		Embedding:  []float32{0.1, 0.2, 0.3},
	}
}

func TestSQLiteMetadataStore_SaveAndGetChunk(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	c := sampleChunk("main.go:1-3:Example", "main.go", 1)
	require.NoError(t, s.SaveChunks(ctx, []*chunk.Chunk{c}))

	got, err := s.GetChunk(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, c.FilePath, got.FilePath)
	assert.Equal(t, c.Content, got.Content)
	assert.Equal(t, c.SymbolKind, got.SymbolKind)
	assert.Equal(t, c.SymbolName, got.SymbolName)
	assert.InDeltaSlice(t, c.Embedding, got.Embedding, 0.0001)
}

func TestSQLiteMetadataStore_GetChunk_NotFound(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	got, err := s.GetChunk(ctx, "nonexistent")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteMetadataStore_SaveChunks_ReplacesOnConflictingID(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	c := sampleChunk("main.go:1-3:Example", "main.go", 1)
	require.NoError(t, s.SaveChunks(ctx, []*chunk.Chunk{c}))

	c.Content = "func Example() { return }"
	require.NoError(t, s.SaveChunks(ctx, []*chunk.Chunk{c}))

	got, err := s.GetChunk(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "func Example() { return }", got.Content)

	count, err := s.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteMetadataStore_GetChunks_Batch(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	a := sampleChunk("a.go:1-3:A", "a.go", 1)
	b := sampleChunk("b.go:1-3:B", "b.go", 1)
	require.NoError(t, s.SaveChunks(ctx, []*chunk.Chunk{a, b}))

	got, err := s.GetChunks(ctx, []string{a.ID, b.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSQLiteMetadataStore_GetChunksByFilePath_OrderedByStartLine(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	c2 := sampleChunk("f.go:10-12:Second", "f.go", 10)
	c2.SymbolName = "Second"
	c1 := sampleChunk("f.go:1-3:First", "f.go", 1)
	c1.SymbolName = "First"
	require.NoError(t, s.SaveChunks(ctx, []*chunk.Chunk{c2, c1}))

	got, err := s.GetChunksByFilePath(ctx, "f.go")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "First", got[0].SymbolName)
	assert.Equal(t, "Second", got[1].SymbolName)
}

func TestSQLiteMetadataStore_DeleteChunksByFilePath(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	a := sampleChunk("a.go:1-3:A", "a.go", 1)
	b := sampleChunk("b.go:1-3:B", "b.go", 1)
	require.NoError(t, s.SaveChunks(ctx, []*chunk.Chunk{a, b}))

	require.NoError(t, s.DeleteChunksByFilePath(ctx, "a.go"))

	count, err := s.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := s.GetChunk(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteMetadataStore_DropChunks(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChunks(ctx, []*chunk.Chunk{sampleChunk("a.go:1-3:A", "a.go", 1)}))
	require.NoError(t, s.DropChunks(ctx))

	count, err := s.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSQLiteMetadataStore_FileMetadata_RewriteFromScratch(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveFileMetadata(ctx, []FileMeta{
		{FilePath: "a.go", MtimeMs: 100},
		{FilePath: "b.go", MtimeMs: 200},
	}))

	require.NoError(t, s.SaveFileMetadata(ctx, []FileMeta{
		{FilePath: "a.go", MtimeMs: 150},
	}))

	metas, err := s.GetFileMetadata(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "a.go", metas[0].FilePath)
	assert.Equal(t, int64(150), metas[0].MtimeMs)

	count, err := s.FileMetadataCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFileMetadataChecksum_OrderIndependent(t *testing.T) {
	a := []FileMeta{{FilePath: "b.go", MtimeMs: 2}, {FilePath: "a.go", MtimeMs: 1}}
	b := []FileMeta{{FilePath: "a.go", MtimeMs: 1}, {FilePath: "b.go", MtimeMs: 2}}
	assert.Equal(t, FileMetadataChecksum(a), FileMetadataChecksum(b))
}

func TestFileMetadataChecksum_DiffersOnChange(t *testing.T) {
	a := []FileMeta{{FilePath: "a.go", MtimeMs: 1}}
	b := []FileMeta{{FilePath: "a.go", MtimeMs: 2}}
	assert.NotEqual(t, FileMetadataChecksum(a), FileMetadataChecksum(b))
}
