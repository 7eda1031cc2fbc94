package index

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeindex/codeindex/internal/chunk"
	"github.com/codeindex/codeindex/internal/config"
	"github.com/codeindex/codeindex/internal/store"
)

// inMemoryMetadataStore is a minimal, non-concurrent-safe stand-in for
// store.MetadataStore good enough to drive the runner's full/incremental
// decision tree without a real SQLite file.
type inMemoryMetadataStore struct {
	chunks       map[string]*chunk.Chunk
	fileMetadata []store.FileMeta
}

func newInMemoryMetadataStore() *inMemoryMetadataStore {
	return &inMemoryMetadataStore{chunks: make(map[string]*chunk.Chunk)}
}

func (m *inMemoryMetadataStore) SaveChunks(ctx context.Context, chunks []*chunk.Chunk) error {
	for _, c := range chunks {
		m.chunks[c.ID] = c
	}
	return nil
}
func (m *inMemoryMetadataStore) GetChunk(ctx context.Context, id string) (*chunk.Chunk, error) {
	return m.chunks[id], nil
}
func (m *inMemoryMetadataStore) GetChunks(ctx context.Context, ids []string) ([]*chunk.Chunk, error) {
	var out []*chunk.Chunk
	for _, id := range ids {
		if c, ok := m.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}
func (m *inMemoryMetadataStore) GetChunksByFilePath(ctx context.Context, filePath string) ([]*chunk.Chunk, error) {
	var out []*chunk.Chunk
	for _, c := range m.chunks {
		if c.FilePath == filePath {
			out = append(out, c)
		}
	}
	return out, nil
}
func (m *inMemoryMetadataStore) DeleteChunksByFilePath(ctx context.Context, filePath string) error {
	for id, c := range m.chunks {
		if c.FilePath == filePath {
			delete(m.chunks, id)
		}
	}
	return nil
}
func (m *inMemoryMetadataStore) DropChunks(ctx context.Context) error {
	m.chunks = make(map[string]*chunk.Chunk)
	return nil
}
func (m *inMemoryMetadataStore) ChunkCount(ctx context.Context) (int, error) {
	return len(m.chunks), nil
}
func (m *inMemoryMetadataStore) SaveFileMetadata(ctx context.Context, metas []store.FileMeta) error {
	m.fileMetadata = metas
	return nil
}
func (m *inMemoryMetadataStore) GetFileMetadata(ctx context.Context) ([]store.FileMeta, error) {
	return m.fileMetadata, nil
}
func (m *inMemoryMetadataStore) FileMetadataCount(ctx context.Context) (int, error) {
	return len(m.fileMetadata), nil
}
func (m *inMemoryMetadataStore) Close() error { return nil }

// inMemoryVectorStore is a minimal store.VectorStore stand-in; it doesn't
// actually rank by distance since the runner tests never call Search.
type inMemoryVectorStore struct {
	vectors map[string][]float32
}

func newInMemoryVectorStore() *inMemoryVectorStore {
	return &inMemoryVectorStore{vectors: make(map[string][]float32)}
}

func (v *inMemoryVectorStore) Add(ctx context.Context, ids []string, vecs [][]float32) error {
	for i, id := range ids {
		v.vectors[id] = vecs[i]
	}
	return nil
}
func (v *inMemoryVectorStore) Search(ctx context.Context, query []float32, k int) ([]*store.VectorResult, error) {
	return nil, nil
}
func (v *inMemoryVectorStore) Delete(ctx context.Context, ids []string) error {
	for _, id := range ids {
		delete(v.vectors, id)
	}
	return nil
}
func (v *inMemoryVectorStore) AllIDs() []string {
	ids := make([]string, 0, len(v.vectors))
	for id := range v.vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
func (v *inMemoryVectorStore) Contains(id string) bool { _, ok := v.vectors[id]; return ok }
func (v *inMemoryVectorStore) Count() int              { return len(v.vectors) }
func (v *inMemoryVectorStore) Save(path string) error  { return nil }
func (v *inMemoryVectorStore) Load(path string) error  { return nil }
func (v *inMemoryVectorStore) Close() error            { return nil }

// stubEmbedder returns a fixed-dimension zero vector per input and never
// touches the network, so runner tests stay hermetic.
type stubEmbedder struct {
	name       string
	model      string
	dimensions int
	batchSize  int
}

func (s *stubEmbedder) Name() string        { return s.name }
func (s *stubEmbedder) ModelName() string   { return s.model }
func (s *stubEmbedder) Dimensions() int     { return s.dimensions }
func (s *stubEmbedder) BatchSize() int      { return s.batchSize }
func (s *stubEmbedder) Initialize(ctx context.Context) error { return nil }
func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, s.dimensions), nil
}
func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, s.dimensions)
	}
	return out, nil
}
func (s *stubEmbedder) Available(ctx context.Context) bool { return true }
func (s *stubEmbedder) Close() error                       { return nil }

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{name: "static", model: "static-v1", dimensions: 8, batchSize: 4}
}

// lineChunker produces one chunk per file, ignoring content structure, so
// runner tests don't depend on tree-sitter grammars.
type lineChunker struct{}

func (lineChunker) Chunk(ctx context.Context, file *chunk.FileInput) ([]*chunk.Chunk, error) {
	return []*chunk.Chunk{{
		ID:        file.Path + ":1-1",
		FilePath:  file.Path,
		Content:   string(file.Content),
		StartLine: 1,
		EndLine:   1,
		Language:  file.Language,
	}}, nil
}
func (lineChunker) SupportedExtensions() []string { return nil }

func writeRunnerFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func newTestRunner(t *testing.T, root string) (*Runner, *inMemoryMetadataStore, *inMemoryVectorStore) {
	t.Helper()
	metadata := newInMemoryMetadataStore()
	vectors := newInMemoryVectorStore()
	embedder := newStubEmbedder()
	cfg := config.Default()
	cfg.Patterns = []string{"**/*.go"}
	cfg.ExcludePatterns = nil

	runner := NewRunner(root, t.TempDir(), metadata, vectors, embedder, lineChunker{}, cfg)
	return runner, metadata, vectors
}

func TestRunner_IndexCodebase_FullOnEmptyIndex(t *testing.T) {
	root := t.TempDir()
	writeRunnerFile(t, root, "a.go", "package a\n")
	writeRunnerFile(t, root, "b.go", "package b\n")

	runner, metadata, vectors := newTestRunner(t, root)

	result, err := runner.IndexCodebase(context.Background(), nil, nil, false, nil)
	require.NoError(t, err)
	assert.False(t, result.Incremental)
	assert.Equal(t, 2, result.FilesIndexed)
	assert.Equal(t, 2, result.ChunksCreated)

	count, err := metadata.ChunkCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, vectors.Count())
}

func TestRunner_IndexCodebase_IncrementalNoChanges(t *testing.T) {
	root := t.TempDir()
	writeRunnerFile(t, root, "a.go", "package a\n")

	runner, _, _ := newTestRunner(t, root)
	_, err := runner.IndexCodebase(context.Background(), nil, nil, false, nil)
	require.NoError(t, err)

	result, err := runner.IndexCodebase(context.Background(), nil, nil, false, nil)
	require.NoError(t, err)
	assert.True(t, result.Incremental)
	assert.Equal(t, 0, result.FilesIndexed)
	assert.Equal(t, 0, result.ChunksCreated)
}

func TestRunner_IndexCodebase_IncrementalPicksUpNewFile(t *testing.T) {
	root := t.TempDir()
	writeRunnerFile(t, root, "a.go", "package a\n")

	runner, metadata, _ := newTestRunner(t, root)
	_, err := runner.IndexCodebase(context.Background(), nil, nil, false, nil)
	require.NoError(t, err)

	writeRunnerFile(t, root, "b.go", "package b\n")
	result, err := runner.IndexCodebase(context.Background(), nil, nil, false, nil)
	require.NoError(t, err)
	assert.True(t, result.Incremental)
	assert.Equal(t, 1, result.FilesIndexed)
	assert.Equal(t, 1, result.ChunksCreated)

	count, err := metadata.ChunkCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRunner_IndexCodebase_ForceReindexRebuildsFromScratch(t *testing.T) {
	root := t.TempDir()
	writeRunnerFile(t, root, "a.go", "package a\n")

	runner, _, _ := newTestRunner(t, root)
	_, err := runner.IndexCodebase(context.Background(), nil, nil, false, nil)
	require.NoError(t, err)

	result, err := runner.IndexCodebase(context.Background(), nil, nil, true, nil)
	require.NoError(t, err)
	assert.False(t, result.Incremental)
	assert.Equal(t, 1, result.FilesIndexed)
}

func TestRunner_IndexCodebase_EmittedProgressReachesComplete(t *testing.T) {
	root := t.TempDir()
	writeRunnerFile(t, root, "a.go", "package a\n")

	runner, _, _ := newTestRunner(t, root)

	var phases []Phase
	sink := func(p Progress) { phases = append(phases, p.Phase) }

	_, err := runner.IndexCodebase(context.Background(), nil, nil, false, sink)
	require.NoError(t, err)
	require.NotEmpty(t, phases)
	assert.Equal(t, PhaseComplete, phases[len(phases)-1])
}
