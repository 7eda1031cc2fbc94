package index

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeindex/codeindex/internal/chunk"
	"github.com/codeindex/codeindex/internal/store"
)

func TestDescriptor_RoundTrip(t *testing.T) {
	dataDir := t.TempDir()

	in := &store.IndexDescriptor{
		LastUpdated:         time.Now().UTC().Truncate(time.Second),
		FileCount:           3,
		ChunkCount:          17,
		EmbeddingBackend:    "static",
		EmbeddingModel:      "static",
		EmbeddingDimensions: 256,
		Version:             "1",
		Checksum:            "abc123",
	}
	require.NoError(t, saveDescriptor(dataDir, in))

	out, err := loadDescriptor(dataDir)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in.FileCount, out.FileCount)
	assert.Equal(t, in.ChunkCount, out.ChunkCount)
	assert.Equal(t, in.EmbeddingDimensions, out.EmbeddingDimensions)
	assert.Equal(t, in.Checksum, out.Checksum)
	assert.True(t, in.LastUpdated.Equal(out.LastUpdated))
}

func TestDescriptor_MissingIsNil(t *testing.T) {
	out, err := loadDescriptor(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestDescriptor_CorruptFileIsError(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(descriptorPath(dataDir), []byte("{not json"), 0o644))

	_, err := loadDescriptor(dataDir)
	assert.Error(t, err)
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	dataDir := t.TempDir()

	in := &store.Checkpoint{
		Phase:     store.PhaseEmbedding,
		StartedAt: time.Now().UTC().Truncate(time.Second),
		Files:     []string{"a.go", "b.go"},
		EmbeddedChunks: []*chunk.Chunk{{
			ID:        "a.go:1-2",
			FilePath:  "a.go",
			Content:   "package a",
			StartLine: 1,
			EndLine:   2,
			Language:  "go",
			Embedding: []float32{0.1, 0.2},
		}},
		EmbeddingBackend: "static",
		EmbeddingModel:   "static",
		FileMtimes:       map[string]int64{"a.go": 42, "b.go": 43},
	}
	require.NoError(t, saveCheckpoint(dataDir, in))

	out, err := loadCheckpoint(dataDir)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, store.PhaseEmbedding, out.Phase)
	assert.Equal(t, in.Files, out.Files)
	assert.Equal(t, in.FileMtimes, out.FileMtimes)
	require.Len(t, out.EmbeddedChunks, 1)
	assert.Equal(t, "a.go:1-2", out.EmbeddedChunks[0].ID)
	assert.Equal(t, []float32{0.1, 0.2}, out.EmbeddedChunks[0].Embedding)
	assert.Empty(t, out.PendingChunks)
}

func TestCheckpoint_MissingIsNil(t *testing.T) {
	out, err := loadCheckpoint(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestCheckpoint_DeleteIsIdempotent(t *testing.T) {
	dataDir := t.TempDir()

	require.NoError(t, deleteCheckpoint(dataDir))

	require.NoError(t, saveCheckpoint(dataDir, &store.Checkpoint{Phase: store.PhaseChunking}))
	require.NoError(t, deleteCheckpoint(dataDir))

	out, err := loadCheckpoint(dataDir)
	require.NoError(t, err)
	assert.Nil(t, out)

	require.NoError(t, ClearCheckpoint(dataDir))
}
