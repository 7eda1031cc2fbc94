package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHNSWStore(t *testing.T, dims int) *HNSWStore {
	t.Helper()
	s, err := NewHNSWStore(DefaultVectorStoreConfig(dims))
	require.NoError(t, err)
	return s
}

func TestHNSWStore_AddAndSearch(t *testing.T) {
	s := newTestHNSWStore(t, 3)
	defer s.Close()

	ids := []string{"a", "b", "c"}
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
	require.NoError(t, s.Add(context.Background(), ids, vectors))
	assert.Equal(t, 3, s.Count())

	results, err := s.Search(context.Background(), []float32{1, 0.1, 0}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ID)
	assert.Greater(t, results[0].Score, float32(0.9))
}

func TestHNSWStore_SearchEmptyStore(t *testing.T) {
	s := newTestHNSWStore(t, 3)
	defer s.Close()

	results, err := s.Search(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWStore_DimensionMismatchRejected(t *testing.T) {
	s := newTestHNSWStore(t, 3)
	defer s.Close()

	err := s.Add(context.Background(), []string{"a"}, [][]float32{{1, 0}})
	require.Error(t, err)
	assert.ErrorAs(t, err, &ErrDimensionMismatch{})

	_, err = s.Search(context.Background(), []float32{1, 0}, 1)
	require.Error(t, err)
}

func TestHNSWStore_DeleteHidesVectors(t *testing.T) {
	s := newTestHNSWStore(t, 3)
	defer s.Close()

	require.NoError(t, s.Add(context.Background(), []string{"a", "b"}, [][]float32{{1, 0, 0}, {0, 1, 0}}))
	require.NoError(t, s.Delete(context.Background(), []string{"a"}))

	assert.Equal(t, 1, s.Count())
	assert.False(t, s.Contains("a"))
	assert.True(t, s.Contains("b"))

	results, err := s.Search(context.Background(), []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "a", r.ID)
	}
}

func TestHNSWStore_AddReplacesExistingID(t *testing.T) {
	s := newTestHNSWStore(t, 3)
	defer s.Close()

	require.NoError(t, s.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0}}))
	require.NoError(t, s.Add(context.Background(), []string{"a"}, [][]float32{{0, 1, 0}}))
	assert.Equal(t, 1, s.Count())

	results, err := s.Search(context.Background(), []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.Greater(t, results[0].Score, float32(0.99))
}

func TestHNSWStore_SaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")

	s := newTestHNSWStore(t, 3)
	require.NoError(t, s.Add(context.Background(), []string{"a", "b"}, [][]float32{{1, 0, 0}, {0, 1, 0}}))
	require.NoError(t, s.Save(path))
	require.NoError(t, s.Close())

	loaded := newTestHNSWStore(t, 3)
	defer loaded.Close()
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, 2, loaded.Count())
	assert.True(t, loaded.Contains("a"))
	assert.True(t, loaded.Contains("b"))

	results, err := loaded.Search(context.Background(), []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestReadHNSWStoreDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")

	// Missing metadata reports a fresh start.
	dims, err := ReadHNSWStoreDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 0, dims)

	s := newTestHNSWStore(t, 7)
	require.NoError(t, s.Add(context.Background(), []string{"a"}, [][]float32{make([]float32, 7)}))
	require.NoError(t, s.Save(path))
	require.NoError(t, s.Close())

	dims, err = ReadHNSWStoreDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 7, dims)
}

func TestHNSWStore_CompactReclaimsOrphans(t *testing.T) {
	s := newTestHNSWStore(t, 3)
	defer s.Close()

	ids := []string{"a", "b", "c", "d"}
	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 1, 0}}
	require.NoError(t, s.Add(context.Background(), ids, vectors))

	// Lazily delete three of four: 75% orphan ratio, above the threshold.
	require.NoError(t, s.Delete(context.Background(), []string{"a", "b", "c"}))
	stats := s.Stats()
	assert.Equal(t, 1, stats.ValidIDs)
	assert.Equal(t, 3, stats.Orphans)

	compacted, err := s.CompactIfNeeded(context.Background())
	require.NoError(t, err)
	assert.True(t, compacted)

	stats = s.Stats()
	assert.Equal(t, 1, stats.ValidIDs)
	assert.Equal(t, 0, stats.Orphans)

	// The surviving vector is still searchable after the rebuild.
	results, err := s.Search(context.Background(), []float32{1, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d", results[0].ID)
}

func TestHNSWStore_CompactNoOpBelowThreshold(t *testing.T) {
	s := newTestHNSWStore(t, 3)
	defer s.Close()

	require.NoError(t, s.Add(context.Background(), []string{"a", "b", "c"}, [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}))
	require.NoError(t, s.Delete(context.Background(), []string{"a"}))

	compacted, err := s.CompactIfNeeded(context.Background())
	require.NoError(t, err)
	assert.False(t, compacted)
}

func TestHNSWStore_ClosedOperationsFail(t *testing.T) {
	s := newTestHNSWStore(t, 3)
	require.NoError(t, s.Close())

	assert.Error(t, s.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0}}))
	_, err := s.Search(context.Background(), []float32{1, 0, 0}, 1)
	assert.Error(t, err)
	assert.Nil(t, s.AllIDs())
	assert.Equal(t, 0, s.Count())
	// Closing twice is fine.
	assert.NoError(t, s.Close())
}
