package embed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps StaticEmbedder and counts Embed/EmbedBatch calls so
// cache tests can assert exactly how often the wrapped backend is consulted.
type countingEmbedder struct {
	*StaticEmbedder
	embedCalls int
	batchCalls int
}

func newCountingEmbedder() *countingEmbedder {
	return &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.embedCalls++
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchCalls++
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestQueryCache_SecondLookupServedFromCache(t *testing.T) {
	inner := newCountingEmbedder()
	cache := NewQueryCacheWithDefaults(inner)

	first, err := cache.Embed(context.Background(), "find the parser")
	require.NoError(t, err)
	second, err := cache.Embed(context.Background(), "find the parser")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.embedCalls)
}

func TestQueryCache_DistinctQueriesMiss(t *testing.T) {
	inner := newCountingEmbedder()
	cache := NewQueryCacheWithDefaults(inner)

	_, err := cache.Embed(context.Background(), "query one")
	require.NoError(t, err)
	_, err = cache.Embed(context.Background(), "query two")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.embedCalls)
	assert.Equal(t, 2, cache.Len())
}

func TestQueryCache_ClearForcesRecompute(t *testing.T) {
	inner := newCountingEmbedder()
	cache := NewQueryCacheWithDefaults(inner)

	_, err := cache.Embed(context.Background(), "find the parser")
	require.NoError(t, err)
	cache.Clear()
	assert.Equal(t, 0, cache.Len())

	_, err = cache.Embed(context.Background(), "find the parser")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.embedCalls)
}

func TestQueryCache_ExpiredEntryRecomputed(t *testing.T) {
	inner := newCountingEmbedder()
	cache := NewQueryCache(inner, 10, 1*time.Nanosecond)

	_, err := cache.Embed(context.Background(), "find the parser")
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)

	_, err = cache.Embed(context.Background(), "find the parser")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.embedCalls)
}

func TestQueryCache_EvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	inner := newCountingEmbedder()
	cache := NewQueryCache(inner, 2, DefaultQueryCacheTTL)

	_, err := cache.Embed(context.Background(), "alpha query")
	require.NoError(t, err)
	_, err = cache.Embed(context.Background(), "beta query")
	require.NoError(t, err)

	// Touch alpha so beta becomes the LRU entry, then overflow.
	_, err = cache.Embed(context.Background(), "alpha query")
	require.NoError(t, err)
	_, err = cache.Embed(context.Background(), "gamma query")
	require.NoError(t, err)
	require.Equal(t, 2, cache.Len())

	calls := inner.embedCalls
	_, err = cache.Embed(context.Background(), "alpha query")
	require.NoError(t, err)
	assert.Equal(t, calls, inner.embedCalls, "alpha should still be cached")

	_, err = cache.Embed(context.Background(), "beta query")
	require.NoError(t, err)
	assert.Equal(t, calls+1, inner.embedCalls, "beta should have been evicted")
}

func TestQueryCache_EmbedBatchBypassesCache(t *testing.T) {
	inner := newCountingEmbedder()
	cache := NewQueryCacheWithDefaults(inner)

	_, err := cache.EmbedBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	_, err = cache.EmbedBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)

	assert.Equal(t, 2, inner.batchCalls)
	assert.Equal(t, 0, cache.Len())
}

func TestQueryCache_PassesThroughIdentity(t *testing.T) {
	inner := newCountingEmbedder()
	cache := NewQueryCacheWithDefaults(inner)

	assert.Equal(t, inner.Name(), cache.Name())
	assert.Equal(t, inner.ModelName(), cache.ModelName())
	assert.Equal(t, inner.Dimensions(), cache.Dimensions())
	assert.Equal(t, inner.BatchSize(), cache.BatchSize())
}
