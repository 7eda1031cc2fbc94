package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	a, err := e.Embed(context.Background(), "func parseConfig() error")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "func parseConfig() error")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, StaticDimensions)
}

func TestStaticEmbedder_DistinctTextsDistinctVectors(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	a, err := e.Embed(context.Background(), "authentication middleware handler")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "binary tree rotation")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestStaticEmbedder_UnitNorm(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	v, err := e.Embed(context.Background(), "normalize this vector")
	require.NoError(t, err)

	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSquares), 1e-5)
}

func TestStaticEmbedder_EmptyTextYieldsZeroVector(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	v, err := e.Embed(context.Background(), "   \n\t ")
	require.NoError(t, err)
	require.Len(t, v, StaticDimensions)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestStaticEmbedder_BatchPreservesInputOrder(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	texts := []string{
		"first snippet with tokens",
		"second snippet entirely different",
		"third snippet also unique",
	}
	batch, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, batch, len(texts))

	for i, text := range texts {
		single, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i], "vector %d must correspond to input %d", i, i)
	}
}

func TestStaticEmbedder_EmptyBatch(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	batch, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestStaticEmbedder_ClosedErrors(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "anything")
	assert.Error(t, err)
	_, err = e.EmbedBatch(context.Background(), []string{"anything"})
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}

func TestStaticEmbedder_CustomDimensions(t *testing.T) {
	e := NewStaticEmbedderWithDimensions(64)
	defer e.Close()

	assert.Equal(t, 64, e.Dimensions())
	v, err := e.Embed(context.Background(), "sized to match an existing index")
	require.NoError(t, err)
	assert.Len(t, v, 64)
}

func TestSplitCodeToken_CamelAndSnakeCase(t *testing.T) {
	assert.Equal(t, []string{"parse", "Config"}, splitCodeToken("parseConfig"))
	assert.Equal(t, []string{"max", "retry", "count"}, splitCodeToken("max_retry_count"))
	assert.Equal(t, []string{"HTTP", "Server"}, splitCodeToken("HTTPServer"))
}
