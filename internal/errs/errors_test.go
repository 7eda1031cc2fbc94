package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := EmbeddingFailed("batch 3 failed", cause)

	assert.Contains(t, err.Error(), "embedding_failed")
	assert.Contains(t, err.Error(), "batch 3 failed")
	assert.ErrorIs(t, err, cause)
}

func TestIndexError_IsMatchesByKind(t *testing.T) {
	err := NotIndexed("no index yet")

	var target error = &IndexError{Kind: KindNotIndexed}
	assert.True(t, errors.Is(err, target))

	var other error = &IndexError{Kind: KindStore}
	assert.False(t, errors.Is(err, other))
}

func TestIndexError_WithDetail(t *testing.T) {
	err := Store("could not open table", nil).WithDetail("table", "code_chunks")
	require.NotNil(t, err.Detail)
	assert.Equal(t, "code_chunks", err.Detail["table"])
}

func TestKindOf(t *testing.T) {
	err := ChunkerParseFailed("bad syntax", nil)
	assert.Equal(t, KindChunkerParseFailed, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
