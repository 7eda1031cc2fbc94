package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeindex/codeindex/internal/errs"
)

// newRemoteTestServer serves an OpenAI-compatible /models and /embeddings
// pair. Embeddings are returned in reverse index order to prove the client
// reassembles by the index tag rather than by response position.
func newRemoteTestServer(t *testing.T, apiKey string, models []remoteModelInfo, embedCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+apiKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch r.URL.Path {
		case "/models":
			_ = json.NewEncoder(w).Encode(remoteModelListResponse{Data: models})

		case "/embeddings":
			if embedCalls != nil {
				embedCalls.Add(1)
			}
			var req remoteEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			var resp remoteEmbedResponse
			for i := len(req.Input) - 1; i >= 0; i-- {
				resp.Data = append(resp.Data, struct {
					Index     int       `json:"index"`
					Embedding []float64 `json:"embedding"`
				}{Index: i, Embedding: []float64{float64(len(req.Input[i])), 1}})
			}
			_ = json.NewEncoder(w).Encode(resp)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestRemoteConfig(baseURL string) RemoteAPIConfig {
	cfg := DefaultRemoteAPIConfig()
	cfg.BaseURL = baseURL
	cfg.APIKey = "test-key"
	cfg.Model = "embed-small"
	cfg.MaxRetries = 1
	return cfg
}

func TestRemoteAPIEmbedder_InitializeReadsAdvertisedDimensions(t *testing.T) {
	srv := newRemoteTestServer(t, "test-key", []remoteModelInfo{{ID: "embed-small", Dimensions: 2}}, nil)
	defer srv.Close()

	e := NewRemoteAPIEmbedder(newTestRemoteConfig(srv.URL))
	defer e.Close()

	require.NoError(t, e.Initialize(context.Background()))
	assert.Equal(t, 2, e.Dimensions())
	assert.Equal(t, "remote-api", e.Name())
	assert.Equal(t, "embed-small", e.ModelName())
}

func TestRemoteAPIEmbedder_UnknownModelFallsBackToDefaultDimensions(t *testing.T) {
	srv := newRemoteTestServer(t, "test-key", []remoteModelInfo{{ID: "other-model"}}, nil)
	defer srv.Close()

	e := NewRemoteAPIEmbedder(newTestRemoteConfig(srv.URL))
	defer e.Close()

	require.NoError(t, e.Initialize(context.Background()))
	assert.Equal(t, DefaultDimensions, e.Dimensions())
}

func TestRemoteAPIEmbedder_RejectedCredentials(t *testing.T) {
	srv := newRemoteTestServer(t, "correct-key", nil, nil)
	defer srv.Close()

	cfg := newTestRemoteConfig(srv.URL)
	cfg.APIKey = "wrong-key"
	e := NewRemoteAPIEmbedder(cfg)
	defer e.Close()

	err := e.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.KindBackendAuth, errs.KindOf(err))
}

func TestRemoteAPIEmbedder_MissingConfiguration(t *testing.T) {
	e := NewRemoteAPIEmbedder(RemoteAPIConfig{})
	defer e.Close()

	err := e.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.KindConfig, errs.KindOf(err))
}

func TestRemoteAPIEmbedder_EmbedBatchReassemblesByIndex(t *testing.T) {
	var embedCalls atomic.Int32
	srv := newRemoteTestServer(t, "test-key", []remoteModelInfo{{ID: "embed-small", Dimensions: 2}}, &embedCalls)
	defer srv.Close()

	cfg := newTestRemoteConfig(srv.URL)
	cfg.BatchSize = 2
	e := NewRemoteAPIEmbedder(cfg)
	defer e.Close()
	require.NoError(t, e.Initialize(context.Background()))

	texts := []string{"x", "yy", "zzz"}
	vectors, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))

	// 3 texts at batch size 2 -> 2 requests.
	assert.Equal(t, int32(2), embedCalls.Load())

	// The server emits results in reverse order; the first (normalized)
	// component ratio must still track each input's length.
	for i, text := range texts {
		require.Len(t, vectors[i], 2)
		ratio := vectors[i][0] / vectors[i][1]
		assert.InDelta(t, float64(len(text)), float64(ratio), 1e-4, "vector %d should correspond to input %d", i, i)
	}
}

func TestRemoteAPIEmbedder_EmbedBatchHandlesEmptyTexts(t *testing.T) {
	var embedCalls atomic.Int32
	srv := newRemoteTestServer(t, "test-key", []remoteModelInfo{{ID: "embed-small", Dimensions: 2}}, &embedCalls)
	defer srv.Close()

	e := NewRemoteAPIEmbedder(newTestRemoteConfig(srv.URL))
	defer e.Close()
	require.NoError(t, e.Initialize(context.Background()))

	vectors, err := e.EmbedBatch(context.Background(), []string{"", "real"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, make([]float32, 2), vectors[0])
	assert.Equal(t, int32(1), embedCalls.Load())
}
