package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/codeindex/codeindex/internal/embed/httpretry"
	"github.com/codeindex/codeindex/internal/errs"
)

// RemoteAPIEmbedder is the remote-API C1 variant: it talks to a hosted,
// OpenAI-compatible embeddings endpoint over HTTPS, authenticating with a
// bearer token rather than assuming an unauthenticated local server like
// OllamaEmbedder does. It shares the same retry transport (C2).
type RemoteAPIEmbedder struct {
	client *http.Client
	config RemoteAPIConfig

	modelName string
	dims      int

	mu          sync.RWMutex
	closed      bool
	initialized bool
}

// RemoteAPIConfig configures the remote-API embedder.
type RemoteAPIConfig struct {
	// BaseURL is the API root, e.g. "https://api.example.com/v1". Required.
	BaseURL string

	// APIKey authenticates requests via "Authorization: Bearer <APIKey>". Required.
	APIKey string

	// Model is the embedding model identifier to request.
	Model string

	// Dimensions can be set to override the backend's reported/default
	// dimensionality (0 = use DefaultDimensions for unrecognized models).
	Dimensions int

	// BatchSize caps texts per request (default: DefaultBatchSize).
	BatchSize int

	// Timeout bounds a single request (default: DefaultRequestTimeout).
	Timeout time.Duration

	// MaxRetries for transient failures (default: DefaultMaxRetries).
	MaxRetries int
}

// DefaultRemoteAPIConfig returns sensible defaults, leaving BaseURL/APIKey
// unset since they have no safe default.
func DefaultRemoteAPIConfig() RemoteAPIConfig {
	return RemoteAPIConfig{
		BatchSize:  DefaultBatchSize,
		Timeout:    DefaultRequestTimeout,
		MaxRetries: DefaultMaxRetries,
	}
}

var _ Embedder = (*RemoteAPIEmbedder)(nil)

// NewRemoteAPIEmbedder creates a new remote-API embedder. It does not
// contact the backend; call Initialize to probe reachability and resolve
// dimensionality.
func NewRemoteAPIEmbedder(cfg RemoteAPIConfig) *RemoteAPIEmbedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	return &RemoteAPIEmbedder{
		client:    &http.Client{},
		config:    cfg,
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
	}
}

// Name returns the backend identifier.
func (e *RemoteAPIEmbedder) Name() string {
	return "remote-api"
}

// Initialize probes the backend's model listing endpoint with the
// configured bearer token. A 401/403 response is surfaced as
// errs.BackendAuth; any other unreachability as errs.BackendUnreachable.
func (e *RemoteAPIEmbedder) Initialize(ctx context.Context) error {
	e.mu.RLock()
	already := e.initialized
	e.mu.RUnlock()
	if already {
		return nil
	}

	if e.config.BaseURL == "" || e.config.APIKey == "" {
		return errs.Config("remote-api embedder requires a base URL and an API key", nil)
	}

	checkCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	models, err := e.listModels(checkCtx)
	if err != nil {
		if ae, ok := err.(*authError); ok {
			return errs.BackendAuth(fmt.Sprintf("remote embedding backend rejected credentials: %v", ae.inner), ae.inner)
		}
		return errs.BackendUnreachable(fmt.Sprintf("failed to reach remote embedding backend at %s", e.config.BaseURL), err)
	}

	dims := e.config.Dimensions
	if dims == 0 {
		dims = dimensionsForModel(e.modelName, models)
	}

	e.mu.Lock()
	e.dims = dims
	e.initialized = true
	e.mu.Unlock()

	return nil
}

type authError struct{ inner error }

func (a *authError) Error() string { return a.inner.Error() }

func (e *RemoteAPIEmbedder) listModels(ctx context.Context) ([]remoteModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.BaseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to remote embedding backend: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &authError{inner: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result remoteModelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode model list: %w", err)
	}
	return result.Data, nil
}

// dimensionsForModel reports the known dimensionality of model if the
// listing reports it, otherwise falls back to DefaultDimensions for
// unrecognized models.
func dimensionsForModel(model string, models []remoteModelInfo) int {
	for _, m := range models {
		if m.ID == model && m.Dimensions > 0 {
			return m.Dimensions
		}
	}
	return DefaultDimensions
}

// Embed generates an embedding for a single text.
func (e *RemoteAPIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, e.dims), nil
	}

	embeddings, err := e.doEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts, splitting into
// BatchSize()-sized requests and preserving input order.
func (e *RemoteAPIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	type indexedText struct {
		idx  int
		text string
	}
	var nonEmpty []indexedText
	results := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.dims)
		} else {
			nonEmpty = append(nonEmpty, indexedText{i, text})
		}
	}
	if len(nonEmpty) == 0 {
		return results, nil
	}

	batchSize := e.BatchSize()
	for start := 0; start < len(nonEmpty); start += batchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := start + batchSize
		if end > len(nonEmpty) {
			end = len(nonEmpty)
		}
		batch := nonEmpty[start:end]
		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}

		embeddings, err := e.doEmbed(ctx, batchTexts)
		if err != nil {
			return nil, errs.EmbeddingFailed("failed to embed batch", err)
		}
		for i, emb := range embeddings {
			results[batch[i].idx] = emb
		}
	}

	return results, nil
}

func (e *RemoteAPIEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	reqBody := remoteEmbedRequest{Model: e.modelName, Input: texts}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, e.config.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	policy := httpretry.DefaultPolicy()
	policy.MaxRetries = e.config.MaxRetries

	resp, err := httpretry.Do(timeoutCtx, e.client, req, policy)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, errs.BackendAuth(fmt.Sprintf("remote embedding backend rejected credentials with status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResult remoteEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	embeddings := make([][]float32, len(apiResult.Data))
	for _, item := range apiResult.Data {
		if item.Index < 0 || item.Index >= len(embeddings) {
			continue
		}
		embedding := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			embedding[j] = float32(v)
		}
		embeddings[item.Index] = normalizeVector(embedding)
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *RemoteAPIEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the model identifier in use.
func (e *RemoteAPIEmbedder) ModelName() string {
	return e.modelName
}

// BatchSize returns the upper bound on texts per EmbedBatch call.
func (e *RemoteAPIEmbedder) BatchSize() int {
	if e.config.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return e.config.BatchSize
}

// Available reports whether the backend's model-listing endpoint responds.
func (e *RemoteAPIEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	_, err := e.listModels(ctx)
	return err == nil
}

// Close releases resources held by the embedder.
func (e *RemoteAPIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// remoteEmbedRequest is the OpenAI-compatible embeddings request shape.
type remoteEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// remoteEmbedResponse is the OpenAI-compatible embeddings response shape.
type remoteEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// remoteModelListResponse is the OpenAI-compatible model listing response shape.
type remoteModelListResponse struct {
	Data []remoteModelInfo `json:"data"`
}

// remoteModelInfo describes one model entry. Dimensions is non-standard and
// only populated by backends that advertise it; most don't, hence the
// DefaultDimensions fallback in dimensionsForModel.
type remoteModelInfo struct {
	ID         string `json:"id"`
	Dimensions int    `json:"dimensions,omitempty"`
}
