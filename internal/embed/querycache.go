package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Query cache defaults (C6).
const (
	// DefaultQueryCacheSize is the default number of query embeddings to keep.
	DefaultQueryCacheSize = 100

	// DefaultQueryCacheTTL is how long a cached query embedding stays valid.
	DefaultQueryCacheTTL = 1 * time.Hour
)

type cacheEntry struct {
	vector  []float32
	expires time.Time
}

// QueryCache is a TTL+LRU cache mapping query string to embedding vector
// (C6). It wraps an Embedder's Embed calls for the query path only; bulk
// indexing embeddings always go straight to the wrapped embedder via
// EmbedBatch, bypassing this cache entirely.
type QueryCache struct {
	inner Embedder
	ttl   time.Duration

	mu    sync.Mutex
	cache *lru.Cache[string, cacheEntry]
}

// NewQueryCache wraps inner with a query embedding cache of the given
// capacity and TTL. A non-positive capacity or ttl falls back to the
// package defaults.
func NewQueryCache(inner Embedder, capacity int, ttl time.Duration) *QueryCache {
	if capacity <= 0 {
		capacity = DefaultQueryCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultQueryCacheTTL
	}
	cache, _ := lru.New[string, cacheEntry](capacity)
	return &QueryCache{inner: inner, ttl: ttl, cache: cache}
}

// NewQueryCacheWithDefaults wraps inner using DefaultQueryCacheSize and
// DefaultQueryCacheTTL.
func NewQueryCacheWithDefaults(inner Embedder) *QueryCache {
	return NewQueryCache(inner, DefaultQueryCacheSize, DefaultQueryCacheTTL)
}

func (c *QueryCache) key(query string) string {
	combined := query + "\x00" + c.inner.ModelName()
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// Embed returns the cached vector for query if present and unexpired,
// otherwise computes it via the wrapped embedder and caches the result.
func (c *QueryCache) Embed(ctx context.Context, query string) ([]float32, error) {
	key := c.key(query)

	c.mu.Lock()
	entry, ok := c.cache.Get(key)
	if ok && time.Now().After(entry.expires) {
		c.cache.Remove(key)
		ok = false
	}
	c.mu.Unlock()

	if ok {
		return entry.vector, nil
	}

	vec, err := c.inner.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache.Add(key, cacheEntry{vector: vec, expires: time.Now().Add(c.ttl)})
	c.mu.Unlock()

	return vec, nil
}

// Clear empties the cache. Called whenever the index is cleared (C8's
// ClearIndex operation), since cached query vectors have no bearing on a
// fresh index beyond correctness of the embedding itself, but a clear is a
// convenient, conservative point to drop any cached state.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
}

// Len reports the number of entries currently cached, including any not yet
// lazily evicted for expiry.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

// EmbedBatch passes through to the wrapped embedder uncached: bulk indexing
// embeddings are never served from the query cache.
func (c *QueryCache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedBatch(ctx, texts)
}

// Name passes through to the wrapped embedder.
func (c *QueryCache) Name() string { return c.inner.Name() }

// ModelName passes through to the wrapped embedder.
func (c *QueryCache) ModelName() string { return c.inner.ModelName() }

// Dimensions passes through to the wrapped embedder.
func (c *QueryCache) Dimensions() int { return c.inner.Dimensions() }

// BatchSize passes through to the wrapped embedder.
func (c *QueryCache) BatchSize() int { return c.inner.BatchSize() }

// Initialize passes through to the wrapped embedder.
func (c *QueryCache) Initialize(ctx context.Context) error { return c.inner.Initialize(ctx) }

// Available passes through to the wrapped embedder.
func (c *QueryCache) Available(ctx context.Context) bool { return c.inner.Available(ctx) }

// Close releases the wrapped embedder.
func (c *QueryCache) Close() error { return c.inner.Close() }

// Inner returns the wrapped embedder.
func (c *QueryCache) Inner() Embedder { return c.inner }

var _ Embedder = (*QueryCache)(nil)
