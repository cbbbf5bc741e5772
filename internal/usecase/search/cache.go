package search

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/trendllm/paperdex/internal/metrics"
)

// DefaultCacheSize bounds the query-embedding cache.
const DefaultCacheSize = 512

// queryCache is a bounded LRU of query embeddings keyed by
// (model, normalized query). Each engine instance owns its cache;
// there is no process-global state to leak between instances.
type queryCache struct {
	model string
	lru   *lru.Cache[string, []float32]
}

func newQueryCache(model string, size int) *queryCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	// lru.New only fails on a non-positive size.
	c, _ := lru.New[string, []float32](size)
	return &queryCache{model: model, lru: c}
}

// key hashes the model and normalized query text. The model is part of
// the key so a model change never serves vectors from the old space.
func (c *queryCache) key(text string) string {
	h := sha256.Sum256([]byte(c.model + "\x00" + text))
	return hex.EncodeToString(h[:])
}

func (c *queryCache) get(text string) ([]float32, bool) {
	vec, ok := c.lru.Get(c.key(text))
	if ok {
		metrics.QueryCacheTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.QueryCacheTotal.WithLabelValues("miss").Inc()
	}
	return vec, ok
}

// peek looks up without touching recency or the hit/miss counters.
// Used when the caller will get the same key again right after.
func (c *queryCache) peek(text string) ([]float32, bool) {
	return c.lru.Peek(c.key(text))
}

func (c *queryCache) put(text string, vec []float32) {
	c.lru.Add(c.key(text), vec)
}

