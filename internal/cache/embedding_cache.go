// Package cache holds the process-wide embedding cache (memory tier plus
// optional durable tier) and the Redis chat-history cache.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strings"
	"sync"
)

// EmbeddingGateway computes a vector for a text; normally the AI client.
type EmbeddingGateway interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PersistentEmbeddingStore is the durable fallback tier. It is not bounded
// by the in-memory capacity.
type PersistentEmbeddingStore interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

// EmbeddingCache is a content-addressed read-through cache: memory tier
// first, then the persistent tier, then the gateway, writing through both
// tiers on a gateway hit. The memory tier evicts its oldest insertion once
// capacity is exceeded. Safe for concurrent use.
type EmbeddingCache struct {
	mu       sync.Mutex
	entries  map[string][]float32
	order    []string
	capacity int

	gateway EmbeddingGateway
	store   PersistentEmbeddingStore // optional
	model   string
}

func NewEmbeddingCache(gateway EmbeddingGateway, store PersistentEmbeddingStore, model string, capacity int) *EmbeddingCache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &EmbeddingCache{
		entries:  make(map[string][]float32, capacity),
		capacity: capacity,
		gateway:  gateway,
		store:    store,
		model:    model,
	}
}

// CacheKey is a stable hash of normalized text plus the model name, so a
// model change never serves vectors computed by another model.
func CacheKey(text, model string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	sum := sha256.Sum256([]byte(normalized + ":" + model))
	return hex.EncodeToString(sum[:])
}

// GetEmbedding resolves a text to its vector, issuing at most one gateway
// call per distinct normalized text per cold cache. Gateway errors
// propagate; persistent-tier write failures are logged and ignored.
func (c *EmbeddingCache) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(text, c.model)

	c.mu.Lock()
	if vec, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return vec, nil
	}
	c.mu.Unlock()

	if c.store != nil {
		vec, ok, err := c.store.Get(ctx, key)
		if err != nil {
			log.Printf("warn: embedding cache persistent read failed: %v", err)
		} else if ok {
			c.insert(key, vec)
			return vec, nil
		}
	}

	vec, err := c.gateway.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.insert(key, vec)
	if c.store != nil {
		if err := c.store.Set(ctx, key, vec); err != nil {
			log.Printf("warn: embedding cache persistent write failed: %v", err)
		}
	}
	return vec, nil
}

// CacheEmbedding inserts an already-computed vector into the memory tier.
// Ingestion uses this so chat queries over fresh chunks hit warm entries.
func (c *EmbeddingCache) CacheEmbedding(text string, vec []float32) {
	c.insert(CacheKey(text, c.model), vec)
}

// Len reports the memory-tier entry count.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops the memory tier; the persistent tier is untouched.
func (c *EmbeddingCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]float32, c.capacity)
	c.order = c.order[:0]
}

func (c *EmbeddingCache) insert(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		c.entries[key] = vec
		return
	}
	c.entries[key] = vec
	c.order = append(c.order, key)
	for len(c.entries) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}
