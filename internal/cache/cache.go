package cache

// Package cache memoizes analytics results keyed by request content.
//
// The forecaster is deterministic for a fixed seed, so an identical request
// can be answered from memory until its entry expires. Entries are evicted
// least recently used first once the cache is full.

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tablewise/tablewise-insights/internal/metrics"
)

// Stats reports cache effectiveness.
type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// Cache is a size and TTL bounded result cache. A nil *Cache is valid and
// never stores anything.
type Cache[V any] struct {
	name   string
	lru    *expirable.LRU[string, V]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a cache holding at most size entries for ttl each. It
// returns nil when size is not positive.
func New[V any](name string, size int, ttl time.Duration) *Cache[V] {
	if size <= 0 {
		return nil
	}
	return &Cache[V]{
		name: name,
		lru:  expirable.NewLRU[string, V](size, nil, ttl),
	}
}

// Key derives a fixed-size key from the JSON encoding of parts.
func Key(parts ...any) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for i, p := range parts {
		if err := enc.Encode(p); err != nil {
			return "", fmt.Errorf("encode key part %d: %w", i, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get returns the cached value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	if c == nil {
		var zero V
		return zero, false
	}
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
		metrics.CacheLookupsTotal.WithLabelValues(c.name, "hit").Inc()
	} else {
		c.misses.Add(1)
		metrics.CacheLookupsTotal.WithLabelValues(c.name, "miss").Inc()
	}
	return v, ok
}

// Add stores v under key.
func (c *Cache[V]) Add(key string, v V) {
	if c == nil {
		return
	}
	c.lru.Add(key, v)
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

func (c *Cache[V]) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: c.lru.Len()}
}
