// Package cache provides the bounded, instrumented caches shared by the
// query pack and the pattern matcher.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Stats is a point-in-time snapshot of cache counters
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
}

// HitRate returns hits / (hits + misses), or 0 before any lookup
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// LRU is a least-recently-used cache with atomic hit/miss/eviction counters.
// It is safe for concurrent use.
type LRU[K comparable, V any] struct {
	inner    *lru.Cache[K, V]
	capacity int

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewLRU creates a cache holding at most capacity entries
func NewLRU[K comparable, V any](capacity int) (*LRU[K, V], error) {
	inner, err := lru.New[K, V](capacity)
	if err != nil {
		return nil, err
	}
	return &LRU[K, V]{inner: inner, capacity: capacity}, nil
}

// Get looks key up and records a hit or miss
func (c *LRU[K, V]) Get(key K) (V, bool) {
	v, ok := c.inner.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Add stores value under key, evicting the least recently used entry when full
func (c *LRU[K, V]) Add(key K, value V) {
	if c.inner.Add(key, value) {
		c.evictions.Add(1)
	}
}

// GetOrCreate returns the cached value for key, or builds it with create
// and caches it. A failed create caches nothing. Two goroutines missing
// the same key at once may both call create; the later Add wins.
func (c *LRU[K, V]) GetOrCreate(key K, create func() (V, error)) (V, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}
	v, err := create()
	if err != nil {
		var zero V
		return zero, false, err
	}
	c.Add(key, v)
	return v, false, nil
}

// Purge drops every entry. Counters are kept; evictions are not counted.
func (c *LRU[K, V]) Purge() {
	c.inner.Purge()
}

// Len returns the number of cached entries
func (c *LRU[K, V]) Len() int {
	return c.inner.Len()
}

// Stats snapshots the counters
func (c *LRU[K, V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.inner.Len(),
		Capacity:  c.capacity,
	}
}

// ContentHash returns the first 16 hex characters of sha256(text), used to
// key cache entries by program or pattern text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}
