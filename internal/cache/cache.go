package cache

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// PathCache remembers storage paths of already-downloaded documents so the
// fetcher can skip a case's attachments without hitting the database for
// every one of them. The record store stays the source of truth: a miss here
// still falls through to a store lookup.
type PathCache struct {
	cache  *cache.Cache
	mu     sync.RWMutex
	hits   int64
	misses int64
}

func NewPathCache(ttl time.Duration) *PathCache {
	return &PathCache{
		cache: cache.New(ttl, ttl*2),
	}
}

// Warm seeds the cache with paths loaded from the record store
func (c *PathCache) Warm(paths []string) {
	for _, p := range paths {
		c.cache.Set(p, struct{}{}, cache.DefaultExpiration)
	}
}

// Has reports whether a path is known to be stored
func (c *PathCache) Has(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, found := c.cache.Get(path); found {
		c.hits++
		return true
	}
	c.misses++
	return false
}

// Add records a freshly stored path
func (c *PathCache) Add(path string) {
	c.cache.Set(path, struct{}{}, cache.DefaultExpiration)
}

// Stats returns hit/miss counters and the current size
func (c *PathCache) Stats() (hits, misses int64, size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses, c.cache.ItemCount()
}
