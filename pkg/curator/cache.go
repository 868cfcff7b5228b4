// Package curator assembles per-agent context windows within a token budget,
// pulling from registered context sources with TTL caching.
package curator

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeready-toolchain/baton/pkg/models"
)

// cacheKeyQueryLen bounds how much of the query participates in the cache key.
const cacheKeyQueryLen = 50

// cacheEntry holds fetched items with a timestamp for TTL expiration.
type cacheEntry struct {
	items     []models.ContextItem
	fetchedAt time.Time
}

// Cache is a thread-safe in-memory cache for fetched context items with TTL
// expiration. Expired entries are cleaned up lazily on Get() — no background
// goroutine. Last-writer-wins on concurrent Set for the same key.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache creates a new cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
	}
}

// cacheKey builds the lookup key from tenant, project, type and the query
// prefix.
func cacheKey(tenantID, projectID string, contextType models.ContextType, query string) string {
	if len(query) > cacheKeyQueryLen {
		query = query[:cacheKeyQueryLen]
	}
	return fmt.Sprintf("%s|%s|%s|%s", tenantID, projectID, contextType, query)
}

// Get returns cached items if present and not expired.
func (c *Cache) Get(key string) ([]models.ContextItem, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	if time.Since(entry.fetchedAt) > c.ttl {
		// Expired — clean up lazily.
		// Re-check under write lock: a concurrent Set() may have replaced
		// the entry with a fresh one between RUnlock and Lock.
		c.mu.Lock()
		if current, ok := c.entries[key]; ok && time.Since(current.fetchedAt) > c.ttl {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return entry.items, true
}

// Set stores items with the current timestamp.
func (c *Cache) Set(key string, items []models.ContextItem) {
	c.mu.Lock()
	c.entries[key] = &cacheEntry{
		items:     items,
		fetchedAt: time.Now(),
	}
	c.mu.Unlock()
}

// InvalidateAll drops every cached entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()
}

// InvalidateProject drops entries for one tenant/project pair, for example
// after the project configuration changes.
func (c *Cache) InvalidateProject(tenantID, projectID string) {
	prefix := fmt.Sprintf("%s|%s|", tenantID, projectID)
	c.mu.Lock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// CacheStats reports cache effectiveness counters.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Stats returns a point-in-time snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()
	return CacheStats{
		Entries: entries,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
