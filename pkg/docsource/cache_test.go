package docsource

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDocCache_SetAndGet(t *testing.T) {
	cache := NewCache(1 * time.Minute)

	cache.Set("https://example.com/doc.md", "# Conventions")

	value, ok := cache.Get("https://example.com/doc.md")
	assert.True(t, ok)
	assert.Equal(t, "# Conventions", value)
}

func TestDocCache_HoldsListings(t *testing.T) {
	cache := NewCache(1 * time.Minute)

	docs := []DocRef{{Path: "docs/a.md", URL: "https://github.com/org/repo/blob/main/docs/a.md"}}
	cache.Set("repo-listing", docs)

	value, ok := cache.Get("repo-listing")
	assert.True(t, ok)
	assert.Equal(t, docs, value)
}

func TestDocCache_Miss(t *testing.T) {
	cache := NewCache(1 * time.Minute)

	value, ok := cache.Get("https://example.com/nonexistent.md")
	assert.False(t, ok)
	assert.Nil(t, value)
}

func TestDocCache_TTLExpiry(t *testing.T) {
	cache := NewCache(50 * time.Millisecond)

	cache.Set("https://example.com/doc.md", "content")

	// Should be present immediately
	value, ok := cache.Get("https://example.com/doc.md")
	assert.True(t, ok)
	assert.Equal(t, "content", value)

	// Wait for TTL to expire
	time.Sleep(60 * time.Millisecond)

	// Should be expired
	value, ok = cache.Get("https://example.com/doc.md")
	assert.False(t, ok)
	assert.Nil(t, value)
}

func TestDocCache_Overwrite(t *testing.T) {
	cache := NewCache(1 * time.Minute)

	cache.Set("https://example.com/doc.md", "old content")
	cache.Set("https://example.com/doc.md", "new content")

	value, ok := cache.Get("https://example.com/doc.md")
	assert.True(t, ok)
	assert.Equal(t, "new content", value)
}

func TestDocCache_ConcurrentAccess(t *testing.T) {
	cache := NewCache(1 * time.Minute)
	var wg sync.WaitGroup

	// Concurrent writes
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Set("shared-key", "content")
		}()
	}

	// Concurrent reads
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Get("shared-key")
		}()
	}

	wg.Wait()

	// Should still be readable
	value, ok := cache.Get("shared-key")
	assert.True(t, ok)
	assert.Equal(t, "content", value)
}
