// Package blobcache adds an in-memory read-through cache in front of a
// content-addressed blob store. Content under an address never changes, so
// cached entries are only evicted for memory, never for staleness.
package blobcache

import (
	"context"
	"slices"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Default cache tunables
const (
	DefaultTTL             = 10 * time.Minute
	DefaultCleanupInterval = 15 * time.Minute
)

// Blobs is the wrapped store
type Blobs interface {
	Put(ctx context.Context, body []byte) (string, error)
	Get(ctx context.Context, address string) ([]byte, error)
}

// Cache wraps Blobs with a TTL cache
type Cache struct {
	next  Blobs
	cache *gocache.Cache
}

// New creates a Cache in front of next
func New(next Blobs, ttl, cleanupInterval time.Duration) *Cache {
	return &Cache{
		next:  next,
		cache: gocache.New(ttl, cleanupInterval),
	}
}

// Put stores body in the wrapped store and caches it under the returned address
func (c *Cache) Put(ctx context.Context, body []byte) (string, error) {
	address, err := c.next.Put(ctx, body)
	if err != nil {
		return "", err
	}
	c.cache.SetDefault(address, slices.Clone(body))
	return address, nil
}

// Get serves address from the cache, falling back to the wrapped store
func (c *Cache) Get(ctx context.Context, address string) ([]byte, error) {
	if cached, found := c.cache.Get(address); found {
		return slices.Clone(cached.([]byte)), nil
	}

	body, err := c.next.Get(ctx, address)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(address, slices.Clone(body))
	return body, nil
}

// Len returns the number of cached entries, including expired ones not yet cleaned up
func (c *Cache) Len() int {
	return c.cache.ItemCount()
}
