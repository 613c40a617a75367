// Package memory provides an in-process cache implementation backed by
// patrickmn/go-cache.
package memory

import (
	"context"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/blueberrycongee/wxai/pkg/cache"
)

// Cache implements cache.Cache in memory.
type Cache struct {
	store *gocache.Cache

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
}

// Config holds configuration for the in-memory cache.
type Config struct {
	DefaultTTL      time.Duration `yaml:"default_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:      time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}

// New creates a new in-memory cache.
func New(cfg Config) *Cache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = cfg.DefaultTTL * 2
	}
	return &Cache{store: gocache.New(cfg.DefaultTTL, cfg.CleanupInterval)}
}

// Get retrieves a value. The returned slice is a copy.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	val, found := c.store.Get(key)
	if !found {
		c.misses.Add(1)
		return nil, nil
	}
	b, ok := val.([]byte)
	if !ok {
		c.misses.Add(1)
		return nil, nil
	}
	c.hits.Add(1)
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Set stores a copy of value with ttl, or the default TTL when ttl is 0.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	c.store.Set(key, stored, ttl)
	c.sets.Add(1)
	return nil
}

// Delete removes a key.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.store.Delete(key)
	c.deletes.Add(1)
	return nil
}

// Ping always succeeds.
func (c *Cache) Ping(context.Context) error { return nil }

// Close drops all entries.
func (c *Cache) Close() error {
	c.store.Flush()
	return nil
}

// Len returns the number of stored items, including expired items not yet
// cleaned up.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}

// Stats returns cache statistics.
func (c *Cache) Stats() cache.Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	return cache.Stats{
		Hits:    hits,
		Misses:  misses,
		Sets:    c.sets.Load(),
		Deletes: c.deletes.Load(),
		HitRate: cache.HitRatio(hits, misses),
	}
}

var _ cache.Cache = (*Cache)(nil)
