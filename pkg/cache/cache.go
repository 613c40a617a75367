// Package cache defines the storage interface the client uses for IAM tokens
// and foundation model listings. Backends live under caches/.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Type names a backend in configuration.
type Type string

const (
	TypeLocal Type = "local"
	TypeRedis Type = "redis"
)

// Cache stores opaque values under string keys. Implementations must be
// safe for concurrent use; one cache may be shared by several clients.
type Cache interface {
	// Get returns nil, nil for a missing or expired key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value for ttl. A zero ttl means the backend default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
	Stats() Stats
}

// Stats counts backend operations since the cache was opened.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	Deletes int64   `json:"deletes"`
	Errors  int64   `json:"errors"`
	HitRate float64 `json:"hit_rate"`
}

// HitRatio is hits over lookups, or 0 before the first lookup.
func HitRatio(hits, misses int64) float64 {
	if lookups := hits + misses; lookups > 0 {
		return float64(hits) / float64(lookups)
	}
	return 0
}

// SetJSON encodes value as JSON and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value %q: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}

// GetJSON retrieves and unmarshals a JSON value. It reports false when the
// key is absent.
func GetJSON(ctx context.Context, c Cache, key string, dest any) (bool, error) {
	data, err := c.Get(ctx, key)
	if err != nil || data == nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decode cache value %q: %w", key, err)
	}
	return true, nil
}
