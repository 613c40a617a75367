// Package caches provides the cache backends the client can share IAM tokens
// and model listings through.
package caches

import (
	"fmt"

	"github.com/blueberrycongee/wxai/caches/memory"
	"github.com/blueberrycongee/wxai/caches/redis"
	"github.com/blueberrycongee/wxai/pkg/cache"
)

// Type re-exports cache types for convenience.
type Type = cache.Type

// Cache type constants.
const (
	TypeLocal = cache.TypeLocal
	TypeRedis = cache.TypeRedis
)

// Config selects and configures a backend.
type Config struct {
	Type   Type          `yaml:"type"`
	Memory memory.Config `yaml:"memory"`
	Redis  redis.Config  `yaml:"redis"`
}

// New builds the backend named by cfg.Type. An empty type selects the
// in-memory cache.
func New(cfg Config) (cache.Cache, error) {
	switch cfg.Type {
	case "", TypeLocal:
		return memory.New(cfg.Memory), nil
	case TypeRedis:
		return redis.New(cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown cache type %q", cfg.Type)
	}
}

// Re-export config types for convenience.
type (
	MemoryConfig = memory.Config
	RedisConfig  = redis.Config
)

// Re-export default config functions.
var (
	DefaultMemoryConfig = memory.DefaultConfig
	DefaultRedisConfig  = redis.DefaultConfig
)
