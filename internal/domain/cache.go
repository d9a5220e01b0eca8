package domain

import (
	"context"
	"time"
)

// Cache stores derived views and batch status records.
// Derived views are keyed by store version, so entries never go stale; the TTL
// only bounds memory.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `yaml:"type" env:"KESTREL_CACHE"`

	// Local LRU cache settings
	LocalMaxSize int           `yaml:"local_max_size" env:"KESTREL_CACHE_LOCAL_MAX_SIZE"`
	LocalTTL     time.Duration `yaml:"local_ttl" env:"KESTREL_CACHE_LOCAL_TTL"`

	// Redis settings
	RedisAddr     string `yaml:"redis_addr" env:"KESTREL_REDIS_ADDR"`
	RedisPassword string `yaml:"-" env:"KESTREL_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"KESTREL_REDIS_DB"`

	// Two-phase settings
	EnableTwoPhase bool `yaml:"enable_two_phase" env:"KESTREL_CACHE_TWO_PHASE"` // If true, check local first, then Redis

	// ViewTTL bounds how long derived views stay cached.
	ViewTTL time.Duration `yaml:"view_ttl" env:"KESTREL_CACHE_VIEW_TTL"`
}
