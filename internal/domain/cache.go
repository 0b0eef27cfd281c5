package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (single node) + Redis (cluster).
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
	Type string `yaml:"type" json:"type"`

	// Local LRU cache settings
	LocalMaxSize int           `yaml:"local_max_size" json:"localMaxSize"`
	LocalTTL     time.Duration `yaml:"local_ttl" json:"localTtl"`

	// Redis settings
	RedisAddr     string `yaml:"redis_addr" json:"redisAddr"`
	RedisPassword string `yaml:"redis_password" json:"redisPassword"`
	RedisDB       int    `yaml:"redis_db" json:"redisDb"`

	// Two-phase settings
	EnableTwoPhase bool `yaml:"enable_two_phase" json:"enableTwoPhase"` // If true, check local first, then Redis
}
