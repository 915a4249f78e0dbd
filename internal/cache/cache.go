// internal/cache/cache.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ===============================
// CACHE INTERFACE
// ===============================

// Cache is a byte-oriented key-value surface with per-key expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) bool
	DeletePattern(ctx context.Context, pattern string) error
	GetTTL(ctx context.Context, key string) (time.Duration, error)

	Clear(ctx context.Context) error
	Stats(ctx context.Context) (*CacheStats, error)
	Health(ctx context.Context) error
	Close() error
}

// ErrCacheFull is returned by Set when the backend has no room for the value.
var ErrCacheFull = errors.New("cache is full")

// CacheStats represents cache statistics
type CacheStats struct {
	Hits        int64         `json:"hits"`
	Misses      int64         `json:"misses"`
	Sets        int64         `json:"sets"`
	Deletes     int64         `json:"deletes"`
	Keys        int64         `json:"keys"`
	HitRatio    float64       `json:"hit_ratio"`
	Uptime      time.Duration `json:"uptime"`
	UsedMemory  int64         `json:"used_memory"`
	MaxMemory   int64         `json:"max_memory"`
	EvictedKeys int64         `json:"evicted_keys"`
}

// ===============================
// CACHE CONFIGURATION
// ===============================

// Config holds cache configuration
type Config struct {
	Provider        string        // "memory", "redis"
	TTL             time.Duration // Default TTL when Set is called with ttl <= 0
	MaxKeys         int           // Max keys in memory cache
	MaxValueBytes   int           // Largest value the memory cache accepts; 0 means unlimited
	CleanupInterval time.Duration // Cleanup interval for memory cache
	EvictionEnabled bool          // Evict LRU entries instead of failing with ErrCacheFull
	KeyPrefix       string

	// Redis configuration
	RedisURL string
	PoolSize int
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() *Config {
	return &Config{
		Provider:        "memory",
		TTL:             time.Hour,
		MaxKeys:         10000,
		CleanupInterval: 5 * time.Minute,
		EvictionEnabled: true,
		PoolSize:        10,
	}
}

// ===============================
// FACTORY FUNCTION
// ===============================

// NewCache creates a new cache instance based on configuration
func NewCache(config *Config, logger *zap.Logger) (Cache, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	switch strings.ToLower(config.Provider) {
	case "redis":
		return NewRedisCache(config, logger)
	case "memory", "":
		logger.Info("Using in-memory cache", zap.Int("max_keys", config.MaxKeys))
		return NewMemoryCache(config, logger), nil
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", config.Provider)
	}
}

// ===============================
// JSON HELPERS
// ===============================

// GetJSON decodes the value at key into v. It reports false on a miss or when
// the stored bytes do not decode.
func GetJSON(ctx context.Context, c Cache, key string, v interface{}) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, c Cache, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	return c.Set(ctx, key, raw, ttl)
}

// ===============================
// UTILITY FUNCTIONS
// ===============================

// matchPattern performs simple wildcard pattern matching
func matchPattern(str, pattern string) bool {
	if pattern == "*" {
		return true
	}

	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(str, prefix)
	}

	if strings.HasPrefix(pattern, "*") {
		suffix := strings.TrimPrefix(pattern, "*")
		return strings.HasSuffix(str, suffix)
	}

	return str == pattern
}
