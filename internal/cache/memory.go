package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ===============================
// MEMORY CACHE IMPLEMENTATION
// ===============================

// memoryCache implements Cache using in-memory storage
type memoryCache struct {
	mu              sync.Mutex
	items           map[string]*cacheItem
	maxKeys         int
	maxValueBytes   int
	defaultTTL      time.Duration
	evictionEnabled bool
	cleanupInterval time.Duration
	logger          *zap.Logger
	stats           CacheStats
	startTime       time.Time
	stopCh          chan struct{}
	closeOnce       sync.Once
	now             func() time.Time
}

// cacheItem represents a cached item
type cacheItem struct {
	Value      []byte
	ExpiresAt  time.Time
	AccessedAt time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(config *Config, logger *zap.Logger) Cache {
	return newMemoryCache(config, logger, time.Now)
}

func newMemoryCache(config *Config, logger *zap.Logger, now func() time.Time) *memoryCache {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache := &memoryCache{
		items:           make(map[string]*cacheItem),
		maxKeys:         config.MaxKeys,
		maxValueBytes:   config.MaxValueBytes,
		defaultTTL:      config.TTL,
		evictionEnabled: config.EvictionEnabled,
		cleanupInterval: config.CleanupInterval,
		logger:          logger,
		startTime:       now(),
		stopCh:          make(chan struct{}),
		now:             now,
	}

	if cache.cleanupInterval > 0 {
		go cache.cleanup()
	}

	return cache
}

// Get retrieves a value from the cache
func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.items[key]
	if !exists {
		c.stats.Misses++
		return nil, false
	}

	now := c.now()
	if now.After(item.ExpiresAt) {
		delete(c.items, key)
		c.stats.Misses++
		return nil, false
	}

	item.AccessedAt = now
	c.stats.Hits++
	return append([]byte(nil), item.Value...), true
}

// Set stores a value in the cache
func (c *memoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.maxValueBytes > 0 && len(value) > c.maxValueBytes {
		return fmt.Errorf("%w: value of %d bytes exceeds %d", ErrCacheFull, len(value), c.maxValueBytes)
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.maxKeys > 0 && len(c.items) >= c.maxKeys {
		c.removeExpired()
		if len(c.items) >= c.maxKeys {
			if !c.evictionEnabled {
				return ErrCacheFull
			}
			c.evictLRU()
		}
	}

	now := c.now()
	c.items[key] = &cacheItem{
		Value:      append([]byte(nil), value...),
		ExpiresAt:  now.Add(ttl),
		AccessedAt: now,
	}
	c.stats.Sets++
	return nil
}

// Delete removes a value from the cache
func (c *memoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; exists {
		delete(c.items, key)
		c.stats.Deletes++
	}
	return nil
}

// Exists checks if a key exists in the cache
func (c *memoryCache) Exists(ctx context.Context, key string) bool {
	_, ok := c.Get(ctx, key)
	return ok
}

// DeletePattern deletes all keys matching a pattern
func (c *memoryCache) DeletePattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.items {
		if matchPattern(key, pattern) {
			delete(c.items, key)
			c.stats.Deletes++
		}
	}
	return nil
}

// GetTTL gets the remaining TTL for a key
func (c *memoryCache) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.items[key]
	if !exists {
		return 0, fmt.Errorf("key not found: %s", key)
	}

	remaining := item.ExpiresAt.Sub(c.now())
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// Clear removes all items from the cache
func (c *memoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*cacheItem)
	return nil
}

// Stats returns cache statistics
func (c *memoryCache) Stats(ctx context.Context) (*CacheStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Keys = int64(len(c.items))
	stats.Uptime = c.now().Sub(c.startTime)

	var used int64
	for _, item := range c.items {
		used += int64(len(item.Value))
	}
	stats.UsedMemory = used

	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRatio = float64(stats.Hits) / float64(total)
	}
	return &stats, nil
}

// Health checks the health of the cache
func (c *memoryCache) Health(ctx context.Context) error {
	const probeKey = "__health_check__"

	if err := c.Set(ctx, probeKey, []byte("ok"), time.Second); err != nil {
		return fmt.Errorf("cache health check failed: %w", err)
	}
	if _, ok := c.Get(ctx, probeKey); !ok {
		return fmt.Errorf("cache health check failed: probe value missing")
	}
	return c.Delete(ctx, probeKey)
}

// Close closes the cache and cleanup resources
func (c *memoryCache) Close() error {
	c.closeOnce.Do(func() { close(c.stopCh) })
	return nil
}

// cleanup runs periodic cleanup of expired items
func (c *memoryCache) cleanup() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			removed := c.removeExpired()
			remaining := len(c.items)
			c.mu.Unlock()

			if removed > 0 {
				c.logger.Debug("Cleaned up expired cache items",
					zap.Int("expired_count", removed),
					zap.Int("remaining_count", remaining),
				)
			}
		case <-c.stopCh:
			return
		}
	}
}

// removeExpired drops expired items. Callers hold c.mu.
func (c *memoryCache) removeExpired() int {
	now := c.now()
	removed := 0
	for key, item := range c.items {
		if now.After(item.ExpiresAt) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// evictLRU evicts the least recently used item. Callers hold c.mu.
func (c *memoryCache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	for key, item := range c.items {
		if oldestKey == "" || item.AccessedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = item.AccessedAt
		}
	}

	if oldestKey != "" {
		delete(c.items, oldestKey)
		c.stats.EvictedKeys++
	}
}
