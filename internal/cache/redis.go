package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ===============================
// REDIS CACHE IMPLEMENTATION
// ===============================

type redisCache struct {
	client     *redis.Client
	logger     *zap.Logger
	prefix     string
	defaultTTL time.Duration
}

// NewRedisCache creates a new Redis-based cache
func NewRedisCache(config *Config, logger *zap.Logger) (Cache, error) {
	if config == nil {
		return nil, fmt.Errorf("cache config cannot be nil")
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	if config.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}
	options, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		options.PoolSize = config.PoolSize
	}

	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis cache initialized",
		zap.String("addr", options.Addr),
		zap.Int("db", options.DB),
	)

	return &redisCache{
		client:     client,
		logger:     logger,
		prefix:     config.KeyPrefix,
		defaultTTL: config.TTL,
	}, nil
}

func (r *redisCache) key(key string) string {
	return r.prefix + key
}

func (r *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	} else if err != nil {
		r.logger.Error("Failed to get from Redis",
			zap.String("key", key),
			zap.Error(err))
		return nil, false
	}
	return val, true
}

func (r *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		if isOutOfMemory(err) {
			return fmt.Errorf("%w: %v", ErrCacheFull, err)
		}
		return fmt.Errorf("failed to set cache value: %w", err)
	}
	return nil
}

func (r *redisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *redisCache) Exists(ctx context.Context, key string) bool {
	count, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		r.logger.Error("Failed to check key existence",
			zap.String("key", key),
			zap.Error(err))
		return false
	}
	return count > 0
}

func (r *redisCache) DeletePattern(ctx context.Context, pattern string) error {
	iter := r.client.Scan(ctx, 0, r.key(pattern), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *redisCache) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	return r.client.TTL(ctx, r.key(key)).Result()
}

func (r *redisCache) Clear(ctx context.Context) error {
	if r.prefix == "" {
		return r.client.FlushDB(ctx).Err()
	}
	return r.DeletePattern(ctx, "*")
}

func (r *redisCache) Stats(ctx context.Context) (*CacheStats, error) {
	info, err := r.client.Info(ctx, "stats", "memory", "keyspace").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read Redis info: %w", err)
	}

	stats := &CacheStats{}
	for _, line := range strings.Split(info, "\r\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch name {
		case "keyspace_hits":
			stats.Hits, _ = strconv.ParseInt(value, 10, 64)
		case "keyspace_misses":
			stats.Misses, _ = strconv.ParseInt(value, 10, 64)
		case "evicted_keys":
			stats.EvictedKeys, _ = strconv.ParseInt(value, 10, 64)
		case "used_memory":
			stats.UsedMemory, _ = strconv.ParseInt(value, 10, 64)
		case "maxmemory":
			stats.MaxMemory, _ = strconv.ParseInt(value, 10, 64)
		}
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRatio = float64(stats.Hits) / float64(total)
	}
	if size, err := r.client.DBSize(ctx).Result(); err == nil {
		stats.Keys = size
	}
	return stats, nil
}

func (r *redisCache) Health(ctx context.Context) error {
	_, err := r.client.Ping(ctx).Result()
	return err
}

func (r *redisCache) Close() error {
	return r.client.Close()
}

// isOutOfMemory reports whether Redis refused a write because maxmemory was
// reached under a noeviction policy.
func isOutOfMemory(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "OOM ")
}
