package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(t *testing.T, config *Config) (*memoryCache, *fakeClock) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	config.CleanupInterval = 0
	c := newMemoryCache(config, logger, clock.Now)
	t.Cleanup(func() { c.Close() })
	return c, clock
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(t, DefaultConfig())

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	clock.Advance(2 * time.Minute)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryCacheFullWithoutEviction(t *testing.T) {
	ctx := context.Background()
	config := DefaultConfig()
	config.MaxKeys = 2
	config.EvictionEnabled = false
	c, _ := newTestCache(t, config)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))

	err := c.Set(ctx, "c", []byte("3"), time.Minute)
	assert.True(t, errors.Is(err, ErrCacheFull))

	assert.NoError(t, c.Set(ctx, "a", []byte("overwrite"), time.Minute), "existing keys can be overwritten")
}

func TestMemoryCacheEvictsLRU(t *testing.T) {
	ctx := context.Background()
	config := DefaultConfig()
	config.MaxKeys = 2
	c, clock := newTestCache(t, config)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Hour))
	clock.Advance(time.Second)
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Hour))
	clock.Advance(time.Second)
	_, _ = c.Get(ctx, "a")
	clock.Advance(time.Second)

	require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Hour))
	assert.True(t, c.Exists(ctx, "a"))
	assert.False(t, c.Exists(ctx, "b"))
	assert.True(t, c.Exists(ctx, "c"))
}

func TestMemoryCacheValueLimit(t *testing.T) {
	config := DefaultConfig()
	config.MaxValueBytes = 4
	c, _ := newTestCache(t, config)

	err := c.Set(context.Background(), "k", []byte("too long"), time.Minute)
	assert.ErrorIs(t, err, ErrCacheFull)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, DefaultConfig())

	type entry struct {
		URLs      map[string]string `json:"urls"`
		Timestamp int64             `json:"timestamp"`
	}

	require.NoError(t, SetJSON(ctx, c, "badge_image_urls", entry{URLs: map[string]string{"7": "u"}, Timestamp: 42}, time.Hour))

	var got entry
	require.True(t, GetJSON(ctx, c, "badge_image_urls", &got))
	assert.Equal(t, "u", got.URLs["7"])
	assert.Equal(t, int64(42), got.Timestamp)

	require.NoError(t, c.Set(ctx, "broken", []byte("{"), time.Hour))
	assert.False(t, GetJSON(ctx, c, "broken", &got))
}

func TestMemoryCacheStatsAndPattern(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, DefaultConfig())

	require.NoError(t, c.Set(ctx, "catalog:categories", []byte("[]"), time.Hour))
	require.NoError(t, c.Set(ctx, "catalog:badges:sdg", []byte("[]"), time.Hour))
	require.NoError(t, c.Set(ctx, "other", []byte("x"), time.Hour))
	_, _ = c.Get(ctx, "other")
	_, _ = c.Get(ctx, "missing")

	require.NoError(t, c.DeletePattern(ctx, "catalog:*"))

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Keys)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRatio, 0.001)
	assert.NoError(t, c.Health(ctx))
}

func TestNewCacheProviders(t *testing.T) {
	c, err := NewCache(nil, nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = NewCache(&Config{Provider: "memcached"}, nil)
	assert.Error(t, err)

	_, err = NewCache(&Config{Provider: "redis", RedisURL: "not a url"}, nil)
	assert.Error(t, err)
}

func TestIsOutOfMemory(t *testing.T) {
	assert.True(t, isOutOfMemory(errors.New("OOM command not allowed when used memory > 'maxmemory'.")))
	assert.False(t, isOutOfMemory(errors.New("connection refused")))
	assert.False(t, isOutOfMemory(nil))
}
