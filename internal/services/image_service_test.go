package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wannagonna/internal/cache"
	"wannagonna/internal/models"
	"wannagonna/internal/store"
)

type imageFixture struct {
	svc   *imageService
	blobs *store.MemoryBlobStore
	cache cache.Cache
	now   time.Time
}

func newImageFixture(t *testing.T, cacheConfig *cache.Config) *imageFixture {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	if cacheConfig == nil {
		cacheConfig = &cache.Config{TTL: time.Hour, MaxKeys: 100, EvictionEnabled: true}
	}
	f := &imageFixture{
		blobs: store.NewMemoryBlobStore("https://blobs.test"),
		cache: cache.NewMemoryCache(cacheConfig, logger),
		now:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = newImageService(f.blobs, f.cache, logger, nil, func() time.Time { return f.now })
	return f
}

func (f *imageFixture) putBlob(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, f.blobs.Put(context.Background(), path, []byte("<svg/>")))
}

func TestResolveImageFallbackOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("png only", func(t *testing.T) {
		f := newImageFixture(t, nil)
		f.putBlob(t, "badges/X/Y.png")

		url := f.svc.ResolveImage(ctx, "Y", "X")
		require.NotNil(t, url)
		assert.Equal(t, "https://blobs.test/badges/X/Y.png", *url)
		assert.Equal(t, []string{"badges/X/Y.svg", "badges/X/Y.png"}, f.blobs.Probes())
	})

	t.Run("webp only", func(t *testing.T) {
		f := newImageFixture(t, nil)
		f.putBlob(t, "badges/X/Y.webp")

		url := f.svc.ResolveImage(ctx, "Y", "X")
		require.NotNil(t, url)
		assert.Equal(t, "https://blobs.test/badges/X/Y.webp", *url)
		assert.Len(t, f.blobs.Probes(), 5)
	})

	t.Run("none", func(t *testing.T) {
		f := newImageFixture(t, nil)

		assert.Nil(t, f.svc.ResolveImage(ctx, "Y", "X"))
		assert.Equal(t, []string{
			"badges/X/Y.svg",
			"badges/X/Y.png",
			"badges/X/Y.jpg",
			"badges/X/Y.jpeg",
			"badges/X/Y.webp",
		}, f.blobs.Probes())

		f.blobs.ResetProbes()
		assert.Nil(t, f.svc.ResolveImage(ctx, "Y", "X"))
		assert.Empty(t, f.blobs.Probes(), "known miss must not probe again")
	})
}

func TestResolveImageCacheWindow(t *testing.T) {
	ctx := context.Background()
	f := newImageFixture(t, nil)
	f.putBlob(t, "badges/sdg/7.png")
	t0 := f.now

	require.NotNil(t, f.svc.ResolveImage(ctx, "7", "sdg"))

	var entry imageCacheEntry
	require.True(t, cache.GetJSON(ctx, f.cache, ImageCacheKey, &entry))
	assert.Equal(t, t0.UnixMilli(), entry.Timestamp)
	assert.Equal(t, "https://blobs.test/badges/sdg/7.png", entry.URLs["7"])

	f.blobs.ResetProbes()
	f.now = t0.Add(23*time.Hour + 59*time.Minute)
	require.NotNil(t, f.svc.ResolveImage(ctx, "7", "sdg"))
	assert.Empty(t, f.blobs.Probes(), "entry is fresh inside the window")

	f.now = t0.Add(24*time.Hour + time.Minute)
	require.NotNil(t, f.svc.ResolveImage(ctx, "7", "sdg"))
	assert.Equal(t, []string{"badges/sdg/7.svg", "badges/sdg/7.png"}, f.blobs.Probes())

	require.True(t, cache.GetJSON(ctx, f.cache, ImageCacheKey, &entry))
	assert.Equal(t, f.now.UnixMilli(), entry.Timestamp, "timestamp tracks the latest write")
	assert.Equal(t, f.now.UnixMilli(), entry.Written["7"])
}

func TestResolveImageCacheWindowPerURL(t *testing.T) {
	ctx := context.Background()
	f := newImageFixture(t, nil)
	f.putBlob(t, "badges/sdg/7.svg")
	f.putBlob(t, "badges/sdg/1.svg")
	t0 := f.now

	require.NotNil(t, f.svc.ResolveImage(ctx, "7", "sdg"))

	// a URL added twenty hours into the first one's window
	t1 := t0.Add(20 * time.Hour)
	f.now = t1
	require.NotNil(t, f.svc.ResolveImage(ctx, "1", "sdg"))

	f.blobs.ResetProbes()
	f.now = t0.Add(23*time.Hour + 59*time.Minute)
	require.NotNil(t, f.svc.ResolveImage(ctx, "7", "sdg"))
	require.NotNil(t, f.svc.ResolveImage(ctx, "1", "sdg"))
	assert.Empty(t, f.blobs.Probes())

	f.now = t0.Add(24*time.Hour + time.Minute)
	require.NotNil(t, f.svc.ResolveImage(ctx, "1", "sdg"))
	assert.Empty(t, f.blobs.Probes(), "the later URL keeps its own window")
	require.NotNil(t, f.svc.ResolveImage(ctx, "7", "sdg"))
	assert.Equal(t, []string{"badges/sdg/7.svg"}, f.blobs.Probes(), "the earlier URL expired")

	f.blobs.ResetProbes()
	f.now = t1.Add(23*time.Hour + 59*time.Minute)
	require.NotNil(t, f.svc.ResolveImage(ctx, "1", "sdg"))
	assert.Empty(t, f.blobs.Probes())

	f.now = t1.Add(24*time.Hour + time.Minute)
	require.NotNil(t, f.svc.ResolveImage(ctx, "1", "sdg"))
	assert.Equal(t, []string{"badges/sdg/1.svg"}, f.blobs.Probes())
}

func TestResolveImagesBatch(t *testing.T) {
	ctx := context.Background()
	f := newImageFixture(t, nil)
	f.putBlob(t, "badges/sdg/1.svg")
	f.putBlob(t, "badges/sdg/7.png")

	refs := []models.BadgeRef{
		{BadgeID: "1", CategoryID: "sdg"},
		{BadgeID: "7", CategoryID: "sdg"},
		{BadgeID: "nonexistent", CategoryID: "sdg"},
		{BadgeID: "7", CategoryID: "sdg"},
	}
	urls := f.svc.ResolveImages(ctx, refs, 0)

	require.Len(t, urls, 3)
	require.NotNil(t, urls["1"])
	require.NotNil(t, urls["7"])
	assert.Equal(t, "https://blobs.test/badges/sdg/1.svg", *urls["1"])
	assert.Equal(t, "https://blobs.test/badges/sdg/7.png", *urls["7"])
	assert.Contains(t, urls, "nonexistent")
	assert.Nil(t, urls["nonexistent"])
	assert.LessOrEqual(t, len(f.blobs.Probes()), 15)
}

func TestResolveImagesCancelled(t *testing.T) {
	f := newImageFixture(t, nil)
	f.putBlob(t, "badges/sdg/1.svg")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	urls := f.svc.ResolveImages(ctx, []models.BadgeRef{
		{BadgeID: "1", CategoryID: "sdg"},
		{BadgeID: "2", CategoryID: "sdg"},
	}, 1)

	require.Len(t, urls, 2)
	assert.Nil(t, urls["1"])
	assert.Nil(t, urls["2"])

	// A cancelled probe is not a definitive miss.
	assert.NotNil(t, f.svc.ResolveImage(context.Background(), "1", "sdg"))
}

func TestResolveImageSurvivesFullCache(t *testing.T) {
	ctx := context.Background()
	f := newImageFixture(t, &cache.Config{TTL: time.Hour, MaxKeys: 100, MaxValueBytes: 8})
	f.putBlob(t, "badges/sdg/1.svg")

	url := f.svc.ResolveImage(ctx, "1", "sdg")
	require.NotNil(t, url)
	assert.Equal(t, "https://blobs.test/badges/sdg/1.svg", *url)
	assert.False(t, f.cache.Exists(ctx, ImageCacheKey))
}

func TestUploadImage(t *testing.T) {
	ctx := context.Background()
	f := newImageFixture(t, nil)

	assert.Nil(t, f.svc.ResolveImage(ctx, "firstLocal", "activities"))

	url, err := f.svc.Upload(ctx, "activities", "firstLocal", "PNG", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://blobs.test/badges/activities/firstLocal.png", url)

	f.blobs.ResetProbes()
	resolved := f.svc.ResolveImage(ctx, "firstLocal", "activities")
	require.NotNil(t, resolved)
	assert.Equal(t, url, *resolved)
	assert.Empty(t, f.blobs.Probes())

	_, err = f.svc.Upload(ctx, "activities", "firstLocal", ".gif", []byte("gif"))
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	_, err = f.svc.Upload(ctx, "activities", "../etc", ".png", []byte("x"))
	assert.True(t, IsValidationError(err))
}
