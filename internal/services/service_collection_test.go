package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wannagonna/internal/cache"
	"wannagonna/internal/config"
	"wannagonna/internal/events"
	"wannagonna/internal/models"
	"wannagonna/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Store: config.StoreConfig{DocumentProvider: "memory", BlobProvider: "memory"},
		Rewards: config.RewardsConfig{
			ProfileBadgeID:       "profileComplete",
			ReferralBadgeID:      "buddyBuilder",
			ImageCacheWindow:     24 * time.Hour,
			ImageProbeTimeout:    time.Second,
			ImageConcurrency:     4,
			CatalogTTL:           time.Minute,
			NotificationsEnabled: true,
		},
	}
}

func TestNewServiceCollection(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	ctx := context.Background()

	_, err := NewServiceCollection(Infrastructure{}, testConfig(), logger)
	require.Error(t, err)

	ds := store.NewMemoryStore()
	seedCatalog(t, ds)
	require.NoError(t, ds.SetDoc(ctx, "members/m1", store.Document{"xp": 0}))

	remote := newFakeRemote()
	infra := Infrastructure{
		Documents: ds,
		Blobs:     store.NewMemoryBlobStore("https://blobs.test"),
		Remote:    remote,
		Cache:     cache.NewMemoryCache(&cache.Config{TTL: time.Minute, MaxKeys: 100}, logger),
		EventBus:  events.NewInMemoryEventBus(nil, logger),
	}
	sc, err := NewServiceCollection(infra, testConfig(), logger)
	require.NoError(t, err)
	require.NoError(t, infra.EventBus.Start(ctx))

	health := sc.HealthCheck(ctx)
	assert.Equal(t, "healthy", health.Status)
	assert.Contains(t, health.Dependencies, "cache")
	assert.Contains(t, health.Dependencies, "event_bus")

	require.NoError(t, infra.EventBus.PublishAsync(ctx, events.NewActivityValidatedEvent("m1", models.Activity{Type: "event"})))
	require.NoError(t, sc.Shutdown(ctx))

	has, err := sc.Grants.HasBadge(ctx, "m1", "firstEvent")
	require.NoError(t, err)
	assert.True(t, has)
	assert.Len(t, remote.callsTo(callableNotifyBadgeEarned), 1)

	assert.Equal(t, "unhealthy", sc.HealthCheck(ctx).Status, "stopped bus reports unhealthy")
}
