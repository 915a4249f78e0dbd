package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wannagonna/internal/models"
	"wannagonna/internal/store"
)

func TestGrantBadgeIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.put(t, "members/m1", store.Document{"xp": 5, "name": "Ada"})

	granted, err := env.grants.GrantBadge(ctx, "m1", "7")
	require.NoError(t, err)
	require.NotNil(t, granted)
	assert.Equal(t, models.BadgeDetails{ID: "7", Title: "Affordable and Clean Energy", XP: 50}, *granted)

	doc := env.member(t, "m1")
	assert.Equal(t, int64(55), doc.Int64("xp"))
	assert.Len(t, doc.Array("badges"), 1)
	assert.Equal(t, "Ada", doc.String("name"))

	again, err := env.grants.GrantBadge(ctx, "m1", "7")
	require.NoError(t, err)
	assert.Nil(t, again)

	doc = env.member(t, "m1")
	assert.Equal(t, int64(55), doc.Int64("xp"), "repeat grant must not credit XP")
	assert.Len(t, doc.Array("badges"), 1)

	entries := env.history(t, "m1")
	require.Len(t, entries, 1)
	assert.Equal(t, "Badge Earned: Affordable and Clean Energy", entries[0].Title)
	assert.Equal(t, int64(50), entries[0].Points)
	assert.Equal(t, models.XPTypeBadge, entries[0].Type)
}

func TestGrantBadgeZeroXPStillWritesLedger(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.put(t, "members/m1", store.Document{"xp": 5})

	granted, err := env.grants.GrantBadge(ctx, "m1", "firstEvent")
	require.NoError(t, err)
	require.NotNil(t, granted)

	assert.Equal(t, int64(5), env.member(t, "m1").Int64("xp"))
	entries := env.history(t, "m1")
	require.Len(t, entries, 1)
	assert.Equal(t, int64(0), entries[0].Points)
	assert.Equal(t, models.XPTypeBadge, entries[0].Type)
}

func TestGrantBadgeMisses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.put(t, "members/m1", store.Document{"xp": 0})

	granted, err := env.grants.GrantBadge(ctx, "m1", "unknownBadge")
	require.NoError(t, err)
	assert.Nil(t, granted)

	granted, err = env.grants.GrantBadge(ctx, "ghost", "7")
	require.NoError(t, err)
	assert.Nil(t, granted)

	_, err = env.grants.GrantBadge(ctx, "", "7")
	assert.True(t, IsValidationError(err))

	assert.Empty(t, env.history(t, "m1"))
	assert.Empty(t, env.history(t, "ghost"))
}

func TestGrantSucceedsWhenNotificationFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.put(t, "members/m1", store.Document{"xp": 0})
	env.remote.fail[callableNotifyBadgeEarned] = errRemoteDown

	granted, err := env.grants.GrantBadge(ctx, "m1", "africa")
	require.NoError(t, err)
	require.NotNil(t, granted)
	assert.Equal(t, "africa", granted.ID)

	env.drain(t)

	doc := env.member(t, "m1")
	assert.Equal(t, int64(30), doc.Int64("xp"))
	assert.Len(t, doc.Array("badges"), 1)
	assert.Len(t, env.history(t, "m1"), 1)

	calls := env.remote.callsTo(callableNotifyBadgeEarned)
	require.Len(t, calls, 1)
	assert.Equal(t, badgeEarnedPayload{UserID: "m1", BadgeID: "africa", BadgeTitle: "Africa", BadgeXP: 30}, calls[0])
}

func TestRevokeBadgeClampsXP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.put(t, "members/m1", store.Document{
		"xp": 10,
		"badges": []interface{}{
			map[string]interface{}{"id": "7", "earnedAt": time.Now().UTC()},
			map[string]interface{}{"id": "firstLocal", "earnedAt": time.Now().UTC()},
		},
	})

	revoked, err := env.grants.RevokeBadge(ctx, "m1", "7")
	require.NoError(t, err)
	require.NotNil(t, revoked)
	assert.Equal(t, int64(50), revoked.XP)

	doc := env.member(t, "m1")
	assert.Equal(t, int64(0), doc.Int64("xp"))
	assert.Len(t, doc.Array("badges"), 1)
	assert.Empty(t, env.history(t, "m1"), "revoke writes no ledger entry")

	revoked, err = env.grants.RevokeBadge(ctx, "m1", "7")
	require.NoError(t, err)
	assert.Nil(t, revoked)
}

func TestRevokeBadgeRetiredFromCatalog(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.put(t, "members/m1", store.Document{
		"xp": 40,
		"badges": []interface{}{
			map[string]interface{}{"id": "retired", "earnedAt": time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
	})

	has, err := env.grants.HasBadge(ctx, "m1", "retired")
	require.NoError(t, err)
	require.True(t, has)

	revoked, err := env.grants.RevokeBadge(ctx, "m1", "retired")
	require.NoError(t, err)
	require.NotNil(t, revoked)
	assert.Equal(t, models.BadgeDetails{ID: "retired"}, *revoked)

	doc := env.member(t, "m1")
	assert.Empty(t, doc.Array("badges"))
	assert.Equal(t, int64(40), doc.Int64("xp"), "an unknown badge debits nothing")

	revoked, err = env.grants.RevokeBadge(ctx, "m1", "retired")
	require.NoError(t, err)
	assert.Nil(t, revoked)

	revoked, err = env.grants.RevokeBadge(ctx, "ghost", "retired")
	require.NoError(t, err)
	assert.Nil(t, revoked)
}

func TestConcurrentGrantsCreditOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.put(t, "members/m1", store.Document{"xp": 0})

	const workers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			details, err := env.grants.GrantBadge(ctx, "m1", "7")
			assert.NoError(t, err)
			if details != nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, granted)
	doc := env.member(t, "m1")
	assert.Equal(t, int64(50), doc.Int64("xp"))
	assert.Len(t, doc.Array("badges"), 1)
	assert.Len(t, env.history(t, "m1"), 1)
}

func TestHasBadgeAndListEarned(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	env.put(t, "members/m1", store.Document{
		"xp": 0,
		"badges": []interface{}{
			map[string]interface{}{"id": "retired", "earnedAt": older.Add(time.Hour)},
			map[string]interface{}{"id": "1", "earnedAt": older},
			map[string]interface{}{"id": "europe", "earnedAt": older.Add(2 * time.Hour)},
		},
	})

	has, err := env.grants.HasBadge(ctx, "m1", "europe")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = env.grants.HasBadge(ctx, "m1", "africa")
	require.NoError(t, err)
	assert.False(t, has)

	has, err = env.grants.HasBadge(ctx, "ghost", "africa")
	require.NoError(t, err)
	assert.False(t, has)

	earned, err := env.grants.ListEarned(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, earned, 3)
	assert.Equal(t, "europe", earned[0].ID)
	assert.Equal(t, "continents", earned[0].CategoryID)
	assert.Equal(t, "retired", earned[1].ID)
	assert.Empty(t, earned[1].Title)
	assert.Equal(t, "1", earned[2].ID)
	assert.Equal(t, "No Poverty", earned[2].Title)

	_, err = env.grants.ListEarned(ctx, "ghost")
	assert.True(t, IsErrorType(err, ErrTypeMemberMiss))
}

func TestAwardXP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.put(t, "members/m1", store.Document{"xp": 10})

	_, err := env.grants.AwardXP(ctx, "m1", &models.AwardXPRequest{Points: 0, Title: "Nothing"})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Equal(t, int64(10), env.member(t, "m1").Int64("xp"))

	_, err = env.grants.AwardXP(ctx, "m1", &models.AwardXPRequest{Points: -5, Title: "Negative"})
	assert.True(t, IsValidationError(err))

	ok, err := env.grants.AwardXP(ctx, "m1", &models.AwardXPRequest{Points: 15, Title: "Beach cleanup", Type: "activity"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(25), env.member(t, "m1").Int64("xp"))

	entries := env.history(t, "m1")
	require.Len(t, entries, 1)
	assert.Equal(t, models.XPTypeActivity, entries[0].Type)
	assert.Equal(t, "Beach cleanup", entries[0].Title)

	ok, err = env.grants.AwardXP(ctx, "ghost", &models.AwardXPRequest{Points: 5, Title: "Lost"})
	require.NoError(t, err)
	assert.False(t, ok)
}
