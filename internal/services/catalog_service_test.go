package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wannagonna/internal/models"
	"wannagonna/internal/store"
)

func intPtr(n int) *int { return &n }

func TestSortBadges(t *testing.T) {
	badges := []*models.Badge{{ID: "sdg"}, {ID: "10"}, {ID: "beta"}, {ID: "2"}, {ID: "alpha"}, {ID: "1"}}
	SortBadges(badges)

	ids := make([]string, len(badges))
	for i, b := range badges {
		ids[i] = b.ID
	}
	assert.Equal(t, []string{"1", "2", "10", "alpha", "beta", "sdg"}, ids)
}

func TestSortCategories(t *testing.T) {
	cats := []*models.BadgeCategory{
		{ID: "zeta"},
		{ID: "sdg", Order: intPtr(2)},
		{ID: "alpha"},
		{ID: "continents", Order: intPtr(1)},
	}
	SortCategories(cats)

	ids := make([]string, len(cats))
	for i, c := range cats {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"continents", "sdg", "alpha", "zeta"}, ids)
}

func TestFindBadgeByID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	badge, err := env.catalog.FindBadgeByID(ctx, "firstLocal")
	require.NoError(t, err)
	assert.Equal(t, "activities", badge.CategoryID)
	assert.Equal(t, int64(20), badge.XP)

	_, err = env.catalog.FindBadgeByID(ctx, "missing")
	assert.True(t, IsErrorType(err, ErrTypeCatalogMiss))

	_, err = env.catalog.FindBadgeByID(ctx, "bad/id")
	assert.True(t, IsValidationError(err))
}

func TestFindBadgeByIDPrefersEarliestCategory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.put(t, "badges/activities/badges/7", store.Document{"title": "Duplicate", "xp": 1})

	badge, err := env.catalog.FindBadgeByID(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "sdg", badge.CategoryID)
	assert.Equal(t, "Affordable and Clean Energy", badge.Title)
}

func TestCatalogCacheInvalidate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	badges, err := env.catalog.ListBadgesInCategory(ctx, "sdg")
	require.NoError(t, err)
	require.Len(t, badges, 2)
	assert.Equal(t, "1", badges[0].ID)

	env.put(t, "badges/sdg/badges/sdg", store.Document{"title": "All goals", "xp": 100})

	cached, err := env.catalog.ListBadgesInCategory(ctx, "sdg")
	require.NoError(t, err)
	assert.Len(t, cached, 2)

	require.NoError(t, env.catalog.Invalidate(ctx))
	fresh, err := env.catalog.ListBadgesInCategory(ctx, "sdg")
	require.NoError(t, err)
	require.Len(t, fresh, 3)
	assert.Equal(t, "sdg", fresh[2].ID)

	cats, err := env.catalog.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 4)
	assert.Equal(t, "sdg", cats[0].ID)
}
