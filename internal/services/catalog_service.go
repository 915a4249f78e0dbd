package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"wannagonna/internal/cache"
	"wannagonna/internal/models"
	"wannagonna/internal/repositories"
	"wannagonna/internal/store"
)

// sdgSummaryBadgeID is presented after the numbered goals.
const sdgSummaryBadgeID = "sdg"

const catalogCachePrefix = "catalog:"

// CatalogConfig holds catalog cache settings
type CatalogConfig struct {
	TTL time.Duration
	// MaxProbes bounds concurrent category probes in FindBadgeByID.
	MaxProbes int
}

// DefaultCatalogConfig returns default catalog settings
func DefaultCatalogConfig() *CatalogConfig {
	return &CatalogConfig{
		TTL:       5 * time.Minute,
		MaxProbes: 8,
	}
}

type catalogService struct {
	repo   repositories.CatalogRepository
	cache  cache.Cache
	logger *zap.Logger
	config *CatalogConfig
}

// NewCatalogService creates the catalog service. A nil cache disables caching.
func NewCatalogService(repo repositories.CatalogRepository, c cache.Cache, logger *zap.Logger, config *CatalogConfig) CatalogService {
	if config == nil {
		config = DefaultCatalogConfig()
	}
	if config.MaxProbes <= 0 {
		config.MaxProbes = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &catalogService{repo: repo, cache: c, logger: logger, config: config}
}

// ===============================
// READS
// ===============================

func (s *catalogService) ListCategories(ctx context.Context) ([]*models.BadgeCategory, error) {
	key := catalogCachePrefix + "categories"
	var cached []*models.BadgeCategory
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, MapStoreError(err, ErrTypeCatalogMiss, "Failed to list badge categories")
	}
	SortCategories(categories)

	s.cacheSet(ctx, key, categories)
	return categories, nil
}

func (s *catalogService) ListBadgesInCategory(ctx context.Context, categoryID string) ([]*models.Badge, error) {
	if err := models.IdentifierValidator("categoryId", categoryID); err != nil {
		return nil, NewValidationError(err.Message, err)
	}

	key := catalogCachePrefix + "badges:" + categoryID
	var cached []*models.Badge
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	badges, err := s.repo.ListBadges(ctx, categoryID)
	if err != nil {
		return nil, MapStoreError(err, ErrTypeCatalogMiss, "Failed to list badges")
	}
	SortBadges(badges)

	s.cacheSet(ctx, key, badges)
	return badges, nil
}

func (s *catalogService) GetBadge(ctx context.Context, categoryID, badgeID string) (*models.Badge, error) {
	if err := models.IdentifierValidator("categoryId", categoryID); err != nil {
		return nil, NewValidationError(err.Message, err)
	}
	if err := models.IdentifierValidator("badgeId", badgeID); err != nil {
		return nil, NewValidationError(err.Message, err)
	}

	badge, err := s.repo.GetBadge(ctx, categoryID, badgeID)
	if err != nil {
		return nil, MapStoreError(err, ErrTypeCatalogMiss, fmt.Sprintf("Badge %s/%s not found", categoryID, badgeID))
	}
	return badge, nil
}

// FindBadgeByID probes every category concurrently. When an id exists in
// more than one category the hit from the earliest category in ListCategories
// order wins.
func (s *catalogService) FindBadgeByID(ctx context.Context, badgeID string) (*models.Badge, error) {
	if err := models.IdentifierValidator("badgeId", badgeID); err != nil {
		return nil, NewValidationError(err.Message, err)
	}

	key := catalogCachePrefix + "badge:" + badgeID
	var cached models.Badge
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	categories, err := s.ListCategories(ctx)
	if err != nil {
		return nil, err
	}

	hits := make([]*models.Badge, len(categories))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxProbes)
	for i, category := range categories {
		i, category := i, category
		g.Go(func() error {
			badge, err := s.repo.GetBadge(gctx, category.ID, badgeID)
			if err != nil {
				if store.IsNotFound(err) {
					return nil
				}
				return err
			}
			hits[i] = badge
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, MapStoreError(err, ErrTypeCatalogMiss, "Failed to look up badge")
	}

	var found *models.Badge
	for i, hit := range hits {
		if hit == nil {
			continue
		}
		if found != nil {
			s.logger.Warn("Badge id defined in more than one category",
				zap.String("badge_id", badgeID),
				zap.String("used", found.CategoryID),
				zap.String("ignored", categories[i].ID),
			)
			continue
		}
		found = hit
	}
	if found == nil {
		return nil, NewCatalogMissError(fmt.Sprintf("Badge %s not found", badgeID)).WithDetail("badge_id", badgeID)
	}

	s.cacheSet(ctx, key, found)
	return found, nil
}

func (s *catalogService) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.DeletePattern(ctx, catalogCachePrefix+"*")
}

// ===============================
// ORDERING
// ===============================

// SortCategories orders categories with an explicit order first (ascending),
// then by id.
func SortCategories(categories []*models.BadgeCategory) {
	slices.SortStableFunc(categories, func(a, b *models.BadgeCategory) int {
		switch {
		case a.Order != nil && b.Order != nil:
			if *a.Order != *b.Order {
				return *a.Order - *b.Order
			}
		case a.Order != nil:
			return -1
		case b.Order != nil:
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// SortBadges orders numeric ids numerically, then other ids lexically, with
// the sdg summary badge last.
func SortBadges(badges []*models.Badge) {
	slices.SortStableFunc(badges, func(a, b *models.Badge) int {
		return compareBadgeIDs(a.ID, b.ID)
	})
}

func compareBadgeIDs(a, b string) int {
	if a == b {
		return 0
	}
	if a == sdgSummaryBadgeID {
		return 1
	}
	if b == sdgSummaryBadgeID {
		return -1
	}
	na, aNum := parseBadgeNumber(a)
	nb, bNum := parseBadgeNumber(b)
	switch {
	case aNum && bNum:
		if na != nb {
			if na < nb {
				return -1
			}
			return 1
		}
	case aNum:
		return -1
	case bNum:
		return 1
	}
	return strings.Compare(a, b)
}

func parseBadgeNumber(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	return n, err == nil
}

// ===============================
// CACHE HELPERS
// ===============================

func (s *catalogService) cacheGet(ctx context.Context, key string, v interface{}) bool {
	if s.cache == nil || s.config.TTL <= 0 {
		return false
	}
	return cache.GetJSON(ctx, s.cache, key, v)
}

// cacheSet stores v and logs failures; catalog reads never fail on the cache.
func (s *catalogService) cacheSet(ctx context.Context, key string, v interface{}) {
	if s.cache == nil || s.config.TTL <= 0 {
		return
	}
	if err := cache.SetJSON(ctx, s.cache, key, v, s.config.TTL); err != nil {
		s.logger.Debug("Catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
}
