package repositories

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"wannagonna/internal/models"
	"wannagonna/internal/store"
)

type catalogRepository struct {
	*BaseRepository
}

// NewCatalogRepository creates a catalog repository over the document store.
func NewCatalogRepository(ds store.DocumentStore, logger *zap.Logger) CatalogRepository {
	return &catalogRepository{BaseRepository: NewBaseRepository(ds, logger)}
}

func (r *catalogRepository) ListCategories(ctx context.Context) ([]*models.BadgeCategory, error) {
	snaps, err := r.listDocs(ctx, badgesCollection)
	if err != nil {
		return nil, fmt.Errorf("list badge categories: %w", err)
	}

	categories := make([]*models.BadgeCategory, 0, len(snaps))
	for _, snap := range snaps {
		categories = append(categories, categoryFromDoc(snap.ID, snap.Data))
	}
	return categories, nil
}

func (r *catalogRepository) ListBadges(ctx context.Context, categoryID string) ([]*models.Badge, error) {
	snaps, err := r.listDocs(ctx, badgesInCategoryPath(categoryID))
	if err != nil {
		return nil, fmt.Errorf("list badges of %s: %w", categoryID, err)
	}

	badges := make([]*models.Badge, 0, len(snaps))
	for _, snap := range snaps {
		badges = append(badges, badgeFromDoc(categoryID, snap.ID, snap.Data))
	}
	return badges, nil
}

func (r *catalogRepository) GetBadge(ctx context.Context, categoryID, badgeID string) (*models.Badge, error) {
	doc, err := r.getDoc(ctx, badgePath(categoryID, badgeID))
	if err != nil {
		return nil, err
	}
	return badgeFromDoc(categoryID, badgeID, doc), nil
}

func categoryFromDoc(id string, doc store.Document) *models.BadgeCategory {
	c := &models.BadgeCategory{
		ID:          id,
		Title:       doc.String("title"),
		Description: doc.String("description"),
	}
	if n, ok := store.ToInt64(doc["order"]); ok {
		order := int(n)
		c.Order = &order
	}
	return c
}

func badgeFromDoc(categoryID, id string, doc store.Document) *models.Badge {
	xp := doc.Int64("xp")
	if xp < 0 {
		xp = 0
	}
	return &models.Badge{
		ID:          id,
		CategoryID:  categoryID,
		Title:       doc.String("title"),
		Description: doc.String("description"),
		XP:          xp,
	}
}
