package repositories

import (
	"context"

	"go.uber.org/zap"

	"wannagonna/internal/store"
)

type organizationRepository struct {
	*BaseRepository
}

// NewOrganizationRepository creates an organization repository.
func NewOrganizationRepository(ds store.DocumentStore, logger *zap.Logger) OrganizationRepository {
	return &organizationRepository{BaseRepository: NewBaseRepository(ds, logger)}
}

// Country returns the organization's country field, "" when unset.
func (r *organizationRepository) Country(ctx context.Context, orgID string) (string, error) {
	doc, err := r.getDoc(ctx, organizationPath(orgID))
	if err != nil {
		return "", err
	}
	return doc.String("country"), nil
}
