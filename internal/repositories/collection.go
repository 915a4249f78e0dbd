// file: internal/repositories/collection.go
package repositories

import (
	"fmt"

	"go.uber.org/zap"

	"wannagonna/internal/store"
)

// Collection holds all repository instances for dependency injection
type Collection struct {
	Catalog      CatalogRepository
	Member       MemberRepository
	XPHistory    XPHistoryRepository
	Organization OrganizationRepository
}

// NewCollection creates every repository over one document store.
func NewCollection(ds store.DocumentStore, logger *zap.Logger) (*Collection, error) {
	if ds == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	collection := &Collection{
		Catalog:      NewCatalogRepository(ds, logger),
		Member:       NewMemberRepository(ds, logger),
		XPHistory:    NewXPHistoryRepository(ds, logger),
		Organization: NewOrganizationRepository(ds, logger),
	}

	logger.Info("Repository collection initialized")
	return collection, nil
}
