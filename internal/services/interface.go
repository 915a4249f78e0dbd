// file: internal/services/interface.go
package services

import (
	"context"

	"wannagonna/internal/events"
	"wannagonna/internal/models"
)

// ===============================
// CORE SERVICE INTERFACES
// ===============================

// CatalogService is a read-through view of badge categories and badges.
type CatalogService interface {
	ListCategories(ctx context.Context) ([]*models.BadgeCategory, error)
	ListBadgesInCategory(ctx context.Context, categoryID string) ([]*models.Badge, error)

	// GetBadge and FindBadgeByID fail with CATALOG_MISS for unknown ids.
	GetBadge(ctx context.Context, categoryID, badgeID string) (*models.Badge, error)
	FindBadgeByID(ctx context.Context, badgeID string) (*models.Badge, error)

	// Invalidate drops every cached catalog read.
	Invalidate(ctx context.Context) error
}

// ImageService resolves badge artwork URLs.
type ImageService interface {
	// ResolveImage returns nil when the badge has no artwork.
	ResolveImage(ctx context.Context, badgeID, categoryID string) *string
	ResolveImages(ctx context.Context, refs []models.BadgeRef, concurrency int) map[string]*string
	Upload(ctx context.Context, categoryID, badgeID, ext string, data []byte) (string, error)
}

// LedgerService is the append-only XP history.
type LedgerService interface {
	Append(ctx context.Context, memberID, title string, points int64, xpType models.XPType) error
	List(ctx context.Context, memberID string) ([]*models.XPHistoryEntry, error)
}

// GrantService mutates a member's earned set and XP counter.
type GrantService interface {
	// GrantBadge returns nil details without error when the badge or member
	// is unknown or the badge is already earned.
	GrantBadge(ctx context.Context, memberID, badgeID string) (*models.BadgeDetails, error)
	RevokeBadge(ctx context.Context, memberID, badgeID string) (*models.BadgeDetails, error)
	HasBadge(ctx context.Context, memberID, badgeID string) (bool, error)
	ListEarned(ctx context.Context, memberID string) ([]*models.EarnedBadgeWithDetails, error)
	AwardXP(ctx context.Context, memberID string, req *models.AwardXPRequest) (bool, error)
}

// RuleDispatcher maps domain events to grant attempts.
type RuleDispatcher interface {
	ProfileCompleted(ctx context.Context, memberID string) ([]models.BadgeDetails, error)
	ActivityValidated(ctx context.Context, memberID string, activity models.Activity) ([]models.BadgeDetails, error)
	ReferralSignup(ctx context.Context, code string) models.ReferralOutcome

	// Subscribe registers the dispatcher for inbound domain events.
	Subscribe(bus events.EventBus) error
}

// ReferralService rewards the referrer behind a signup code.
type ReferralService interface {
	HandleSignup(ctx context.Context, code string) models.ReferralOutcome
}

// NotificationService delivers reward notifications to the remote callables.
type NotificationService interface {
	NotifyBadgeEarned(ctx context.Context, e *events.BadgeEarnedEvent) error
	NotifyReferralReward(ctx context.Context, e *events.ReferralRewardedEvent) error
	Subscribe(bus events.EventBus) error
}

// HealthChecker is implemented by components that report readiness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
	ServiceName() string
}
