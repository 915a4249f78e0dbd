// file: internal/repositories/interfaces.go
package repositories

import (
	"context"

	"wannagonna/internal/models"
)

// ===============================
// CORE REPOSITORY INTERFACES
// ===============================

// CatalogRepository reads badge categories and badges.
type CatalogRepository interface {
	ListCategories(ctx context.Context) ([]*models.BadgeCategory, error)
	ListBadges(ctx context.Context, categoryID string) ([]*models.Badge, error)
	GetBadge(ctx context.Context, categoryID, badgeID string) (*models.Badge, error)
}

// MemberRepository reads and mutates the rewards fields of member documents.
// Mutations that depend on the earned set run in a store transaction.
type MemberRepository interface {
	Get(ctx context.Context, memberID string) (*models.Member, error)
	ListIDs(ctx context.Context) ([]string, error)

	// AppendBadge adds the earned record and credits xp in one commit. It
	// reports false without writing when the badge is already earned.
	AppendBadge(ctx context.Context, memberID string, earned models.EarnedBadge, xp int64) (bool, error)

	// RemoveBadge deletes every record of badgeID and debits
	// min(xp, current XP). It reports false when nothing was earned.
	RemoveBadge(ctx context.Context, memberID, badgeID string, xp int64) (bool, error)

	// AddXP credits points to the XP counter.
	AddXP(ctx context.Context, memberID string, points int64) error

	// Dedupe keeps the earliest record of every badge id, removes the rest
	// and debits xpFor(id) per removed record, clamped at zero.
	Dedupe(ctx context.Context, memberID string, xpFor func(badgeID string) int64) (*DedupeResult, error)
}

// XPHistoryRepository is the append-only XP ledger.
type XPHistoryRepository interface {
	Append(ctx context.Context, memberID string, entry *models.XPHistoryEntry) (string, error)
	List(ctx context.Context, memberID string) ([]*models.XPHistoryEntry, error)
}

// OrganizationRepository resolves NPO attributes the rules need.
type OrganizationRepository interface {
	Country(ctx context.Context, orgID string) (string, error)
}

// DedupeResult reports what a reconciliation pass changed for one member.
type DedupeResult struct {
	Removed   []string `json:"removed"`
	XPDebited int64    `json:"xp_debited"`
}
