package repositories

import "wannagonna/internal/store"

// Document layout of the rewards data.
const (
	badgesCollection        = "badges"
	membersCollection       = "members"
	organizationsCollection = "organizations"
	badgeSubcollection      = "badges"
	xpHistorySubcollection  = "xpHistory"
)

func categoryPath(categoryID string) string {
	return store.Join(badgesCollection, categoryID)
}

func badgesInCategoryPath(categoryID string) string {
	return store.Join(badgesCollection, categoryID, badgeSubcollection)
}

func badgePath(categoryID, badgeID string) string {
	return store.Join(badgesCollection, categoryID, badgeSubcollection, badgeID)
}

func memberPath(memberID string) string {
	return store.Join(membersCollection, memberID)
}

func xpHistoryPath(memberID string) string {
	return store.Join(membersCollection, memberID, xpHistorySubcollection)
}

func organizationPath(orgID string) string {
	return store.Join(organizationsCollection, orgID)
}
