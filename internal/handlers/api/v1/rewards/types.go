package rewards

import "wannagonna/internal/models"

// BadgeChangeResponse reports a grant or revoke. Badge is nil when nothing
// changed.
type BadgeChangeResponse struct {
	MemberID string               `json:"memberId"`
	BadgeID  string               `json:"badgeId"`
	Changed  bool                 `json:"changed"`
	Badge    *models.BadgeDetails `json:"badge"`
}

// AwardXPResponse reports whether XP was credited.
type AwardXPResponse struct {
	MemberID string `json:"memberId"`
	Awarded  bool   `json:"awarded"`
	Points   int64  `json:"points"`
}

// ImageUploadResponse carries the URL of freshly stored artwork.
type ImageUploadResponse struct {
	BadgeID    string `json:"badgeId"`
	CategoryID string `json:"categoryId"`
	URL        string `json:"url"`
}
