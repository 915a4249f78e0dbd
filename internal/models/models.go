// file: internal/models/models.go
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ===============================
// CATALOG
// ===============================

// BadgeCategory groups badges, e.g. sdg, continents or activities.
type BadgeCategory struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Order       *int   `json:"order,omitempty"`
}

// Badge is a catalog-defined achievement. Ids are unique across categories.
type Badge struct {
	ID          string `json:"id"`
	CategoryID  string `json:"categoryId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	XP          int64  `json:"xp"`
}

// Details returns the public view of the badge.
func (b Badge) Details() BadgeDetails {
	return BadgeDetails{
		ID:          b.ID,
		Title:       b.Title,
		Description: b.Description,
		XP:          b.XP,
	}
}

// BadgeDetails is returned by grant and revoke.
type BadgeDetails struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	XP          int64  `json:"xp"`
}

// ===============================
// MEMBERS
// ===============================

// EarnedBadge is one record of a member's earned set.
type EarnedBadge struct {
	ID       string    `json:"id"`
	EarnedAt time.Time `json:"earnedAt"`
}

// Member is the rewards view of a member document.
type Member struct {
	ID     string        `json:"id"`
	XP     int64         `json:"xp"`
	Badges []EarnedBadge `json:"badges"`
}

// EarnedBadgeWithDetails joins an earned record with its catalog entry.
type EarnedBadgeWithDetails struct {
	ID          string    `json:"id"`
	CategoryID  string    `json:"categoryId,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	XP          int64     `json:"xp"`
	EarnedAt    time.Time `json:"earnedAt"`
}

// ===============================
// XP LEDGER
// ===============================

// XPType tags a ledger entry.
type XPType string

const (
	XPTypeBadge    XPType = "badge"
	XPTypeActivity XPType = "activity"
	XPTypeReferral XPType = "referral"
	XPTypeUnknown  XPType = "unknown"
)

// ParseXPType maps unrecognised tags to XPTypeUnknown.
func ParseXPType(s string) XPType {
	switch t := XPType(strings.ToLower(strings.TrimSpace(s))); t {
	case XPTypeBadge, XPTypeActivity, XPTypeReferral:
		return t
	}
	return XPTypeUnknown
}

// XPHistoryEntry is one append-only ledger record.
type XPHistoryEntry struct {
	ID        string    `json:"id,omitempty"`
	Title     string    `json:"title"`
	Points    int64     `json:"points"`
	Type      XPType    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// ===============================
// DOMAIN EVENTS PAYLOADS
// ===============================

// Activity types that map to a first-of-kind badge.
const (
	ActivityTypeOnline = "online"
	ActivityTypeLocal  = "local"
	ActivityTypeEvent  = "event"
)

// OrganizationRef points at the NPO that owns an activity.
type OrganizationRef struct {
	ID      string `json:"id,omitempty" validate:"omitempty,max=128"`
	Country string `json:"country,omitempty" validate:"omitempty,max=100"`
}

// Activity is the payload of an activity validation.
type Activity struct {
	ID           string           `json:"id,omitempty" validate:"omitempty,max=128"`
	Title        string           `json:"title,omitempty" validate:"omitempty,max=300"`
	SDG          FlexString       `json:"sdg,omitempty"`
	Type         string           `json:"type,omitempty" validate:"omitempty,max=32"`
	Organization *OrganizationRef `json:"organization,omitempty"`
}

// FlexString accepts either a JSON string or a JSON number.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*f = FlexString(n.String())
	return nil
}

// SDGNumber parses the goal number. It reports false unless the value is an
// integer in 1..17.
func (f FlexString) SDGNumber() (int, bool) {
	s := strings.TrimSpace(string(f))
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		fl, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || fl != float64(int(fl)) {
			return 0, false
		}
		n = int(fl)
	}
	if n < 1 || n > 17 {
		return 0, false
	}
	return n, true
}

// ReferralOutcome reports what the referral flow did.
type ReferralOutcome string

const (
	ReferralOutcomeNone  ReferralOutcome = "none"
	ReferralOutcomeFirst ReferralOutcome = "first"
	ReferralOutcomeXP    ReferralOutcome = "xp"
)

// ===============================
// REQUESTS / RESPONSES
// ===============================

// ProfileCompletedRequest delivers a profile completion event.
type ProfileCompletedRequest struct {
	MemberID string `json:"memberId" validate:"required,max=128"`
}

// ActivityValidatedRequest delivers an activity validation event.
type ActivityValidatedRequest struct {
	MemberID string   `json:"memberId" validate:"required,max=128"`
	Activity Activity `json:"activity"`
}

// ReferralSignupRequest delivers a referral code entered at signup. An empty
// code is accepted and has no effect.
type ReferralSignupRequest struct {
	Code string `json:"code" validate:"max=64"`
}

// AwardXPRequest awards XP without a badge.
type AwardXPRequest struct {
	Points int64  `json:"points" validate:"required,gt=0"`
	Title  string `json:"title" validate:"required,max=200"`
	Type   string `json:"type" validate:"omitempty,max=32"`
}

// BadgeRef identifies a badge within its category.
type BadgeRef struct {
	BadgeID    string `json:"badgeId" validate:"required,max=128"`
	CategoryID string `json:"categoryId" validate:"required,max=128"`
}

// ResolveImagesRequest asks for the artwork URLs of a batch of badges.
type ResolveImagesRequest struct {
	Items       []BadgeRef `json:"items" validate:"required,min=1,max=500,dive"`
	Concurrency int        `json:"concurrency" validate:"omitempty,min=1,max=50"`
}

// ResolveImagesResponse maps badge ids to URLs; null marks a badge without art.
type ResolveImagesResponse struct {
	URLs map[string]*string `json:"urls"`
}

// GrantedBadgesResponse lists the badges granted by an event.
type GrantedBadgesResponse struct {
	Granted []BadgeDetails `json:"granted"`
}

// ReferralSignupResponse reports the referral outcome.
type ReferralSignupResponse struct {
	Outcome ReferralOutcome `json:"outcome"`
}

// HasBadgeResponse answers a has-badge query.
type HasBadgeResponse struct {
	MemberID string `json:"memberId"`
	BadgeID  string `json:"badgeId"`
	HasBadge bool   `json:"hasBadge"`
}
