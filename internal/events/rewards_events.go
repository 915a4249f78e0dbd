package events

import (
	"time"

	"github.com/gofrs/uuid"

	"wannagonna/internal/models"
)

// Event types published by and consumed by the rewards engine.
const (
	TypeBadgeEarned       = "badge.earned"
	TypeReferralRewarded  = "referral.rewarded"
	TypeProfileCompleted  = "member.profile_completed"
	TypeActivityValidated = "activity.validated"
	TypeReferralSignup    = "referral.signup"
)

// GenerateEventID returns a random event id.
func GenerateEventID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return "evt_" + time.Now().UTC().Format("20060102150405.000000000")
	}
	return id.String()
}

func newBase(eventType, memberID string) BaseEvent {
	return BaseEvent{
		EventID:   GenerateEventID(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		MemberID:  memberID,
	}
}

// ===============================
// OUTCOME EVENTS
// ===============================

// BadgeEarnedEvent is emitted after a grant commits.
type BadgeEarnedEvent struct {
	BaseEvent
	BadgeID    string `json:"badge_id"`
	BadgeTitle string `json:"badge_title"`
	BadgeXP    int64  `json:"badge_xp"`
}

// NewBadgeEarnedEvent creates a new BadgeEarnedEvent
func NewBadgeEarnedEvent(memberID, badgeID, title string, xp int64) *BadgeEarnedEvent {
	return &BadgeEarnedEvent{
		BaseEvent:  newBase(TypeBadgeEarned, memberID),
		BadgeID:    badgeID,
		BadgeTitle: title,
		BadgeXP:    xp,
	}
}

// ReferralRewardedEvent is emitted when a referrer was rewarded. Mode is
// "first" or "xp".
type ReferralRewardedEvent struct {
	BaseEvent
	Mode         string `json:"mode"`
	BadgeXP      int64  `json:"badge_xp"`
	ReferralCode string `json:"referral_code"`
}

// NewReferralRewardedEvent creates a new ReferralRewardedEvent
func NewReferralRewardedEvent(referrerID, mode string, xp int64, code string) *ReferralRewardedEvent {
	return &ReferralRewardedEvent{
		BaseEvent:    newBase(TypeReferralRewarded, referrerID),
		Mode:         mode,
		BadgeXP:      xp,
		ReferralCode: code,
	}
}

// ===============================
// INBOUND DOMAIN EVENTS
// ===============================

// ProfileCompletedEvent is published by the member surface.
type ProfileCompletedEvent struct {
	BaseEvent
}

// NewProfileCompletedEvent creates a new ProfileCompletedEvent
func NewProfileCompletedEvent(memberID string) *ProfileCompletedEvent {
	return &ProfileCompletedEvent{BaseEvent: newBase(TypeProfileCompleted, memberID)}
}

// ActivityValidatedEvent is published when an NPO validates participation.
type ActivityValidatedEvent struct {
	BaseEvent
	Activity models.Activity `json:"activity"`
}

// NewActivityValidatedEvent creates a new ActivityValidatedEvent
func NewActivityValidatedEvent(memberID string, activity models.Activity) *ActivityValidatedEvent {
	return &ActivityValidatedEvent{
		BaseEvent: newBase(TypeActivityValidated, memberID),
		Activity:  activity,
	}
}

// ReferralSignupEvent carries the code a new member entered at signup.
type ReferralSignupEvent struct {
	BaseEvent
	Code string `json:"code"`
}

// NewReferralSignupEvent creates a new ReferralSignupEvent
func NewReferralSignupEvent(memberID, code string) *ReferralSignupEvent {
	return &ReferralSignupEvent{
		BaseEvent: newBase(TypeReferralSignup, memberID),
		Code:      code,
	}
}
