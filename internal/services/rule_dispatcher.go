package services

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"wannagonna/internal/events"
	"wannagonna/internal/geo"
	"wannagonna/internal/models"
	"wannagonna/internal/repositories"
	"wannagonna/internal/store"
)

// activityTypeBadges maps an activity type to its first-of-kind badge.
var activityTypeBadges = map[string]string{
	models.ActivityTypeOnline: "firstOnline",
	models.ActivityTypeLocal:  "firstLocal",
	models.ActivityTypeEvent:  "firstEvent",
}

type ruleDispatcher struct {
	grants         GrantService
	referrals      ReferralService
	orgs           repositories.OrganizationRepository
	logger         *zap.Logger
	profileBadgeID string
}

// NewRuleDispatcher creates the dispatcher. orgs may be nil, in which case
// only an activity's inline organization country is used.
func NewRuleDispatcher(
	grants GrantService,
	referrals ReferralService,
	orgs repositories.OrganizationRepository,
	logger *zap.Logger,
	profileBadgeID string,
) RuleDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if profileBadgeID == "" {
		profileBadgeID = "profileComplete"
	}
	return &ruleDispatcher{
		grants:         grants,
		referrals:      referrals,
		orgs:           orgs,
		logger:         logger,
		profileBadgeID: profileBadgeID,
	}
}

func (d *ruleDispatcher) ProfileCompleted(ctx context.Context, memberID string) ([]models.BadgeDetails, error) {
	granted, err := d.grants.GrantBadge(ctx, memberID, d.profileBadgeID)
	if err != nil {
		return nil, err
	}
	if granted == nil {
		return []models.BadgeDetails{}, nil
	}
	return []models.BadgeDetails{*granted}, nil
}

// ActivityValidated attempts the SDG, continent and activity-type grants in
// that order. A failing branch does not stop the others.
func (d *ruleDispatcher) ActivityValidated(ctx context.Context, memberID string, activity models.Activity) ([]models.BadgeDetails, error) {
	if err := models.IdentifierValidator("memberId", memberID); err != nil {
		return nil, NewValidationError(err.Message, err)
	}

	log := d.logger.With(zap.String("member_id", memberID), zap.String("activity_id", activity.ID))
	if issues := activity.Validate(); issues.HasErrors() {
		log.Debug("Activity has unusable attributes, affected rules are skipped", zap.Error(issues))
	}

	granted := []models.BadgeDetails{}
	var errs ErrorGroup

	attempt := func(rule, badgeID string) {
		details, err := d.grants.GrantBadge(ctx, memberID, badgeID)
		if err != nil {
			log.Warn("Activity rule failed",
				zap.String("rule", rule),
				zap.String("badge_id", badgeID),
				zap.Error(err),
			)
			errs.Add(err)
			return
		}
		if details != nil {
			granted = append(granted, *details)
		}
	}

	if n, ok := activity.SDG.SDGNumber(); ok {
		attempt("sdg", strconv.Itoa(n))
	}

	continent, err := d.continentFor(ctx, activity.Organization)
	switch {
	case err != nil:
		log.Warn("Activity rule failed", zap.String("rule", "continent"), zap.Error(err))
		errs.Add(err)
	case continent != "":
		attempt("continent", continent)
	}

	if badgeID, ok := activityTypeBadges[strings.ToLower(strings.TrimSpace(activity.Type))]; ok {
		attempt("type", badgeID)
	}

	if len(granted) == 0 && errs.HasErrors() {
		return nil, errs.ToServiceError()
	}
	return granted, nil
}

func (d *ruleDispatcher) ReferralSignup(ctx context.Context, code string) models.ReferralOutcome {
	return d.referrals.HandleSignup(ctx, code)
}

// continentFor resolves the continent badge of an organization. The inline
// country wins; otherwise the organization document is consulted. An unknown
// country yields an empty id.
func (d *ruleDispatcher) continentFor(ctx context.Context, org *models.OrganizationRef) (string, error) {
	if org == nil {
		return "", nil
	}

	country := strings.TrimSpace(org.Country)
	if country == "" && org.ID != "" && d.orgs != nil {
		if models.IdentifierValidator("organizationId", org.ID) != nil {
			return "", nil
		}
		c, err := d.orgs.Country(ctx, org.ID)
		if err != nil {
			if store.IsNotFound(err) {
				return "", nil
			}
			return "", MapStoreError(err, ErrTypeCatalogMiss, "Failed to load organization")
		}
		country = c
	}
	if country == "" {
		return "", nil
	}

	continent, ok := geo.ContinentForCountry(country)
	if !ok {
		d.logger.Debug("No continent for country", zap.String("country", country))
		return "", nil
	}
	return continent, nil
}

// ===============================
// EVENT SUBSCRIPTIONS
// ===============================

// Subscribe lets producers publish inbound domain events instead of calling
// the dispatcher directly.
func (d *ruleDispatcher) Subscribe(bus events.EventBus) error {
	subs := map[string]events.EventHandlerFunc{
		events.TypeProfileCompleted: {
			ID: "rules.profile_completed",
			Func: func(ctx context.Context, event events.Event) error {
				_, err := d.ProfileCompleted(ctx, event.GetMemberID())
				return err
			},
		},
		events.TypeActivityValidated: {
			ID: "rules.activity_validated",
			Func: func(ctx context.Context, event events.Event) error {
				e, ok := event.(*events.ActivityValidatedEvent)
				if !ok {
					return nil
				}
				_, err := d.ActivityValidated(ctx, e.MemberID, e.Activity)
				return err
			},
		},
		events.TypeReferralSignup: {
			ID: "rules.referral_signup",
			Func: func(ctx context.Context, event events.Event) error {
				e, ok := event.(*events.ReferralSignupEvent)
				if !ok {
					return nil
				}
				d.ReferralSignup(ctx, e.Code)
				return nil
			},
		},
	}

	for eventType, handler := range subs {
		if err := bus.Subscribe(eventType, handler); err != nil {
			return err
		}
	}
	return nil
}
