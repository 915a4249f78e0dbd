package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"wannagonna/internal/events"
	"wannagonna/internal/metrics"
	"wannagonna/internal/models"
	"wannagonna/internal/store"
)

// Remote callable that resolves a referral code to its owner.
const callableFindUserByCode = "findUserByCode"

const referralXPTitle = "Referred member"

type findUserByCodeRequest struct {
	Code string `json:"code"`
}

type findUserByCodeResponse struct {
	User *struct {
		ID string `json:"id"`
	} `json:"user"`
}

type referralService struct {
	remote  store.RemoteCaller
	grants  GrantService
	catalog CatalogService
	bus     events.EventBus
	logger  *zap.Logger
	badgeID string
}

// NewReferralService creates the referral flow. badgeID names the badge a
// referrer earns on their first referral.
func NewReferralService(
	remote store.RemoteCaller,
	grants GrantService,
	catalog CatalogService,
	bus events.EventBus,
	logger *zap.Logger,
	badgeID string,
) ReferralService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if badgeID == "" {
		badgeID = "buddyBuilder"
	}
	return &referralService{
		remote:  remote,
		grants:  grants,
		catalog: catalog,
		bus:     bus,
		logger:  logger,
		badgeID: badgeID,
	}
}

// HandleSignup rewards the owner of code. Every failure ends the flow with
// ReferralOutcomeNone; signup never sees an error.
func (s *referralService) HandleSignup(ctx context.Context, code string) models.ReferralOutcome {
	outcome := s.handle(ctx, code)
	metrics.RecordReferral(string(outcome))
	return outcome
}

func (s *referralService) handle(ctx context.Context, code string) models.ReferralOutcome {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return models.ReferralOutcomeNone
	}
	if !models.IsReferralCode(code) {
		s.logger.Info("Ignoring malformed referral code", zap.String("code", code))
		return models.ReferralOutcomeNone
	}

	referrerID, err := s.findReferrer(ctx, code)
	if err != nil {
		s.logger.Warn("Referral lookup failed",
			zap.String("code", code),
			zap.Error(NewReferralLookupError(err)),
		)
		return models.ReferralOutcomeNone
	}
	if referrerID == "" {
		s.logger.Info("Referral code has no owner", zap.String("code", code))
		return models.ReferralOutcomeNone
	}

	log := s.logger.With(zap.String("referrer_id", referrerID), zap.String("code", code))

	has, err := s.grants.HasBadge(ctx, referrerID, s.badgeID)
	if err != nil {
		log.Warn("Referral badge check failed", zap.Error(err))
		return models.ReferralOutcomeNone
	}

	if !has {
		granted, err := s.grants.GrantBadge(ctx, referrerID, s.badgeID)
		if err != nil {
			log.Warn("Referral badge grant failed", zap.Error(err))
			return models.ReferralOutcomeNone
		}
		if granted != nil {
			s.publish(ctx, log, events.NewReferralRewardedEvent(referrerID, string(models.ReferralOutcomeFirst), granted.XP, code))
			log.Info("First referral rewarded with badge", zap.Int64("xp", granted.XP))
			return models.ReferralOutcomeFirst
		}
		// A concurrent referral won the grant; reward this one as a repeat.
		log.Debug("Referral badge grant was a no-op, awarding XP instead")
	}

	return s.rewardRepeat(ctx, log, referrerID, code)
}

func (s *referralService) rewardRepeat(ctx context.Context, log *zap.Logger, referrerID, code string) models.ReferralOutcome {
	badge, err := s.catalog.FindBadgeByID(ctx, s.badgeID)
	if err != nil {
		log.Warn("Referral badge unavailable in catalog", zap.String("badge_id", s.badgeID), zap.Error(err))
		return models.ReferralOutcomeNone
	}
	if badge.XP <= 0 {
		log.Warn("Referral badge carries no XP, nothing to award", zap.String("badge_id", s.badgeID))
		return models.ReferralOutcomeNone
	}

	awarded, err := s.grants.AwardXP(ctx, referrerID, &models.AwardXPRequest{
		Points: badge.XP,
		Title:  referralXPTitle,
		Type:   string(models.XPTypeReferral),
	})
	if err != nil {
		log.Warn("Referral XP award failed", zap.Error(err))
		return models.ReferralOutcomeNone
	}
	if !awarded {
		log.Info("Referrer no longer exists")
		return models.ReferralOutcomeNone
	}

	s.publish(ctx, log, events.NewReferralRewardedEvent(referrerID, string(models.ReferralOutcomeXP), badge.XP, code))
	log.Info("Repeat referral rewarded with XP", zap.Int64("xp", badge.XP))
	return models.ReferralOutcomeXP
}

func (s *referralService) findReferrer(ctx context.Context, code string) (string, error) {
	if s.remote == nil {
		return "", nil
	}
	var resp findUserByCodeResponse
	if err := s.remote.Call(ctx, callableFindUserByCode, findUserByCodeRequest{Code: code}, &resp); err != nil {
		return "", err
	}
	if resp.User == nil {
		return "", nil
	}
	return resp.User.ID, nil
}

func (s *referralService) publish(ctx context.Context, log *zap.Logger, event events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishAsync(ctx, event); err != nil {
		metrics.RecordNotification(event.GetEventType(), "dropped")
		log.Warn("Referral event dropped", zap.Error(err))
	}
}
