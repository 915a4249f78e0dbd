package services

import (
	"context"

	"go.uber.org/zap"

	"wannagonna/internal/events"
	"wannagonna/internal/metrics"
	"wannagonna/internal/store"
)

// Remote callables that deliver reward notifications.
const (
	callableNotifyBadgeEarned    = "notifyBadgeEarned"
	callableNotifyReferralReward = "notifyReferralReward"
)

type badgeEarnedPayload struct {
	UserID     string `json:"userId"`
	BadgeID    string `json:"badgeId"`
	BadgeTitle string `json:"badgeTitle"`
	BadgeXP    int64  `json:"badgeXP"`
}

type referralRewardPayload struct {
	ReferrerID   string `json:"referrerId"`
	Mode         string `json:"mode"`
	BadgeXP      int64  `json:"badgeXP"`
	ReferralCode string `json:"referralCode"`
}

type notificationService struct {
	remote  store.RemoteCaller
	logger  *zap.Logger
	enabled bool
}

// NewNotificationService creates the notification hook. When disabled, or
// when remote is nil, notifications are dropped after logging.
func NewNotificationService(remote store.RemoteCaller, logger *zap.Logger, enabled bool) NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &notificationService{remote: remote, logger: logger, enabled: enabled && remote != nil}
}

func (s *notificationService) NotifyBadgeEarned(ctx context.Context, e *events.BadgeEarnedEvent) error {
	return s.call(ctx, callableNotifyBadgeEarned, badgeEarnedPayload{
		UserID:     e.MemberID,
		BadgeID:    e.BadgeID,
		BadgeTitle: e.BadgeTitle,
		BadgeXP:    e.BadgeXP,
	})
}

func (s *notificationService) NotifyReferralReward(ctx context.Context, e *events.ReferralRewardedEvent) error {
	return s.call(ctx, callableNotifyReferralReward, referralRewardPayload{
		ReferrerID:   e.MemberID,
		Mode:         e.Mode,
		BadgeXP:      e.BadgeXP,
		ReferralCode: e.ReferralCode,
	})
}

// Subscribe registers the hook for outcome events. Handlers log failures and
// never report them to the bus.
func (s *notificationService) Subscribe(bus events.EventBus) error {
	if err := bus.Subscribe(events.TypeBadgeEarned, events.EventHandlerFunc{
		ID: "notifications.badge_earned",
		Func: func(ctx context.Context, event events.Event) error {
			e, ok := event.(*events.BadgeEarnedEvent)
			if !ok {
				return nil
			}
			_ = s.NotifyBadgeEarned(ctx, e)
			return nil
		},
	}); err != nil {
		return err
	}

	return bus.Subscribe(events.TypeReferralRewarded, events.EventHandlerFunc{
		ID: "notifications.referral_rewarded",
		Func: func(ctx context.Context, event events.Event) error {
			e, ok := event.(*events.ReferralRewardedEvent)
			if !ok {
				return nil
			}
			_ = s.NotifyReferralReward(ctx, e)
			return nil
		},
	})
}

func (s *notificationService) call(ctx context.Context, callable string, payload interface{}) error {
	if !s.enabled {
		metrics.RecordNotification(callable, "disabled")
		s.logger.Debug("Notification skipped", zap.String("callable", callable))
		return nil
	}

	if err := s.remote.Call(ctx, callable, payload, nil); err != nil {
		metrics.RecordNotification(callable, "failed")
		svcErr := NewNotificationFailureError(callable, err)
		s.logger.Warn("Notification failed",
			zap.String("callable", callable),
			zap.Error(svcErr),
		)
		return svcErr
	}

	metrics.RecordNotification(callable, "sent")
	return nil
}
