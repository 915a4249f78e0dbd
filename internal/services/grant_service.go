package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wannagonna/internal/events"
	"wannagonna/internal/metrics"
	"wannagonna/internal/models"
	"wannagonna/internal/repositories"
	"wannagonna/internal/store"
)

type grantService struct {
	catalog CatalogService
	members repositories.MemberRepository
	ledger  LedgerService
	bus     events.EventBus
	logger  *zap.Logger
	now     func() time.Time
}

// NewGrantService creates the grant service. A nil bus disables outcome
// events.
func NewGrantService(
	catalog CatalogService,
	members repositories.MemberRepository,
	ledger LedgerService,
	bus events.EventBus,
	logger *zap.Logger,
) GrantService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &grantService{
		catalog: catalog,
		members: members,
		ledger:  ledger,
		bus:     bus,
		logger:  logger,
		now:     time.Now,
	}
}

// ===============================
// GRANT / REVOKE
// ===============================

func (s *grantService) GrantBadge(ctx context.Context, memberID, badgeID string) (*models.BadgeDetails, error) {
	if err := validateMemberBadge(memberID, badgeID); err != nil {
		return nil, err
	}

	badge, err := s.catalog.FindBadgeByID(ctx, badgeID)
	if err != nil {
		if IsErrorType(err, ErrTypeCatalogMiss) {
			s.logger.Debug("Grant skipped, badge not in catalog", zap.String("badge_id", badgeID))
			metrics.RecordGrant("miss")
			return nil, nil
		}
		metrics.RecordGrant("error")
		return nil, err
	}

	earned := models.EarnedBadge{ID: badge.ID, EarnedAt: s.now().UTC()}
	applied, err := s.members.AppendBadge(ctx, memberID, earned, badge.XP)
	if err != nil {
		if store.IsNotFound(err) {
			s.logger.Debug("Grant skipped, member not found", zap.String("member_id", memberID))
			metrics.RecordGrant("miss")
			return nil, nil
		}
		metrics.RecordGrant("error")
		return nil, MapStoreError(err, ErrTypeMemberMiss, "Failed to grant badge")
	}
	if !applied {
		metrics.RecordGrant("noop")
		return nil, nil
	}

	metrics.RecordGrant("granted")
	metrics.RecordXP(string(models.XPTypeBadge), badge.XP)

	// The counter is already committed; a lost ledger entry is not rolled back.
	if err := s.ledger.Append(ctx, memberID, "Badge Earned: "+badge.Title, badge.XP, models.XPTypeBadge); err != nil {
		s.logger.Error("XP history append failed after grant",
			zap.String("member_id", memberID),
			zap.String("badge_id", badge.ID),
			zap.Error(err),
		)
	}

	s.publish(ctx, events.NewBadgeEarnedEvent(memberID, badge.ID, badge.Title, badge.XP))

	s.logger.Info("Badge granted",
		zap.String("member_id", memberID),
		zap.String("badge_id", badge.ID),
		zap.Int64("xp", badge.XP),
	)

	details := badge.Details()
	return &details, nil
}

func (s *grantService) RevokeBadge(ctx context.Context, memberID, badgeID string) (*models.BadgeDetails, error) {
	if err := validateMemberBadge(memberID, badgeID); err != nil {
		return nil, err
	}

	// A badge retired from the catalog is still removable; it debits nothing
	// and is reported by id only.
	badge, err := s.catalog.FindBadgeByID(ctx, badgeID)
	if err != nil {
		if !IsErrorType(err, ErrTypeCatalogMiss) {
			metrics.RecordRevoke("error")
			return nil, err
		}
		badge = &models.Badge{ID: badgeID}
	}

	removed, err := s.members.RemoveBadge(ctx, memberID, badge.ID, badge.XP)
	if err != nil {
		if store.IsNotFound(err) {
			metrics.RecordRevoke("miss")
			return nil, nil
		}
		metrics.RecordRevoke("error")
		return nil, MapStoreError(err, ErrTypeMemberMiss, "Failed to revoke badge")
	}
	if !removed {
		metrics.RecordRevoke("noop")
		return nil, nil
	}

	metrics.RecordRevoke("revoked")
	s.logger.Info("Badge revoked",
		zap.String("member_id", memberID),
		zap.String("badge_id", badge.ID),
		zap.Int64("xp", badge.XP),
	)

	details := badge.Details()
	return &details, nil
}

// ===============================
// READS
// ===============================

func (s *grantService) HasBadge(ctx context.Context, memberID, badgeID string) (bool, error) {
	if err := validateMemberBadge(memberID, badgeID); err != nil {
		return false, err
	}
	member, err := s.members.Get(ctx, memberID)
	if err != nil {
		if store.IsNotFound(err) {
			return false, nil
		}
		return false, MapStoreError(err, ErrTypeMemberMiss, "Failed to load member")
	}
	for _, b := range member.Badges {
		if b.ID == badgeID {
			return true, nil
		}
	}
	return false, nil
}

// ListEarned returns the earned set newest first. Records whose badge has
// left the catalog are returned with their id only.
func (s *grantService) ListEarned(ctx context.Context, memberID string) ([]*models.EarnedBadgeWithDetails, error) {
	if err := models.IdentifierValidator("memberId", memberID); err != nil {
		return nil, NewValidationError(err.Message, err)
	}
	member, err := s.members.Get(ctx, memberID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, NewMemberMissError(memberID)
		}
		return nil, MapStoreError(err, ErrTypeMemberMiss, "Failed to load member")
	}

	out := make([]*models.EarnedBadgeWithDetails, 0, len(member.Badges))
	for _, earned := range member.Badges {
		item := &models.EarnedBadgeWithDetails{ID: earned.ID, EarnedAt: earned.EarnedAt}
		badge, err := s.catalog.FindBadgeByID(ctx, earned.ID)
		switch {
		case err == nil:
			item.CategoryID = badge.CategoryID
			item.Title = badge.Title
			item.Description = badge.Description
			item.XP = badge.XP
		case IsErrorType(err, ErrTypeCatalogMiss):
			s.logger.Debug("Earned badge missing from catalog",
				zap.String("member_id", memberID),
				zap.String("badge_id", earned.ID),
			)
		default:
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// ===============================
// XP
// ===============================

// AwardXP credits points without a badge. It reports false when the member
// does not exist.
func (s *grantService) AwardXP(ctx context.Context, memberID string, req *models.AwardXPRequest) (bool, error) {
	if req == nil {
		return false, NewValidationError("XP award is required", nil)
	}
	verrs := req.Validate()
	if err := models.IdentifierValidator("memberId", memberID); err != nil {
		verrs = append(verrs, *err)
	}
	if verrs.HasErrors() {
		return false, NewFieldValidationError(verrs)
	}

	xpType := models.ParseXPType(req.Type)
	if err := s.members.AddXP(ctx, memberID, req.Points); err != nil {
		if store.IsNotFound(err) {
			s.logger.Debug("XP award skipped, member not found", zap.String("member_id", memberID))
			return false, nil
		}
		return false, MapStoreError(err, ErrTypeMemberMiss, "Failed to award XP")
	}
	metrics.RecordXP(string(xpType), req.Points)

	if err := s.ledger.Append(ctx, memberID, req.Title, req.Points, xpType); err != nil {
		s.logger.Error("XP history append failed after award",
			zap.String("member_id", memberID),
			zap.Int64("points", req.Points),
			zap.Error(err),
		)
	}

	s.logger.Info("XP awarded",
		zap.String("member_id", memberID),
		zap.Int64("points", req.Points),
		zap.String("type", string(xpType)),
	)
	return true, nil
}

func (s *grantService) publish(ctx context.Context, event events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishAsync(ctx, event); err != nil {
		metrics.RecordNotification(event.GetEventType(), "dropped")
		s.logger.Warn("Outcome event dropped",
			zap.String("event_type", event.GetEventType()),
			zap.String("member_id", event.GetMemberID()),
			zap.Error(err),
		)
	}
}

func validateMemberBadge(memberID, badgeID string) error {
	var verrs models.ValidationErrors
	if err := models.IdentifierValidator("memberId", memberID); err != nil {
		verrs = append(verrs, *err)
	}
	if err := models.IdentifierValidator("badgeId", badgeID); err != nil {
		verrs = append(verrs, *err)
	}
	if verrs.HasErrors() {
		return NewFieldValidationError(verrs)
	}
	return nil
}

