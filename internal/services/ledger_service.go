package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wannagonna/internal/models"
	"wannagonna/internal/repositories"
)

type ledgerService struct {
	repo   repositories.XPHistoryRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewLedgerService creates the XP ledger service.
func NewLedgerService(repo repositories.XPHistoryRepository, logger *zap.Logger) LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ledgerService{repo: repo, logger: logger, now: time.Now}
}

// Append records an entry stamped with the current time. Entries are never
// deduplicated; a retried append produces a second entry.
func (s *ledgerService) Append(ctx context.Context, memberID, title string, points int64, xpType models.XPType) error {
	if err := models.IdentifierValidator("memberId", memberID); err != nil {
		return NewValidationError(err.Message, err)
	}

	entry := &models.XPHistoryEntry{
		Title:     title,
		Points:    points,
		Type:      models.ParseXPType(string(xpType)),
		Timestamp: s.now().UTC(),
	}
	id, err := s.repo.Append(ctx, memberID, entry)
	if err != nil {
		return MapStoreError(err, ErrTypeMemberMiss, "Failed to append XP history")
	}

	s.logger.Debug("XP history appended",
		zap.String("member_id", memberID),
		zap.String("entry_id", id),
		zap.Int64("points", points),
		zap.String("type", string(entry.Type)),
	)
	return nil
}

// List returns the member's entries newest first.
func (s *ledgerService) List(ctx context.Context, memberID string) ([]*models.XPHistoryEntry, error) {
	if err := models.IdentifierValidator("memberId", memberID); err != nil {
		return nil, NewValidationError(err.Message, err)
	}
	entries, err := s.repo.List(ctx, memberID)
	if err != nil {
		return nil, MapStoreError(err, ErrTypeMemberMiss, "Failed to list XP history")
	}
	return entries, nil
}
