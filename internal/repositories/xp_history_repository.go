package repositories

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"wannagonna/internal/models"
	"wannagonna/internal/store"
)

type xpHistoryRepository struct {
	*BaseRepository
}

// NewXPHistoryRepository creates the ledger repository.
func NewXPHistoryRepository(ds store.DocumentStore, logger *zap.Logger) XPHistoryRepository {
	return &xpHistoryRepository{BaseRepository: NewBaseRepository(ds, logger)}
}

func (r *xpHistoryRepository) Append(ctx context.Context, memberID string, entry *models.XPHistoryEntry) (string, error) {
	id, err := r.addDoc(ctx, xpHistoryPath(memberID), store.Document{
		"title":     entry.Title,
		"points":    entry.Points,
		"type":      string(models.ParseXPType(string(entry.Type))),
		"timestamp": entry.Timestamp.UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("append xp history: %w", err)
	}
	return id, nil
}

func (r *xpHistoryRepository) List(ctx context.Context, memberID string) ([]*models.XPHistoryEntry, error) {
	snaps, err := r.listDocs(ctx, xpHistoryPath(memberID), store.OrderBy("timestamp", store.Desc))
	if err != nil {
		return nil, fmt.Errorf("list xp history: %w", err)
	}

	entries := make([]*models.XPHistoryEntry, 0, len(snaps))
	for _, snap := range snaps {
		ts, _ := snap.Data.Time("timestamp")
		entries = append(entries, &models.XPHistoryEntry{
			ID:        snap.ID,
			Title:     snap.Data.String("title"),
			Points:    snap.Data.Int64("points"),
			Type:      models.ParseXPType(snap.Data.String("type")),
			Timestamp: ts,
		})
	}
	return entries, nil
}
