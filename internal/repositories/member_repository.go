package repositories

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"wannagonna/internal/models"
	"wannagonna/internal/store"
)

type memberRepository struct {
	*BaseRepository
}

// NewMemberRepository creates a member repository over the document store.
func NewMemberRepository(ds store.DocumentStore, logger *zap.Logger) MemberRepository {
	return &memberRepository{BaseRepository: NewBaseRepository(ds, logger)}
}

func (r *memberRepository) Get(ctx context.Context, memberID string) (*models.Member, error) {
	doc, err := r.getDoc(ctx, memberPath(memberID))
	if err != nil {
		return nil, err
	}
	return memberFromDoc(memberID, doc), nil
}

func (r *memberRepository) ListIDs(ctx context.Context) ([]string, error) {
	snaps, err := r.listDocs(ctx, membersCollection)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	ids := make([]string, len(snaps))
	for i, snap := range snaps {
		ids[i] = snap.ID
	}
	return ids, nil
}

func (r *memberRepository) AppendBadge(ctx context.Context, memberID string, earned models.EarnedBadge, xp int64) (bool, error) {
	path := memberPath(memberID)
	applied := false

	err := r.runTransaction(ctx, path, func(ctx context.Context, tx store.Tx) error {
		applied = false
		doc, err := tx.Get(path)
		if err != nil {
			return err
		}
		for _, b := range earnedFromDoc(doc) {
			if b.ID == earned.ID {
				return nil
			}
		}

		upd := store.Update{
			"badges": store.ArrayAppend(earnedRecord(earned)),
		}
		if xp > 0 {
			upd["xp"] = store.Increment(xp)
		}
		if err := tx.Update(path, upd); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (r *memberRepository) RemoveBadge(ctx context.Context, memberID, badgeID string, xp int64) (bool, error) {
	path := memberPath(memberID)
	removed := false

	err := r.runTransaction(ctx, path, func(ctx context.Context, tx store.Tx) error {
		removed = false
		doc, err := tx.Get(path)
		if err != nil {
			return err
		}

		raw := doc.Array("badges")
		kept := make([]interface{}, 0, len(raw))
		for _, el := range raw {
			if rec, ok := el.(map[string]interface{}); ok && rec["id"] == badgeID {
				continue
			}
			kept = append(kept, el)
		}
		if len(kept) == len(raw) {
			return nil
		}

		upd := store.Update{"badges": kept}
		if debit := min(xp, max(doc.Int64("xp"), 0)); debit > 0 {
			upd["xp"] = store.Increment(-debit)
		}
		if err := tx.Update(path, upd); err != nil {
			return err
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

func (r *memberRepository) AddXP(ctx context.Context, memberID string, points int64) error {
	return r.updateDoc(ctx, memberPath(memberID), store.Update{"xp": store.Increment(points)})
}

func (r *memberRepository) Dedupe(ctx context.Context, memberID string, xpFor func(badgeID string) int64) (*DedupeResult, error) {
	path := memberPath(memberID)
	var result *DedupeResult

	err := r.runTransaction(ctx, path, func(ctx context.Context, tx store.Tx) error {
		result = &DedupeResult{}
		doc, err := tx.Get(path)
		if err != nil {
			return err
		}

		raw := doc.Array("badges")
		earliest := make(map[string]int)
		for i, el := range raw {
			rec, ok := el.(map[string]interface{})
			if !ok {
				continue
			}
			id, _ := rec["id"].(string)
			j, seen := earliest[id]
			if !seen {
				earliest[id] = i
				continue
			}
			if earnedAt(rec).Before(earnedAt(raw[j].(map[string]interface{}))) {
				earliest[id] = i
			}
		}

		kept := make([]interface{}, 0, len(raw))
		var debit int64
		for i, el := range raw {
			rec, ok := el.(map[string]interface{})
			if !ok {
				kept = append(kept, el)
				continue
			}
			id, _ := rec["id"].(string)
			if earliest[id] == i {
				kept = append(kept, el)
				continue
			}
			result.Removed = append(result.Removed, id)
			debit += xpFor(id)
		}
		if len(result.Removed) == 0 {
			return nil
		}

		debit = min(debit, max(doc.Int64("xp"), 0))
		upd := store.Update{"badges": kept}
		if debit > 0 {
			upd["xp"] = store.Increment(-debit)
		}
		result.XPDebited = debit
		return tx.Update(path, upd)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ===============================
// DOCUMENT MAPPING
// ===============================

func memberFromDoc(id string, doc store.Document) *models.Member {
	return &models.Member{
		ID:     id,
		XP:     doc.Int64("xp"),
		Badges: earnedFromDoc(doc),
	}
}

// earnedFromDoc returns the earned records sorted by earnedAt descending.
func earnedFromDoc(doc store.Document) []models.EarnedBadge {
	raw := doc.Array("badges")
	out := make([]models.EarnedBadge, 0, len(raw))
	for _, el := range raw {
		rec, ok := el.(map[string]interface{})
		if !ok {
			continue
		}
		id, _ := rec["id"].(string)
		if id == "" {
			continue
		}
		out = append(out, models.EarnedBadge{ID: id, EarnedAt: earnedAt(rec)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EarnedAt.After(out[j].EarnedAt)
	})
	return out
}

func earnedAt(rec map[string]interface{}) time.Time {
	t, _ := store.Document(rec).Time("earnedAt")
	return t
}

func earnedRecord(b models.EarnedBadge) map[string]interface{} {
	return map[string]interface{}{
		"id":       b.ID,
		"earnedAt": b.EarnedAt.UTC(),
	}
}
