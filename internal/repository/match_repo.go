package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-events/internal/db"
	"github.com/oggyb/muzz-events/internal/matching"
	"github.com/oggyb/muzz-events/internal/utils/pagination"
)

// MatchRepository provides data access methods for the Match model.
type MatchRepository struct {
	db *gorm.DB
}

// NewMatchRepository creates a new repository bound to the given DB handle.
func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

// OrderedPair returns a and b sorted ascending, the storage key of an unordered pair.
func OrderedPair(a, b uint64) (uint64, uint64) {
	if a > b {
		return b, a
	}
	return a, b
}

// FindByPair returns the match of the unordered pair {a, b}, or nil.
//
// Both storage orderings resolve to the same (user_low, user_high) key, so a
// single lookup covers (a,b) and (b,a).
func (r *MatchRepository) FindByPair(ctx context.Context, a, b uint64) (*db.Match, error) {
	low, high := OrderedPair(a, b)

	var m db.Match
	err := r.db.WithContext(ctx).
		Where("user_low = ? AND user_high = ?", low, high).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetByID loads a match. Returns gorm.ErrRecordNotFound when absent.
func (r *MatchRepository) GetByID(ctx context.Context, id uint64) (*db.Match, error) {
	var m db.Match
	if err := r.db.WithContext(ctx).Take(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateIfAbsent inserts m unless its pair already has a row.
//
// Behavior:
//   - UserLow/UserHigh are derived from the participants.
//   - The unique pair index turns a concurrent second insert into a no-op.
//   - Returns false when the pair already existed; m is then left unsaved.
func (r *MatchRepository) CreateIfAbsent(ctx context.Context, m *db.Match) (bool, error) {
	m.UserLow, m.UserHigh = OrderedPair(m.ParticipantA, m.ParticipantB)
	m.CreatedAt = m.CreatedAt.Truncate(time.Millisecond)

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_low"}, {Name: "user_high"}},
			DoNothing: true,
		}).
		Create(m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetState moves a match to status, refreshing visible_after when given.
func (r *MatchRepository) SetState(ctx context.Context, id uint64, status matching.Status, visibleAfter *time.Time) error {
	updates := map[string]any{"status": string(status)}
	if visibleAfter != nil {
		updates["visible_after"] = *visibleAfter
	}
	return r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ActivateForEvent turns an existing match active on behalf of an event run.
func (r *MatchRepository) ActivateForEvent(ctx context.Context, id, eventID uint64, visibleAfter time.Time) error {
	return r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        string(matching.StatusActive),
			"visible_after": visibleAfter,
			"event_id":      eventID,
		}).Error
}

// ListVisible returns the user's matches that pass the visibility gate at now.
//
// Behavior:
//   - status <> deleted AND visible_after <= now.
//   - Ordered by created_at DESC, id DESC.
//   - limit <= 0 returns everything, otherwise cursor pagination applies.
func (r *MatchRepository) ListVisible(
	ctx context.Context,
	userID uint64,
	now time.Time,
	paginationToken string,
	limit int,
) ([]db.Match, *string, error) {
	cursor, err := pagination.Decode(paginationToken)
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Where("(participant_a = ? OR participant_b = ?)", userID, userID).
		Where("status <> ? AND visible_after <= ?", string(matching.StatusDeleted), now).
		Order("created_at DESC, id DESC")

	if !cursor.IsZero() {
		ts := time.UnixMilli(cursor.CreatedUnix).UTC()
		query = query.Where(
			"(created_at < ? OR (created_at = ? AND id < ?))",
			ts, ts, cursor.ID,
		)
	}
	if limit > 0 {
		query = query.Limit(limit + 1)
	}

	var matches []db.Match
	if err := query.Find(&matches).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if limit > 0 && len(matches) > limit {
		last := matches[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			ID:          last.ID,
			CreatedUnix: last.CreatedAt.UnixMilli(),
		})
		nextToken = &token
		matches = matches[:limit]
	}

	return matches, nextToken, nil
}

// RecentParticipants returns every user that appears in a match created at or after since.
func (r *MatchRepository) RecentParticipants(ctx context.Context, since time.Time) (map[uint64]bool, error) {
	var matches []db.Match
	if err := r.db.WithContext(ctx).
		Select("participant_a", "participant_b").
		Where("created_at >= ?", since).
		Find(&matches).Error; err != nil {
		return nil, err
	}

	out := make(map[uint64]bool, 2*len(matches))
	for _, m := range matches {
		out[m.ParticipantA] = true
		out[m.ParticipantB] = true
	}
	return out, nil
}

// EventParticipants returns users already holding a live match produced for the event.
func (r *MatchRepository) EventParticipants(ctx context.Context, eventID uint64) (map[uint64]bool, error) {
	var matches []db.Match
	if err := r.db.WithContext(ctx).
		Select("participant_a", "participant_b").
		Where("event_id = ? AND status <> ?", eventID, string(matching.StatusDeleted)).
		Find(&matches).Error; err != nil {
		return nil, err
	}

	out := make(map[uint64]bool, 2*len(matches))
	for _, m := range matches {
		out[m.ParticipantA] = true
		out[m.ParticipantB] = true
	}
	return out, nil
}

// PartnersOf returns the other participant of every live match the user is in.
func (r *MatchRepository) PartnersOf(ctx context.Context, userID uint64) (map[uint64]bool, error) {
	var matches []db.Match
	if err := r.db.WithContext(ctx).
		Select("participant_a", "participant_b").
		Where("(participant_a = ? OR participant_b = ?) AND status <> ?", userID, userID, string(matching.StatusDeleted)).
		Find(&matches).Error; err != nil {
		return nil, err
	}

	out := make(map[uint64]bool, len(matches))
	for _, m := range matches {
		if m.ParticipantA == userID {
			out[m.ParticipantB] = true
		} else {
			out[m.ParticipantA] = true
		}
	}
	return out, nil
}

// AllPairs returns the ordered pair key of every live match.
func (r *MatchRepository) AllPairs(ctx context.Context) (map[[2]uint64]bool, error) {
	var matches []db.Match
	if err := r.db.WithContext(ctx).
		Select("user_low", "user_high").
		Where("status <> ?", string(matching.StatusDeleted)).
		Find(&matches).Error; err != nil {
		return nil, err
	}

	out := make(map[[2]uint64]bool, len(matches))
	for _, m := range matches {
		out[[2]uint64{m.UserLow, m.UserHigh}] = true
	}
	return out, nil
}

// CountForPair counts rows of the unordered pair. Anything above one is a bug.
func (r *MatchRepository) CountForPair(ctx context.Context, a, b uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("(participant_a = ? AND participant_b = ?) OR (participant_a = ? AND participant_b = ?)", a, b, b, a).
		Count(&count).Error
	return count, err
}
