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

// PreferenceRepository provides data access methods for the Preference model.
// It encapsulates all queries related to like/reject/save-later dispositions.
type PreferenceRepository struct {
	db *gorm.DB
}

// NewPreferenceRepository creates a new repository bound to the given DB handle.
// Pass a transaction handle to make the calls part of a unit of work.
func NewPreferenceRepository(database *gorm.DB) *PreferenceRepository {
	return &PreferenceRepository{db: database}
}

// Upsert inserts or updates the disposition of actor -> target.
//
// Behavior:
//   - If (actor_id, target_id) exists → disposition and updated_at are overwritten.
//   - If it doesn’t exist → a new row is inserted.
//   - Composite PK ensures a single row per direction.
//
// Example:
//
//	repo.Upsert(ctx, 1, 2, matching.DispositionLike, now) // user 1 liked user 2
func (r *PreferenceRepository) Upsert(
	ctx context.Context,
	actorID, targetID uint64,
	disposition matching.Disposition,
	at time.Time,
) error {
	// millisecond precision keeps the liker cursor exact
	at = at.Truncate(time.Millisecond)
	pref := db.Preference{
		ActorID:     actorID,
		TargetID:    targetID,
		Disposition: string(disposition),
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "actor_id"}, {Name: "target_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"disposition", "updated_at"}),
		}).
		Create(&pref).Error
}

// Get returns the preference actor -> target, or nil when there is none.
func (r *PreferenceRepository) Get(ctx context.Context, actorID, targetID uint64) (*db.Preference, error) {
	var pref db.Preference
	err := r.db.WithContext(ctx).
		Where("actor_id = ? AND target_id = ?", actorID, targetID).
		Take(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

// Disposition is Get narrowed to the disposition value.
func (r *PreferenceRepository) Disposition(ctx context.Context, actorID, targetID uint64) (*matching.Disposition, error) {
	pref, err := r.Get(ctx, actorID, targetID)
	if err != nil || pref == nil {
		return nil, err
	}
	d := matching.Disposition(pref.Disposition)
	return &d, nil
}

// DispositionsFrom returns the actor's dispositions keyed by target, limited to targets.
func (r *PreferenceRepository) DispositionsFrom(
	ctx context.Context,
	actorID uint64,
	targets []uint64,
) (map[uint64]matching.Disposition, error) {
	out := make(map[uint64]matching.Disposition, len(targets))
	if len(targets) == 0 {
		return out, nil
	}

	var prefs []db.Preference
	if err := r.db.WithContext(ctx).
		Where("actor_id = ? AND target_id IN ?", actorID, targets).
		Find(&prefs).Error; err != nil {
		return nil, err
	}
	for _, p := range prefs {
		out[p.TargetID] = matching.Disposition(p.Disposition)
	}
	return out, nil
}

// TargetsOf returns every user the actor has stated a disposition toward.
func (r *PreferenceRepository) TargetsOf(ctx context.Context, actorID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&db.Preference{}).
		Where("actor_id = ?", actorID).
		Pluck("target_id", &ids).Error
	return ids, err
}

// All returns every preference row. Used by the bulk discovery pass.
func (r *PreferenceRepository) All(ctx context.Context) ([]db.Preference, error) {
	var prefs []db.Preference
	err := r.db.WithContext(ctx).Find(&prefs).Error
	return prefs, err
}

// Likers returns the users who liked target, newest first.
//
// Behavior:
//   - Only "like" rows toward target count.
//   - Actors the target rejected are excluded.
//   - newOnly also excludes actors the target already liked back.
//   - Ordered by updated_at DESC, actor_id DESC with cursor pagination.
//   - limit <= 0 returns every row.
func (r *PreferenceRepository) Likers(
	ctx context.Context,
	targetID uint64,
	token string,
	limit int,
	newOnly bool,
) ([]db.Preference, *string, error) {
	cursor, err := pagination.Decode(token)
	if err != nil {
		return nil, nil, err
	}

	query := r.likersQuery(ctx, targetID, newOnly).
		Order("p.updated_at DESC, p.actor_id DESC")
	if limit > 0 {
		query = query.Limit(limit + 1)
	}

	// apply cursor
	if !cursor.IsZero() {
		ts := time.UnixMilli(cursor.CreatedUnix).UTC()
		query = query.Where(
			"(p.updated_at < ? OR (p.updated_at = ? AND p.actor_id < ?))",
			ts, ts, cursor.ID,
		)
	}

	var prefs []db.Preference
	if err := query.Find(&prefs).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if limit > 0 && len(prefs) > limit {
		last := prefs[limit-1]
		token, err := pagination.Encode(pagination.Cursor{
			ID:          last.ActorID,
			CreatedUnix: last.UpdatedAt.UnixMilli(),
		})
		if err != nil {
			return nil, nil, err
		}
		nextToken = &token
		prefs = prefs[:limit]
	}
	return prefs, nextToken, nil
}

// CountLikers counts what Likers would return without newOnly.
func (r *PreferenceRepository) CountLikers(ctx context.Context, targetID uint64) (int64, error) {
	var count int64
	err := r.likersQuery(ctx, targetID, false).Count(&count).Error
	return count, err
}

func (r *PreferenceRepository) likersQuery(ctx context.Context, targetID uint64, newOnly bool) *gorm.DB {
	query := r.db.WithContext(ctx).
		Table("preferences p").
		Where("p.target_id = ? AND p.disposition = ?", targetID, string(matching.DispositionLike)).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM preferences p2
				WHERE p2.actor_id = ?
				  AND p2.target_id = p.actor_id
				  AND p2.disposition = ?
			)`, targetID, string(matching.DispositionReject))
	if newOnly {
		query = query.Where(`
			NOT EXISTS (
				SELECT 1 FROM preferences p3
				WHERE p3.actor_id = p.target_id
				  AND p3.target_id = p.actor_id
				  AND p3.disposition = ?
			)`, string(matching.DispositionLike))
	}
	return query
}
