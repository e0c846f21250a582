package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-events/internal/db"
	"github.com/oggyb/muzz-events/internal/matching"
)

// EventRepository covers events, attendance, check-ins and matchmaking runs.
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(database *gorm.DB) *EventRepository {
	return &EventRepository{db: database}
}

// GetByID loads an event. Returns gorm.ErrRecordNotFound when absent.
func (r *EventRepository) GetByID(ctx context.Context, id uint64) (*db.Event, error) {
	var e db.Event
	if err := r.db.WithContext(ctx).Take(&e, id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// List returns all events, soonest first.
func (r *EventRepository) List(ctx context.Context) ([]db.Event, error) {
	var events []db.Event
	err := r.db.WithContext(ctx).Order("starts_at ASC, id ASC").Find(&events).Error
	return events, err
}

// GetAttendance returns the user's attendance for the event, or nil.
func (r *EventRepository) GetAttendance(ctx context.Context, userID, eventID uint64) (*db.Attendance, error) {
	var a db.Attendance
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND event_id = ?", userID, eventID).
		Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAttendance inserts a. A duplicate (user, event) surfaces as gorm.ErrDuplicatedKey.
func (r *EventRepository) CreateAttendance(ctx context.Context, a *db.Attendance) error {
	return r.db.WithContext(ctx).Create(a).Error
}

// IncrementGenderCount bumps male_count or female_count. Unknown genders are ignored.
func (r *EventRepository) IncrementGenderCount(ctx context.Context, eventID uint64, g matching.Gender) error {
	var column string
	switch g {
	case matching.GenderMale:
		column = "male_count"
	case matching.GenderFemale:
		column = "female_count"
	default:
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&db.Event{}).
		Where("id = ?", eventID).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1)).Error
}

// GetCheckIn returns the user's check-in for the event, or nil.
func (r *EventRepository) GetCheckIn(ctx context.Context, userID, eventID uint64) (*db.CheckIn, error) {
	var c db.CheckIn
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND event_id = ?", userID, eventID).
		Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *EventRepository) CreateCheckIn(ctx context.Context, c *db.CheckIn) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// IncrementCheckedIn takes one check-in slot.
//
// The update is conditional on checked_in_count < max_attendees, so the count
// can never pass capacity. Returns false when no slot was left.
func (r *EventRepository) IncrementCheckedIn(ctx context.Context, eventID uint64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Event{}).
		Where("id = ? AND checked_in_count < max_attendees", eventID).
		UpdateColumn("checked_in_count", gorm.Expr("checked_in_count + ?", 1))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CheckedInUserIDs returns the checked-in cohort of the event in check-in order.
func (r *EventRepository) CheckedInUserIDs(ctx context.Context, eventID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&db.CheckIn{}).
		Where("event_id = ?", eventID).
		Order("id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// AttendancesForEvent lists attending users of an event.
func (r *EventRepository) AttendancesForEvent(ctx context.Context, eventID uint64) ([]db.Attendance, error) {
	var rows []db.Attendance
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND attending = ?", eventID, true).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// AttendancesForUser lists the events a user signed up for.
func (r *EventRepository) AttendancesForUser(ctx context.Context, userID uint64) ([]db.Attendance, error) {
	var rows []db.Attendance
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND attending = ?", userID, true).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// EventsByIDs loads events keyed by id.
func (r *EventRepository) EventsByIDs(ctx context.Context, ids []uint64) (map[uint64]db.Event, error) {
	out := make(map[uint64]db.Event, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var events []db.Event
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&events).Error; err != nil {
		return nil, err
	}
	for _, e := range events {
		out[e.ID] = e
	}
	return out, nil
}

// CreateRun records a matchmaking run.
//
// Behavior:
//   - dedup_key is unique; a second run with the same key inserts nothing.
//   - Returns false when the key was already taken.
func (r *EventRepository) CreateRun(ctx context.Context, run *db.MatchmakingRun) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedup_key"}},
			DoNothing: true,
		}).
		Create(run)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateRunResult stores the counters of a finished run.
func (r *EventRepository) UpdateRunResult(ctx context.Context, run *db.MatchmakingRun) error {
	return r.db.WithContext(ctx).
		Model(&db.MatchmakingRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]any{
			"participants":    run.Participants,
			"male_count":      run.MaleCount,
			"female_count":    run.FemaleCount,
			"matches_created": run.MatchesCreated,
			"left_out":        run.LeftOut,
		}).Error
}

// RunByKey returns the run recorded under key, or nil.
func (r *EventRepository) RunByKey(ctx context.Context, key string) (*db.MatchmakingRun, error) {
	var run db.MatchmakingRun
	err := r.db.WithContext(ctx).Where("dedup_key = ?", key).Take(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// RunsForEvent lists the runs of an event, oldest first.
func (r *EventRepository) RunsForEvent(ctx context.Context, eventID uint64) ([]db.MatchmakingRun, error) {
	var runs []db.MatchmakingRun
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Find(&runs).Error
	return runs, err
}
