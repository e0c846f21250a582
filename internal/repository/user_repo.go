package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-events/internal/db"
)

// UserRepository provides data access for accounts and their profiles.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

// Create inserts u. A taken email surfaces as gorm.ErrDuplicatedKey.
func (r *UserRepository) Create(ctx context.Context, u *db.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

// GetByID loads a user with its profile. Returns gorm.ErrRecordNotFound when absent.
func (r *UserRepository) GetByID(ctx context.Context, id uint64) (*db.User, error) {
	var u db.User
	if err := r.db.WithContext(ctx).Preload("Profile").Take(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail loads a user with its profile. Returns gorm.ErrRecordNotFound when absent.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*db.User, error) {
	var u db.User
	if err := r.db.WithContext(ctx).
		Preload("Profile").
		Where("email = ?", email).
		Take(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// Exists reports whether a user with id is stored.
func (r *UserRepository) Exists(ctx context.Context, id uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// GetProfile returns the user's profile, or nil when none was saved yet.
func (r *UserRepository) GetProfile(ctx context.Context, userID uint64) (*db.Profile, error) {
	var p db.Profile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertProfile inserts p or overwrites every column of the existing row.
func (r *UserRepository) UpsertProfile(ctx context.Context, p *db.Profile) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(p).Error
}

// UsersByIDs loads users with profiles keyed by id. Missing ids are absent from the map.
func (r *UserRepository) UsersByIDs(ctx context.Context, ids []uint64) (map[uint64]db.User, error) {
	out := make(map[uint64]db.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []db.User
	if err := r.db.WithContext(ctx).
		Preload("Profile").
		Where("id IN ?", ids).
		Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// ListActiveWithProfiles returns every active user that has a profile.
func (r *UserRepository) ListActiveWithProfiles(ctx context.Context) ([]db.User, error) {
	var users []db.User
	err := r.db.WithContext(ctx).
		Preload("Profile").
		Where("active = ?", true).
		Where("EXISTS (SELECT 1 FROM profiles WHERE profiles.user_id = users.id)").
		Order("id ASC").
		Find(&users).Error
	return users, err
}

// TouchLogin records a successful sign-in.
func (r *UserRepository) TouchLogin(ctx context.Context, userID uint64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id = ?", userID).
		UpdateColumn("last_login_at", at).Error
}

// List returns every account, oldest first.
func (r *UserRepository) List(ctx context.Context) ([]db.User, error) {
	var users []db.User
	err := r.db.WithContext(ctx).Order("id ASC").Find(&users).Error
	return users, err
}

// SetImageRef points the user's profile at a stored image object.
// Returns false when the user has no profile.
func (r *UserRepository) SetImageRef(ctx context.Context, userID uint64, ref string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Profile{}).
		Where("user_id = ?", userID).
		Update("image_ref", ref)
	return res.RowsAffected > 0, res.Error
}

// ProfilesWithRelationship returns the profiles carrying a relationship intent, by user id.
func (r *UserRepository) ProfilesWithRelationship(ctx context.Context) ([]db.Profile, error) {
	var profiles []db.Profile
	err := r.db.WithContext(ctx).
		Where("looking_for <> '' OR open_for <> ''").
		Order("user_id ASC").
		Find(&profiles).Error
	return profiles, err
}
