package db

import (
	"time"

	"gorm.io/datatypes"
)

// User is the account record. Credentials only, the dating profile lives in Profile.
type User struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	Email        string `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	Active       bool   `gorm:"default:true"`
	LastLoginAt  *time.Time
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`

	Profile *Profile `gorm:"foreignKey:UserID"`
}

// Profile holds the user-facing dating profile. Gender is free text as
// submitted; matching normalizes it on read.
type Profile struct {
	UserID     uint64                      `gorm:"primaryKey"`
	FirstName  string                      `gorm:"size:255"`
	LastName   string                      `gorm:"size:255"`
	Gender     string                      `gorm:"size:50;index"`
	Age        int                         `gorm:"not null;default:0"`
	Hobbies    datatypes.JSONSlice[string] `gorm:"type:json"`
	Interests  datatypes.JSONSlice[string] `gorm:"type:json"`
	Phone      string                      `gorm:"size:50"`
	Bio        string                      `gorm:"type:text"`
	LookingFor string                      `gorm:"size:255"`
	OpenFor    string                      `gorm:"size:255"`
	ImageRef   string                      `gorm:"size:512"`
	UpdatedAt  time.Time                   `gorm:"autoUpdateTime"`
}

// Preference is one user's disposition toward another.
//
// Composite PK: (ActorID, TargetID)
//   - Ensures a single row per direction (overwrite guarantee).
//
// Indexes:
//   - idx_target_updated(target_id, updated_at) for the liked-you inbox.
type Preference struct {
	ActorID     uint64    `gorm:"primaryKey"`
	TargetID    uint64    `gorm:"primaryKey;index:idx_target_updated,priority:1"`
	Disposition string    `gorm:"size:20;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"index:idx_target_updated,priority:2"`
}

// Match links two users.
//
// ParticipantA/B keep the order in which the match was produced. UserLow and
// UserHigh hold the same pair sorted ascending; their unique index is what
// guarantees one row per unordered pair.
type Match struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	ParticipantA uint64    `gorm:"not null;index"`
	ParticipantB uint64    `gorm:"not null;index"`
	UserLow      uint64    `gorm:"not null;uniqueIndex:idx_match_pair,priority:1"`
	UserHigh     uint64    `gorm:"not null;uniqueIndex:idx_match_pair,priority:2"`
	Status       string    `gorm:"size:16;not null;index"`
	Source       string    `gorm:"size:16;not null;default:preference"`
	EventID      *uint64   `gorm:"index"`
	VisibleAfter time.Time `gorm:"not null;index"`
	CreatedAt    time.Time `gorm:"index"`
	UpdatedAt    time.Time
}

// Event is a venue slot users attend and check into.
type Event struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement"`
	Location       string    `gorm:"size:200;not null"`
	EventType      string    `gorm:"size:100"`
	StartsAt       time.Time `gorm:"not null"`
	Lat            float64
	Lng            float64
	MaxAttendees   int       `gorm:"not null"`
	MaleCount      int       `gorm:"not null;default:0"`
	FemaleCount    int       `gorm:"not null;default:0"`
	CheckedInCount int       `gorm:"not null;default:0"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// Attendance is a user's stated intent to attend an event.
type Attendance struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	UserID    uint64    `gorm:"not null;uniqueIndex:idx_attendance_user_event,priority:1"`
	EventID   uint64    `gorm:"not null;uniqueIndex:idx_attendance_user_event,priority:2;index"`
	Attending bool      `gorm:"not null;default:true"`
	CreatedAt time.Time
}

// CheckIn is a user's physical arrival at an event. Requires an Attendance.
type CheckIn struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	UserID    uint64    `gorm:"not null;uniqueIndex:idx_checkin_user_event,priority:1"`
	EventID   uint64    `gorm:"not null;uniqueIndex:idx_checkin_user_event,priority:2;index"`
	CreatedAt time.Time
}

// MatchmakingRun records one execution of the event matchmaker. DedupKey is
// unique so an automatic trigger runs at most once per event.
type MatchmakingRun struct {
	ID             string                      `gorm:"primaryKey;size:36"`
	EventID        uint64                      `gorm:"not null;index"`
	Trigger        string                      `gorm:"size:16;not null"`
	DedupKey       string                      `gorm:"size:128;not null;uniqueIndex"`
	Participants   int                         `gorm:"not null"`
	MaleCount      int                         `gorm:"not null"`
	FemaleCount    int                         `gorm:"not null"`
	MatchesCreated int                         `gorm:"not null"`
	LeftOut        datatypes.JSONSlice[uint64] `gorm:"type:json"`
	CreatedAt      time.Time
}

// Message is a persisted chat message between two users.
type Message struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	SenderID   uint64    `gorm:"not null;index:idx_message_pair,priority:1"`
	ReceiverID uint64    `gorm:"not null;index:idx_message_pair,priority:2"`
	Body       string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"index"`
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&User{},
		&Profile{},
		&Preference{},
		&Match{},
		&Event{},
		&Attendance{},
		&CheckIn{},
		&MatchmakingRun{},
		&Message{},
	}
}
