package event

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-events/internal/db"
	svcErr "github.com/oggyb/muzz-events/internal/errors"
	"github.com/oggyb/muzz-events/internal/matching"
	"github.com/oggyb/muzz-events/internal/repository"
)

// errSlotTaken rolls back a check-in whose conditional increment found no free slot.
var errSlotTaken = errors.New("no check-in slot left")

// Attend registers the user's intent to attend the event.
//
// Behavior:
//   - User and event must exist → NotFound.
//   - The user's profile must carry a gender → InvalidArgument.
//   - A second attendance for the same event → Conflict.
//   - The attendance row and the gender counter commit together.
func (s *Service) Attend(ctx context.Context, userID, eventID uint64) (*db.Attendance, error) {
	s.appCtx.Logger.Debug("Attend called", "user", userID, "event", eventID)

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadEvent(ctx, eventID); err != nil {
		return nil, err
	}
	if user.Profile == nil || strings.TrimSpace(user.Profile.Gender) == "" {
		return nil, svcErr.InvalidArgument("User gender is not set")
	}

	existing, err := s.events.GetAttendance(ctx, userID, eventID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if existing != nil {
		return nil, svcErr.Conflict("User already attending this event")
	}

	attendance := &db.Attendance{
		UserID:    userID,
		EventID:   eventID,
		Attending: true,
		CreatedAt: s.appCtx.Now(),
	}
	gender := matching.NormalizeGender(user.Profile.Gender)

	err = s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		events := repository.NewEventRepository(tx)
		if err := events.CreateAttendance(ctx, attendance); err != nil {
			return err
		}
		return events.IncrementGenderCount(ctx, eventID, gender)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, svcErr.Conflict("User already attending this event")
	}
	if err != nil {
		s.appCtx.Logger.Error("Attend failed", "user", userID, "event", eventID, "err", err)
		return nil, svcErr.Map(err)
	}

	s.appCtx.Logger.Info("attendance recorded", "user", userID, "event", eventID, "gender", gender.String())
	return attendance, nil
}

// CheckInResult is the outcome of a successful check-in.
type CheckInResult struct {
	CheckIn      *db.CheckIn
	CheckedIn    int
	MaxAttendees int
	// Status is the "M/N checked in" progress line.
	Status string
	// Matchmaking is set when this check-in filled the event and the matchmaker ran.
	Matchmaking *Summary
}

// CheckIn records the user's arrival at the event.
//
// Behavior:
//   - User and event must exist → NotFound; the user must attend → Forbidden.
//   - A second check-in → Conflict; a full event → Exhausted.
//   - More than CheckInGrace after the start the attempt is refused with
//     Exhausted, after the deadline matchmaking run was fired.
//   - The check-in row and the slot increment commit together. When the
//     increment fills the event the capacity matchmaking run happens before returning.
func (s *Service) CheckIn(ctx context.Context, userID, eventID uint64) (*CheckInResult, error) {
	s.appCtx.Logger.Debug("CheckIn called", "user", userID, "event", eventID)

	if _, err := s.loadUser(ctx, userID); err != nil {
		return nil, err
	}
	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	attendance, err := s.events.GetAttendance(ctx, userID, eventID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if attendance == nil {
		return nil, svcErr.Forbidden("User must attend before check-in")
	}

	existing, err := s.events.GetCheckIn(ctx, userID, eventID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if existing != nil {
		return nil, svcErr.Conflict("User already checked in")
	}

	if event.CheckedInCount >= event.MaxAttendees {
		return nil, svcErr.Exhausted(slotsFilled(event))
	}

	now := s.appCtx.Now()
	if now.After(event.StartsAt.Add(CheckInGrace)) {
		if _, err := s.RunMatchmaking(ctx, eventID, TriggerDeadline); err != nil && !errors.Is(err, ErrAlreadyRan) {
			s.appCtx.Logger.Error("deadline matchmaking failed", "event", eventID, "err", err)
		}
		return nil, svcErr.Exhausted("Check-in period has ended (10 minutes after event time)")
	}

	checkIn := &db.CheckIn{UserID: userID, EventID: eventID, CreatedAt: now}
	var updated *db.Event
	err = s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		events := repository.NewEventRepository(tx)
		if err := events.CreateCheckIn(ctx, checkIn); err != nil {
			return err
		}
		ok, err := events.IncrementCheckedIn(ctx, eventID)
		if err != nil {
			return err
		}
		if !ok {
			return errSlotTaken
		}
		updated, err = events.GetByID(ctx, eventID)
		return err
	})
	switch {
	case errors.Is(err, errSlotTaken):
		return nil, svcErr.Exhausted(slotsFilled(event))
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return nil, svcErr.Conflict("User already checked in")
	case err != nil:
		s.appCtx.Logger.Error("CheckIn failed", "user", userID, "event", eventID, "err", err)
		return nil, svcErr.Map(err)
	}

	res := &CheckInResult{
		CheckIn:      checkIn,
		CheckedIn:    updated.CheckedInCount,
		MaxAttendees: updated.MaxAttendees,
		Status:       checkInStatus(updated),
	}
	s.appCtx.Logger.Info("checked in", "user", userID, "event", eventID, "status", res.Status)

	if updated.CheckedInCount >= updated.MaxAttendees {
		summary, err := s.RunMatchmaking(ctx, eventID, TriggerCapacity)
		switch {
		case errors.Is(err, ErrAlreadyRan):
		case err != nil:
			s.appCtx.Logger.Error("capacity matchmaking failed", "event", eventID, "err", err)
		default:
			res.Matchmaking = summary
		}
	}

	return res, nil
}

func slotsFilled(e *db.Event) string {
	return fmt.Sprintf("All %d slots are filled", e.MaxAttendees)
}

// CheckInState answers whether a user is checked in, with the event's progress.
type CheckInState struct {
	CheckedIn bool       `json:"checked_in"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Status    string     `json:"checkin_status,omitempty"`
	Event     *EventView `json:"location,omitempty"`
}

// CheckInStatus reports the user's check-in at the event.
// A missing check-in is not an error, it reports CheckedIn false.
func (s *Service) CheckInStatus(ctx context.Context, userID, eventID uint64) (*CheckInState, error) {
	c, err := s.events.GetCheckIn(ctx, userID, eventID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if c == nil {
		return &CheckInState{CheckedIn: false}, nil
	}

	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	view := viewOf(*event)
	return &CheckInState{
		CheckedIn: true,
		Timestamp: &c.CreatedAt,
		Status:    checkInStatus(event),
		Event:     &view,
	}, nil
}

// HasAttended reports whether the user marked attendance for the event.
func (s *Service) HasAttended(ctx context.Context, userID, eventID uint64) (bool, error) {
	a, err := s.events.GetAttendance(ctx, userID, eventID)
	if err != nil {
		return false, svcErr.Map(err)
	}
	return a != nil && a.Attending, nil
}

// Attendee is one attending user of an event.
type Attendee struct {
	UserID    uint64 `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"firstname"`
	Gender    string `json:"gender"`
	CheckedIn bool   `json:"checked_in"`
}

// Attendees lists the users attending the event and whether each checked in.
func (s *Service) Attendees(ctx context.Context, eventID uint64) ([]Attendee, error) {
	if _, err := s.loadEvent(ctx, eventID); err != nil {
		return nil, err
	}

	rows, err := s.events.AttendancesForEvent(ctx, eventID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	checkedIn, err := s.events.CheckedInUserIDs(ctx, eventID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	arrived := make(map[uint64]bool, len(checkedIn))
	for _, id := range checkedIn {
		arrived[id] = true
	}

	ids := make([]uint64, 0, len(rows))
	for _, a := range rows {
		ids = append(ids, a.UserID)
	}
	users, err := s.users.UsersByIDs(ctx, ids)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	out := make([]Attendee, 0, len(rows))
	for _, a := range rows {
		att := Attendee{UserID: a.UserID, CheckedIn: arrived[a.UserID]}
		if u, ok := users[a.UserID]; ok {
			att.Email = u.Email
			if u.Profile != nil {
				att.FirstName = u.Profile.FirstName
				att.Gender = matching.NormalizeGender(u.Profile.Gender).String()
			}
		}
		out = append(out, att)
	}
	return out, nil
}

// Ticket is an event the user signed up for.
type Ticket struct {
	EventView
	CheckedIn bool `json:"checked_in"`
}

// Tickets lists the events a user attends, with their check-in state.
func (s *Service) Tickets(ctx context.Context, userID uint64) ([]Ticket, error) {
	rows, err := s.events.AttendancesForUser(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	ids := make([]uint64, 0, len(rows))
	for _, a := range rows {
		ids = append(ids, a.EventID)
	}
	events, err := s.events.EventsByIDs(ctx, ids)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	out := make([]Ticket, 0, len(rows))
	for _, a := range rows {
		e, ok := events[a.EventID]
		if !ok {
			continue
		}
		c, err := s.events.GetCheckIn(ctx, userID, a.EventID)
		if err != nil {
			return nil, svcErr.Map(err)
		}
		out = append(out, Ticket{EventView: viewOf(e), CheckedIn: c != nil})
	}
	return out, nil
}
