// Package event tracks attendance and check-ins at physical events and runs
// the bulk matchmaker over each event's checked-in cohort.
package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-events/internal/app"
	"github.com/oggyb/muzz-events/internal/db"
	svcErr "github.com/oggyb/muzz-events/internal/errors"
	"github.com/oggyb/muzz-events/internal/repository"
)

// CheckInGrace is how long after an event starts check-ins are still accepted.
const CheckInGrace = 10 * time.Minute

// Service implements attendance, check-in and event matchmaking.
type Service struct {
	appCtx *app.AppContext

	users   *repository.UserRepository
	events  *repository.EventRepository
	matches *repository.MatchRepository
}

// NewEventService creates an event service with repositories bound to the shared DB.
func NewEventService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:  appCtx,
		users:   repository.NewUserRepository(appCtx.DB),
		events:  repository.NewEventRepository(appCtx.DB),
		matches: repository.NewMatchRepository(appCtx.DB),
	}
}

// EventView is the public shape of an event.
type EventView struct {
	ID              uint64    `json:"id"`
	Location        string    `json:"location"`
	EventType       string    `json:"event_type"`
	StartsAt        time.Time `json:"starts_at"`
	Lat             float64   `json:"lat"`
	Lng             float64   `json:"lng"`
	MaxAttendees    int       `json:"maxAttendees"`
	MaleAttendees   int       `json:"maleAttendees"`
	FemaleAttendees int       `json:"femaleAttendees"`
	CheckedInCount  int       `json:"checked_in_count"`
}

func viewOf(e db.Event) EventView {
	return EventView{
		ID:              e.ID,
		Location:        e.Location,
		EventType:       e.EventType,
		StartsAt:        e.StartsAt,
		Lat:             e.Lat,
		Lng:             e.Lng,
		MaxAttendees:    e.MaxAttendees,
		MaleAttendees:   e.MaleCount,
		FemaleAttendees: e.FemaleCount,
		CheckedInCount:  e.CheckedInCount,
	}
}

// checkInStatus renders the "M/N checked in" progress line.
func checkInStatus(e *db.Event) string {
	return fmt.Sprintf("%d/%d checked in", e.CheckedInCount, e.MaxAttendees)
}

// ListEvents returns all events, soonest first.
func (s *Service) ListEvents(ctx context.Context) ([]EventView, error) {
	events, err := s.events.List(ctx)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	out := make([]EventView, 0, len(events))
	for _, e := range events {
		out = append(out, viewOf(e))
	}
	return out, nil
}

func (s *Service) loadUser(ctx context.Context, id uint64) (*db.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.NotFound("User not found")
	}
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return u, nil
}

func (s *Service) loadEvent(ctx context.Context, id uint64) (*db.Event, error) {
	e, err := s.events.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.NotFound("Event not found")
	}
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return e, nil
}
