package event_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-events/internal/app"
	"github.com/oggyb/muzz-events/internal/cache"
	"github.com/oggyb/muzz-events/internal/config"
	"github.com/oggyb/muzz-events/internal/db"
	svcErr "github.com/oggyb/muzz-events/internal/errors"
	"github.com/oggyb/muzz-events/internal/logger"
	"github.com/oggyb/muzz-events/internal/matching"
	"github.com/oggyb/muzz-events/internal/service/event"
)

//
// Test helpers
//

var start = time.Date(2026, 10, 16, 19, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	appCtx *app.AppContext
	svc    *event.Service
	db     *gorm.DB
	clock  *clock
	users  map[string]db.User
}

// SeedMinimalTestData inserts five men, three women and one user without a profile.
func SeedMinimalTestData(t *testing.T, gdb *gorm.DB) map[string]db.User {
	t.Helper()

	users := make(map[string]db.User)
	add := func(name, gender string, profile bool) {
		u := db.User{Email: name + "@test.com", PasswordHash: "x", Active: true}
		if profile {
			u.Profile = &db.Profile{FirstName: name, Gender: gender, Age: 30}
		}
		require.NoError(t, gdb.Create(&u).Error)
		users[name] = u
	}
	for i := 1; i <= 5; i++ {
		add(fmt.Sprintf("m%d", i), "male", true)
	}
	for i := 1; i <= 3; i++ {
		add(fmt.Sprintf("f%d", i), "Woman", true)
	}
	add("ghost", "", false)
	return users
}

// setupService wires an event service over in-memory SQLite, miniredis,
// a fixed clock and a seeded RNG.
func setupService(t *testing.T) *fixture {
	t.Helper()

	cfg := config.New()
	cfg.DB.Driver = "sqlite"
	cfg.DB.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))

	dbase, err := db.NewDB(cfg)
	require.NoError(t, err)
	sqlDB, err := dbase.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	users := SeedMinimalTestData(t, dbase)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg.Redis.Addr = mr.Addr()
	redisCache := cache.NewRedisCache(cfg)
	t.Cleanup(func() { redisCache.Close() })

	clk := &clock{now: start}
	appCtx := app.New(dbase, redisCache, logger.Discard())
	appCtx.Now = clk.Now
	appCtx.Rand = app.NewRand(7, 11)

	return &fixture{
		appCtx: appCtx,
		svc:    event.NewEventService(appCtx),
		db:     dbase,
		clock:  clk,
		users:  users,
	}
}

func (f *fixture) newEvent(t *testing.T, maxAttendees int) db.Event {
	t.Helper()
	e := db.Event{Location: "Jazz Cellar", EventType: "Speed Dating", StartsAt: start, MaxAttendees: maxAttendees}
	require.NoError(t, f.db.Create(&e).Error)
	return e
}

func (f *fixture) id(name string) uint64 { return f.users[name].ID }

func (f *fixture) attendAndCheckIn(t *testing.T, eventID uint64, names ...string) *event.CheckInResult {
	t.Helper()
	ctx := context.Background()
	var last *event.CheckInResult
	for _, name := range names {
		_, err := f.svc.Attend(ctx, f.id(name), eventID)
		require.NoError(t, err)
		last, err = f.svc.CheckIn(ctx, f.id(name), eventID)
		require.NoError(t, err)
	}
	return last
}

func (f *fixture) eventMatches(t *testing.T, eventID uint64) []db.Match {
	t.Helper()
	var out []db.Match
	require.NoError(t, f.db.Where("event_id = ?", eventID).Order("id").Find(&out).Error)
	return out
}

func (f *fixture) genderOf(id uint64) matching.Gender {
	for _, u := range f.users {
		if u.ID == id && u.Profile != nil {
			return matching.NormalizeGender(u.Profile.Gender)
		}
	}
	return matching.GenderUnknown
}

//
// Attendance
//

func TestAttend(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	e := f.newEvent(t, 4)

	a, err := f.svc.Attend(ctx, f.id("m1"), e.ID)
	require.NoError(t, err)
	assert.True(t, a.Attending)
	_, err = f.svc.Attend(ctx, f.id("f1"), e.ID)
	require.NoError(t, err)

	_, err = f.svc.Attend(ctx, f.id("m1"), e.ID)
	assert.True(t, svcErr.Is(err, svcErr.KindConflict))

	_, err = f.svc.Attend(ctx, f.id("ghost"), e.ID)
	assert.True(t, svcErr.Is(err, svcErr.KindInvalidArgument))

	_, err = f.svc.Attend(ctx, 9999, e.ID)
	assert.True(t, svcErr.Is(err, svcErr.KindNotFound))

	_, err = f.svc.Attend(ctx, f.id("m1"), 9999)
	assert.True(t, svcErr.Is(err, svcErr.KindNotFound))

	var stored db.Event
	require.NoError(t, f.db.First(&stored, e.ID).Error)
	assert.Equal(t, 1, stored.MaleCount)
	assert.Equal(t, 1, stored.FemaleCount)
	assert.Equal(t, 0, stored.CheckedInCount)
}

func TestHasAttended(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	e := f.newEvent(t, 4)

	attended, err := f.svc.HasAttended(ctx, f.id("m1"), e.ID)
	require.NoError(t, err)
	assert.False(t, attended)

	_, err = f.svc.Attend(ctx, f.id("m1"), e.ID)
	require.NoError(t, err)

	attended, err = f.svc.HasAttended(ctx, f.id("m1"), e.ID)
	require.NoError(t, err)
	assert.True(t, attended)

	attended, err = f.svc.HasAttended(ctx, f.id("m1"), 9999)
	require.NoError(t, err)
	assert.False(t, attended)
}

func TestCheckInPreconditions(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	e := f.newEvent(t, 4)

	_, err := f.svc.CheckIn(ctx, f.id("m1"), e.ID)
	assert.True(t, svcErr.Is(err, svcErr.KindForbidden), "check-in requires attendance")

	_, err = f.svc.Attend(ctx, f.id("m1"), e.ID)
	require.NoError(t, err)

	res, err := f.svc.CheckIn(ctx, f.id("m1"), e.ID)
	require.NoError(t, err)
	assert.Equal(t, "1/4 checked in", res.Status)
	assert.Nil(t, res.Matchmaking)

	_, err = f.svc.CheckIn(ctx, f.id("m1"), e.ID)
	assert.True(t, svcErr.Is(err, svcErr.KindConflict))

	_, err = f.svc.CheckIn(ctx, 9999, e.ID)
	assert.True(t, svcErr.Is(err, svcErr.KindNotFound))
	_, err = f.svc.CheckIn(ctx, f.id("m1"), 9999)
	assert.True(t, svcErr.Is(err, svcErr.KindNotFound))
}

// TestFourthCheckInTriggersMatchmaking fills a four-seat event.
func TestFourthCheckInTriggersMatchmaking(t *testing.T) {
	f := setupService(t)
	e := f.newEvent(t, 4)

	res := f.attendAndCheckIn(t, e.ID, "m1", "f1", "m2")
	assert.Equal(t, "3/4 checked in", res.Status)
	assert.Nil(t, res.Matchmaking)
	assert.Empty(t, f.eventMatches(t, e.ID))

	res = f.attendAndCheckIn(t, e.ID, "f2")
	assert.Equal(t, "4/4 checked in", res.Status)
	require.NotNil(t, res.Matchmaking)

	summary := res.Matchmaking
	assert.Equal(t, event.TriggerCapacity, summary.Trigger)
	assert.Equal(t, 4, summary.TotalParticipants)
	assert.Equal(t, 2, summary.MaleCount)
	assert.Equal(t, 2, summary.FemaleCount)
	assert.Equal(t, 2, summary.MatchesCreated)
	assert.Empty(t, summary.LeftOut)
	assert.NotEmpty(t, summary.RunID)

	matches := f.eventMatches(t, e.ID)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Equal(t, string(matching.StatusActive), m.Status)
		assert.Equal(t, string(matching.SourceEvent), m.Source)
		assert.True(t, start.Add(matching.VisibilityDelay).Equal(m.VisibleAfter))
		assert.Equal(t, matching.GenderMale, f.genderOf(m.ParticipantA))
		assert.Equal(t, matching.GenderFemale, f.genderOf(m.ParticipantB))
	}

	// the event is full now
	_, err := f.svc.Attend(context.Background(), f.id("m3"), e.ID)
	require.NoError(t, err)
	_, err = f.svc.CheckIn(context.Background(), f.id("m3"), e.ID)
	assert.True(t, svcErr.Is(err, svcErr.KindExhausted))
}

// TestFiveMenThreeWomen checks one man sits out and nobody is paired with their own gender.
func TestFiveMenThreeWomen(t *testing.T) {
	f := setupService(t)
	e := f.newEvent(t, 8)

	res := f.attendAndCheckIn(t, e.ID, "m1", "m2", "m3", "m4", "m5", "f1", "f2", "f3")
	require.NotNil(t, res.Matchmaking)
	summary := res.Matchmaking

	assert.Equal(t, 8, summary.TotalParticipants)
	assert.Equal(t, 5, summary.MaleCount)
	assert.Equal(t, 3, summary.FemaleCount)
	assert.Equal(t, 3, summary.MatchesCreated)
	require.Len(t, summary.LeftOut, 1)
	assert.Equal(t, matching.GenderMale, f.genderOf(summary.LeftOut[0]))
	require.Len(t, summary.LeftOutEmails, 1)
	assert.True(t, strings.HasPrefix(summary.LeftOutEmails[0], "m"))

	seen := map[uint64]bool{}
	for _, m := range f.eventMatches(t, e.ID) {
		assert.NotEqual(t, f.genderOf(m.ParticipantA), f.genderOf(m.ParticipantB))
		assert.False(t, seen[m.ParticipantA] || seen[m.ParticipantB], "user matched twice")
		seen[m.ParticipantA], seen[m.ParticipantB] = true, true
		assert.NotEqual(t, summary.LeftOut[0], m.ParticipantA)
	}

	var run db.MatchmakingRun
	require.NoError(t, f.db.First(&run, "id = ?", summary.RunID).Error)
	assert.Equal(t, 3, run.MatchesCreated)
	assert.Equal(t, []uint64(summary.LeftOut), []uint64(run.LeftOut))
}

// TestMatchmakingIsIdempotent re-runs a finished event.
func TestMatchmakingIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	e := f.newEvent(t, 4)

	res := f.attendAndCheckIn(t, e.ID, "m1", "f1", "m2", "f2")
	require.NotNil(t, res.Matchmaking)
	before := f.eventMatches(t, e.ID)
	require.Len(t, before, 2)

	_, err := f.svc.RunMatchmaking(ctx, e.ID, event.TriggerCapacity)
	assert.ErrorIs(t, err, event.ErrAlreadyRan)

	summary, err := f.svc.RunMatchmaking(ctx, e.ID, event.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalParticipants)
	assert.Equal(t, 0, summary.MatchesCreated)

	after := f.eventMatches(t, e.ID)
	assert.Equal(t, before, after)

	var runs int64
	require.NoError(t, f.db.Model(&db.MatchmakingRun{}).Where("event_id = ?", e.ID).Count(&runs).Error)
	assert.Equal(t, int64(2), runs)

	_, err = f.svc.RunMatchmaking(ctx, 9999, event.TriggerManual)
	assert.True(t, svcErr.Is(err, svcErr.KindNotFound))
}

// TestLateCheckInFiresDeadlineMatchmaking refuses a late check-in and pairs who is there.
func TestLateCheckInFiresDeadlineMatchmaking(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	e := f.newEvent(t, 8)

	f.attendAndCheckIn(t, e.ID, "m1", "f1", "m2")
	_, err := f.svc.Attend(ctx, f.id("f2"), e.ID)
	require.NoError(t, err)
	_, err = f.svc.Attend(ctx, f.id("f3"), e.ID)
	require.NoError(t, err)

	// exactly at the grace limit check-in still works
	f.clock.Advance(event.CheckInGrace)
	_, err = f.svc.CheckIn(ctx, f.id("f2"), e.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	_, err = f.svc.CheckIn(ctx, f.id("f3"), e.ID)
	require.True(t, svcErr.Is(err, svcErr.KindExhausted))
	assert.Contains(t, svcErr.PublicMessage(err), "Check-in period has ended")

	matches := f.eventMatches(t, e.ID)
	assert.Len(t, matches, 2)

	var run db.MatchmakingRun
	require.NoError(t, f.db.Where("dedup_key = ?", fmt.Sprintf("event:%d:deadline", e.ID)).First(&run).Error)
	assert.Equal(t, string(event.TriggerDeadline), run.Trigger)
	assert.Equal(t, 4, run.Participants)

	// a second late attempt fires nothing new
	_, err = f.svc.CheckIn(ctx, f.id("f3"), e.ID)
	assert.True(t, svcErr.Is(err, svcErr.KindExhausted))
	assert.Len(t, f.eventMatches(t, e.ID), 2)
}

// TestMatchmakingActivatesPendingPairs upgrades a save-later match found in the cohort.
func TestMatchmakingActivatesPendingPairs(t *testing.T) {
	f := setupService(t)
	e := f.newEvent(t, 2)

	pending := db.Match{
		ParticipantA: f.id("f1"), ParticipantB: f.id("m1"),
		UserLow: min(f.id("f1"), f.id("m1")), UserHigh: max(f.id("f1"), f.id("m1")),
		Status: string(matching.StatusPending), Source: string(matching.SourcePreference),
		VisibleAfter: start.Add(-time.Hour), CreatedAt: start.Add(-time.Hour),
	}
	require.NoError(t, f.db.Create(&pending).Error)

	res := f.attendAndCheckIn(t, e.ID, "m1", "f1")
	require.NotNil(t, res.Matchmaking)
	assert.Equal(t, 1, res.Matchmaking.MatchesCreated)

	var m db.Match
	require.NoError(t, f.db.First(&m, pending.ID).Error)
	assert.Equal(t, string(matching.StatusActive), m.Status)
	require.NotNil(t, m.EventID)
	assert.Equal(t, e.ID, *m.EventID)
	assert.True(t, start.Add(matching.VisibilityDelay).Equal(m.VisibleAfter))

	var count int64
	require.NoError(t, f.db.Model(&db.Match{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

// TestConcurrentCheckInsNeverExceedCapacity races more check-ins than seats.
func TestConcurrentCheckInsNeverExceedCapacity(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	e := f.newEvent(t, 3)

	names := []string{"m1", "m2", "f1", "f2", "f3"}
	for _, n := range names {
		_, err := f.svc.Attend(ctx, f.id(n), e.ID)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, exhausted := 0, 0
	for _, n := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := f.svc.CheckIn(ctx, f.id(name), e.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case svcErr.Is(err, svcErr.KindExhausted):
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(n)
	}
	wg.Wait()

	assert.Equal(t, 3, ok)
	assert.Equal(t, 2, exhausted)

	var stored db.Event
	require.NoError(t, f.db.First(&stored, e.ID).Error)
	assert.Equal(t, 3, stored.CheckedInCount)

	var runs int64
	require.NoError(t, f.db.Model(&db.MatchmakingRun{}).Where("event_id = ?", e.ID).Count(&runs).Error)
	assert.Equal(t, int64(1), runs)
}

//
// Read side
//

func TestReadSide(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	e := f.newEvent(t, 4)
	other := f.newEvent(t, 6)

	f.attendAndCheckIn(t, e.ID, "m1")
	_, err := f.svc.Attend(ctx, f.id("f1"), e.ID)
	require.NoError(t, err)
	_, err = f.svc.Attend(ctx, f.id("m1"), other.ID)
	require.NoError(t, err)

	state, err := f.svc.CheckInStatus(ctx, f.id("m1"), e.ID)
	require.NoError(t, err)
	assert.True(t, state.CheckedIn)
	assert.Equal(t, "1/4 checked in", state.Status)
	require.NotNil(t, state.Event)
	assert.Equal(t, 1, state.Event.MaleAttendees)

	state, err = f.svc.CheckInStatus(ctx, f.id("f1"), e.ID)
	require.NoError(t, err)
	assert.False(t, state.CheckedIn)

	attendees, err := f.svc.Attendees(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, attendees, 2)
	assert.Equal(t, "m1@test.com", attendees[0].Email)
	assert.Equal(t, "male", attendees[0].Gender)
	assert.True(t, attendees[0].CheckedIn)
	assert.Equal(t, "female", attendees[1].Gender)
	assert.False(t, attendees[1].CheckedIn)

	tickets, err := f.svc.Tickets(ctx, f.id("m1"))
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.True(t, tickets[0].CheckedIn)
	assert.False(t, tickets[1].CheckedIn)
	assert.Equal(t, other.ID, tickets[1].ID)

	events, err := f.svc.ListEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
