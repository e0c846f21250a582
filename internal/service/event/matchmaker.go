package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-events/internal/db"
	svcErr "github.com/oggyb/muzz-events/internal/errors"
	"github.com/oggyb/muzz-events/internal/matching"
	"github.com/oggyb/muzz-events/internal/repository"
)

// RecentMatchWindow is how far back a match counts as recent for fair rotation.
const RecentMatchWindow = time.Hour

// Trigger names the condition that started a matchmaking run.
type Trigger string

const (
	TriggerCapacity Trigger = "capacity"
	TriggerDeadline Trigger = "deadline"
	TriggerManual   Trigger = "manual"
)

// ErrAlreadyRan is returned when the trigger's run was recorded before.
// Callers treat it as success.
var ErrAlreadyRan = errors.New("matchmaking already ran for this trigger")

// Summary describes one matchmaking run.
type Summary struct {
	EventID           uint64   `json:"event_id"`
	RunID             string   `json:"run_id"`
	Trigger           Trigger  `json:"trigger"`
	TotalParticipants int      `json:"total_participants"`
	MaleCount         int      `json:"male_count"`
	FemaleCount       int      `json:"female_count"`
	MatchesCreated    int      `json:"matches_created"`
	LeftOut           []uint64 `json:"left_out_user_ids"`
	LeftOutEmails     []string `json:"left_out_emails"`
	Pairs             []Pair   `json:"pairs"`
}

// Pair is one match produced by a run.
type Pair struct {
	MatchID  uint64 `json:"match_id"`
	MaleID   uint64 `json:"male_user_id"`
	FemaleID uint64 `json:"female_user_id"`
}

// dedupKey is unique per automatic trigger; manual runs never collide.
func dedupKey(eventID uint64, trigger Trigger, runID string) string {
	if trigger == TriggerManual {
		return fmt.Sprintf("event:%d:%s:%s", eventID, trigger, runID)
	}
	return fmt.Sprintf("event:%d:%s", eventID, trigger)
}

// RunMatchmaking pairs the event's checked-in cohort across genders.
//
// Steps:
//  1. Take the event lock and record the run; a taken dedup key → ErrAlreadyRan.
//  2. Cohort = checked-in users minus those already holding a live match from this event.
//     Fewer than two → empty summary.
//  3. matching.PairCohort splits, thins and shuffles the cohort. Users matched
//     within RecentMatchWindow are the last picked to sit out.
//  4. Each pair becomes an active event match hidden for matching.VisibilityDelay.
//     A pair with a pending match has it activated; active or deleted pairs are skipped.
//
// The run row and every match write share one transaction.
func (s *Service) RunMatchmaking(ctx context.Context, eventID uint64, trigger Trigger) (*Summary, error) {
	if _, err := s.loadEvent(ctx, eventID); err != nil {
		return nil, err
	}

	var summary *Summary
	err := s.appCtx.RedisCache.WithLock(ctx, s.appCtx.RedisCache.KeyForEventLock(eventID), func(ctx context.Context) error {
		now := s.appCtx.Now()
		return s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			summary, err = s.runInTx(ctx, tx, eventID, trigger, now)
			return err
		})
	})
	if errors.Is(err, ErrAlreadyRan) {
		s.appCtx.Logger.Debug("matchmaking skipped, already ran", "event", eventID, "trigger", string(trigger))
		return nil, ErrAlreadyRan
	}
	if err != nil {
		s.appCtx.Logger.Error("matchmaking failed", "event", eventID, "trigger", string(trigger), "err", err)
		return nil, svcErr.Map(err)
	}

	s.appCtx.Logger.Info("matchmaking completed",
		"event", eventID,
		"run", summary.RunID,
		"trigger", string(trigger),
		"participants", summary.TotalParticipants,
		"males", summary.MaleCount,
		"females", summary.FemaleCount,
		"matches", summary.MatchesCreated,
		"left_out", summary.LeftOut,
	)
	return summary, nil
}

func (s *Service) runInTx(ctx context.Context, tx *gorm.DB, eventID uint64, trigger Trigger, now time.Time) (*Summary, error) {
	events := repository.NewEventRepository(tx)
	matches := repository.NewMatchRepository(tx)
	users := repository.NewUserRepository(tx)

	runID := uuid.NewString()
	run := &db.MatchmakingRun{
		ID:        runID,
		EventID:   eventID,
		Trigger:   string(trigger),
		DedupKey:  dedupKey(eventID, trigger, runID),
		LeftOut:   []uint64{},
		CreatedAt: now,
	}
	created, err := events.CreateRun(ctx, run)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, ErrAlreadyRan
	}

	summary := &Summary{
		EventID:       eventID,
		RunID:         runID,
		Trigger:       trigger,
		LeftOut:       []uint64{},
		LeftOutEmails: []string{},
		Pairs:         []Pair{},
	}

	checkedIn, err := events.CheckedInUserIDs(ctx, eventID)
	if err != nil {
		return nil, err
	}
	alreadyMatched, err := matches.EventParticipants(ctx, eventID)
	if err != nil {
		return nil, err
	}
	cohort := make([]uint64, 0, len(checkedIn))
	for _, id := range checkedIn {
		if !alreadyMatched[id] {
			cohort = append(cohort, id)
		}
	}
	summary.TotalParticipants = len(cohort)

	if len(cohort) < 2 {
		return summary, events.UpdateRunResult(ctx, runResult(run, summary))
	}

	people, err := users.UsersByIDs(ctx, cohort)
	if err != nil {
		return nil, err
	}
	attendees := make([]matching.Attendee, 0, len(cohort))
	for _, id := range cohort {
		gender := matching.GenderUnknown
		if u, ok := people[id]; ok && u.Profile != nil {
			gender = matching.NormalizeGender(u.Profile.Gender)
		}
		attendees = append(attendees, matching.Attendee{UserID: id, Gender: gender})
	}

	recent, err := matches.RecentParticipants(ctx, now.Add(-RecentMatchWindow))
	if err != nil {
		return nil, err
	}

	pairing := matching.PairCohort(attendees, recent, s.appCtx.Rand)
	summary.MaleCount, summary.FemaleCount = pairing.Males, pairing.Females
	for _, id := range pairing.LeftOut {
		summary.LeftOut = append(summary.LeftOut, id)
		summary.LeftOutEmails = append(summary.LeftOutEmails, people[id].Email)
	}

	visibleAfter := now.Add(matching.VisibilityDelay)
	for _, p := range pairing.Pairs {
		m := &db.Match{
			ParticipantA: p.Male,
			ParticipantB: p.Female,
			Status:       string(matching.StatusActive),
			Source:       string(matching.SourceEvent),
			EventID:      &eventID,
			VisibleAfter: visibleAfter,
			CreatedAt:    now,
		}
		inserted, err := matches.CreateIfAbsent(ctx, m)
		if err != nil {
			return nil, err
		}
		if !inserted {
			existing, err := matches.FindByPair(ctx, p.Male, p.Female)
			if err != nil {
				return nil, err
			}
			if existing == nil || matching.Status(existing.Status) != matching.StatusPending {
				continue
			}
			if err := matches.ActivateForEvent(ctx, existing.ID, eventID, visibleAfter); err != nil {
				return nil, err
			}
			m = existing
		}

		summary.MatchesCreated++
		summary.Pairs = append(summary.Pairs, Pair{MatchID: m.ID, MaleID: p.Male, FemaleID: p.Female})
	}

	return summary, events.UpdateRunResult(ctx, runResult(run, summary))
}

func runResult(run *db.MatchmakingRun, summary *Summary) *db.MatchmakingRun {
	run.Participants = summary.TotalParticipants
	run.MaleCount = summary.MaleCount
	run.FemaleCount = summary.FemaleCount
	run.MatchesCreated = summary.MatchesCreated
	run.LeftOut = summary.LeftOut
	return run
}
