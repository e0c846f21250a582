package match

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-events/internal/app"
	"github.com/oggyb/muzz-events/internal/db"
	svcErr "github.com/oggyb/muzz-events/internal/errors"
	"github.com/oggyb/muzz-events/internal/matching"
	"github.com/oggyb/muzz-events/internal/repository"
	"github.com/oggyb/muzz-events/internal/utils/pagination"
)

// Service owns the preference ledger and applies the match resolver.
// Every write for a pair runs under the pair's Redis lock and inside one
// transaction, so two concurrent submissions for {A,B} always see each other.
type Service struct {
	appCtx *app.AppContext

	users   *repository.UserRepository
	prefs   *repository.PreferenceRepository
	matches *repository.MatchRepository
}

// NewMatchService creates a match service with repositories bound to the shared DB.
func NewMatchService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:  appCtx,
		users:   repository.NewUserRepository(appCtx.DB),
		prefs:   repository.NewPreferenceRepository(appCtx.DB),
		matches: repository.NewMatchRepository(appCtx.DB),
	}
}

// Outcome reports what a preference write did to the pair's match.
type Outcome struct {
	Disposition matching.Disposition
	Action      matching.Action
	Match       *db.Match // nil when the pair has no match row
}

// View is one entry of a user's visible match list, seen from that user.
type View struct {
	MatchID           uint64    `json:"match_id"`
	UserID            uint64    `json:"user_id"`
	Email             string    `json:"email"`
	FirstName         string    `json:"firstname"`
	Age               int       `json:"age"`
	Bio               string    `json:"bio"`
	ImageURL          string    `json:"image_url,omitempty"`
	Status            string    `json:"status"`
	ShowMessageButton bool      `json:"show_message_button"`
	MatchDate         time.Time `json:"match_date"`
}

// SetPreference records actor's disposition toward target and resolves the pair.
//
// Behavior:
//   - Unknown disposition or actor == target → InvalidArgument.
//   - Either email unknown → NotFound.
//   - Upsert and resolution commit together; see resolvePair for the rules.
//
// Example:
//
//	svc.SetPreference(ctx, "a@x.com", "b@x.com", "like")
func (s *Service) SetPreference(ctx context.Context, actorEmail, targetEmail, rawDisposition string) (*Outcome, error) {
	s.appCtx.Logger.Debug("SetPreference called", "actor", actorEmail, "target", targetEmail, "preference", rawDisposition)

	d, ok := matching.ParseDisposition(rawDisposition)
	if !ok {
		return nil, svcErr.InvalidArgument("Invalid preference type")
	}
	if strings.EqualFold(strings.TrimSpace(actorEmail), strings.TrimSpace(targetEmail)) {
		return nil, svcErr.InvalidArgument("cannot set a preference on yourself")
	}

	actor, err := s.userByEmail(ctx, actorEmail)
	if err != nil {
		return nil, err
	}
	target, err := s.userByEmail(ctx, targetEmail)
	if err != nil {
		return nil, err
	}

	return s.SetPreferenceByID(ctx, actor.ID, target.ID, d)
}

// SetPreferenceByID is SetPreference for already resolved user ids.
func (s *Service) SetPreferenceByID(ctx context.Context, actorID, targetID uint64, d matching.Disposition) (*Outcome, error) {
	if actorID == targetID {
		return nil, svcErr.InvalidArgument("cannot set a preference on yourself")
	}

	var out *Outcome
	err := s.withPair(ctx, actorID, targetID, func(tx *gorm.DB, now time.Time) error {
		if err := repository.NewPreferenceRepository(tx).Upsert(ctx, actorID, targetID, d, now); err != nil {
			return err
		}
		res, err := resolvePair(ctx, tx, actorID, targetID, now)
		if err != nil {
			return err
		}
		res.Disposition = d
		out = res
		return nil
	})
	if err != nil {
		s.appCtx.Logger.Error("SetPreference failed", "actor", actorID, "target", targetID, "err", err)
		return nil, svcErr.Map(err)
	}

	s.appCtx.Logger.Info("preference recorded",
		"actor", actorID, "target", targetID, "preference", string(d), "action", out.Action.String())
	return out, nil
}

// UpdateMatchStatus lets a participant accept or reject an existing match.
//
// Behavior:
//   - decision must be accept or reject → InvalidArgument.
//   - Unknown user or match → NotFound; non-participant → Forbidden.
//   - accept records a like and re-runs the resolver.
//   - reject records a reject and deletes the match directly.
func (s *Service) UpdateMatchStatus(ctx context.Context, matchID uint64, userEmail, decision string) (*db.Match, error) {
	decision = strings.ToLower(strings.TrimSpace(decision))
	if decision != "accept" && decision != "reject" {
		return nil, svcErr.InvalidArgument("Invalid decision")
	}

	user, err := s.userByEmail(ctx, userEmail)
	if err != nil {
		return nil, err
	}

	m, err := s.matches.GetByID(ctx, matchID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.NotFound("Match not found")
	}
	if err != nil {
		return nil, svcErr.Map(err)
	}

	var other uint64
	switch user.ID {
	case m.ParticipantA:
		other = m.ParticipantB
	case m.ParticipantB:
		other = m.ParticipantA
	default:
		return nil, svcErr.Forbidden("User not authorized to update this match")
	}

	err = s.withPair(ctx, user.ID, other, func(tx *gorm.DB, now time.Time) error {
		prefs := repository.NewPreferenceRepository(tx)
		matches := repository.NewMatchRepository(tx)

		if decision == "accept" {
			if err := prefs.Upsert(ctx, user.ID, other, matching.DispositionLike, now); err != nil {
				return err
			}
			_, err := resolvePair(ctx, tx, user.ID, other, now)
			return err
		}

		if err := prefs.Upsert(ctx, user.ID, other, matching.DispositionReject, now); err != nil {
			return err
		}
		current, err := matches.GetByID(ctx, m.ID)
		if err != nil {
			return err
		}
		if matching.Status(current.Status) == matching.StatusDeleted {
			return nil
		}
		return matches.SetState(ctx, m.ID, matching.StatusDeleted, nil)
	})
	if err != nil {
		s.appCtx.Logger.Error("UpdateMatchStatus failed", "match", matchID, "user", user.ID, "err", err)
		return nil, svcErr.Map(err)
	}

	updated, err := s.matches.GetByID(ctx, m.ID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	s.appCtx.Logger.Info("match status updated", "match", m.ID, "user", user.ID, "decision", decision, "status", updated.Status)
	return updated, nil
}

// ListVisibleMatches returns the user's matches that passed the visibility gate.
//
// Behavior:
//   - Deleted matches and matches still inside the activation delay are hidden.
//   - Newest first; limit <= 0 returns everything.
//   - Each entry carries the other participant and the display status from the caller's side.
func (s *Service) ListVisibleMatches(ctx context.Context, email, paginationToken string, limit int) ([]View, *string, error) {
	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if _, err := pagination.Decode(paginationToken); err != nil {
		return nil, nil, svcErr.InvalidArgument("invalid pagination token")
	}

	now := s.appCtx.Now()
	rows, next, err := s.matches.ListVisible(ctx, user.ID, now, paginationToken, limit)
	if err != nil {
		return nil, nil, svcErr.Map(err)
	}

	others := make([]uint64, 0, len(rows))
	for _, m := range rows {
		others = append(others, otherParticipant(m, user.ID))
	}
	people, err := s.users.UsersByIDs(ctx, others)
	if err != nil {
		return nil, nil, svcErr.Map(err)
	}
	own, err := s.prefs.DispositionsFrom(ctx, user.ID, others)
	if err != nil {
		return nil, nil, svcErr.Map(err)
	}

	views := make([]View, 0, len(rows))
	for _, m := range rows {
		otherID := otherParticipant(m, user.ID)
		var ownPref *matching.Disposition
		if d, ok := own[otherID]; ok {
			ownPref = &d
		}
		display, button := matching.Display(matching.Status(m.Status), ownPref)

		v := View{
			MatchID:           m.ID,
			UserID:            otherID,
			Status:            string(display),
			ShowMessageButton: button,
			MatchDate:         m.CreatedAt,
		}
		if u, ok := people[otherID]; ok {
			v.Email = u.Email
			if u.Profile != nil {
				v.FirstName = u.Profile.FirstName
				v.Age = u.Profile.Age
				v.Bio = u.Profile.Bio
				v.ImageURL = u.Profile.ImageRef
			}
		}
		views = append(views, v)
	}

	s.appCtx.Logger.Debug("ListVisibleMatches result", "user", user.ID, "count", len(views))
	return views, next, nil
}

// withPair runs fn in a transaction while holding the lock of the unordered pair {a, b}.
func (s *Service) withPair(ctx context.Context, a, b uint64, fn func(tx *gorm.DB, now time.Time) error) error {
	key := s.appCtx.RedisCache.KeyForPairLock(a, b)
	err := s.appCtx.RedisCache.WithLock(ctx, key, func(ctx context.Context) error {
		now := s.appCtx.Now()
		return s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(tx, now)
		})
	})
	if err != nil {
		return err
	}

	// either side's write can change both liked-you counters
	rc := s.appCtx.RedisCache
	if err := rc.Del(ctx, rc.KeyForLikeCount(a), rc.KeyForLikeCount(b)); err != nil {
		s.appCtx.Logger.Warn("like count invalidation failed", "a", a, "b", b, "err", err)
	}
	return nil
}

func (s *Service) userByEmail(ctx context.Context, email string) (*db.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, svcErr.InvalidArgument("Missing required fields")
	}
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.NotFound("User not found")
	}
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return u, nil
}

// resolvePair reads both directions of {a, b} and applies matching.Resolve.
//
// A create that loses the race on the pair index re-reads the winner's row
// and applies the decision to it instead.
func resolvePair(ctx context.Context, tx *gorm.DB, a, b uint64, now time.Time) (*Outcome, error) {
	prefs := repository.NewPreferenceRepository(tx)
	matches := repository.NewMatchRepository(tx)

	ab, err := prefs.Disposition(ctx, a, b)
	if err != nil {
		return nil, err
	}
	ba, err := prefs.Disposition(ctx, b, a)
	if err != nil {
		return nil, err
	}
	existing, err := matches.FindByPair(ctx, a, b)
	if err != nil {
		return nil, err
	}

	decision := matching.Resolve(ab, ba, statusOf(existing), now)
	if decision.Action == matching.ActionCreate {
		m := &db.Match{
			ParticipantA: a,
			ParticipantB: b,
			Status:       string(decision.Status),
			Source:       string(matching.SourcePreference),
			VisibleAfter: decision.VisibleAfter,
			CreatedAt:    now,
		}
		created, err := matches.CreateIfAbsent(ctx, m)
		if err != nil {
			return nil, err
		}
		if created {
			return &Outcome{Action: matching.ActionCreate, Match: m}, nil
		}

		existing, err = matches.FindByPair(ctx, a, b)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, errors.New("match vanished after conflicting insert")
		}
		decision = matching.Resolve(ab, ba, statusOf(existing), now)
	}

	switch decision.Action {
	case matching.ActionActivate:
		if err := matches.SetState(ctx, existing.ID, matching.StatusActive, &decision.VisibleAfter); err != nil {
			return nil, err
		}
		existing.Status = string(matching.StatusActive)
		existing.VisibleAfter = decision.VisibleAfter
	case matching.ActionDelete:
		if err := matches.SetState(ctx, existing.ID, matching.StatusDeleted, nil); err != nil {
			return nil, err
		}
		existing.Status = string(matching.StatusDeleted)
	case matching.ActionCreate:
		// a second create after a lost race means Resolve saw no row, which cannot happen
		return nil, errors.New("unexpected create on existing pair")
	}

	return &Outcome{Action: decision.Action, Match: existing}, nil
}

func statusOf(m *db.Match) *matching.Status {
	if m == nil {
		return nil
	}
	st := matching.Status(m.Status)
	return &st
}

func otherParticipant(m db.Match, userID uint64) uint64 {
	if m.ParticipantA == userID {
		return m.ParticipantB
	}
	return m.ParticipantA
}
