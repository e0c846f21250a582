// Package explore serves the "liked you" inbox: who liked a user, and how many.
package explore

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-events/internal/app"
	"github.com/oggyb/muzz-events/internal/db"
	svcErr "github.com/oggyb/muzz-events/internal/errors"
	"github.com/oggyb/muzz-events/internal/repository"
	"github.com/oggyb/muzz-events/internal/utils/pagination"
)

// PageSize is how many likers one page holds.
const PageSize = 5

// countTTL is how long a cached like count lives without access.
const countTTL = time.Hour

// Service implements the liked-you queries on top of the preference ledger
// and the Redis counter cache.
type Service struct {
	appCtx *app.AppContext
	users  *repository.UserRepository
	prefs  *repository.PreferenceRepository
}

// NewExploreService creates a new Explore service with dependencies from AppContext.
func NewExploreService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx: appCtx,
		users:  repository.NewUserRepository(appCtx.DB),
		prefs:  repository.NewPreferenceRepository(appCtx.DB),
	}
}

// Liker is one user who liked the recipient.
type Liker struct {
	UserID    uint64    `json:"user_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstname"`
	LikedAt   time.Time `json:"liked_at"`
}

// ListLikedYou returns the users who liked the recipient.
//
// Behavior:
//   - Users the recipient rejected are excluded.
//   - newOnly drops likes the recipient already returned.
//   - Pages of PageSize, newest first; a bad token → InvalidArgument.
//
// Example:
//
//	svc.ListLikedYou(ctx, "alice@test.com", "", true)
func (s *Service) ListLikedYou(ctx context.Context, email, token string, newOnly bool) ([]Liker, *string, error) {
	s.appCtx.Logger.Debug("ListLikedYou called", "recipient", email, "token", token, "new_only", newOnly)

	recipient, err := s.userByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if _, err := pagination.Decode(token); err != nil {
		return nil, nil, svcErr.InvalidArgument("invalid pagination token")
	}

	prefs, next, err := s.prefs.Likers(ctx, recipient.ID, token, PageSize, newOnly)
	if err != nil {
		s.appCtx.Logger.Error("Likers failed", "recipient", recipient.ID, "err", err)
		return nil, nil, svcErr.Map(err)
	}

	ids := make([]uint64, 0, len(prefs))
	for _, p := range prefs {
		ids = append(ids, p.ActorID)
	}
	users, err := s.users.UsersByIDs(ctx, ids)
	if err != nil {
		return nil, nil, svcErr.Map(err)
	}

	out := make([]Liker, 0, len(prefs))
	for _, p := range prefs {
		l := Liker{UserID: p.ActorID, LikedAt: p.UpdatedAt}
		if u, ok := users[p.ActorID]; ok {
			l.Email = u.Email
			if u.Profile != nil {
				l.FirstName = u.Profile.FirstName
			}
		}
		out = append(out, l)
	}

	s.appCtx.Logger.Debug("ListLikedYou result", "liker_count", len(out), "has_next", next != nil)
	return out, next, nil
}

// CountLikedYou returns how many users liked the recipient.
//
// Cache-first:
//  1. Reads likes:count:<id> from Redis and refreshes its TTL on a hit.
//  2. On a miss or unparsable value, counts in the DB and caches the result.
//
// Preference writes drop the affected counters, so a hit is never stale.
func (s *Service) CountLikedYou(ctx context.Context, email string) (uint64, error) {
	recipient, err := s.userByEmail(ctx, email)
	if err != nil {
		return 0, err
	}

	key := s.appCtx.RedisCache.KeyForLikeCount(recipient.ID)
	if cached, _ := s.appCtx.RedisCache.Get(ctx, key); cached != "" {
		if n, err := strconv.ParseUint(cached, 10, 64); err == nil {
			_ = s.appCtx.RedisCache.Client.Expire(ctx, key, countTTL).Err()
			return n, nil
		}
	}

	count, err := s.prefs.CountLikers(ctx, recipient.ID)
	if err != nil {
		return 0, svcErr.Map(err)
	}
	if err := s.appCtx.RedisCache.Set(ctx, key, strconv.FormatInt(count, 10), countTTL); err != nil {
		s.appCtx.Logger.Warn("like count not cached", "recipient", recipient.ID, "err", err)
	}
	return uint64(count), nil
}

func (s *Service) userByEmail(ctx context.Context, email string) (*db.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, svcErr.InvalidArgument("email is required")
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
