package match

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-events/internal/db"
	svcErr "github.com/oggyb/muzz-events/internal/errors"
	"github.com/oggyb/muzz-events/internal/matching"
	"github.com/oggyb/muzz-events/internal/repository"
)

// DefaultDiscoverLimit is how many candidates Discover returns by default.
const DefaultDiscoverLimit = 5

// Candidate is a ranked partner returned by Discover.
type Candidate struct {
	UserID    uint64   `json:"user_id"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstname"`
	LastName  string   `json:"lastname"`
	Age       int      `json:"age"`
	Bio       string   `json:"bio"`
	Hobbies   []string `json:"hobbies"`
	Interests []string `json:"preferences"`
	Score     int      `json:"match_score"`
	ImageURL  string   `json:"image_url,omitempty"`
}

// Suggestion is the partner DiscoverAll assigns to one user.
type Suggestion struct {
	MatchID   uint64 `json:"match_id"`
	FirstName string `json:"firstname"`
	Age       int    `json:"age"`
	Score     int    `json:"score"`
	ImageURL  string `json:"image_url,omitempty"`
}

// Discover ranks candidates for one user by matching.Score.
//
// Candidates are active users with a profile whose gender is one the user is
// shown (matching.Targets), excluding the user, anyone sharing a live match with
// them and anyone they already stated a preference for. Read-only.
func (s *Service) Discover(ctx context.Context, userID uint64, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = DefaultDiscoverLimit
	}

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.NotFound("User not found")
	}
	if err != nil {
		return nil, svcErr.Map(err)
	}

	pool, err := s.users.ListActiveWithProfiles(ctx)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	partners, err := s.matches.PartnersOf(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	decided, err := s.prefs.TargetsOf(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	own := scoreInput(user.Profile)
	targets := matching.Targets(genderOf(user.Profile))

	var out []Candidate
	for _, u := range pool {
		if u.ID == userID || partners[u.ID] || slices.Contains(decided, u.ID) {
			continue
		}
		if !slices.Contains(targets, genderOf(u.Profile)) {
			continue
		}
		out = append(out, candidateOf(u, matching.Score(own, scoreInput(u.Profile))))
	}

	slices.SortStableFunc(out, func(a, b Candidate) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	if len(out) > limit {
		out = out[:limit]
	}

	s.appCtx.Logger.Debug("Discover result", "user", userID, "count", len(out))
	return out, nil
}

// DiscoverAll suggests one partner per user in a single greedy pass.
//
// Users are visited by id. Each unassigned user takes the highest scoring
// unassigned candidate of a target gender with no live match and no preference
// in either direction; both then carry the suggestion. Read-only.
func (s *Service) DiscoverAll(ctx context.Context) (map[uint64]Suggestion, error) {
	pool, err := s.users.ListActiveWithProfiles(ctx)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	pairs, err := s.matches.AllPairs(ctx)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	prefs, err := s.prefs.All(ctx)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	stated := make(map[[2]uint64]bool, len(prefs))
	for _, p := range prefs {
		stated[[2]uint64{p.ActorID, p.TargetID}] = true
	}
	blocked := func(a, b uint64) bool {
		low, high := repository.OrderedPair(a, b)
		return pairs[[2]uint64{low, high}] || stated[[2]uint64{a, b}] || stated[[2]uint64{b, a}]
	}

	out := make(map[uint64]Suggestion)
	for i := range pool {
		user := pool[i]
		if _, done := out[user.ID]; done {
			continue
		}
		g := genderOf(user.Profile)
		if g == matching.GenderUnknown {
			continue
		}

		own := scoreInput(user.Profile)
		best, bestScore := -1, -1
		for j := range pool {
			other := pool[j]
			if other.ID == user.ID || genderOf(other.Profile) != g.Opposite() {
				continue
			}
			if _, done := out[other.ID]; done || blocked(user.ID, other.ID) {
				continue
			}
			if score := matching.Score(own, scoreInput(other.Profile)); score > bestScore {
				best, bestScore = j, score
			}
		}
		if best < 0 {
			continue
		}

		partner := pool[best]
		out[user.ID] = suggestionOf(partner, bestScore)
		out[partner.ID] = suggestionOf(user, bestScore)
	}

	s.appCtx.Logger.Debug("DiscoverAll result", "suggestions", len(out))
	return out, nil
}

func genderOf(p *db.Profile) matching.Gender {
	if p == nil {
		return matching.GenderUnknown
	}
	return matching.NormalizeGender(p.Gender)
}

func scoreInput(p *db.Profile) matching.ScoreInput {
	if p == nil {
		return matching.ScoreInput{}
	}
	return matching.ScoreInput{Age: p.Age, Hobbies: p.Hobbies}
}

func candidateOf(u db.User, score int) Candidate {
	c := Candidate{UserID: u.ID, Email: u.Email, Score: score, Hobbies: []string{}, Interests: []string{}}
	if p := u.Profile; p != nil {
		c.FirstName, c.LastName = p.FirstName, p.LastName
		c.Age, c.Bio = p.Age, p.Bio
		c.ImageURL = p.ImageRef
		if p.Hobbies != nil {
			c.Hobbies = p.Hobbies
		}
		if p.Interests != nil {
			c.Interests = p.Interests
		}
	}
	return c
}

func suggestionOf(u db.User, score int) Suggestion {
	sg := Suggestion{MatchID: u.ID, Score: score}
	if u.Profile != nil {
		sg.FirstName = u.Profile.FirstName
		sg.Age = u.Profile.Age
		sg.ImageURL = u.Profile.ImageRef
	}
	return sg
}
