package matching_test

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-events/internal/matching"
)

var now = time.Date(2026, 10, 16, 19, 0, 0, 0, time.UTC)

func disp(d matching.Disposition) *matching.Disposition { return &d }
func status(s matching.Status) *matching.Status            { return &s }

func TestNormalizeGender(t *testing.T) {
	for _, in := range []string{"man", "Male", " MEN ", "male"} {
		assert.Equal(t, matching.GenderMale, matching.NormalizeGender(in), in)
	}
	for _, in := range []string{"woman", "Female", "WOMEN"} {
		assert.Equal(t, matching.GenderFemale, matching.NormalizeGender(in), in)
	}
	for _, in := range []string{"", "nonbinary", "m", "f"} {
		assert.Equal(t, matching.GenderUnknown, matching.NormalizeGender(in), in)
	}
	assert.Equal(t, matching.GenderFemale, matching.GenderMale.Opposite())
	assert.Equal(t, matching.GenderUnknown, matching.GenderUnknown.Opposite())
}

func TestParseDisposition(t *testing.T) {
	d, ok := matching.ParseDisposition("save_for_later")
	assert.True(t, ok)
	assert.Equal(t, matching.DispositionSaveLater, d)

	d, ok = matching.ParseDisposition("LIKE")
	assert.True(t, ok)
	assert.Equal(t, matching.DispositionLike, d)

	_, ok = matching.ParseDisposition("superlike")
	assert.False(t, ok)
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, matching.StatusPending.CanTransition(matching.StatusActive))
	assert.True(t, matching.StatusPending.CanTransition(matching.StatusDeleted))
	assert.True(t, matching.StatusActive.CanTransition(matching.StatusActive))
	assert.True(t, matching.StatusActive.CanTransition(matching.StatusDeleted))
	assert.False(t, matching.StatusActive.CanTransition(matching.StatusPending))
	assert.False(t, matching.StatusDeleted.CanTransition(matching.StatusActive))
	assert.False(t, matching.StatusDeleted.CanTransition(matching.StatusPending))
}

func TestResolve(t *testing.T) {
	like, reject, later := matching.DispositionLike, matching.DispositionReject, matching.DispositionSaveLater

	tests := []struct {
		name     string
		ab, ba   *matching.Disposition
		existing *matching.Status
		action   matching.Action
		status   matching.Status
		visible  time.Time
	}{
		{"one-sided like", disp(like), nil, nil, matching.ActionNone, "", time.Time{}},
		{"mutual like creates active", disp(like), disp(like), nil, matching.ActionCreate, matching.StatusActive, now.Add(20 * time.Minute)},
		{"mutual like activates pending", disp(like), disp(like), status(matching.StatusPending), matching.ActionActivate, matching.StatusActive, now.Add(20 * time.Minute)},
		{"mutual like reaffirms active", disp(like), disp(like), status(matching.StatusActive), matching.ActionActivate, matching.StatusActive, now.Add(20 * time.Minute)},
		{"reject without match is a no-op", disp(like), disp(reject), nil, matching.ActionNone, "", time.Time{}},
		{"reject deletes pending", disp(later), disp(reject), status(matching.StatusPending), matching.ActionDelete, matching.StatusDeleted, time.Time{}},
		{"reject deletes active", disp(reject), disp(like), status(matching.StatusActive), matching.ActionDelete, matching.StatusDeleted, time.Time{}},
		{"save later creates pending", disp(like), disp(later), nil, matching.ActionCreate, matching.StatusPending, now},
		{"both save later creates pending", disp(later), disp(later), nil, matching.ActionCreate, matching.StatusPending, now},
		{"save later keeps active", disp(later), disp(later), status(matching.StatusActive), matching.ActionNone, "", time.Time{}},
		{"deleted is terminal for likes", disp(like), disp(like), status(matching.StatusDeleted), matching.ActionNone, "", time.Time{}},
		{"deleted is terminal for save later", disp(later), disp(like), status(matching.StatusDeleted), matching.ActionNone, "", time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matching.Resolve(tt.ab, tt.ba, tt.existing, now)
			assert.Equal(t, tt.action, got.Action)
			if tt.action == matching.ActionNone {
				return
			}
			assert.Equal(t, tt.status, got.Status)
			assert.True(t, tt.visible.Equal(got.VisibleAfter), "visible_after %s, want %s", got.VisibleAfter, tt.visible)
		})
	}
}

func TestResolveIsSymmetricForMutualLike(t *testing.T) {
	like := matching.DispositionLike
	ab := matching.Resolve(disp(like), disp(like), nil, now)
	ba := matching.Resolve(disp(like), disp(like), nil, now)
	assert.Equal(t, ab, ba)
}

func TestVisibilityGate(t *testing.T) {
	assert.False(t, matching.IsVisible(matching.StatusActive, now.Add(time.Second), now))
	assert.True(t, matching.IsVisible(matching.StatusActive, now, now))
	assert.True(t, matching.IsVisible(matching.StatusPending, now.Add(-time.Hour), now))
	assert.False(t, matching.IsVisible(matching.StatusDeleted, now.Add(-time.Hour), now))
}

func TestDisplay(t *testing.T) {
	st, msg := matching.Display(matching.StatusActive, disp(matching.DispositionLike))
	assert.Equal(t, matching.DisplayMatched, st)
	assert.True(t, msg)

	st, msg = matching.Display(matching.StatusPending, disp(matching.DispositionSaveLater))
	assert.Equal(t, matching.DisplayDecide, st)
	assert.False(t, msg)

	st, msg = matching.Display(matching.StatusPending, disp(matching.DispositionLike))
	assert.Equal(t, matching.DisplayPending, st)
	assert.False(t, msg)

	st, _ = matching.Display(matching.StatusPending, nil)
	assert.Equal(t, matching.DisplayPending, st)
}

func cohort(males, females int) []matching.Attendee {
	var out []matching.Attendee
	id := uint64(1)
	for i := 0; i < males; i++ {
		out = append(out, matching.Attendee{UserID: id, Gender: matching.GenderMale})
		id++
	}
	for i := 0; i < females; i++ {
		out = append(out, matching.Attendee{UserID: id, Gender: matching.GenderFemale})
		id++
	}
	return out
}

func TestPairCohort_FiveMalesThreeFemales(t *testing.T) {
	attendees := cohort(5, 3)
	genders := map[uint64]matching.Gender{}
	for _, a := range attendees {
		genders[a.UserID] = a.Gender
	}

	for seed := uint64(0); seed < 50; seed++ {
		res := matching.PairCohort(attendees, nil, rand.New(rand.NewPCG(seed, seed+1)))

		require.Len(t, res.Pairs, 3)
		require.Len(t, res.LeftOut, 1)
		assert.Equal(t, matching.GenderMale, genders[res.LeftOut[0]])
		assert.Equal(t, 5, res.Males)
		assert.Equal(t, 3, res.Females)

		used := map[uint64]bool{res.LeftOut[0]: true}
		for _, p := range res.Pairs {
			assert.Equal(t, matching.GenderMale, genders[p.Male])
			assert.Equal(t, matching.GenderFemale, genders[p.Female])
			assert.False(t, used[p.Male], "male paired twice")
			assert.False(t, used[p.Female], "female paired twice")
			used[p.Male], used[p.Female] = true, true
		}
		for _, id := range res.Unpaired {
			assert.Equal(t, matching.GenderMale, genders[id])
		}
		assert.Len(t, res.Unpaired, 1)
	}
}

func TestPairCohort_FairRotationPrefersNotRecentlyMatched(t *testing.T) {
	attendees := cohort(3, 2) // males 1,2,3 females 4,5
	recent := map[uint64]bool{1: true, 3: true}

	for seed := uint64(0); seed < 20; seed++ {
		res := matching.PairCohort(attendees, recent, rand.New(rand.NewPCG(seed, 7)))
		require.Len(t, res.LeftOut, 1)
		assert.Equal(t, uint64(2), res.LeftOut[0])
		assert.Len(t, res.Pairs, 2)
	}
}

func TestPairCohort_AllRecentlyMatchedFallsBackToRandom(t *testing.T) {
	attendees := cohort(1, 3) // male 1, females 2,3,4
	recent := map[uint64]bool{1: true, 2: true, 3: true, 4: true}

	seen := map[uint64]bool{}
	for seed := uint64(0); seed < 60; seed++ {
		res := matching.PairCohort(attendees, recent, rand.New(rand.NewPCG(seed, 3)))
		require.Len(t, res.LeftOut, 1)
		seen[res.LeftOut[0]] = true
		assert.Len(t, res.Pairs, 1)
	}
	assert.Greater(t, len(seen), 1, "left-out pick should vary")
	assert.False(t, seen[1], "the smaller group is never thinned")
}

func TestPairCohort_ExcludesUnknownAndSkipsSelfPairs(t *testing.T) {
	attendees := []matching.Attendee{
		{UserID: 1, Gender: matching.GenderMale},
		{UserID: 1, Gender: matching.GenderFemale},
		{UserID: 9, Gender: matching.GenderUnknown},
	}

	res := matching.PairCohort(attendees, nil, rand.New(rand.NewPCG(1, 1)))
	assert.Empty(t, res.Pairs)
	assert.Equal(t, 1, res.SelfPairs)
	assert.Equal(t, []uint64{9}, res.Excluded)
	assert.Empty(t, res.LeftOut)
}

func TestPairCohort_Balanced(t *testing.T) {
	res := matching.PairCohort(cohort(2, 2), nil, rand.New(rand.NewPCG(5, 5)))
	assert.Len(t, res.Pairs, 2)
	assert.Empty(t, res.LeftOut)
	assert.Empty(t, res.Unpaired)
}

func TestScore(t *testing.T) {
	assert.Equal(t, 30, matching.Score(matching.ScoreInput{Age: 25}, matching.ScoreInput{Age: 30}))
	assert.Equal(t, 20, matching.Score(matching.ScoreInput{Age: 25}, matching.ScoreInput{Age: 35}))
	assert.Equal(t, 10, matching.Score(matching.ScoreInput{Age: 25}, matching.ScoreInput{Age: 40}))
	assert.Equal(t, 0, matching.Score(matching.ScoreInput{Age: 25}, matching.ScoreInput{Age: 41}))
	assert.Equal(t, 0, matching.Score(matching.ScoreInput{Age: 0}, matching.ScoreInput{Age: 30}))

	a := matching.ScoreInput{Age: 30, Hobbies: []string{"Chess", "music", "yoga", "art"}}
	b := matching.ScoreInput{Age: 31, Hobbies: []string{"chess", "Music", "yoga", "art", "chess"}}
	assert.Equal(t, 60, matching.Score(a, b)) // 30 age + capped 30 hobbies

	c := matching.ScoreInput{Age: 50, Hobbies: []string{"chess"}}
	assert.Equal(t, 10, matching.Score(a, c))
}

func TestTargets(t *testing.T) {
	assert.Equal(t, []matching.Gender{matching.GenderFemale}, matching.Targets(matching.GenderMale))
	assert.Equal(t, []matching.Gender{matching.GenderMale, matching.GenderFemale}, matching.Targets(matching.GenderUnknown))
}
