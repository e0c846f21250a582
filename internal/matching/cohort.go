package matching

// Attendee is a checked-in user as seen by the cohort pairing.
type Attendee struct {
	UserID uint64
	Gender Gender
}

// Pair is one pairing produced for an event, male side first.
type Pair struct {
	Male   uint64
	Female uint64
}

// Pairing is the outcome of PairCohort.
type Pairing struct {
	Pairs []Pair
	// Males and Females count the cohort before anyone is left out.
	Males   int
	Females int
	// LeftOut is the user removed from the larger group by fair rotation.
	LeftOut []uint64
	// Unpaired are the remaining users of the larger group beyond the smaller group's size.
	Unpaired []uint64
	// Excluded are attendees whose gender does not normalize to a pairing category.
	Excluded []uint64
	// SelfPairs counts pairings skipped because both sides were the same user.
	SelfPairs int
}

// PairCohort pairs checked-in attendees across genders.
//
// Steps:
//  1. Split attendees into male and female groups, unknown genders are excluded.
//  2. If the groups differ in size, remove one user from the larger group.
//     Users absent from recentlyMatched are preferred so sitting out rotates;
//     when every candidate was recently matched the pick is uniformly random.
//  3. Shuffle both groups independently.
//  4. Pair by index up to the smaller size, skipping any self pair.
func PairCohort(attendees []Attendee, recentlyMatched map[uint64]bool, rng Random) Pairing {
	var males, females []uint64
	var res Pairing
	for _, a := range attendees {
		switch a.Gender {
		case GenderMale:
			males = append(males, a.UserID)
		case GenderFemale:
			females = append(females, a.UserID)
		default:
			res.Excluded = append(res.Excluded, a.UserID)
		}
	}
	res.Males, res.Females = len(males), len(females)

	if len(males) > len(females) {
		var out uint64
		males, out = leaveOne(males, recentlyMatched, rng)
		res.LeftOut = append(res.LeftOut, out)
	} else if len(females) > len(males) {
		var out uint64
		females, out = leaveOne(females, recentlyMatched, rng)
		res.LeftOut = append(res.LeftOut, out)
	}

	rng.Shuffle(len(males), func(i, j int) { males[i], males[j] = males[j], males[i] })
	rng.Shuffle(len(females), func(i, j int) { females[i], females[j] = females[j], females[i] })

	n := min(len(males), len(females))
	for i := 0; i < n; i++ {
		if males[i] == females[i] {
			res.SelfPairs++
			continue
		}
		res.Pairs = append(res.Pairs, Pair{Male: males[i], Female: females[i]})
	}
	res.Unpaired = append(res.Unpaired, males[n:]...)
	res.Unpaired = append(res.Unpaired, females[n:]...)

	return res
}

// leaveOne removes one user from group and returns the shortened group and the removed id.
func leaveOne(group []uint64, recentlyMatched map[uint64]bool, rng Random) ([]uint64, uint64) {
	var candidates []int
	for i, id := range group {
		if !recentlyMatched[id] {
			candidates = append(candidates, i)
		}
	}

	var idx int
	if len(candidates) > 0 {
		idx = candidates[rng.IntN(len(candidates))]
	} else {
		idx = rng.IntN(len(group))
	}

	out := group[idx]
	rest := make([]uint64, 0, len(group)-1)
	rest = append(rest, group[:idx]...)
	rest = append(rest, group[idx+1:]...)
	return rest, out
}
