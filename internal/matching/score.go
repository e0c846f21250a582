package matching

import "strings"

// ScoreInput is the part of a profile discovery scoring reads.
type ScoreInput struct {
	Age     int // 0 means unknown
	Hobbies []string
}

// Score rates how compatible two profiles look.
//
// Age: difference ≤5 → 30, ≤10 → 20, ≤15 → 10, skipped when either age is unknown.
// Hobbies: 10 per shared hobby (case-insensitive), capped at 30.
func Score(a, b ScoreInput) int {
	score := 0

	if a.Age > 0 && b.Age > 0 {
		diff := a.Age - b.Age
		if diff < 0 {
			diff = -diff
		}
		switch {
		case diff <= 5:
			score += 30
		case diff <= 10:
			score += 20
		case diff <= 15:
			score += 10
		}
	}

	if len(a.Hobbies) > 0 && len(b.Hobbies) > 0 {
		own := make(map[string]struct{}, len(a.Hobbies))
		for _, h := range a.Hobbies {
			own[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
		}
		common := 0
		seen := make(map[string]struct{}, len(b.Hobbies))
		for _, h := range b.Hobbies {
			key := strings.ToLower(strings.TrimSpace(h))
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if _, ok := own[key]; ok {
				common++
			}
		}
		score += min(common*10, 30)
	}

	return score
}

// Targets returns the genders a user of g is shown in discovery.
// Users without a recognized gender see everyone with one.
func Targets(g Gender) []Gender {
	if g == GenderUnknown {
		return []Gender{GenderMale, GenderFemale}
	}
	return []Gender{g.Opposite()}
}
