// Package matching holds the rules that decide when two users are matched:
// gender normalization, the preference decision table, the visibility gate,
// event cohort pairing and discovery scoring. Nothing in here touches storage.
package matching

import (
	"strings"
	"time"
)

// VisibilityDelay is how long an activated match stays hidden from both participants.
const VisibilityDelay = 20 * time.Minute

// Gender is the closed category set used for pairing.
type Gender int

const (
	GenderUnknown Gender = iota
	GenderMale
	GenderFemale
)

// NormalizeGender maps free-text profile genders onto the pairing categories.
func NormalizeGender(raw string) Gender {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "man", "male", "men":
		return GenderMale
	case "woman", "female", "women":
		return GenderFemale
	default:
		return GenderUnknown
	}
}

// Opposite returns the category a user of g is paired with.
func (g Gender) Opposite() Gender {
	switch g {
	case GenderMale:
		return GenderFemale
	case GenderFemale:
		return GenderMale
	default:
		return GenderUnknown
	}
}

func (g Gender) String() string {
	switch g {
	case GenderMale:
		return "male"
	case GenderFemale:
		return "female"
	default:
		return "unknown"
	}
}

// Disposition is a user's stated reaction to another user.
type Disposition string

const (
	DispositionLike      Disposition = "like"
	DispositionReject    Disposition = "reject"
	DispositionSaveLater Disposition = "save_later"
)

// ParseDisposition accepts the wire values, plus "save_for_later" as an alias.
func ParseDisposition(raw string) (Disposition, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "like":
		return DispositionLike, true
	case "reject":
		return DispositionReject, true
	case "save_later", "save_for_later":
		return DispositionSaveLater, true
	default:
		return "", false
	}
}

// Status is the stored lifecycle of a match.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
)

// CanTransition reports whether a match may move from s to next.
// deleted is terminal and active never falls back to pending.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusActive || next == StatusDeleted
	case StatusActive:
		return next == StatusActive || next == StatusDeleted
	default:
		return false
	}
}

// Source records what produced a match.
type Source string

const (
	SourcePreference Source = "preference"
	SourceEvent      Source = "event"
)

// Random is the randomness the cohort pairing consumes.
type Random interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}
