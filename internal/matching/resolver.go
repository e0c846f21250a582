package matching

import "time"

// Action is what the resolver wants done to the pair's match row.
type Action int

const (
	ActionNone Action = iota
	ActionCreate
	ActionActivate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionActivate:
		return "activate"
	case ActionDelete:
		return "delete"
	default:
		return "none"
	}
}

// Decision is the outcome of Resolve. Status and VisibleAfter are only
// meaningful for ActionCreate and ActionActivate.
type Decision struct {
	Action       Action
	Status       Status
	VisibleAfter time.Time
}

// Resolve combines both directions of a pair into a decision.
//
// prefAB and prefBA are nil when that direction has no preference yet;
// existing is nil when the pair has no match row.
//
// Precedence:
//  1. either direction missing → nothing
//  2. both like → activate the existing match or create an active one, hidden for VisibilityDelay
//  3. either reject → delete the existing match, never create one
//  4. either save_later → create a pending match visible at once, only when none exists
//
// A deleted match is terminal, so every branch leaves it alone.
func Resolve(prefAB, prefBA *Disposition, existing *Status, now time.Time) Decision {
	if prefAB == nil || prefBA == nil {
		return Decision{Action: ActionNone}
	}
	if existing != nil && *existing == StatusDeleted {
		return Decision{Action: ActionNone}
	}

	a, b := *prefAB, *prefBA
	switch {
	case a == DispositionLike && b == DispositionLike:
		action := ActionCreate
		if existing != nil {
			action = ActionActivate
		}
		return Decision{Action: action, Status: StatusActive, VisibleAfter: now.Add(VisibilityDelay)}

	case a == DispositionReject || b == DispositionReject:
		if existing != nil {
			return Decision{Action: ActionDelete, Status: StatusDeleted}
		}

	case a == DispositionSaveLater || b == DispositionSaveLater:
		if existing == nil {
			return Decision{Action: ActionCreate, Status: StatusPending, VisibleAfter: now}
		}
	}

	return Decision{Action: ActionNone}
}
