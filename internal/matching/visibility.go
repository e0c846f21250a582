package matching

import "time"

// DisplayStatus is the per-viewer status derived for a listed match.
type DisplayStatus string

const (
	DisplayMatched DisplayStatus = "matched"
	DisplayDecide  DisplayStatus = "decide"
	DisplayPending DisplayStatus = "pending"
)

// IsVisible is the visibility gate: deleted matches never show, everything
// else shows once visibleAfter has passed.
func IsVisible(status Status, visibleAfter, now time.Time) bool {
	return status != StatusDeleted && !visibleAfter.After(now)
}

// Display derives what the viewer sees for a visible match and whether the
// message button is enabled. own is the viewer's preference toward the other
// participant, nil when there is none.
func Display(status Status, own *Disposition) (DisplayStatus, bool) {
	if status == StatusActive {
		return DisplayMatched, true
	}
	if own != nil && *own == DispositionSaveLater {
		return DisplayDecide, false
	}
	return DisplayPending, false
}
