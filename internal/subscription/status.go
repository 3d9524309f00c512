package subscription

import "time"

// Status is the effective lifecycle state of a listing's subscription.
// It is always derived, never read back from storage.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// HintPending is the only stored hint value that carries meaning on its own.
// Any other stored value means "activated at some point" and defers to the end date.
const HintPending = "pending"

// HintActive is written when a listing is granted or extended a window.
const HintActive = "active"

// Resolve maps the stored hint and window end to an effective status at now.
func Resolve(hint string, end *time.Time, now time.Time) Status {
	if hint == HintPending {
		return StatusPending
	}
	if end == nil {
		return StatusExpired
	}
	if now.After(*end) {
		return StatusExpired
	}
	return StatusActive
}

// IsExpired reports whether the resolved status is expired.
func IsExpired(hint string, end *time.Time, now time.Time) bool {
	return Resolve(hint, end, now) == StatusExpired
}

// Expired reports whether s is the expired status.
func (s Status) Expired() bool {
	return s == StatusExpired
}

// Visible reports whether the status is publicly visible.
func (s Status) Visible() bool {
	return s == StatusActive
}
