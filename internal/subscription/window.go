package subscription

import "time"

// Window is a subscription period.
type Window struct {
	Start time.Time
	End   time.Time
}

// Grant starts a fresh window of the given length at now.
func Grant(now time.Time, days int) Window {
	return Window{Start: now, End: now.AddDate(0, 0, days)}
}

// Extend adds months (as blockDays-day blocks) to a subscription.
// A window that still ends in the future is stacked onto; a lapsed or missing
// window restarts at now, so lapsed time is never credited retroactively.
// start is the existing start when stacking, otherwise now.
func Extend(start, end *time.Time, now time.Time, months, blockDays int) Window {
	days := months * blockDays
	if end != nil && end.After(now) {
		w := Window{End: end.AddDate(0, 0, days)}
		if start != nil {
			w.Start = *start
		} else {
			w.Start = now
		}
		return w
	}
	return Window{Start: now, End: now.AddDate(0, 0, days)}
}
