package recurrence

import (
	"errors"
	"time"
)

// ErrInvalidPeriod is returned when a period is zero or negative.
var ErrInvalidPeriod = errors.New("recurrence: period must be positive")

// NextOccurrence returns the first occurrence at or after now of an event that
// last happened at last and repeats every period.
//
// Entries only remember a time of day, so last is placed on now's date; if
// that lands after now it is taken to be yesterday's occurrence. At least one
// period is always added to the anchor, so an event that happened exactly now
// is next due one period later.
func NextOccurrence(last TimeOfDay, period time.Duration, now time.Time) (time.Time, error) {
	if period <= 0 {
		return time.Time{}, ErrInvalidPeriod
	}
	anchor := last.On(now)
	if anchor.After(now) {
		anchor = anchor.AddDate(0, 0, -1)
	}

	elapsed := now.Sub(anchor)
	periods := elapsed / period
	if elapsed%period != 0 || periods == 0 {
		periods++
	}
	return anchor.Add(periods * period), nil
}

// Display is what a countdown row shows for one entry.
type Display struct {
	// Remaining is next occurrence minus now. Negative means the occurrence
	// has passed and a recompute is due.
	Remaining time.Duration
	// Progress is the elapsed fraction of the current cycle in [0, 1].
	Progress float64
}

// DisplayState derives remaining time and cycle progress for an occurrence.
func DisplayState(next time.Time, period time.Duration, now time.Time) (Display, error) {
	if period <= 0 {
		return Display{}, ErrInvalidPeriod
	}
	remaining := next.Sub(now)
	progress := 1 - remaining.Seconds()/period.Seconds()
	if progress < 0 {
		progress = 0
	} else if progress > 1 {
		progress = 1
	}
	return Display{Remaining: remaining, Progress: progress}, nil
}

// Countdown is the remaining time as shown to an operator: whole seconds,
// never negative.
func (d Display) Countdown() time.Duration {
	if d.Remaining <= 0 {
		return 0
	}
	return d.Remaining.Truncate(time.Second)
}

// Percent is Progress as a whole percentage (truncated).
func (d Display) Percent() int {
	return int(d.Progress * 100)
}
