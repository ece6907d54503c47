package recurrence

import "time"

// AlertState is the per-tick alert classification of an entry.
type AlertState int

const (
	AlertNone AlertState = iota
	AlertPreWarning
	AlertDue
)

func (s AlertState) String() string {
	switch s {
	case AlertPreWarning:
		return "prewarning"
	case AlertDue:
		return "due"
	default:
		return "none"
	}
}

// Policy holds the pre-warning window. Both bounds are inclusive.
//
// The window must be at least one poll interval wide or a pre-warning can be
// skipped entirely.
type Policy struct {
	PreWarnMin time.Duration
	PreWarnMax time.Duration
}

// DefaultPolicy warns three minutes ahead with a 2s margin for late ticks.
var DefaultPolicy = Policy{
	PreWarnMin: 178 * time.Second,
	PreWarnMax: 180 * time.Second,
}

// Classify applies DefaultPolicy.
func Classify(remaining time.Duration, enabled, ringing bool) AlertState {
	return DefaultPolicy.Classify(remaining, enabled, ringing)
}

// Classify evaluates, in order: disabled entries never alert; a reached
// occurrence is Due unless an alarm for it is already ringing; a remaining
// time inside the window is a PreWarning.
func (p Policy) Classify(remaining time.Duration, enabled, ringing bool) AlertState {
	if !enabled {
		return AlertNone
	}
	if remaining <= 0 {
		if ringing {
			return AlertNone
		}
		return AlertDue
	}
	if remaining >= p.PreWarnMin && remaining <= p.PreWarnMax {
		return AlertPreWarning
	}
	return AlertNone
}

// Validate reports whether the window is usable with the given poll interval.
func (p Policy) Validate(tick time.Duration) error {
	if p.PreWarnMin <= 0 || p.PreWarnMax < p.PreWarnMin {
		return errInvalidWindow
	}
	if tick > 0 && p.PreWarnMax-p.PreWarnMin+time.Second < tick {
		return errWindowTooNarrow
	}
	return nil
}
