package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// TimeOfDayOf returns the time-of-day part of t (sub-second precision is dropped).
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}
}

// ParseTimeOfDay parses "HH:MM:SS" (24h clock).
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	s := strings.TrimSpace(raw)
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q (want HH:MM:SS)", raw)
	}
	var v [3]int
	limits := [3]int{23, 59, 59}
	for i, p := range parts {
		if len(p) == 0 || len(p) > 2 {
			return TimeOfDay{}, fmt.Errorf("invalid time of day %q (want HH:MM:SS)", raw)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return TimeOfDay{}, fmt.Errorf("invalid time of day %q (want HH:MM:SS)", raw)
		}
		v[i] = n
	}
	return TimeOfDay{Hour: v[0], Minute: v[1], Second: v[2]}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// On places t on the calendar date of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, t.Second, 0, day.Location())
}
