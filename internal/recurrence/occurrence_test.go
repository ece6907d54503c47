package recurrence

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

func at(h, m, s int) time.Time {
	return time.Date(2024, time.March, 10, h, m, s, 0, time.UTC)
}

func TestNextOccurrence(t *testing.T) {
	t.Parallel()

	hour := 60 * time.Minute
	tests := []struct {
		name   string
		last   TimeOfDay
		period time.Duration
		now    time.Time
		want   time.Time
	}{
		{name: "fired exactly now", last: TimeOfDay{10, 0, 0}, period: hour, now: at(10, 0, 0), want: at(11, 0, 0)},
		{name: "several periods elapsed", last: TimeOfDay{10, 0, 0}, period: hour, now: at(13, 5, 0), want: at(14, 0, 0)},
		{name: "exact multiple lands on now", last: TimeOfDay{10, 0, 0}, period: hour, now: at(12, 0, 0), want: at(12, 0, 0)},
		{name: "last later than now is yesterday", last: TimeOfDay{23, 30, 0}, period: hour, now: at(0, 10, 0), want: at(0, 30, 0)},
		{name: "crosses midnight", last: TimeOfDay{22, 0, 0}, period: 90 * time.Minute, now: at(23, 45, 0), want: at(22, 0, 0).Add(3 * time.Hour)},
		{name: "sub-minute period left for a day", last: TimeOfDay{0, 0, 0}, period: 7 * time.Second, now: at(23, 59, 59), want: at(0, 0, 0).Add(12343 * 7 * time.Second)},
		{name: "sub-second now", last: TimeOfDay{10, 0, 0}, period: hour, now: at(10, 0, 0).Add(300 * time.Millisecond), want: at(11, 0, 0)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NextOccurrence(tt.last, tt.period, tt.now)
			if err != nil {
				t.Fatalf("NextOccurrence() error = %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("NextOccurrence() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNextOccurrenceRejectsNonPositivePeriod(t *testing.T) {
	t.Parallel()

	for _, p := range []time.Duration{0, -time.Second} {
		if _, err := NextOccurrence(TimeOfDay{}, p, at(1, 0, 0)); !errors.Is(err, ErrInvalidPeriod) {
			t.Fatalf("period %s: expected ErrInvalidPeriod, got %v", p, err)
		}
		if _, err := DisplayState(at(1, 0, 0), p, at(1, 0, 0)); !errors.Is(err, ErrInvalidPeriod) {
			t.Fatalf("period %s: DisplayState expected ErrInvalidPeriod, got %v", p, err)
		}
	}
}

func TestNextOccurrenceProperties(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		last := TimeOfDay{Hour: rng.Intn(24), Minute: rng.Intn(60), Second: rng.Intn(60)}
		period := time.Duration(1+rng.Intn(1440))*time.Minute + time.Duration(rng.Intn(60))*time.Second
		now := at(0, 0, 0).Add(time.Duration(rng.Int63n(int64(24 * time.Hour))))

		next, err := NextOccurrence(last, period, now)
		if err != nil {
			t.Fatalf("NextOccurrence(%s, %s, %s) error = %v", last, period, now, err)
		}
		if next.Before(now) {
			t.Fatalf("NextOccurrence(%s, %s, %s) = %s is before now", last, period, now, next)
		}
		// An occurrence landing exactly on now is reported one period later.
		if prev := next.Add(-period); !prev.Before(now) && !prev.Equal(now) {
			t.Fatalf("NextOccurrence(%s, %s, %s) = %s is not the earliest occurrence", last, period, now, next)
		}

		again, err := NextOccurrence(TimeOfDayOf(next.Add(-period)), period, now)
		if err != nil {
			t.Fatalf("idempotence call error = %v", err)
		}
		// Past a day the time of day no longer pins down the previous date.
		if period <= 24*time.Hour && !again.Equal(next) {
			t.Fatalf("idempotence: last=%s period=%s now=%s: got %s, want %s", last, period, now, again, next)
		}
	}
}

func TestDisplayState(t *testing.T) {
	t.Parallel()

	hour := 60 * time.Minute
	tests := []struct {
		name      string
		next      time.Time
		now       time.Time
		remaining time.Duration
		countdown time.Duration
		progress  float64
	}{
		{name: "just reset", next: at(11, 0, 0), now: at(10, 0, 0), remaining: hour, countdown: hour, progress: 0},
		{name: "mid cycle", next: at(14, 0, 0), now: at(13, 5, 0), remaining: 55 * time.Minute, countdown: 55 * time.Minute, progress: 5.0 / 60},
		{name: "reached", next: at(14, 0, 0), now: at(14, 0, 0), remaining: 0, countdown: 0, progress: 1},
		{name: "overdue", next: at(14, 0, 0), now: at(14, 0, 1), remaining: -time.Second, countdown: 0, progress: 1},
		{name: "beyond period", next: at(16, 0, 0), now: at(14, 0, 0), remaining: 2 * hour, countdown: 2 * hour, progress: 0},
		{name: "fractional seconds", next: at(14, 0, 0), now: at(13, 59, 58).Add(-500 * time.Millisecond), remaining: 2500 * time.Millisecond, countdown: 2 * time.Second},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d, err := DisplayState(tt.next, hour, tt.now)
			if err != nil {
				t.Fatalf("DisplayState() error = %v", err)
			}
			if d.Remaining != tt.remaining {
				t.Fatalf("Remaining = %s, want %s", d.Remaining, tt.remaining)
			}
			if d.Countdown() != tt.countdown {
				t.Fatalf("Countdown() = %s, want %s", d.Countdown(), tt.countdown)
			}
			if tt.name != "fractional seconds" && !near(d.Progress, tt.progress) {
				t.Fatalf("Progress = %f, want %f", d.Progress, tt.progress)
			}
		})
	}
}

func TestScenarioHourlyFromTen(t *testing.T) {
	t.Parallel()

	next, err := NextOccurrence(TimeOfDay{10, 0, 0}, time.Hour, at(10, 0, 0))
	if err != nil {
		t.Fatalf("NextOccurrence() error = %v", err)
	}
	d, _ := DisplayState(next, time.Hour, at(10, 0, 0))
	if !next.Equal(at(11, 0, 0)) || d.Remaining != 3600*time.Second || d.Percent() != 0 {
		t.Fatalf("got next=%s remaining=%s percent=%d", next, d.Remaining, d.Percent())
	}

	next, _ = NextOccurrence(TimeOfDay{10, 0, 0}, time.Hour, at(13, 5, 0))
	d, _ = DisplayState(next, time.Hour, at(13, 5, 0))
	if !next.Equal(at(14, 0, 0)) || d.Remaining != 3300*time.Second {
		t.Fatalf("got next=%s remaining=%s", next, d.Remaining)
	}
}

func TestProgressMonotonicWithinCycle(t *testing.T) {
	t.Parallel()

	period := 10 * time.Minute
	last := TimeOfDay{8, 0, 0}
	start := at(8, 0, 1)
	next, _ := NextOccurrence(last, period, start)

	prev := -1.0
	for now := start; now.Before(next); now = now.Add(7 * time.Second) {
		d, err := DisplayState(next, period, now)
		if err != nil {
			t.Fatalf("DisplayState() error = %v", err)
		}
		if d.Progress < prev {
			t.Fatalf("progress decreased at %s: %f < %f", now, d.Progress, prev)
		}
		prev = d.Progress
	}
}

func near(a, b float64) bool {
	const eps = 1e-9
	return a-b < eps && b-a < eps
}
