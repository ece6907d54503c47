package display

import (
	"errors"
	"strings"
	"testing"
	"time"

	"bosstimer/internal/recurrence"
	"bosstimer/internal/timers"
)

func TestFormatCountdown(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00"},
		{-5 * time.Second, "00:00"},
		{59*time.Second + 900*time.Millisecond, "00:59"},
		{3 * time.Minute, "03:00"},
		{time.Hour + 2*time.Minute + 3*time.Second, "01:02:03"},
	}
	for _, tc := range cases {
		if got := FormatCountdown(tc.in); got != tc.want {
			t.Fatalf("FormatCountdown(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTable(t *testing.T) {
	t.Parallel()

	next := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)
	rows := []timers.Row{
		{
			Entry:   timers.Entry{Order: 1, Name: "Dragon", Minutes: 60, LastTime: "10:00:00", Enabled: true},
			Next:    next,
			Display: recurrence.Display{Remaining: 30 * time.Minute, Progress: 0.5},
		},
		{
			Entry: timers.Entry{Order: 2, Name: "Golem", Minutes: 0, LastTime: "10:00:00", Enabled: true},
			Err:   errors.New("bad period"),
		},
	}
	out := TableString(rows)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d:\n%s", len(lines), out)
	}
	for _, want := range []string{"Dragon", "11:00:00", "30:00", "[#####.....]  50%"} {
		if !strings.Contains(lines[1], want) {
			t.Fatalf("row 1 %q missing %q", lines[1], want)
		}
	}
	if !strings.Contains(lines[2], "bad period") || !strings.Contains(lines[2], "error") {
		t.Fatalf("row 2 %q", lines[2])
	}
}
