package display

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"bosstimer/internal/recurrence"
	"bosstimer/internal/timers"
)

func barRow(id, name string, progress float64) timers.Row {
	return timers.Row{
		Entry:   timers.Entry{ID: id, Name: name, Minutes: 60, LastTime: "10:00:00", Enabled: true},
		Display: recurrence.Display{Remaining: time.Duration((1 - progress) * float64(time.Hour)), Progress: progress},
	}
}

func TestBarsFollowEntries(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	b := NewBars(&out, time.Hour)

	b.Update([]timers.Row{barRow("a", "Kzarka", 0.25), barRow("b", "Nouver", 0.5)})
	if len(b.lines) != 2 || len(b.order) != 2 {
		t.Fatalf("lines = %d, order = %v", len(b.lines), b.order)
	}
	first := b.lines["a"]
	if got := first.label.Load().(string); got != "Kzarka" {
		t.Fatalf("label = %q", got)
	}
	if got := first.bar.Current(); got != barScale/4 {
		t.Fatalf("current = %d, want %d", got, barScale/4)
	}

	// Same order keeps the bars and only updates them.
	b.Update([]timers.Row{barRow("a", "Kzarka", 1.5), barRow("b", "Nouver", -1)})
	if b.lines["a"] != first {
		t.Fatalf("bar rebuilt although the order did not change")
	}
	if got := first.bar.Current(); got != barScale {
		t.Fatalf("clamped current = %d, want %d", got, barScale)
	}
	if got := b.lines["b"].bar.Current(); got != 0 {
		t.Fatalf("clamped current = %d, want 0", got)
	}

	// A reorder or removal rebuilds the board.
	b.Update([]timers.Row{barRow("b", "Nouver", 0.5)})
	if len(b.lines) != 1 || b.lines["a"] != nil || b.order[0] != "b" {
		t.Fatalf("after removal lines = %v, order = %v", b.lines, b.order)
	}

	bad := barRow("b", "Nouver", 0.5)
	bad.Err = errors.New("bad period")
	b.Update([]timers.Row{bad})
	if got := b.lines["b"].right.Load().(string); got != "error" {
		t.Fatalf("right = %q, want error", got)
	}

	done := make(chan struct{})
	go func() {
		b.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Close did not return")
	}
	if len(b.lines) != 0 || b.order != nil {
		t.Fatalf("Close left lines = %v, order = %v", b.lines, b.order)
	}
}
