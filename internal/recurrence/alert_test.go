package recurrence

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		remaining time.Duration
		enabled   bool
		ringing   bool
		want      AlertState
	}{
		{name: "inside window", remaining: 179 * time.Second, enabled: true, want: AlertPreWarning},
		{name: "window lower bound", remaining: 178 * time.Second, enabled: true, want: AlertPreWarning},
		{name: "window upper bound", remaining: 180 * time.Second, enabled: true, want: AlertPreWarning},
		{name: "just above window", remaining: 180*time.Second + time.Millisecond, enabled: true, want: AlertNone},
		{name: "just below window", remaining: 177 * time.Second, enabled: true, want: AlertNone},
		{name: "reached", remaining: 0, enabled: true, want: AlertDue},
		{name: "overdue", remaining: -5 * time.Second, enabled: true, want: AlertDue},
		{name: "already ringing", remaining: -time.Second, enabled: true, ringing: true, want: AlertNone},
		{name: "disabled and due", remaining: 0, enabled: false, want: AlertNone},
		{name: "disabled in window", remaining: 179 * time.Second, enabled: false, want: AlertNone},
		{name: "ringing in window", remaining: 179 * time.Second, enabled: true, ringing: true, want: AlertPreWarning},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tt.remaining, tt.enabled, tt.ringing); got != tt.want {
				t.Fatalf("Classify(%s, %v, %v) = %s, want %s", tt.remaining, tt.enabled, tt.ringing, got, tt.want)
			}
		})
	}
}

func TestClassifyDueThenHandled(t *testing.T) {
	t.Parallel()

	if got := Classify(0, true, false); got != AlertDue {
		t.Fatalf("first pass = %s, want due", got)
	}
	if got := Classify(-time.Second, true, true); got != AlertNone {
		t.Fatalf("second pass = %s, want none", got)
	}
}

func TestPolicyCustomWindow(t *testing.T) {
	t.Parallel()

	p := Policy{PreWarnMin: 55 * time.Second, PreWarnMax: 60 * time.Second}
	if got := p.Classify(57*time.Second, true, false); got != AlertPreWarning {
		t.Fatalf("Classify() = %s, want prewarning", got)
	}
	if got := p.Classify(179*time.Second, true, false); got != AlertNone {
		t.Fatalf("Classify() = %s, want none", got)
	}
}

func TestPolicyValidate(t *testing.T) {
	t.Parallel()

	if err := DefaultPolicy.Validate(time.Second); err != nil {
		t.Fatalf("DefaultPolicy.Validate(1s) error = %v", err)
	}
	if err := DefaultPolicy.Validate(5 * time.Second); err == nil {
		t.Fatalf("expected narrow window error for 5s tick")
	}
	if err := (Policy{PreWarnMin: 10 * time.Second, PreWarnMax: 5 * time.Second}).Validate(0); err == nil {
		t.Fatalf("expected error for inverted window")
	}
}

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{in: "10:00:00", want: TimeOfDay{10, 0, 0}},
		{in: " 23:59:59 ", want: TimeOfDay{23, 59, 59}},
		{in: "7:5:3", want: TimeOfDay{7, 5, 3}},
		{in: "24:00:00", wantErr: true},
		{in: "10:60:00", wantErr: true},
		{in: "10:00", wantErr: true},
		{in: "aa:bb:cc", wantErr: true},
		{in: "", wantErr: true},
		{in: "-1:00:00", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseTimeOfDay(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseTimeOfDay(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseTimeOfDay(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if tt.in == "10:00:00" && got.String() != "10:00:00" {
			t.Fatalf("String() = %q", got.String())
		}
	}
}
