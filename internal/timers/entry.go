package timers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bosstimer/internal/recurrence"
)

const (
	DefaultName    = "new boss"
	DefaultMinutes = 60

	MinMinutes = 1
	MaxMinutes = 1440
	MaxSeconds = 59
)

var (
	// ErrMalformedEntry matches every *MalformedEntryError.
	ErrMalformedEntry = errors.New("timers: malformed entry")
	ErrNoSuchEntry    = errors.New("timers: no such entry")
	ErrManualOnly     = errors.New("timers: last trigger can only be edited in manual mode")
)

// Entry is one tracked recurring event.
type Entry struct {
	ID       string
	Order    int // 1-based display position
	Name     string
	Minutes  int
	Seconds  int
	LastTime string // HH:MM:SS, kept verbatim so malformed values survive a save
	Enabled  bool
}

// Record is the persisted shape of an Entry.
type Record struct {
	Name     string `json:"name"`
	Minutes  int    `json:"minutes"`
	Seconds  int    `json:"seconds"`
	LastTime string `json:"last_time"`
	Enabled  bool   `json:"enabled"`
}

func (e Entry) Period() time.Duration {
	return time.Duration(e.Minutes)*time.Minute + time.Duration(e.Seconds)*time.Second
}

func (e Entry) Record() Record {
	return Record{
		Name:     e.Name,
		Minutes:  e.Minutes,
		Seconds:  e.Seconds,
		LastTime: e.LastTime,
		Enabled:  e.Enabled,
	}
}

// Validate returns a *MalformedEntryError for the first bad field.
func (e Entry) Validate() error {
	if errs := e.problems(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (e Entry) problems() []*MalformedEntryError {
	var out []*MalformedEntryError
	if strings.TrimSpace(e.Name) == "" {
		out = append(out, e.malformed("name", e.Name, "must not be empty", nil))
	}
	if e.Minutes < MinMinutes || e.Minutes > MaxMinutes {
		out = append(out, e.malformed("minutes", strconv.Itoa(e.Minutes), fmt.Sprintf("must be %d..%d", MinMinutes, MaxMinutes), nil))
	}
	if e.Seconds < 0 || e.Seconds > MaxSeconds {
		out = append(out, e.malformed("seconds", strconv.Itoa(e.Seconds), fmt.Sprintf("must be 0..%d", MaxSeconds), nil))
	}
	if _, err := recurrence.ParseTimeOfDay(e.LastTime); err != nil {
		out = append(out, e.malformed("last_time", e.LastTime, "want HH:MM:SS", err))
	}
	return out
}

func (e Entry) malformed(field, value, reason string, cause error) *MalformedEntryError {
	return &MalformedEntryError{
		Index:  e.Order,
		Name:   e.Name,
		Field:  field,
		Value:  value,
		Reason: reason,
		Err:    cause,
	}
}

// MalformedEntryError describes an entry that cannot take part in evaluation,
// either because a field is out of range or because its record did not decode.
type MalformedEntryError struct {
	Index  int // 1-based order or record position; 0 if unknown
	Name   string
	Field  string
	Value  string
	Reason string
	Err    error
}

func (e *MalformedEntryError) Error() string {
	var b strings.Builder
	b.WriteString("malformed entry")
	if e.Index > 0 {
		fmt.Fprintf(&b, " #%d", e.Index)
	}
	if e.Name != "" {
		fmt.Fprintf(&b, " %q", e.Name)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": %s=%q", e.Field, e.Value)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil && e.Field == "" {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *MalformedEntryError) Unwrap() error { return e.Err }

func (e *MalformedEntryError) Is(target error) bool { return target == ErrMalformedEntry }

// key identifies the problem independent of the entry's position.
func (e *MalformedEntryError) key() string {
	return e.Field + "\x00" + e.Value + "\x00" + e.Reason
}

// ParseMode accepts "auto" or "manual" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAuto:
		return ModeAuto, nil
	case ModeManual:
		return ModeManual, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want auto|manual)", s)
	}
}

// Mode selects what happens to an entry when its occurrence is reached.
type Mode string

const (
	// ModeAuto resets the entry's last trigger to the time the alarm fired.
	ModeAuto Mode = "auto"
	// ModeManual leaves the last trigger to the operator.
	ModeManual Mode = "manual"
)
