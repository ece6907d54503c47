package storage

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	// ErrConfigIO matches every *IOError.
	ErrConfigIO = errors.New("storage: config i/o error")
)

// IOError is a failure to read or write persisted state. The in-memory entry
// list stays authoritative when it occurs.
type IOError struct {
	Op   string // "read" | "write" | "decode" | "open" | "rename" | "backup"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrConfigIO }

// Config configures storage.
//
// Driver values:
//   - "file": JSON file at Path (default)
//   - "sqlite": SQLite database file at Path
//
// If Driver is "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

const defaultAlarmLimit = 20

// AlarmEntry records one alert raised for an entry.
// Keep it compact and schema-stable.
type AlarmEntry struct {
	At         time.Time `json:"at"`
	EntryID    string    `json:"entry_id"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"` // prewarn | due | ack
	Occurrence time.Time `json:"occurrence,omitzero"`
	AutoReset  bool      `json:"auto_reset,omitempty"`
}
