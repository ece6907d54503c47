package control

import (
	"context"
	"time"

	"bosstimer/internal/storage"
	"bosstimer/internal/timers"
	"bosstimer/internal/update"
)

// Host is the running daemon as seen by commands.
type Host interface {
	Board() *timers.Board
	Now() time.Time
	// Rows returns the rows of the latest evaluation pass.
	Rows() []timers.Row
	// Refresh runs an evaluation pass immediately and returns its rows.
	Refresh(ctx context.Context) []timers.Row
	Save(ctx context.Context) error
	// StopAlarm acknowledges every ringing entry and silences audio. It
	// returns how many entries were ringing.
	StopAlarm(ctx context.Context) int
	TestSound(ctx context.Context) error
	CheckUpdate(ctx context.Context) (update.Result, error)
	RecentAlarms(ctx context.Context, limit int) ([]storage.AlarmEntry, error)
	Status() Status
}

type Status struct {
	Version   string
	Started   time.Time
	Mode      timers.Mode
	Entries   int
	Ringing   int
	Storage   string
	Channels  []string
	Schedules []string
	// Tasks lists supervised goroutines that restarted or panicked.
	Tasks         []string
	DroppedEvents uint64
	Notices       int       // delivered notices kept in memory
	LastNotice    time.Time // zero when none was delivered
}
