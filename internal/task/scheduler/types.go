package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"bosstimer/internal/eventbus"
	logx "bosstimer/pkg/logx"
)

// Bus event types.
const (
	EventJobDone    = "schedule.done"
	EventJobFailed  = "schedule.failed"
	EventJobSkipped = "schedule.skipped"
)

type Config struct {
	Timezone string // IANA TZ, e.g. "Asia/Jakarta"; empty means Local
}

// JobEvent is the Data of schedule.* bus events.
type JobEvent struct {
	Name     string        `json:"name"`
	Took     time.Duration `json:"took"`
	Error    string        `json:"error,omitempty"`
	Finished time.Time     `json:"finished"`
}

type runStats struct {
	running  atomic.Bool
	runs     atomic.Uint64
	failures atomic.Uint64
	skipped  atomic.Uint64
	lastErr  atomic.Value // string
}

type scheduleDef struct {
	name          string
	spec          string // cron spec or @every
	timeout       time.Duration
	job           func(ctx context.Context) error
	entryID       cron.EntryID
	startupSpread time.Duration // initial random delay for @every schedules
	stats         *runStats
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	// ctx is cancelled by Stop so running jobs see shutdown.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type ScheduleInfo struct {
	Name     string
	Spec     string
	Timeout  time.Duration
	Next     time.Time
	Prev     time.Time
	Running  bool
	Runs     uint64
	Failures uint64
	Skipped  uint64
	LastErr  string
}

type Snapshot struct {
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
}
