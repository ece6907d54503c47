package scheduler

import (
	"math/rand/v2"
	"time"

	"github.com/robfig/cron/v3"
)

// maxStartupSpread caps the extra delay of an interval job's first run.
const maxStartupSpread = 30 * time.Second

// spreadSchedule is cron.Every with a jittered first run, so autosave and the
// update check do not both fire exactly one interval after startup.
type spreadSchedule struct {
	every cron.Schedule
	first time.Time
}

func (s *spreadSchedule) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return s.every.Next(t)
}

// newSpreadSchedule returns the schedule and the jitter in [0, min(every, 30s)).
func newSpreadSchedule(every time.Duration, now time.Time) (cron.Schedule, time.Duration) {
	spread := min(every, maxStartupSpread)
	if spread <= 0 {
		return cron.Every(every), 0
	}
	jitter := rand.N(spread)
	return &spreadSchedule{every: cron.Every(every), first: now.Add(every + jitter)}, jitter
}
