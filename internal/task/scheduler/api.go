package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"bosstimer/internal/eventbus"
	logx "bosstimer/pkg/logx"
)

// AddSchedule parses schedule and registers job under name, replacing any
// schedule with the same name.
//
// Supported schedule formats:
//   - Cron: "*/5 * * * *", "55 * * * *", "@hourly", "@every 5m"
//   - Interval duration: "5m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//
// A run that is still in progress when the next trigger fires makes that
// trigger a skip.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job func(ctx context.Context) error) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	spec := ps.Cron
	if ps.Kind == SpecInterval {
		spec = "@every " + ps.Every.String()
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	s.defs = append(s.defs, scheduleDef{
		name:    name,
		spec:    spec,
		timeout: timeout,
		job:     job,
		stats:   &runStats{},
	})
	if s.c == nil {
		return nil
	}
	d := &s.defs[len(s.defs)-1]
	if err := s.addCronLocked(d); err != nil {
		return err
	}
	args := []logx.Field{logx.String("name", name), logx.String("spec", spec)}
	if next := s.previewNextRunsLocked(spec, 3); next != "" {
		args = append(args, logx.String("next", next))
	}
	s.log.Debug("schedule registered", args...)
	return nil
}

// Remove unschedules name. It reports whether something was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := s.removeLocked(strings.TrimSpace(name))
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

func (s *Service) removeLocked(name string) bool {
	n := 0
	removed := false
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	def := *d
	job := cron.FuncJob(func() { s.run(def) })

	// Interval schedules get a random first-run delay so restarts don't
	// line up every job.
	if every, ok := strings.CutPrefix(d.spec, "@every "); ok {
		if dur, err := time.ParseDuration(strings.TrimSpace(every)); err == nil && dur > 0 {
			sched, jitter := newSpreadSchedule(dur, time.Now().In(s.loc))
			d.startupSpread = jitter
			d.entryID = s.c.Schedule(sched, job)
			return nil
		}
	}
	d.startupSpread = 0
	eid, err := s.c.AddJob(d.spec, job)
	if err == nil {
		d.entryID = eid
	}
	return err
}

func (s *Service) run(d scheduleDef) {
	if !d.stats.running.CompareAndSwap(false, true) {
		d.stats.skipped.Add(1)
		s.publish(EventJobSkipped, JobEvent{Name: d.name, Finished: time.Now()})
		return
	}
	defer d.stats.running.Store(false)

	s.mu.Lock()
	parent := s.ctx
	if parent == nil || parent.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx := parent
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, d.timeout)
		defer cancel()
	}

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				s.log.Error("job panic", logx.String("name", d.name), logx.Stack(string(debug.Stack())))
			}
		}()
		return d.job(ctx)
	}()
	took := time.Since(start)
	d.stats.runs.Add(1)

	ev := JobEvent{Name: d.name, Took: took, Finished: time.Now()}
	if err != nil {
		d.stats.failures.Add(1)
		d.stats.lastErr.Store(err.Error())
		ev.Error = err.Error()
		s.log.Warn("job failed", logx.String("name", d.name), logx.Duration("took", took), logx.Err(err))
		s.publish(EventJobFailed, ev)
		return
	}
	d.stats.lastErr.Store("")
	s.log.Debug("job done", logx.String("name", d.name), logx.Duration("took", took))
	s.publish(EventJobDone, ev)
}

func (s *Service) publish(typ string, ev JobEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.Finished, Data: ev})
}

// previewNextRunsLocked lists upcoming run times for debug logs.
func (s *Service) previewNextRunsLocked(spec string, n int) string {
	if !s.log.Enabled(logx.LevelDebug) || n <= 0 {
		return ""
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	t := time.Now().In(s.loc)
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
