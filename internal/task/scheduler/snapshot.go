package scheduler

import "time"

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	tz := s.cfg.Timezone
	if tz == "" {
		loc := s.loc
		if loc == nil {
			loc = time.Local
		}
		tz = loc.String()
	}

	items := make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		it := ScheduleInfo{
			Name:     d.name,
			Spec:     d.spec,
			Timeout:  d.timeout,
			Running:  d.stats.running.Load(),
			Runs:     d.stats.runs.Load(),
			Failures: d.stats.failures.Load(),
			Skipped:  d.stats.skipped.Load(),
		}
		it.LastErr, _ = d.stats.lastErr.Load().(string)
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		items = append(items, it)
	}
	return Snapshot{Running: s.c != nil, Timezone: tz, Schedules: items}
}
