package app

import (
	"context"
	"fmt"
	"time"

	"bosstimer/internal/audio"
	"bosstimer/internal/control"
	"bosstimer/internal/eventbus"
	rtsup "bosstimer/internal/runtime/supervisor"
	"bosstimer/internal/storage"
	"bosstimer/internal/timers"
	"bosstimer/internal/update"
	logx "bosstimer/pkg/logx"
)

// testSoundGap separates the two clips of the sound test.
const testSoundGap = 2 * time.Second

var _ control.Host = (*App)(nil)

func (a *App) Board() *timers.Board { return a.board }

// Now is the wall clock in the configured timezone.
func (a *App) Now() time.Time {
	a.mu.RLock()
	loc := a.settings.loc
	a.mu.RUnlock()
	if loc == nil {
		return a.opts.Now()
	}
	return a.opts.Now().In(loc)
}

func (a *App) Rows() []timers.Row {
	a.mu.RLock()
	rows := a.rows
	a.mu.RUnlock()
	if rows == nil {
		// No pass has run yet.
		return a.pass(a.runCtx())
	}
	return rows
}

func (a *App) Refresh(ctx context.Context) []timers.Row {
	return a.pass(ctx)
}

func (a *App) Save(ctx context.Context) error {
	if a.store == nil {
		return storage.ErrDisabled
	}
	recs := a.board.Records()
	if err := a.store.SaveEntries(ctx, recs); err != nil {
		a.log.Error("save entries failed", logx.Err(err))
		return err
	}
	a.loadFailed.Store(false)
	a.log.Debug("entries saved", logx.Int("count", len(recs)))
	a.bus.Publish(eventbus.Event{Type: eventbus.EntriesSaved, Time: a.Now(), Data: len(recs)})
	return nil
}

func (a *App) StopAlarm(ctx context.Context) int {
	n := a.board.Acknowledge()
	a.player.Stop()
	if n == 0 {
		return 0
	}
	a.log.Info("alarm acknowledged", logx.Int("entries", n))
	a.bus.Publish(eventbus.Event{Type: eventbus.TimerAck, Time: a.Now(), Data: n})
	if a.store != nil {
		e := storage.AlarmEntry{At: a.Now(), Name: fmt.Sprintf("%d ringing", n), Kind: kindAck}
		if err := a.store.AppendAlarm(ctx, e); err != nil {
			a.log.Warn("alarm history write failed", logx.String("kind", kindAck), logx.Err(err))
		}
	}
	return n
}

// TestSound plays the warning clip, then the alarm clip after a short gap.
func (a *App) TestSound(ctx context.Context) error {
	if err := a.player.Play(a.runCtx(), audio.ClipWarning); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(testSoundGap):
	}
	return a.player.Play(a.runCtx(), audio.ClipAlarm)
}

func (a *App) CheckUpdate(ctx context.Context) (update.Result, error) {
	a.mu.RLock()
	c := a.checker
	a.mu.RUnlock()
	return c.Check(ctx, a.opts.Version)
}

func (a *App) RecentAlarms(ctx context.Context, limit int) ([]storage.AlarmEntry, error) {
	if a.store == nil {
		return nil, storage.ErrDisabled
	}
	return a.store.RecentAlarms(ctx, limit)
}

func (a *App) Status() control.Status {
	st := control.Status{
		Version:  a.opts.Version,
		Started:  a.started,
		Mode:     a.board.Mode(),
		Entries:  a.board.Len(),
		Storage:  a.storeDesc,
		Channels: a.notif.Channels(),
	}
	a.mu.RLock()
	for _, r := range a.rows {
		if r.Phase == timers.PhaseRinging {
			st.Ringing++
		}
	}
	a.mu.RUnlock()
	for _, s := range a.sched.Snapshot().Schedules {
		line := s.Name + " " + s.Spec
		if !s.Next.IsZero() {
			line += " (next " + s.Next.Format("15:04:05") + ")"
		}
		st.Schedules = append(st.Schedules, line)
	}
	var tasks []rtsup.TaskStats
	if a.sup != nil {
		tasks = a.sup.Snapshot()
	}
	for _, t := range tasks {
		if t.Restarts == 0 && t.Panics == 0 {
			continue
		}
		line := fmt.Sprintf("%s restarts=%d panics=%d", t.Name, t.Restarts, t.Panics)
		if t.LastErr != "" {
			line += " last error: " + t.LastErr
		}
		st.Tasks = append(st.Tasks, line)
	}
	st.DroppedEvents = a.bus.Dropped()
	if hist := a.notif.History(); len(hist) > 0 {
		st.Notices = len(hist)
		st.LastNotice = hist[len(hist)-1].At
	}
	return st
}
