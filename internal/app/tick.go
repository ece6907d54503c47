package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bosstimer/internal/audio"
	"bosstimer/internal/control"
	"bosstimer/internal/display"
	"bosstimer/internal/eventbus"
	"bosstimer/internal/notifier"
	"bosstimer/internal/recurrence"
	"bosstimer/internal/storage"
	"bosstimer/internal/timers"
	kit "bosstimer/internal/transport"
	logx "bosstimer/pkg/logx"
)

// Alert kinds recorded in alarm history.
const (
	kindPreWarn = "prewarn"
	kindDue     = "due"
	kindAck     = "ack"
)

// tickLoop runs one evaluation pass per tick until ctx ends. A panic in a
// pass is recovered by the supervisor, which restarts the loop.
func (a *App) tickLoop(ctx context.Context) error {
	a.mu.RLock()
	interval := a.settings.tick
	a.mu.RUnlock()

	t := time.NewTicker(interval)
	defer t.Stop()

	a.pass(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-a.tickReset:
			a.log.Info("tick interval changed", logx.Duration("tick", d))
			t.Reset(d)
		case <-t.C:
			a.pass(ctx)
		}
	}
}

// pass evaluates the board once and carries out the resulting alerts.
func (a *App) pass(ctx context.Context) []timers.Row {
	a.tickMu.Lock()
	defer a.tickMu.Unlock()

	rep := a.board.Tick(a.Now())
	for _, err := range rep.Malformed {
		a.log.Warn("malformed entry skipped", logx.Err(err))
	}
	for _, al := range rep.Alerts {
		a.dispatch(ctx, al)
	}

	a.mu.Lock()
	a.rows = rep.Rows
	a.mu.Unlock()
	a.lastPass.Store(time.Now().UnixNano())

	a.draw(rep)
	return rep.Rows
}

func (a *App) dispatch(ctx context.Context, al timers.Alert) {
	name := al.Entry.Name
	switch al.Kind {
	case recurrence.AlertPreWarning:
		a.log.Info("pre-warning",
			logx.String("entry", name),
			logx.Duration("remaining", al.Remaining),
			logx.Time("occurrence", al.Occurrence),
		)
		a.play(audio.ClipWarning)
		msg := fmt.Sprintf("%s respawns in %d minutes!", name, wholeMinutes(al.Remaining))
		key := al.Entry.ID + "@" + al.Occurrence.UTC().Format(time.RFC3339)
		if err := a.notif.ShowKeyed(ctx, key, msg); err != nil && !errors.Is(err, notifier.ErrDisabled) {
			a.log.Warn("banner not shown", logx.String("entry", name), logx.Err(err))
		}
		a.bus.Publish(eventbus.Event{Type: eventbus.TimerPreWarn, Time: a.Now(), Data: al})
		a.recordAlarm(ctx, kindPreWarn, al)

	case recurrence.AlertDue:
		a.log.Info("respawn due",
			logx.String("entry", name),
			logx.Time("occurrence", al.Occurrence),
			logx.Bool("auto_reset", al.AutoReset),
		)
		a.play(audio.ClipAlarm)
		text := fmt.Sprintf("%s has respawned!\nTime: %s", name, al.Occurrence.Format("15:04:05"))
		for _, ch := range a.notif.Channels() {
			n := kit.Notification{Channel: ch, Priority: notifier.PriorityAlarm, Text: text}
			if ch == notifier.ChannelTelegram {
				n.Options = control.AckMarkup()
			}
			if err := a.notif.Notify(ctx, n); err != nil && !errors.Is(err, notifier.ErrDisabled) {
				a.log.Warn("alarm notice not queued", logx.String("channel", ch), logx.Err(err))
			}
		}
		a.bus.Publish(eventbus.Event{Type: eventbus.TimerDue, Time: a.Now(), Data: al})
		a.recordAlarm(ctx, kindDue, al)
	}
}

// wholeMinutes rounds up so a 179s remaining reads "3 minutes".
func wholeMinutes(d time.Duration) int {
	return int((d + time.Minute - 1) / time.Minute)
}

func (a *App) play(clip audio.Clip) {
	// ExecPlayer already rang the bell and logged the failure.
	_ = a.player.Play(a.runCtx(), clip)
}

func (a *App) recordAlarm(ctx context.Context, kind string, al timers.Alert) {
	if a.store == nil {
		return
	}
	e := storage.AlarmEntry{
		At:         a.Now(),
		EntryID:    al.Entry.ID,
		Name:       al.Entry.Name,
		Kind:       kind,
		Occurrence: al.Occurrence,
		AutoReset:  al.AutoReset,
	}
	if err := a.store.AppendAlarm(ctx, e); err != nil {
		a.log.Warn("alarm history write failed", logx.String("kind", kind), logx.Err(err))
	}
}

// draw refreshes the live terminal view: bars every pass, the table every
// display.refresh or when something rang.
func (a *App) draw(rep timers.Report) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.displayMode {
	case displayBars:
		if a.bars != nil {
			a.bars.Update(rep.Rows)
		}
	case displayTable:
		if len(rep.Alerts) == 0 && !a.lastDraw.IsZero() && rep.At.Sub(a.lastDraw) < a.refresh {
			return
		}
		a.lastDraw = rep.At
		if err := display.Table(a.opts.Out, rep.Rows); err != nil {
			a.log.Debug("display write failed", logx.Err(err))
		}
	}
}
