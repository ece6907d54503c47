package control

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bosstimer/internal/display"
	"bosstimer/internal/recurrence"
	"bosstimer/internal/timers"
)

func builtinCommands(h Host) []Command {
	return []Command{
		{
			Name: "list", Aliases: []string{"ls"},
			Usage: "list", Description: "Show all bosses with their countdowns",
			Handle: func(_ context.Context, req *Request) (string, error) {
				rows := h.Rows()
				if len(rows) == 0 {
					return "No bosses yet. Add one with: add <name> [minutes] [seconds]", nil
				}
				req.Pre = true
				return display.TableString(rows), nil
			},
		},
		{
			Name: "add", Usage: "add [name] [minutes] [seconds]", Description: "Add a boss (last respawn = now)",
			Mutates: true,
			Handle: func(_ context.Context, req *Request) (string, error) {
				opts := timers.AddOptions{}
				if len(req.Args) > 0 {
					opts.Name = req.Args[0]
				}
				var err error
				if opts.Minutes, err = optIntArg(req.Args, 1, "minutes", 0); err != nil {
					return "", err
				}
				if opts.Seconds, err = optIntArg(req.Args, 2, "seconds", 0); err != nil {
					return "", err
				}
				b := h.Board()
				e := b.Add(opts)
				if verr := e.Validate(); verr != nil {
					_, _ = b.Remove(e.Order)
					return "", verr
				}
				return fmt.Sprintf("Added #%d %s (every %s, last %s)", e.Order, e.Name, e.Period(), e.LastTime), nil
			},
		},
		{
			Name: "del", Aliases: []string{"remove", "rm"},
			Usage: "del <n>", Description: "Delete boss n",
			Mutates: true,
			Handle: func(_ context.Context, req *Request) (string, error) {
				n, err := intArg(req.Args, 0, "n")
				if err != nil {
					return "", err
				}
				e, err := h.Board().Remove(n)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Deleted %s", e.Name), nil
			},
		},
		{
			Name: "rename", Usage: "rename <n> <name>", Description: "Rename boss n",
			Mutates: true,
			Handle: func(_ context.Context, req *Request) (string, error) {
				n, err := intArg(req.Args, 0, "n")
				if err != nil {
					return "", err
				}
				if len(req.Args) < 2 {
					return "", fmt.Errorf("%w: missing name", ErrUsage)
				}
				name := strings.Join(req.Args[1:], " ")
				if err := h.Board().Rename(n, name); err != nil {
					return "", err
				}
				return fmt.Sprintf("#%d renamed to %s", n, strings.TrimSpace(name)), nil
			},
		},
		{
			Name: "period", Usage: "period <n> <minutes> [seconds]", Description: "Set the respawn period of boss n",
			Mutates: true,
			Handle: func(_ context.Context, req *Request) (string, error) {
				n, err := intArg(req.Args, 0, "n")
				if err != nil {
					return "", err
				}
				m, err := intArg(req.Args, 1, "minutes")
				if err != nil {
					return "", err
				}
				s, err := optIntArg(req.Args, 2, "seconds", 0)
				if err != nil {
					return "", err
				}
				if err := h.Board().SetPeriod(n, m, s); err != nil {
					return "", err
				}
				return fmt.Sprintf("#%d now respawns every %s", n, time.Duration(m)*time.Minute+time.Duration(s)*time.Second), nil
			},
		},
		{
			Name: "set", Usage: "set <n> <HH:MM:SS|now>", Description: "Set the last respawn time (manual mode)",
			Mutates: true,
			Handle: func(_ context.Context, req *Request) (string, error) {
				n, err := intArg(req.Args, 0, "n")
				if err != nil {
					return "", err
				}
				if len(req.Args) < 2 {
					return "", fmt.Errorf("%w: missing time", ErrUsage)
				}
				var tod recurrence.TimeOfDay
				if strings.EqualFold(req.Args[1], "now") {
					tod = recurrence.TimeOfDayOf(h.Now())
				} else if tod, err = recurrence.ParseTimeOfDay(req.Args[1]); err != nil {
					return "", fmt.Errorf("%w: %v", ErrUsage, err)
				}
				if err := h.Board().SetLastTrigger(n, tod); err != nil {
					if errors.Is(err, timers.ErrManualOnly) {
						return "", fmt.Errorf("%w (switch with: mode manual)", err)
					}
					return "", err
				}
				return fmt.Sprintf("#%d last respawn set to %s", n, tod), nil
			},
		},
		enableCommand(h, "enable", true),
		enableCommand(h, "disable", false),
		{
			Name: "mode", Usage: "mode [auto|manual]", Description: "Show or change the reset mode",
			Handle: func(_ context.Context, req *Request) (string, error) {
				b := h.Board()
				if len(req.Args) == 0 {
					return fmt.Sprintf("Mode: %s", b.Mode()), nil
				}
				m, err := timers.ParseMode(req.Args[0])
				if err != nil {
					return "", fmt.Errorf("%w: %v", ErrUsage, err)
				}
				b.SetMode(m)
				return fmt.Sprintf("Mode set to %s", m), nil
			},
		},
		{
			Name: "stop", Aliases: []string{"ack"},
			Usage: "stop", Description: "Stop the ringing alarm",
			Handle: func(ctx context.Context, _ *Request) (string, error) {
				if n := h.StopAlarm(ctx); n > 0 {
					return fmt.Sprintf("Alarm stopped (%d)", n), nil
				}
				return "No alarm ringing", nil
			},
		},
		{
			Name: "refresh", Usage: "refresh", Description: "Recalculate all countdowns now",
			Handle: func(ctx context.Context, _ *Request) (string, error) {
				rows := h.Refresh(ctx)
				return fmt.Sprintf("Refreshed %d boss(es)", len(rows)), nil
			},
		},
		{
			Name: "test", Usage: "test", Description: "Play the warning then the alarm sound",
			Handle: func(ctx context.Context, _ *Request) (string, error) {
				if err := h.TestSound(ctx); err != nil {
					return "", err
				}
				return "Sound test done", nil
			},
		},
		{
			Name: "update", Usage: "update", Description: "Check for a newer release",
			Handle: func(ctx context.Context, _ *Request) (string, error) {
				res, err := h.CheckUpdate(ctx)
				if err != nil {
					return "", err
				}
				if res.Available {
					return fmt.Sprintf("New version %s available (running %s)", res.Latest, res.Current), nil
				}
				return fmt.Sprintf("Up to date (%s)", res.Current), nil
			},
		},
		{
			Name: "save", Usage: "save", Description: "Save the boss list now",
			Handle: func(ctx context.Context, _ *Request) (string, error) {
				if err := h.Save(ctx); err != nil {
					return "", err
				}
				return "Saved", nil
			},
		},
		{
			Name: "history", Usage: "history [n]", Description: "Show recent alarms",
			Handle: func(ctx context.Context, req *Request) (string, error) {
				n, err := optIntArg(req.Args, 0, "n", 10)
				if err != nil {
					return "", err
				}
				items, err := h.RecentAlarms(ctx, max(1, min(n, 50)))
				if err != nil {
					return "", err
				}
				if len(items) == 0 {
					return "No alarms yet", nil
				}
				var b strings.Builder
				for _, it := range items {
					fmt.Fprintf(&b, "%s  %-10s %s\n", it.At.Format("01-02 15:04:05"), it.Kind, it.Name)
				}
				req.Pre = true
				return b.String(), nil
			},
		},
		{
			Name: "status", Usage: "status", Description: "Show daemon status",
			Handle: func(_ context.Context, req *Request) (string, error) {
				st := h.Status()
				var b strings.Builder
				fmt.Fprintf(&b, "version:  %s\n", st.Version)
				fmt.Fprintf(&b, "uptime:   %s\n", h.Now().Sub(st.Started).Truncate(time.Second))
				fmt.Fprintf(&b, "mode:     %s\n", st.Mode)
				fmt.Fprintf(&b, "bosses:   %d (%d ringing)\n", st.Entries, st.Ringing)
				fmt.Fprintf(&b, "storage:  %s\n", st.Storage)
				fmt.Fprintf(&b, "channels: %s\n", strings.Join(st.Channels, ", "))
				if len(st.Schedules) > 0 {
					fmt.Fprintf(&b, "jobs:     %s\n", strings.Join(st.Schedules, ", "))
				}
				if st.LastNotice.IsZero() {
					fmt.Fprintf(&b, "notices:  %d\n", st.Notices)
				} else {
					fmt.Fprintf(&b, "notices:  %d (last %s)\n", st.Notices, st.LastNotice.Format("15:04:05"))
				}
				if st.DroppedEvents > 0 {
					fmt.Fprintf(&b, "dropped:  %d events\n", st.DroppedEvents)
				}
				for _, t := range st.Tasks {
					fmt.Fprintf(&b, "task:     %s\n", t)
				}
				req.Pre = true
				return b.String(), nil
			},
		},
	}
}

func enableCommand(h Host, name string, on bool) Command {
	desc := "Resume alerts for boss n"
	if !on {
		desc = "Silence alerts for boss n"
	}
	return Command{
		Name: name, Usage: name + " <n>", Description: desc,
		Mutates: true,
		Handle: func(_ context.Context, req *Request) (string, error) {
			n, err := intArg(req.Args, 0, "n")
			if err != nil {
				return "", err
			}
			if err := h.Board().SetEnabled(n, on); err != nil {
				return "", err
			}
			return fmt.Sprintf("#%d %sd", n, name), nil
		},
	}
}
