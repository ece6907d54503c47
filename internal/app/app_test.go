package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"bosstimer/internal/config"
	"bosstimer/internal/eventbus"
	"bosstimer/internal/recurrence"
	"bosstimer/internal/timers"
	logx "bosstimer/pkg/logx"
)

const testConfig = `{
  "logging": {"level": "error", "console": false, "file": {"enabled": false}},
  "timers": {"mode": "auto", "tick": "1s", "autosave": "off", "timezone": "UTC"},
  "audio": {"enabled": false},
  "display": {"mode": "none"},
  "notifier": {"enabled": false},
  "storage": {"driver": "file", "path": %q}
}`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestMapTimers(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		tc      config.TimersConfig
		wantErr bool
		check   func(t *testing.T, s timerSettings)
	}{
		{
			name: "defaults",
			check: func(t *testing.T, s timerSettings) {
				if s.mode != timers.ModeAuto || s.tick != time.Second || s.policy != recurrence.DefaultPolicy {
					t.Fatalf("settings = %+v", s)
				}
				if s.autosave != "" {
					t.Fatalf("autosave = %q, want empty", s.autosave)
				}
			},
		},
		{
			name: "manual with autosave",
			tc:   config.TimersConfig{Mode: "manual", Autosave: "@every 1m", Timezone: "UTC"},
			check: func(t *testing.T, s timerSettings) {
				if s.mode != timers.ModeManual || s.autosave != "@every 1m" || s.loc != time.UTC {
					t.Fatalf("settings = %+v", s)
				}
			},
		},
		{
			name: "autosave off",
			tc:   config.TimersConfig{Autosave: "off"},
			check: func(t *testing.T, s timerSettings) {
				if s.autosave != "" {
					t.Fatalf("autosave = %q, want empty", s.autosave)
				}
			},
		},
		{name: "bad mode", tc: config.TimersConfig{Mode: "sometimes"}, wantErr: true},
		{name: "inverted window", tc: config.TimersConfig{PreWarnMin: "3m", PreWarnMax: "2m"}, wantErr: true},
		{name: "window narrower than tick", tc: config.TimersConfig{Tick: "5s", PreWarnMin: "178s", PreWarnMax: "180s"}, wantErr: true},
		{name: "bad timezone", tc: config.TimersConfig{Timezone: "Mars/Olympus"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s, err := mapTimers(&config.Config{Timers: tc.tc})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("mapTimers expected error, got %+v", s)
				}
				return
			}
			if err != nil {
				t.Fatalf("mapTimers: %v", err)
			}
			tc.check(t, s)
		})
	}
}

func TestWholeMinutes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   time.Duration
		want int
	}{
		{180 * time.Second, 3},
		{179 * time.Second, 3},
		{178 * time.Second, 3},
		{121 * time.Second, 3},
		{120 * time.Second, 2},
		{time.Second, 1},
	}
	for _, tc := range cases {
		if got := wholeMinutes(tc.in); got != tc.want {
			t.Fatalf("wholeMinutes(%s) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestAlertTarget(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Telegram: config.TelegramConfig{OwnerUserIDs: []int64{42, 7}}}
	if to, ok := alertTarget(cfg); !ok || to.ChatID != 42 {
		t.Fatalf("owner fallback = %+v, %v", to, ok)
	}
	cfg.Telegram.AlertChatID = -100
	cfg.Telegram.AlertThreadID = 3
	if to, ok := alertTarget(cfg); !ok || to.ChatID != -100 || to.ThreadID != 3 {
		t.Fatalf("alert chat = %+v, %v", to, ok)
	}
	if _, ok := alertTarget(&config.Config{}); ok {
		t.Fatalf("alertTarget without chat or owners should be false")
	}
}

func TestValidateConfigRejectsBadDisplayMode(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Display.Mode = "fancy"
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("validateConfig accepted display.mode %q", cfg.Display.Mode)
	}
}

func TestPassAlertsAndHistory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	entries := filepath.Join(dir, "entries.json")
	cfgPath := writeConfig(t, fmt.Sprintf(testConfig, entries))

	now := time.Date(2026, 1, 2, 10, 57, 1, 0, time.UTC)
	var out bytes.Buffer
	a, err := NewApp(Options{ConfigPath: cfgPath, Version: "test", Out: &out, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() { _ = a.store.Close() })

	a.Board().Add(timers.AddOptions{Name: "Kzarka", Minutes: 60, LastTime: "10:00:00"})
	events, unsub := a.bus.Subscribe(8, "timer.")
	defer unsub()
	ctx := context.Background()

	rows := a.Refresh(ctx)
	if len(rows) != 1 || rows[0].Phase != timers.PhasePreWarned {
		t.Fatalf("rows at 10:57:01 = %+v", rows)
	}
	if e := <-events; e.Type != eventbus.TimerPreWarn {
		t.Fatalf("first event = %q, want %q", e.Type, eventbus.TimerPreWarn)
	}

	// A second pass inside the window must not warn again.
	now = now.Add(time.Second)
	a.Refresh(ctx)
	select {
	case e := <-events:
		t.Fatalf("unexpected event %q", e.Type)
	default:
	}

	now = time.Date(2026, 1, 2, 11, 0, 0, 0, time.UTC)
	rows = a.Refresh(ctx)
	if rows[0].Phase != timers.PhaseRinging || rows[0].Entry.LastTime != "11:00:00" {
		t.Fatalf("rows at 11:00:00 = %+v", rows)
	}
	if e := <-events; e.Type != eventbus.TimerDue {
		t.Fatalf("event = %q, want %q", e.Type, eventbus.TimerDue)
	}

	if n := a.StopAlarm(ctx); n != 1 {
		t.Fatalf("StopAlarm = %d, want 1", n)
	}
	if n := a.StopAlarm(ctx); n != 0 {
		t.Fatalf("second StopAlarm = %d, want 0", n)
	}

	hist, err := a.RecentAlarms(ctx, 10)
	if err != nil {
		t.Fatalf("RecentAlarms: %v", err)
	}
	var kinds []string
	for _, h := range hist {
		kinds = append(kinds, h.Kind)
	}
	if len(kinds) != 3 || kinds[0] != kindAck || kinds[1] != kindDue || kinds[2] != kindPreWarn {
		t.Fatalf("history kinds = %v", kinds)
	}

	if err := a.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	ws, err := OpenWorkspace(ctx, cfgPath, logx.Nop())
	if err != nil {
		t.Fatalf("OpenWorkspace: %v", err)
	}
	defer ws.Close()
	snap := ws.Board.Snapshot()
	if len(snap) != 1 || snap[0].Name != "Kzarka" || snap[0].LastTime != "11:00:00" {
		t.Fatalf("reloaded entries = %+v", snap)
	}
}

func TestWorkspaceWithoutStorage(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, `{"logging": {"console": false, "file": {"enabled": false}}, "storage": {"driver": "none"}}`)
	ws, err := OpenWorkspace(context.Background(), cfgPath, logx.Logger{})
	if err != nil {
		t.Fatalf("OpenWorkspace: %v", err)
	}
	ws.Board.Add(timers.AddOptions{Name: "Nouver"})
	if got := len(ws.Rows()); got != 1 {
		t.Fatalf("Rows = %d, want 1", got)
	}
	if err := ws.Save(context.Background()); err == nil {
		t.Fatalf("Save without storage should fail")
	}
	if err := ws.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestUnreadableEntriesSurviveAutomaticSaves(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	entries := filepath.Join(dir, "entries.json")
	orig := []byte(`[{"name":"Quint","minutes":60,"last_time":"10:00:00"},`)
	if err := os.WriteFile(entries, orig, 0o644); err != nil {
		t.Fatal(err)
	}
	cfgPath := writeConfig(t, fmt.Sprintf(testConfig, entries))

	a, err := NewApp(Options{ConfigPath: cfgPath, Version: "test", Out: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() { _ = a.store.Close() })
	ctx := context.Background()

	if a.Board().Len() != 0 {
		t.Fatalf("board has %d entries after a failed load", a.Board().Len())
	}
	if err := a.autosave(ctx); err == nil {
		t.Fatalf("autosave after a failed load should refuse")
	}
	if b, _ := os.ReadFile(entries); !bytes.Equal(b, orig) {
		t.Fatalf("autosave replaced the unreadable file with %q", b)
	}

	// An explicit save goes through and keeps the old bytes aside.
	a.Board().Add(timers.AddOptions{Name: "Offin"})
	if err := a.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	backups, _ := filepath.Glob(entries + ".corrupt-*")
	if len(backups) != 1 {
		t.Fatalf("backups = %v, want one", backups)
	}
	if b, _ := os.ReadFile(backups[0]); !bytes.Equal(b, orig) {
		t.Fatalf("backup = %q, want the original bytes", b)
	}
	if err := a.autosave(ctx); err != nil {
		t.Fatalf("autosave after an explicit save: %v", err)
	}
}

// lockedBuffer is an output shared with notifier workers.
type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func waitForCount(t *testing.T, out *lockedBuffer, substr string, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		got := strings.Count(out.String(), substr)
		if got == want {
			return
		}
		if got > want || time.Now().After(deadline) {
			t.Fatalf("%q printed %d times, want %d:\n%s", substr, got, want, out.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

const notifyingConfig = `{
  "logging": {"level": "error", "console": false, "file": {"enabled": false}},
  "timers": {"mode": %q, "tick": "1s", "autosave": "off", "timezone": "UTC"},
  "audio": {"enabled": false},
  "display": {"mode": "none"},
  "notifier": {"enabled": true, "channels": ["console"], "dedup_window": "1m", "banner_ttl": "1h"},
  "storage": {"driver": "file", "path": %q}
}`

func startNotifyingApp(t *testing.T, mode string, now *time.Time) (*App, *lockedBuffer) {
	t.Helper()
	cfgPath := writeConfig(t, fmt.Sprintf(notifyingConfig, mode, filepath.Join(t.TempDir(), "entries.json")))
	out := &lockedBuffer{}
	a, err := NewApp(Options{ConfigPath: cfgPath, Version: "test", Out: out, Now: func() time.Time { return *now }})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.notif.Start(ctx)
	t.Cleanup(func() {
		cancel()
		a.notif.Stop(context.Background())
		_ = a.store.Close()
	})
	return a, out
}

func TestManualReRingNotifiesAgain(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 11, 0, 0, 0, time.UTC)
	a, out := startNotifyingApp(t, "manual", &now)
	ctx := context.Background()

	a.Board().Add(timers.AddOptions{Name: "Kzarka", Minutes: 60, LastTime: "10:00:00"})
	if rows := a.Refresh(ctx); rows[0].Phase != timers.PhaseRinging {
		t.Fatalf("phase = %s, want ringing", rows[0].Phase)
	}
	waitForCount(t, out, "Kzarka has respawned!", 1)

	if n := a.StopAlarm(ctx); n != 1 {
		t.Fatalf("StopAlarm = %d, want 1", n)
	}
	now = now.Add(5 * time.Second)
	if rows := a.Refresh(ctx); rows[0].Phase != timers.PhaseRinging {
		t.Fatalf("phase after acknowledge = %s, want ringing", rows[0].Phase)
	}
	waitForCount(t, out, "Kzarka has respawned!", 2)
}

func TestPreWarnBannersForSameNamedEntries(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 10, 57, 1, 0, time.UTC)
	a, out := startNotifyingApp(t, "auto", &now)

	a.Board().Add(timers.AddOptions{Name: "new boss", Minutes: 60, LastTime: "10:00:00"})
	a.Board().Add(timers.AddOptions{Name: "new boss", Minutes: 60, LastTime: "10:00:00"})
	a.Refresh(context.Background())
	waitForCount(t, out, "new boss respawns in 3 minutes!", 2)
}
