package control

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"bosstimer/internal/eventbus"
	"bosstimer/internal/storage"
	"bosstimer/internal/timers"
	kit "bosstimer/internal/transport"
	"bosstimer/internal/update"
	logx "bosstimer/pkg/logx"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type fakeHost struct {
	board   *timers.Board
	stopped int
	saved   int
}

func newFakeHost() *fakeHost {
	return &fakeHost{board: timers.NewBoard(timers.Options{Now: func() time.Time { return fixedNow }})}
}

func (h *fakeHost) Board() *timers.Board { return h.board }
func (h *fakeHost) Now() time.Time { return fixedNow }
func (h *fakeHost) Rows() []timers.Row { return h.board.Tick(fixedNow).Rows }
func (h *fakeHost) Refresh(context.Context) []timers.Row { return h.Rows() }
func (h *fakeHost) Save(context.Context) error { h.saved++; return nil }
func (h *fakeHost) TestSound(context.Context) error { return nil }
func (h *fakeHost) Status() Status {
	return Status{
		Version:       "1.0.0",
		Started:       fixedNow,
		Notices:       2,
		LastNotice:    fixedNow.Add(-time.Minute),
		DroppedEvents: 3,
		Tasks:         []string{"timers.tick restarts=1 panics=1"},
	}
}
func (h *fakeHost) StopAlarm(context.Context) int {
	h.stopped++
	return h.board.Acknowledge()
}
func (h *fakeHost) CheckUpdate(context.Context) (update.Result, error) {
	return update.Result{Current: "1.0.0", Latest: "v1.1.0", Available: true}, nil
}
func (h *fakeHost) RecentAlarms(context.Context, int) ([]storage.AlarmEntry, error) {
	return []storage.AlarmEntry{{At: fixedNow, Name: "Dragon", Kind: "due"}}, nil
}

func console(t *testing.T, d *Dispatcher, line string) (string, error) {
	t.Helper()
	reply, _, err := d.Execute(context.Background(), Request{Source: "console"}, line)
	return reply, err
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"list", []string{"list"}},
		{`rename 2 "Fire Dragon"`, []string{"rename", "2", "Fire Dragon"}},
		{`add 'a b' 5`, []string{"add", "a b", "5"}},
		{`add ""`, []string{"add", ""}},
		{`say a\ b`, []string{"say", "a b"}},
	}
	for _, tc := range cases {
		got := tokenize(tc.in)
		if strings.Join(got, "|") != strings.Join(tc.want, "|") || len(got) != len(tc.want) {
			t.Fatalf("tokenize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if got := commandName("/List@boss_bot"); got != "list" {
		t.Fatalf("commandName = %q", got)
	}
}

func TestEditCommands(t *testing.T) {
	t.Parallel()

	h := newFakeHost()
	bus := eventbus.New()
	edits, unsub := bus.Subscribe(16, eventbus.TimerEdited)
	defer unsub()
	d := New(h, logx.Nop(), Options{Bus: bus})

	steps := []struct {
		line    string
		want    string
		wantErr error
	}{
		{line: "add Dragon 30", want: "Added #1 Dragon (every 30m0s, last 10:00:00)"},
		{line: "add", want: "Added #2 new boss (every 1h0m0s"},
		{line: `rename 2 "Ice Golem"`, want: "#2 renamed to Ice Golem"},
		{line: "period 2 45 30", want: "#2 now respawns every 45m30s"},
		{line: "period 2 0 0", wantErr: timers.ErrMalformedEntry},
		{line: "add Bad 2000", wantErr: timers.ErrMalformedEntry},
		{line: "disable 1", want: "#1 disabled"},
		{line: "set 1 09:30:00", wantErr: timers.ErrManualOnly},
		{line: "mode manual", want: "Mode set to manual"},
		{line: "set 1 09:30:00", want: "#1 last respawn set to 09:30:00"},
		{line: "set 1 now", want: "#1 last respawn set to 10:00:00"},
		{line: "set 1 25:00", wantErr: ErrUsage},
		{line: "del 5", wantErr: timers.ErrNoSuchEntry},
		{line: "del x", wantErr: ErrUsage},
		{line: "del 1", want: "Deleted Dragon"},
		{line: "frobnicate", wantErr: ErrUnknownCommand},
	}
	for _, st := range steps {
		got, err := console(t, d, st.line)
		if st.wantErr != nil {
			if !errors.Is(err, st.wantErr) {
				t.Fatalf("%q: err = %v, want %v", st.line, err, st.wantErr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", st.line, err)
		}
		if !strings.HasPrefix(got, st.want) {
			t.Fatalf("%q: reply %q, want prefix %q", st.line, got, st.want)
		}
	}

	snap := h.board.Snapshot()
	if len(snap) != 1 || snap[0].Name != "Ice Golem" || snap[0].Order != 1 {
		t.Fatalf("board = %+v", snap)
	}
	if len(edits) == 0 {
		t.Fatalf("no %s events", eventbus.TimerEdited)
	}
}

func TestListAndHelp(t *testing.T) {
	t.Parallel()

	h := newFakeHost()
	d := New(h, logx.Nop(), Options{})
	if got, _ := console(t, d, "list"); !strings.HasPrefix(got, "No bosses yet") {
		t.Fatalf("empty list = %q", got)
	}
	h.board.Add(timers.AddOptions{Name: "Dragon", Minutes: 30})
	reply, req, err := d.Execute(context.Background(), Request{Source: "console"}, "ls")
	if err != nil || !req.Pre || !strings.Contains(reply, "Dragon") {
		t.Fatalf("list = %q, pre=%v, err=%v", reply, req.Pre, err)
	}
	help, err := console(t, d, "help")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"add", "del", "set", "stop", "refresh", "update", "history"} {
		if !strings.Contains(help, name) {
			t.Fatalf("help missing %q:\n%s", name, help)
		}
	}
}

func TestStatusReportsRuntimeHealth(t *testing.T) {
	t.Parallel()

	d := New(newFakeHost(), logx.Nop(), Options{})
	got, err := console(t, d, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{
		"version:  1.0.0",
		"notices:  2 (last 09:59:00)",
		"dropped:  3 events",
		"task:     timers.tick restarts=1 panics=1",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("status missing %q:\n%s", want, got)
		}
	}
}

func TestTelegramOwnerOnly(t *testing.T) {
	t.Parallel()

	d := New(newFakeHost(), logx.Nop(), Options{OwnerUserIDs: []int64{7}})
	if _, _, err := d.Execute(context.Background(), Request{Source: "telegram", FromID: 8}, "/list"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger err = %v", err)
	}
	if _, _, err := d.Execute(context.Background(), Request{Source: "telegram", FromID: 7}, "/list"); err != nil {
		t.Fatalf("owner err = %v", err)
	}
}

type fakeAdapter struct {
	mu       sync.Mutex
	sent     []string
	answered []string
}

func (a *fakeAdapter) Name() string { return "telegram" }
func (a *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (a *fakeAdapter) Stop(context.Context) error { return nil }
func (a *fakeAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	a.sent = append(a.sent, text)
	a.mu.Unlock()
	return kit.MessageRef{}, nil
}
func (a *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string) error {
	a.mu.Lock()
	a.answered = append(a.answered, text)
	a.mu.Unlock()
	return nil
}

func TestHandleUpdateRepliesAndAcks(t *testing.T) {
	t.Parallel()

	h := newFakeHost()
	ad := &fakeAdapter{}
	d := New(h, logx.Nop(), Options{OwnerUserIDs: []int64{7}})
	d.Attach(ad)
	ctx := context.Background()

	d.HandleUpdate(ctx, kit.Update{Kind: kit.UpdateMessage, Source: "telegram", Message: &kit.Message{FromID: 7, Text: "hello there"}})
	d.HandleUpdate(ctx, kit.Update{Kind: kit.UpdateMessage, Source: "telegram", Message: &kit.Message{FromID: 7, Text: "/mode"}})
	d.HandleUpdate(ctx, kit.Update{Kind: kit.UpdateMessage, Source: "telegram", Message: &kit.Message{FromID: 9, Text: "/mode"}})
	if len(ad.sent) != 1 || ad.sent[0] != "Mode: auto" {
		t.Fatalf("sent = %q", ad.sent)
	}

	d.HandleUpdate(ctx, kit.Update{Kind: kit.UpdateCallback, Source: "telegram", Callback: &kit.Callback{ID: "c1", FromID: 7, Data: CallbackAck}})
	d.HandleUpdate(ctx, kit.Update{Kind: kit.UpdateCallback, Source: "telegram", Callback: &kit.Callback{ID: "c2", FromID: 9, Data: CallbackAck}})
	if h.stopped != 1 {
		t.Fatalf("StopAlarm calls = %d, want 1", h.stopped)
	}
	if len(ad.answered) != 2 || ad.answered[0] != "No alarm ringing" || ad.answered[1] != "Not allowed" {
		t.Fatalf("answers = %q", ad.answered)
	}
}

func TestRunStopsOnClosedInput(t *testing.T) {
	t.Parallel()

	h := newFakeHost()
	d := New(h, logx.Nop(), Options{})
	in := make(chan kit.Update, 1)
	in <- kit.Update{Kind: kit.UpdateMessage, Source: "console", Message: &kit.Message{Text: "save"}}
	close(in)

	done := make(chan struct{})
	go func() {
		d.Run(context.Background(), in)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return")
	}
	if h.saved != 1 {
		t.Fatalf("saved = %d", h.saved)
	}
}
