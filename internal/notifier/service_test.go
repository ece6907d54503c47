package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"bosstimer/internal/eventbus"
	kit "bosstimer/internal/transport"
	logx "bosstimer/pkg/logx"
)

type fakeSender struct {
	mu      sync.Mutex
	sent    []string
	deleted []kit.MessageRef
	fail    int
	nextID  int
}

func (f *fakeSender) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return kit.MessageRef{}, errors.New("boom")
	}
	f.nextID++
	f.sent = append(f.sent, text)
	return kit.MessageRef{MessageID: f.nextID}, nil
}

func (f *fakeSender) DeleteText(_ context.Context, ref kit.MessageRef) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, ref)
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent), len(f.deleted)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func testConfig() Config {
	return Config{
		Enabled:     true,
		Workers:     1,
		QueueSize:   16,
		RatePerSec:  100,
		RetryMax:    2,
		RetryBase:   time.Millisecond,
		DedupWindow: time.Minute,
	}
}

func TestNotifyDeliversWithPrefix(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	s := New(testConfig(), logx.Nop(), nil, nil)
	s.SetSender(ChannelConsole, fs, kit.ChatTarget{})
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Notify(context.Background(), kit.Notification{Channel: "console", Priority: PriorityAlarm, Text: "Boss has respawned!"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, func() bool { n, _ := fs.counts(); return n == 1 })

	fs.mu.Lock()
	got := fs.sent[0]
	fs.mu.Unlock()
	if !strings.HasPrefix(got, "🚨 ") || !strings.HasSuffix(got, "Boss has respawned!") {
		t.Fatalf("sent %q", got)
	}
	if h := s.History(); len(h) != 1 || h[0].Channel != ChannelConsole {
		t.Fatalf("history = %+v", h)
	}
}

func TestNotifyDedupsWithinWindow(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(16, "notifier.deduped")
	defer unsub()

	fs := &fakeSender{}
	s := New(testConfig(), logx.Nop(), bus, nil)
	s.SetSender(ChannelConsole, fs, kit.ChatTarget{})
	s.Start(context.Background())

	n := kit.Notification{Channel: ChannelConsole, Text: "same"}
	for i := 0; i < 3; i++ {
		if err := s.Notify(context.Background(), n); err != nil {
			t.Fatalf("Notify #%d: %v", i, err)
		}
	}
	s.Stop(context.Background())

	if sent, _ := fs.counts(); sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	got := 0
	for len(events) > 0 {
		<-events
		got++
	}
	if got != 2 {
		t.Fatalf("deduped events = %d, want 2", got)
	}
}

func TestNotifyNeverDedupsAlarms(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	s := New(testConfig(), logx.Nop(), nil, nil)
	s.SetSender(ChannelConsole, fs, kit.ChatTarget{})
	s.Start(context.Background())

	n := kit.Notification{Channel: ChannelConsole, Priority: PriorityAlarm, Text: "Boss has respawned!\nTime: 11:00:00"}
	for i := 0; i < 2; i++ {
		if err := s.Notify(context.Background(), n); err != nil {
			t.Fatalf("Notify #%d: %v", i, err)
		}
	}
	s.Stop(context.Background())

	if sent, _ := fs.counts(); sent != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}
}

func TestShowKeyedSeparatesSameText(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	s := New(testConfig(), logx.Nop(), nil, nil)
	s.SetSender(ChannelConsole, fs, kit.ChatTarget{})
	s.Start(context.Background())

	for _, key := range []string{"a", "b", "a"} {
		if err := s.ShowKeyed(context.Background(), key, "new boss respawns in 3 minutes!"); err != nil {
			t.Fatalf("ShowKeyed(%q): %v", key, err)
		}
	}
	s.Stop(context.Background())

	if sent, _ := fs.counts(); sent != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}
}

func TestNotifyRetries(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{fail: 2}
	s := New(testConfig(), logx.Nop(), nil, nil)
	s.SetSender(ChannelConsole, fs, kit.ChatTarget{})
	s.Start(context.Background())

	if err := s.Notify(context.Background(), kit.Notification{Channel: ChannelConsole, Text: "retry me"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	s.Stop(context.Background())

	if sent, _ := fs.counts(); sent != 1 {
		t.Fatalf("sent = %d, want 1 after retries", sent)
	}
}

func TestNotifyErrors(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	s := New(cfg, logx.Nop(), nil, nil)
	if err := s.Notify(context.Background(), kit.Notification{Channel: ChannelConsole, Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("before Start: %v, want ErrStopped", err)
	}

	s.Start(context.Background())
	defer s.Stop(context.Background())
	if err := s.Notify(context.Background(), kit.Notification{Channel: "pager", Text: "x"}); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("unknown channel: %v", err)
	}

	cfg.Enabled = false
	off := New(cfg, logx.Nop(), nil, nil)
	if err := off.Notify(context.Background(), kit.Notification{Channel: ChannelConsole, Text: "x"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("disabled: %v", err)
	}
}

func TestShowRetractsBanner(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.BannerTTL = 20 * time.Millisecond
	tg := &fakeSender{}
	con := &fakeSender{}
	s := New(cfg, logx.Nop(), nil, nil)
	s.SetSender(ChannelTelegram, tg, kit.ChatTarget{ChatID: 42})
	s.SetSender(ChannelConsole, con, kit.ChatTarget{})
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if got := s.Channels(); len(got) != 2 {
		t.Fatalf("Channels = %v", got)
	}
	if err := s.Show(context.Background(), "Boss respawns in 3 minutes!"); err != nil {
		t.Fatalf("Show: %v", err)
	}
	waitFor(t, func() bool {
		_, dt := tg.counts()
		_, dc := con.counts()
		return dt == 1 && dc == 1
	})
}

func TestStopFlushesPendingRetractions(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.BannerTTL = time.Hour
	fs := &fakeSender{}
	s := New(cfg, logx.Nop(), nil, nil)
	s.SetSender(ChannelTelegram, fs, kit.ChatTarget{ChatID: 1})
	s.Start(context.Background())

	if err := s.Show(context.Background(), "banner"); err != nil {
		t.Fatalf("Show: %v", err)
	}
	waitFor(t, func() bool { n, _ := fs.counts(); return n == 1 })
	s.Stop(context.Background())

	if _, deleted := fs.counts(); deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
}

func TestChannelsFilter(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Channels = []string{"Telegram", "pager"}
	s := New(cfg, logx.Nop(), nil, nil)
	s.SetSender(ChannelTelegram, &fakeSender{}, kit.ChatTarget{})
	s.SetSender(ChannelConsole, &fakeSender{}, kit.ChatTarget{})
	got := s.Channels()
	if len(got) != 1 || got[0] != ChannelTelegram {
		t.Fatalf("Channels = %v", got)
	}
}

func TestRetryDelayCapped(t *testing.T) {
	t.Parallel()

	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: 300 * time.Millisecond}
	for attempt := 1; attempt <= 6; attempt++ {
		if d := retryDelay(cfg, attempt); d <= 0 || d > cfg.RetryMaxDelay {
			t.Fatalf("attempt %d delay = %v", attempt, d)
		}
	}
}
