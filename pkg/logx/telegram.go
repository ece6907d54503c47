package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "bosstimer/internal/transport"
)

const (
	tgQueueSize  = 128
	tgMaxMessage = 3500
	tgMaxValue   = 500
)

// telegramSink is a zerolog.LevelWriter that queues formatted events for a
// background sender. Writes never block; overflow and rate-limited events are
// dropped.
type telegramSink struct {
	mu       sync.Mutex
	sender   kit.Sender
	target   kit.ChatTarget
	minLevel zerolog.Level
	limiter  *rate.Limiter
	enabled  bool
	warned   bool

	queue  chan telegramItem
	cancel context.CancelFunc
	done   chan struct{}
}

type telegramItem struct {
	to  kit.ChatTarget
	msg string
}

func newTelegramSink(sender kit.Sender) *telegramSink {
	return &telegramSink{
		sender:   sender,
		minLevel: zerolog.WarnLevel,
		limiter:  rate.NewLimiter(1, 1),
		queue:    make(chan telegramItem, tgQueueSize),
	}
}

func (t *telegramSink) setSender(sender kit.Sender) {
	t.mu.Lock()
	t.sender = sender
	t.mu.Unlock()
}

func (t *telegramSink) setTarget(chatID int64, threadID int) {
	t.mu.Lock()
	t.target = kit.ChatTarget{ChatID: chatID, ThreadID: threadID}
	t.warned = false
	t.mu.Unlock()
}

func (t *telegramSink) configure(cfg TelegramConfig) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = cfg.Enabled
	t.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	rps := max(1, cfg.RatePerSec)
	t.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if cfg.ThreadID != 0 {
		t.target.ThreadID = cfg.ThreadID
	}
	if !cfg.Enabled || t.cancel != nil {
		return
	}
	if t.target.ChatID == 0 && !t.warned {
		t.warned = true
		fmt.Fprintln(os.Stderr, "logx: telegram logging enabled but telegram.group_log is not set")
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(ctx, t.done)
}

func (t *telegramSink) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-t.queue:
			t.mu.Lock()
			sender := t.sender
			t.mu.Unlock()
			if sender == nil {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_, _ = sender.SendText(sctx, it.to, it.msg, &kit.SendOptions{DisablePreview: true})
			cancel()
		}
	}
}

func (t *telegramSink) close() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(zerolog.InfoLevel, p)
}

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	ok := t.enabled && t.sender != nil && t.target.ChatID != 0 && level >= t.minLevel && t.limiter.Allow()
	to := t.target
	t.mu.Unlock()
	if !ok {
		return len(p), nil
	}
	if msg := formatEvent(p); msg != "" {
		select {
		case t.queue <- telegramItem{to: to, msg: msg}:
		default:
		}
	}
	return len(p), nil
}

// formatEvent renders a zerolog JSON line as "[LEVEL] message" followed by
// one "key=value" line per field, sorted by key.
func formatEvent(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), tgMaxMessage)
	}

	var b strings.Builder
	if lvl, _ := m[zerolog.LevelFieldName].(string); lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	msg, _ := m[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.TimestampFieldName:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s=%s", k, truncate(fmt.Sprint(m[k]), tgMaxValue))
	}
	return truncate(b.String(), tgMaxMessage)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
