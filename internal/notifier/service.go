package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"bosstimer/internal/eventbus"
	rtsup "bosstimer/internal/runtime/supervisor"
	"bosstimer/internal/storage"
	kit "bosstimer/internal/transport"
	logx "bosstimer/pkg/logx"
)

var (
	ErrDisabled       = errors.New("notifier disabled")
	ErrQueueFull      = errors.New("notifier queue full")
	ErrStopped        = errors.New("notifier stopped")
	ErrUnknownChannel = errors.New("notifier: no sender for channel")
)

const (
	PriorityInfo    = 5
	PriorityWarning = 7
	PriorityAlarm   = 9
)

type job struct {
	n        kit.Notification
	dedupKey string
}

type route struct {
	sender kit.Sender
	target kit.ChatTarget
}

// Service implements an async notification pipeline:
// queue + worker pool + rate limit + retry + dedup + timed retraction.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	routes map[string]route
	bus    eventbus.Bus
	store  storage.Store

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	// In-memory dedup cache: key -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	// Optional persistent dedup writes (best-effort)
	persistCh chan dedupWrite

	// Banners waiting to be retracted.
	rmu        sync.Mutex
	retractSeq uint64
	retracts   map[uint64]*retraction

	hmu     sync.Mutex
	history []HistoryItem
}

type retraction struct {
	timer *time.Timer
	del   kit.Deleter
	ref   kit.MessageRef
}

type dedupWrite struct {
	key   string
	until time.Time
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:      log,
		routes:   map[string]route{},
		bus:      bus,
		store:    store,
		dedup:    map[string]time.Time{},
		retracts: map[uint64]*retraction{},
	}
	s.applyLocked(cfg)
	return s
}

// SetSender registers (or replaces) the sender for a channel. target is used
// for notifications that do not name one. A nil sender removes the channel.
func (s *Service) SetSender(channel string, sender kit.Sender, target kit.ChatTarget) {
	channel = strings.ToLower(strings.TrimSpace(channel))
	s.mu.Lock()
	defer s.mu.Unlock()
	if sender == nil {
		delete(s.routes, channel)
		return
	}
	s.routes[channel] = route{sender: sender, target: target}
}

// Channels returns the banner channels that currently have a sender.
func (s *Service) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bannerChannelsLocked()
}

func (s *Service) bannerChannelsLocked() []string {
	var out []string
	if len(s.cfg.Channels) == 0 {
		for ch := range s.routes {
			out = append(out, ch)
		}
	} else {
		for _, ch := range s.cfg.Channels {
			ch = strings.ToLower(strings.TrimSpace(ch))
			if _, ok := s.routes[ch]; ok {
				out = append(out, ch)
			}
		}
	}
	sort.Strings(out)
	return out
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	if cfg.BannerTTL < 0 {
		cfg.BannerTTL = 0
	}

	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers
	if s.cfg.PersistDedup && s.store != nil {
		s.persistCh = make(chan dedupWrite, 1024)
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "notifier"))),
		// Delivery is best-effort; a failing worker must not stop the daemon.
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	pch := s.persistCh
	st := s.store
	s.mu.Unlock()

	if pch != nil {
		sup.GoRestart("dedup.persist", func(c context.Context) error {
			s.persistLoop(c, pch, st)
			return s.exitReason(c, "persist loop")
		}, rtsup.WithPublishFirstError(true))
	}
	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			return s.exitReason(c, "worker")
		}, rtsup.WithPublishFirstError(true))
	}
}

// exitReason turns a loop return into nil on shutdown and an error otherwise,
// so unexpected exits get restarted.
func (s *Service) exitReason(c context.Context, what string) error {
	s.mu.Lock()
	stopping := s.stopDone != nil
	s.mu.Unlock()
	if stopping || c.Err() != nil {
		return nil
	}
	return fmt.Errorf("notifier %s exited unexpectedly", what)
}

// Stop stops intake, drains the queue best-effort until ctx ends, then
// retracts banners that are still up.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q := s.queue
	pch := s.persistCh
	sup := s.sup
	if q == nil {
		s.mu.Unlock()
		s.flushRetractions(ctx)
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.sendWG.Wait()
		if pch != nil {
			close(pch)
		}
		close(q)
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.queue = nil
		s.persistCh = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
	s.flushRetractions(ctx)
}

// Show publishes a banner on every banner channel. It never blocks.
func (s *Service) Show(ctx context.Context, text string) error {
	return s.ShowKeyed(ctx, "", text)
}

// ShowKeyed is Show with an explicit dedup key, for banners whose text can
// repeat across distinct events.
func (s *Service) ShowKeyed(ctx context.Context, key, text string) error {
	s.mu.Lock()
	channels := s.bannerChannelsLocked()
	ttl := s.cfg.BannerTTL
	s.mu.Unlock()
	if len(channels) == 0 {
		return ErrUnknownChannel
	}

	var errs []error
	for _, ch := range channels {
		errs = append(errs, s.Notify(ctx, kit.Notification{
			Channel:  ch,
			Priority: PriorityWarning,
			Text:     text,
			Key:      key,
			TTL:      ttl,
		}))
	}
	return errors.Join(errs...)
}

// Notify enqueues n. Duplicates within the dedup window are dropped silently.
// Alarm-priority notices are never deduplicated; each reports its own firing.
func (s *Service) Notify(ctx context.Context, n kit.Notification) error {
	if ctx != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	n.Channel = strings.ToLower(strings.TrimSpace(n.Channel))

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	if _, ok := s.routes[n.Channel]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w %q", ErrUnknownChannel, n.Channel)
	}
	q := s.queue
	dedupWindow := s.cfg.DedupWindow
	dedupMax := s.cfg.DedupMaxEntries
	persistDedup := s.cfg.PersistDedup
	st := s.store
	pch := s.persistCh
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	key := dedupKey(n)
	if dedupWindow > 0 && key != "" && n.Priority < PriorityAlarm {
		if !s.dedupAllow(ctx, key, dedupWindow, dedupMax, persistDedup, st, pch) {
			s.publish("notifier.deduped", n, key, nil)
			return nil
		}
	}

	select {
	case q <- job{n: n, dedupKey: key}:
		s.publish("notifier.queued", n, key, nil)
		return nil
	default:
		s.publish("notifier.dropped", n, key, ErrQueueFull)
		return ErrQueueFull
	}
}

func (s *Service) publish(typ string, n kit.Notification, key string, err error) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	ev := NotificationEvent{Channel: n.Channel, ChatID: n.Target.ChatID, ThreadID: n.Target.ThreadID, Key: key, At: now}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(channel, text string) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Channel: channel, Text: text})
	if len(s.history) > 300 {
		s.history = s.history[len(s.history)-300:]
	}
	s.hmu.Unlock()
}

func (s *Service) persistLoop(ctx context.Context, ch <-chan dedupWrite, st storage.Store) {
	for {
		select {
		case <-ctx.Done():
			return
		case w, ok := <-ch:
			if !ok {
				return
			}
			cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
			_ = st.PutDedup(cctx, w.key, w.until)
			cancel()
		}
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, j)
		}
	}
}

func (s *Service) sendWithRetry(runCtx context.Context, j job) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	rt, ok := s.routes[j.n.Channel]
	s.mu.Unlock()
	if !ok {
		return
	}

	text := prefixForPriority(j.n.Priority) + j.n.Text
	if strings.TrimSpace(j.n.Text) == "" {
		return
	}
	target := j.n.Target
	if target == (kit.ChatTarget{}) {
		target = rt.target
	}

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(runCtx); err != nil {
			return
		}

		callCtx, cancel := context.WithTimeout(runCtx, 10*time.Second)
		ref, err := rt.sender.SendText(callCtx, target, text, j.n.Options)
		cancel()
		if err == nil {
			s.appendHistory(j.n.Channel, text)
			s.publish("notifier.sent", j.n, j.dedupKey, nil)
			if j.n.TTL > 0 {
				if del, ok := rt.sender.(kit.Deleter); ok {
					s.scheduleRetraction(del, ref, j.n.TTL)
				}
			}
			return
		}
		lastErr = err
		s.log.Debug("notify send failed",
			logx.String("channel", j.n.Channel),
			logx.Err(err),
			logx.Int("attempt", attempt),
			logx.Int("max", maxAttempts),
		)
		if attempt >= maxAttempts {
			break
		}

		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-runCtx.Done():
			t.Stop()
			return
		}
	}
	if lastErr != nil {
		s.publish("notifier.failed", j.n, j.dedupKey, lastErr)
	}
}

func (s *Service) scheduleRetraction(del kit.Deleter, ref kit.MessageRef, ttl time.Duration) {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	s.retractSeq++
	id := s.retractSeq
	r := &retraction{del: del, ref: ref}
	r.timer = time.AfterFunc(ttl, func() {
		s.rmu.Lock()
		_, pending := s.retracts[id]
		delete(s.retracts, id)
		s.rmu.Unlock()
		if !pending {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := del.DeleteText(ctx, ref); err != nil {
			s.log.Debug("banner retraction failed", logx.Err(err))
		}
	})
	s.retracts[id] = r
}

// flushRetractions removes every banner that is still up.
func (s *Service) flushRetractions(ctx context.Context) {
	s.rmu.Lock()
	pending := make([]*retraction, 0, len(s.retracts))
	for id, r := range s.retracts {
		if r.timer.Stop() {
			pending = append(pending, r)
		}
		delete(s.retracts, id)
	}
	s.rmu.Unlock()

	for _, r := range pending {
		if ctx.Err() != nil {
			return
		}
		_ = r.del.DeleteText(ctx, r.ref)
	}
}

func prefixForPriority(p int) string {
	switch {
	case p >= PriorityAlarm:
		return "🚨 "
	case p >= PriorityWarning:
		return "⚠️ "
	case p >= PriorityInfo:
		return "ℹ️ "
	default:
		return ""
	}
}

func dedupKey(n kit.Notification) string {
	if n.Channel == "" {
		return ""
	}
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s|%d:%d:%d|", n.Channel, n.Target.ChatID, n.Target.ThreadID, n.Priority)
	if n.Key != "" {
		_, _ = h.Write([]byte("key|" + n.Key))
	} else {
		_, _ = h.Write([]byte(n.Text))
	}
	return fmt.Sprintf("%x", h.Sum64())
}

func (s *Service) dedupAllow(ctx context.Context, key string, window time.Duration, max int, persist bool, st storage.Store, pch chan dedupWrite) bool {
	now := time.Now()

	s.dmu.Lock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		s.dmu.Unlock()
		return false
	}
	s.dmu.Unlock()

	// Persistent check (best-effort) for cross-restart dedup.
	if persist && st != nil {
		qctx := ctx
		if qctx == nil {
			qctx = context.Background()
		}
		cctx, cancel := context.WithTimeout(qctx, 25*time.Millisecond)
		until, ok, err := st.GetDedup(cctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			s.dmu.Lock()
			s.dedup[key] = until
			s.dmu.Unlock()
			return false
		}
	}

	until := now.Add(window)
	s.dmu.Lock()
	s.dedup[key] = until
	for k, u := range s.dedup {
		if !now.Before(u) {
			delete(s.dedup, k)
		}
	}
	for max > 0 && len(s.dedup) > max {
		var (
			minKey string
			minT   time.Time
		)
		for k, u := range s.dedup {
			if minKey == "" || u.Before(minT) {
				minKey, minT = k, u
			}
		}
		delete(s.dedup, minKey)
	}
	s.dmu.Unlock()

	if pch != nil {
		select {
		case pch <- dedupWrite{key: key, until: until}:
		default:
		}
	}
	return true
}

// retryDelay is the wait before attempt+1: base * 2^(attempt-1) with
// 0.7..1.3 jitter, capped at RetryMaxDelay.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(d, cfg.RetryMaxDelay)
}
