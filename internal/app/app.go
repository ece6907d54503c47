package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"bosstimer/internal/audio"
	"bosstimer/internal/config"
	"bosstimer/internal/control"
	"bosstimer/internal/display"
	"bosstimer/internal/eventbus"
	"bosstimer/internal/notifier"
	rtsup "bosstimer/internal/runtime/supervisor"
	"bosstimer/internal/storage"
	"bosstimer/internal/task/scheduler"
	"bosstimer/internal/timers"
	kit "bosstimer/internal/transport"
	"bosstimer/internal/transport/console"
	telegram "bosstimer/internal/transport/telegram/adapter"
	"bosstimer/internal/update"
	logx "bosstimer/pkg/logx"
)

const (
	displayTable = "table"
	displayBars  = "bars"
	displayNone  = "none"

	jobAutosave    = "autosave"
	jobUpdateCheck = "update.check"

	tickMaxRestarts = 20
)

type StopReason string

const (
	StopSignal StopReason = "signal"
	StopFatal  StopReason = "fatal"
)

// Options configures NewApp.
type Options struct {
	ConfigPath string
	Version    string
	// In feeds operator commands; nil disables console input.
	In io.Reader
	// Out receives banners, the live display and the terminal bell.
	Out io.Writer
	Now func() time.Time
}

type App struct {
	opts Options

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	// storeDesc is shown by the status command.
	storeDesc string

	board  *timers.Board
	player *audio.ExecPlayer
	notif  *notifier.Service
	sched  *scheduler.Service
	disp   *control.Dispatcher

	console *console.Adapter
	tg      *telegram.Adapter // nil without a token
	updates chan kit.Update

	mu          sync.RWMutex
	settings    timerSettings
	checker     update.Checker
	rows        []timers.Row
	displayMode string
	refresh     time.Duration
	lastDraw    time.Time
	bars        *display.Bars

	// tickMu serializes evaluation passes (tick loop and the refresh command).
	tickMu    sync.Mutex
	tickReset chan time.Duration
	lastPass  atomic.Int64 // unix nanos of the last finished pass

	// loadFailed holds automatic saves after the saved entries could not be
	// read, so the unreadable file survives until an explicit save.
	loadFailed atomic.Bool

	started time.Time
}

func NewApp(opts Options) (*App, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if strings.TrimSpace(opts.Version) == "" {
		opts.Version = "dev"
	}

	cfgm := config.NewConfigManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", opts.ConfigPath, err)
	}
	settings, _ := mapTimers(cfg)

	// Telegram transport (optional)
	var tg *telegram.Adapter
	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		tg, err = telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: pollTimeout,
		}, bootLog)
		if err != nil {
			return nil, err
		}
	}

	// logx.New() applies immediately; set the Telegram target before the
	// sink is enabled so Apply does not warn about a missing chat.
	logCfg := mapLogging(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	var logSender kit.Sender
	if tg != nil {
		logSender = tg
	}
	logSvc, log := logx.New(bootCfg, logSender)
	if chatID := groupLogTarget(cfg); chatID != 0 {
		logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	a := &App{
		opts:      opts,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		settings:  settings,
		tg:        tg,
		updates:   make(chan kit.Update, 64),
		tickReset: make(chan time.Duration, 1),
		storeDesc: "none",
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		// The entry list still works in memory; saving reports ErrDisabled.
		log.Error("storage unavailable; entries will not be saved", logx.String("driver", sc.Driver), logx.Err(err))
	} else if st != nil {
		a.store = st
		a.storeDesc = sc.Driver + ":" + sc.Path
		if sc.Driver == "" {
			a.storeDesc = "file:" + sc.Path
		}
	}

	a.board = timers.NewBoard(timers.Options{Mode: settings.mode, Policy: settings.policy, Now: a.Now})
	a.loadEntries(context.Background())

	ac := mapAudio(cfg)
	ac.Bell = opts.Out
	a.player = audio.NewExecPlayer(ac, log.With(logx.String("comp", "audio")))

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.notif = notifier.New(ncfg, log.With(logx.String("comp", "notifier")), bus, a.store)
	a.console = console.New(opts.In, opts.Out)
	a.notif.SetSender(notifier.ChannelConsole, a.console, kit.ChatTarget{})
	a.setTelegramRoute(cfg)

	a.sched = scheduler.New(scheduler.Config{Timezone: cfg.Timers.Timezone}, log.With(logx.String("comp", "scheduler")), bus)

	if a.checker, err = mapUpdate(cfg, opts.Version); err != nil {
		return nil, err
	}
	if a.displayMode, a.refresh, err = mapDisplay(cfg); err != nil {
		return nil, err
	}

	a.disp = control.New(a, log.With(logx.String("comp", "control")), control.Options{
		OwnerUserIDs: cfg.Telegram.OwnerUserIDs,
		Timeout:      15 * time.Second,
		Bus:          bus,
	})
	a.disp.Attach(a.console)
	if tg != nil {
		a.disp.Attach(tg)
	}
	return a, nil
}

func (a *App) setTelegramRoute(cfg *config.Config) {
	if a.tg == nil {
		return
	}
	target, ok := alertTarget(cfg)
	if !ok {
		a.log.Warn("telegram enabled without alert_chat_id or owner_user_ids; alerts stay local")
		a.notif.SetSender(notifier.ChannelTelegram, nil, kit.ChatTarget{})
		return
	}
	a.notif.SetSender(notifier.ChannelTelegram, a.tg, target)
}

// loadEntries replaces the board with the persisted list. Undecodable records
// are logged and skipped. An unreadable file leaves the list empty and holds
// automatic saves.
func (a *App) loadEntries(ctx context.Context) {
	if a.store == nil {
		return
	}
	recs, err := a.store.LoadEntries(ctx)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrConfigIO):
		a.log.Error("cannot read saved entries; starting with an empty list, automatic saves are off until the save command runs", logx.Err(err))
		a.loadFailed.Store(true)
		recs = nil
	default:
		for _, e := range unjoin(err) {
			a.log.Warn("skipping malformed saved entry", logx.Err(e))
		}
		a.log.Warn("the next save keeps a copy of the saved entries before dropping the skipped ones", logx.String("storage", a.storeDesc))
	}
	a.board.Load(recs)
	a.log.Info("entries loaded", logx.Int("count", len(recs)), logx.String("storage", a.storeDesc))
}

func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) runCtx() context.Context {
	if a.sup == nil {
		return context.Background()
	}
	return a.sup.Context()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.started = a.Now()

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}

	cfg := a.cfgm.Get()
	a.applySchedules(cfg)
	a.sched.Start(a.sup.Context())

	if err := a.console.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if a.tg != nil {
		if err := a.tg.Start(a.sup.Context(), a.updates); err != nil {
			return err
		}
		a.sup.Go0("telegram.commands", func(c context.Context) {
			if err := a.tg.SetCommands(c, a.disp.MenuCommands()); err != nil {
				a.log.Warn("set telegram command menu failed", logx.Err(err))
			}
		})
	}

	a.sup.Go0("control.dispatch", func(c context.Context) {
		a.disp.Run(c, a.updates)
	})

	a.mu.Lock()
	if a.displayMode == displayBars {
		a.bars = display.NewBars(a.opts.Out, a.settings.tick)
	}
	a.mu.Unlock()

	// A loop that keeps failing stops the daemon so the service manager can
	// restart it cleanly.
	a.sup.GoRestart("timers.tick", a.tickLoop,
		rtsup.WithRestartBackoff(500*time.Millisecond, 5*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithMaxRestarts(tickMaxRestarts),
	)

	// Event log for debugging; components subscribe on their own as well.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.startSystemd()

	a.log.Info("app started",
		logx.String("version", a.opts.Version),
		logx.String("mode", string(a.board.Mode())),
		logx.Int("entries", a.board.Len()),
		logx.Any("channels", a.notif.Channels()),
	)
	return nil
}

func (a *App) applyConfig(c context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range sections {
		switch s {
		case "storage":
			a.log.Warn("storage config changed; restart required for changes to take effect")
		case "telegram":
			if (strings.TrimSpace(oldCfg.Telegram.Token) != "") != (strings.TrimSpace(newCfg.Telegram.Token) != "") {
				a.log.Warn("telegram token changed; restart required for changes to take effect")
			}
		}
	}

	// update log target first (so Apply() doesn't warn when Telegram logging is enabled)
	a.logs.SetTelegramTarget(groupLogTarget(newCfg), newCfg.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLogging(newCfg))

	a.disp.Apply(control.Options{
		OwnerUserIDs: newCfg.Telegram.OwnerUserIDs,
		Timeout:      15 * time.Second,
		Bus:          a.bus,
	})
	a.setTelegramRoute(newCfg)

	if ts, err := mapTimers(newCfg); err != nil {
		a.log.Warn("invalid timers config; keeping previous", logx.Err(err))
	} else {
		a.board.SetMode(ts.mode)
		a.board.SetPolicy(ts.policy)
		a.mu.Lock()
		tickChanged := ts.tick != a.settings.tick
		a.settings = ts
		a.mu.Unlock()
		if tickChanged {
			select {
			case a.tickReset <- ts.tick:
			default:
			}
		}
	}
	a.sched.Apply(scheduler.Config{Timezone: newCfg.Timers.Timezone})

	ac := mapAudio(newCfg)
	ac.Bell = a.opts.Out
	a.player.Apply(ac)

	if ch, err := mapUpdate(newCfg, a.opts.Version); err != nil {
		a.log.Warn("invalid update config; keeping previous", logx.Err(err))
	} else {
		a.mu.Lock()
		a.checker = ch
		a.mu.Unlock()
	}
	a.applySchedules(newCfg)

	if mode, refresh, err := mapDisplay(newCfg); err != nil {
		a.log.Warn("invalid display config; keeping previous", logx.Err(err))
	} else {
		a.setDisplay(mode, refresh)
	}

	prevNotifEnabled := a.notif.Enabled()
	if ncfg, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
		switch {
		case prevNotifEnabled && !ncfg.Enabled:
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		case !prevNotifEnabled && ncfg.Enabled:
			a.log.Info("notifier enabled via config")
			a.notif.Start(c)
		}
	}

	a.log.Info("config reloaded", fields...)
}

func (a *App) setDisplay(mode string, refresh time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refresh = refresh
	if mode == a.displayMode {
		return
	}
	a.displayMode = mode
	if a.bars != nil {
		a.bars.Close()
		a.bars = nil
	}
	if mode == displayBars && a.sup != nil {
		a.bars = display.NewBars(a.opts.Out, a.settings.tick)
	}
	a.lastDraw = time.Time{}
}

// applySchedules (re)registers autosave and the periodic update check.
func (a *App) applySchedules(cfg *config.Config) {
	a.mu.RLock()
	autosave := a.settings.autosave
	a.mu.RUnlock()

	if autosave == "" || a.store == nil {
		a.sched.Remove(jobAutosave)
	} else if err := a.sched.AddSchedule(jobAutosave, autosave, 10*time.Second, a.autosave); err != nil {
		a.log.Warn("invalid timers.autosave; autosave disabled", logx.String("schedule", autosave), logx.Err(err))
		a.sched.Remove(jobAutosave)
	}

	spec := strings.TrimSpace(cfg.Update.Schedule)
	if spec == "" {
		a.sched.Remove(jobUpdateCheck)
		return
	}
	if err := a.sched.AddSchedule(jobUpdateCheck, spec, 30*time.Second, a.scheduledUpdateCheck); err != nil {
		a.log.Warn("invalid update.schedule; periodic update check disabled", logx.String("schedule", spec), logx.Err(err))
		a.sched.Remove(jobUpdateCheck)
	}
}

// errSaveHeld is returned by automatic saves while loadFailed is set.
var errSaveHeld = errors.New("saved entries could not be read at startup; run the save command to overwrite them")

// autosave backs the autosave job and the save on exit.
func (a *App) autosave(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	if a.loadFailed.Load() {
		return errSaveHeld
	}
	return a.Save(ctx)
}

func (a *App) scheduledUpdateCheck(ctx context.Context) error {
	res, err := a.CheckUpdate(ctx)
	if err != nil {
		return err
	}
	if res.Available {
		a.log.Info("update available", logx.String("current", res.Current), logx.String("latest", res.Latest))
		msg := fmt.Sprintf("Update available: %s (running %s)", res.Latest, res.Current)
		if err := a.notif.Show(ctx, msg); err != nil && !errors.Is(err, notifier.ErrDisabled) {
			a.log.Debug("update banner not shown", logx.Err(err))
		}
	}
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.notifySystemd(sdStopping)

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	step("display", time.Second, func(context.Context) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.bars != nil {
			a.bars.Close()
			a.bars = nil
		}
		return nil
	})
	step("audio", time.Second, func(context.Context) error { a.player.Stop(); return nil })
	step("save", 3*time.Second, a.autosave)
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("console", time.Second, func(c context.Context) error { return a.console.Stop(c) })
	if a.tg != nil {
		step("telegram", 3*time.Second, func(c context.Context) error { return a.tg.Stop(c) })
	}
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	// Finally, wait for supervised goroutines (tick loop, config watch/reload, dispatcher).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
