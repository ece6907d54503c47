package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"bosstimer/internal/audio"
	"bosstimer/internal/config"
	"bosstimer/internal/notifier"
	"bosstimer/internal/recurrence"
	"bosstimer/internal/storage"
	"bosstimer/internal/timers"
	kit "bosstimer/internal/transport"
	"bosstimer/internal/update"
	logx "bosstimer/pkg/logx"
)

// timerSettings is the evaluated form of config.TimersConfig.
type timerSettings struct {
	mode     timers.Mode
	tick     time.Duration
	policy   recurrence.Policy
	autosave string // schedule; empty disables
	loc      *time.Location
}

func mapTimers(cfg *config.Config) (timerSettings, error) {
	tc := cfg.Timers
	out := timerSettings{mode: timers.ModeAuto, policy: recurrence.DefaultPolicy, loc: time.Local}

	if strings.TrimSpace(tc.Mode) != "" {
		m, err := timers.ParseMode(tc.Mode)
		if err != nil {
			return out, fmt.Errorf("timers.mode: %w", err)
		}
		out.mode = m
	}
	var err error
	if out.tick, err = config.ParseDurationOrDefault("timers.tick", tc.Tick, time.Second); err != nil {
		return out, err
	}
	if out.policy.PreWarnMin, err = config.ParseDurationOrDefault("timers.prewarn_min", tc.PreWarnMin, recurrence.DefaultPolicy.PreWarnMin); err != nil {
		return out, err
	}
	if out.policy.PreWarnMax, err = config.ParseDurationOrDefault("timers.prewarn_max", tc.PreWarnMax, recurrence.DefaultPolicy.PreWarnMax); err != nil {
		return out, err
	}
	// A window narrower than the tick could be stepped over.
	if err := out.policy.Validate(out.tick); err != nil {
		return out, fmt.Errorf("timers: %w", err)
	}
	if !config.IsOff(tc.Autosave) {
		out.autosave = strings.TrimSpace(tc.Autosave)
	}
	if tz := strings.TrimSpace(tc.Timezone); tz != "" {
		if out.loc, err = time.LoadLocation(tz); err != nil {
			return out, fmt.Errorf("timers.timezone: %w", err)
		}
	}
	return out, nil
}

func mapLogging(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled:  l.File.Enabled,
			Path:     l.File.Path,
			MaxBytes: l.File.MaxBytes,
			Backups:  l.File.Backups,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := config.DefaultNotifier()
	if cfg.Notifier != nil {
		nc = *cfg.Notifier
	}
	var (
		out = notifier.Config{
			Enabled:         nc.Enabled,
			Workers:         nc.Workers,
			QueueSize:       nc.QueueSize,
			RatePerSec:      nc.RatePerSec,
			RetryMax:        nc.RetryMax,
			DedupMaxEntries: nc.DedupMaxEntries,
			PersistDedup:    nc.PersistDedup,
			Channels:        nc.Channels,
		}
		err error
	)
	if out.RetryBase, err = config.ParseDurationOrDefault("notifier.retry_base", nc.RetryBase, 500*time.Millisecond); err != nil {
		return out, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationOrDefault("notifier.retry_max_delay", nc.RetryMaxDelay, 10*time.Second); err != nil {
		return out, err
	}
	// Zero disables dedup, so no default here.
	if out.DedupWindow, err = config.ParseDurationField("notifier.dedup_window", nc.DedupWindow); err != nil {
		return out, err
	}
	if out.BannerTTL, err = config.ParseDurationOrDefault("notifier.banner_ttl", nc.BannerTTL, 5*time.Second); err != nil {
		return out, err
	}
	return out, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := config.StorageConfig{Driver: "file", Path: storage.DefaultPath}
	if cfg.Storage != nil {
		sc = *cfg.Storage
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
	}, nil
}

func mapAudio(cfg *config.Config) audio.Config {
	ac := cfg.Audio
	out := audio.Config{
		Enabled: true,
		Volume:  audio.DefaultVolume,
		Dir:     ac.Dir,
		Command: ac.Command,
		Files:   audio.DefaultFiles(),
	}
	if ac.Enabled != nil {
		out.Enabled = *ac.Enabled
	}
	if ac.Volume != nil {
		out.Volume = *ac.Volume
	}
	if s := strings.TrimSpace(ac.Warning); s != "" {
		out.Files[audio.ClipWarning] = s
	}
	if s := strings.TrimSpace(ac.Alarm); s != "" {
		out.Files[audio.ClipAlarm] = s
	}
	return out
}

func mapUpdate(cfg *config.Config, version string) (update.Checker, error) {
	timeout, err := config.ParseDurationOrDefault("update.timeout", cfg.Update.Timeout, 10*time.Second)
	if err != nil {
		return update.Checker{}, err
	}
	url := strings.TrimSpace(cfg.Update.URL)
	if url == "" {
		url = config.DefaultUpdateURL
	}
	return update.Checker{URL: url, Timeout: timeout, UserAgent: "bosstimer/" + version}, nil
}

// alertTarget is where Telegram banners and alarm notices go: the configured
// chat, else the first owner's private chat.
func alertTarget(cfg *config.Config) (kit.ChatTarget, bool) {
	tc := cfg.Telegram
	switch {
	case tc.AlertChatID != 0:
		return kit.ChatTarget{ChatID: tc.AlertChatID, ThreadID: tc.AlertThreadID}, true
	case len(tc.OwnerUserIDs) > 0:
		return kit.ChatTarget{ChatID: tc.OwnerUserIDs[0]}, true
	default:
		return kit.ChatTarget{}, false
	}
}

// groupLogTarget parses telegram.group_log; zero disables the log sink target.
func groupLogTarget(cfg *config.Config) int64 {
	s := strings.TrimSpace(cfg.Telegram.GroupLog)
	if s == "" {
		return 0
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// validateConfig is the hot-reload gate: a config that fails here is never
// committed.
func validateConfig(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := mapTimers(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	_, err := mapUpdate(cfg, "")
	return err
}

func mapDisplay(cfg *config.Config) (mode string, refresh time.Duration, err error) {
	mode = strings.ToLower(strings.TrimSpace(cfg.Display.Mode))
	if mode == "" {
		mode = displayTable
	}
	refresh, err = config.ParseDurationOrDefault("display.refresh", cfg.Display.Refresh, 10*time.Second)
	return mode, refresh, err
}
