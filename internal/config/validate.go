package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks values that can be verified without touching other packages.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Timers.Mode)) {
	case "", "auto", "manual":
	default:
		errs = append(errs, fmt.Errorf("timers.mode: unknown mode %q (want auto|manual)", cfg.Timers.Mode))
	}
	tick, err := ParseDurationOrDefault("timers.tick", cfg.Timers.Tick, time.Second)
	if err != nil {
		errs = append(errs, err)
	} else if tick < 100*time.Millisecond || tick > 10*time.Second {
		errs = append(errs, fmt.Errorf("timers.tick: %s out of range 100ms..10s", tick))
	}
	lo, err1 := ParseDurationField("timers.prewarn_min", cfg.Timers.PreWarnMin)
	hi, err2 := ParseDurationField("timers.prewarn_max", cfg.Timers.PreWarnMax)
	if err1 != nil || err2 != nil {
		errs = append(errs, err1, err2)
	} else if lo > 0 && hi > 0 && hi < lo {
		errs = append(errs, fmt.Errorf("timers.prewarn_max (%s) must be >= timers.prewarn_min (%s)", hi, lo))
	}
	if tz := strings.TrimSpace(cfg.Timers.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("timers.timezone: %w", err))
		}
	}

	if v := cfg.Audio.Volume; v != nil && (*v < 0 || *v > 100) {
		errs = append(errs, fmt.Errorf("audio.volume: %d out of range 0..100", *v))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Display.Mode)) {
	case "", "table", "bars", "none":
	default:
		errs = append(errs, fmt.Errorf("display.mode: unknown mode %q (want table|bars|none)", cfg.Display.Mode))
	}
	if _, err := ParseDurationField("display.refresh", cfg.Display.Refresh); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("update.timeout", cfg.Update.Timeout); err != nil {
		errs = append(errs, err)
	}

	if n := cfg.Notifier; n != nil {
		for _, f := range []struct{ path, raw string }{
			{"notifier.retry_base", n.RetryBase},
			{"notifier.retry_max_delay", n.RetryMaxDelay},
			{"notifier.dedup_window", n.DedupWindow},
			{"notifier.banner_ttl", n.BannerTTL},
		} {
			if _, err := ParseDurationField(f.path, f.raw); err != nil {
				errs = append(errs, err)
			}
		}
		for _, ch := range n.Channels {
			switch strings.ToLower(strings.TrimSpace(ch)) {
			case "console", "telegram":
			default:
				errs = append(errs, fmt.Errorf("notifier.channels: unknown channel %q", ch))
			}
		}
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "file", "json", "sqlite", "sqlite3", "none":
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
