package config

import (
	"reflect"
	"sort"
	"strings"

	logx "bosstimer/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		oldCfg.Telegram.AlertChatID != newCfg.Telegram.AlertChatID ||
		oldCfg.Telegram.AlertThreadID != newCfg.Telegram.AlertThreadID ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) ||
		(strings.TrimSpace(oldCfg.Telegram.Token) != "") != (strings.TrimSpace(newCfg.Telegram.Token) != "") {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
		)
	}

	// Logging
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// Timers
	if oldCfg.Timers != newCfg.Timers {
		changed = append(changed, "timers")
		attrs = append(attrs,
			logx.String("timers.mode", newCfg.Timers.Mode),
			logx.String("timers.tick", newCfg.Timers.Tick),
			logx.String("timers.prewarn_min", newCfg.Timers.PreWarnMin),
			logx.String("timers.prewarn_max", newCfg.Timers.PreWarnMax),
			logx.String("timers.autosave", newCfg.Timers.Autosave),
		)
	}

	// Audio
	if !reflect.DeepEqual(oldCfg.Audio, newCfg.Audio) {
		changed = append(changed, "audio")
		vol := -1
		if newCfg.Audio.Volume != nil {
			vol = *newCfg.Audio.Volume
		}
		attrs = append(attrs,
			logx.Bool("audio.enabled", newCfg.Audio.Enabled == nil || *newCfg.Audio.Enabled),
			logx.Int("audio.volume", vol),
			logx.Bool("audio.command_set", len(newCfg.Audio.Command) > 0),
		)
	}

	// Display
	if oldCfg.Display != newCfg.Display {
		changed = append(changed, "display")
		attrs = append(attrs, logx.String("display.mode", newCfg.Display.Mode))
	}

	// Update
	if oldCfg.Update != newCfg.Update {
		changed = append(changed, "update")
		attrs = append(attrs,
			logx.String("update.schedule", newCfg.Update.Schedule),
			logx.String("update.url", newCfg.Update.URL),
		)
	}

	// Notifier (async pipeline)
	// Note: section may be nil (omitted). Treat nil as runtime defaults for a more accurate summary.
	defN := DefaultNotifier()
	oldN := oldCfg.Notifier
	newN := newCfg.Notifier
	if oldN == nil {
		oldN = &defN
	}
	if newN == nil {
		newN = &defN
	}
	if !reflect.DeepEqual(*oldN, *newN) {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newN.Enabled),
			logx.Int("notifier.workers", newN.Workers),
			logx.Int("notifier.queue_size", newN.QueueSize),
			logx.Int("notifier.rate_per_sec", newN.RatePerSec),
			logx.Int("notifier.retry_max", newN.RetryMax),
			logx.String("notifier.banner_ttl", newN.BannerTTL),
			logx.Any("notifier.channels", newN.Channels),
		)
	}

	// Storage (persistence). Nil means the default file store.
	oldS := oldCfg.Storage
	newS := newCfg.Storage
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet bool
	if oldS != nil {
		oDriver = strings.TrimSpace(oldS.Driver)
		oBusy = strings.TrimSpace(oldS.BusyTimeout)
		oPathSet = strings.TrimSpace(oldS.Path) != ""
	}
	if newS != nil {
		nDriver = strings.TrimSpace(newS.Driver)
		nBusy = strings.TrimSpace(newS.BusyTimeout)
		nPathSet = strings.TrimSpace(newS.Path) != ""
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
			logx.String("storage.busy_timeout", nBusy),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
