package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Timers   TimersConfig   `json:"timers"`
	Audio    AudioConfig    `json:"audio"`
	Display  DisplayConfig  `json:"display"`
	Update   UpdateConfig   `json:"update"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
}

// TelegramConfig enables the Telegram transport. It is off when Token is empty.
type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// AlertChatID receives banners and alarm notices. Defaults to the first owner.
	AlertChatID   int64  `json:"alert_chat_id,omitempty"`
	AlertThreadID int    `json:"alert_thread_id,omitempty"`
	GroupLog      string `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
	// MaxBytes rotates the file once it grows past this size (default 1 MiB).
	MaxBytes int64 `json:"max_bytes,omitempty"`
	Backups  int   `json:"backups,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// TimersConfig controls evaluation of the entry list.
//
// Defaults (when fields are omitted/zero):
//   - mode: "auto"
//   - tick: "1s"
//   - prewarn_min: "178s", prewarn_max: "180s"
//   - autosave: "@every 5m" (use "off" to disable)
//   - timezone: local
type TimersConfig struct {
	Mode       string `json:"mode"`
	Tick       string `json:"tick,omitempty"`
	PreWarnMin string `json:"prewarn_min,omitempty"`
	PreWarnMax string `json:"prewarn_max,omitempty"`
	Autosave   string `json:"autosave,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
}

// AudioConfig controls alarm playback.
//
// Command overrides player detection. Arguments may contain {file} and
// {volume} (0..100) placeholders, e.g. ["mpv", "--volume={volume}", "{file}"].
type AudioConfig struct {
	Enabled *bool    `json:"enabled,omitempty"` // default true
	Volume  *int     `json:"volume,omitempty"`  // default 70
	Dir     string   `json:"dir,omitempty"`
	Command []string `json:"command,omitempty"`
	Warning string   `json:"warning,omitempty"` // default warning.wav
	Alarm   string   `json:"alarm,omitempty"`   // default alarm.wav
}

// DisplayConfig selects the live terminal view of `run`.
type DisplayConfig struct {
	Mode string `json:"mode"` // "table" | "bars" | "none"
	// Refresh is a Go duration string for table redraws (default "10s").
	Refresh string `json:"refresh,omitempty"`
}

// UpdateConfig controls the release check.
type UpdateConfig struct {
	URL string `json:"url,omitempty"`
	// Schedule is a cron spec, Go duration or HH:MM. Empty disables periodic checks.
	Schedule string `json:"schedule,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// If the whole section is omitted, the notifier defaults to enabled=true.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
	// BannerTTL is how long a banner stays before it is retracted (default "5s").
	BannerTTL string `json:"banner_ttl,omitempty"`
	// Channels lists banner outputs: "console", "telegram" (default: both when available).
	Channels []string `json:"channels,omitempty"`
}

// StorageConfig controls where entries and alarm history live.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./bosstimer.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
