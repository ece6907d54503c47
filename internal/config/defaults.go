package config

const DefaultUpdateURL = "https://api.github.com/repos/yourname/bosstimer/releases/latest"

// DefaultNotifier is used when the notifier section is omitted.
func DefaultNotifier() NotifierConfig {
	return NotifierConfig{
		Enabled:         true,
		Workers:         2,
		QueueSize:       512,
		RatePerSec:      3,
		RetryMax:        3,
		RetryBase:       "500ms",
		RetryMaxDelay:   "10s",
		DedupWindow:     "1m",
		DedupMaxEntries: 2000,
		BannerTTL:       "5s",
	}
}

// Default is the configuration used when no config file exists.
func Default() *Config {
	n := DefaultNotifier()
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File: LoggingFile{
				Enabled: true,
				Path:    "./boss_timer.log",
			},
		},
		Timers: TimersConfig{
			Mode:     "auto",
			Tick:     "1s",
			Autosave: "@every 5m",
		},
		Display:  DisplayConfig{Mode: "table"},
		Update:   UpdateConfig{URL: DefaultUpdateURL},
		Notifier: &n,
		Storage: &StorageConfig{
			Driver: "file",
			Path:   "./boss_config.json",
		},
	}
}
