package notifier

import "time"

// Channel names accepted in Notification.Channel.
const (
	ChannelConsole  = "console"
	ChannelTelegram = "telegram"
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool

	// BannerTTL is how long a banner stays up on channels that can retract
	// messages. Zero keeps banners.
	BannerTTL time.Duration
	// Channels receive banners. Empty means every registered sender.
	Channels []string
}

// HistoryItem is one delivered notification, newest last in History.
type HistoryItem struct {
	At      time.Time
	Channel string
	Text    string
}

// NotificationEvent is the Data of notifier.* bus events. The event log prints
// it, so it carries keys and errors only, never message text.
type NotificationEvent struct {
	Channel  string    `json:"channel"`
	ChatID   int64     `json:"chat_id,omitempty"`
	ThreadID int       `json:"thread_id,omitempty"`
	Key      string    `json:"key"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}
