package transport

import (
	"context"
	"time"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

// Update is an inbound operator action (chat message, stdin line, button press).
type Update struct {
	Kind     UpdateKind
	Source   string // adapter name: "telegram" | "console"
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID       int
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
	FromID   int64
	Text     string
}

type Callback struct {
	ID     string
	FromID int64
	Data   string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Notification is one banner or alarm notice routed to a channel.
type Notification struct {
	Channel  string // "telegram" | "console"
	Priority int    // 0 low.. 10 high
	Target   ChatTarget
	Text     string
	// Key names the event for duplicate suppression. Empty derives it from
	// Text.
	Key     string
	Options *SendOptions
	// TTL removes the message after the given duration when the channel
	// supports deletion. Zero keeps it.
	TTL time.Duration
}

// Sender is the outbound half of an adapter.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// Deleter is implemented by senders that can retract a message (banner self-dismiss).
type Deleter interface {
	DeleteText(ctx context.Context, ref MessageRef) error
}

type Adapter interface {
	Sender

	Name() string
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// BotCommand is one entry of a chat command menu.
type BotCommand struct {
	Command     string
	Description string
}
