package notifier

import (
	"context"
	"time"
)

// Sink displays a notification. Errors are non-fatal to the caller.
type Sink interface {
	Deliver(ctx context.Context, title, message string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, title, message string) error

func (f SinkFunc) Deliver(ctx context.Context, title, message string) error {
	return f(ctx, title, message)
}

// Sink kinds accepted by Config.Sink.
const (
	SinkLog      = "log"
	SinkCommand  = "command"
	SinkTelegram = "telegram"
)

// Config controls notification delivery.
type Config struct {
	Sink        string
	RatePerSec  int
	Timeout     time.Duration
	HistorySize int
	Command     CommandConfig
	Telegram    TelegramConfig
}

// CommandConfig runs Path with Args followed by the title and message.
type CommandConfig struct {
	Path string
	Args []string
}

type TelegramConfig struct {
	Token    string
	ChatID   int64
	ThreadID int
}

type HistoryItem struct {
	At      time.Time
	Title   string
	Message string
	Took    time.Duration
	Error   string
}
