package notifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	logx "remindd/pkg/logx"
)

// LogSink writes notifications to the log. It is the default sink.
type LogSink struct {
	Log logx.Logger
}

func (s LogSink) Deliver(ctx context.Context, title, message string) error {
	_ = ctx
	s.Log.Info("reminder", logx.String("title", title), logx.String("message", message))
	return nil
}

// CommandSink runs an external program (for example notify-send) with the
// title and message appended to its arguments.
type CommandSink struct {
	Path string
	Args []string
}

func (s CommandSink) Deliver(ctx context.Context, title, message string) error {
	if strings.TrimSpace(s.Path) == "" {
		return errors.New("notifier command path is empty")
	}
	args := append(append([]string(nil), s.Args...), title, message)
	cmd := exec.CommandContext(ctx, s.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", s.Path, err, msg)
		}
		return fmt.Errorf("%s: %w", s.Path, err)
	}
	return nil
}

// NewSink builds the sink selected by cfg.Sink.
func NewSink(cfg Config, log logx.Logger) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Sink)) {
	case "", SinkLog:
		return LogSink{Log: log}, nil
	case SinkCommand:
		if strings.TrimSpace(cfg.Command.Path) == "" {
			return nil, errors.New("notifier.command.path is required for the command sink")
		}
		return CommandSink{Path: cfg.Command.Path, Args: cfg.Command.Args}, nil
	case SinkTelegram:
		return NewTelegramSink(cfg.Telegram)
	default:
		return nil, fmt.Errorf("unknown notifier sink %q", cfg.Sink)
	}
}
