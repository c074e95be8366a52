package config

import (
	"errors"
	"fmt"
	"strings"

	logx "remindd/pkg/logx"
)

// Validate checks a config with defaults applied. All problems are joined.
func Validate(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if _, ok := logx.ParseLevel(c.Logging.Level); !ok {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	if _, err := c.PollInterval(); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "json", "file", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}

	n := c.Notifier
	if _, err := ParseDurationField("notifier.timeout", n.Timeout); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(strings.TrimSpace(n.Sink)) {
	case "log":
	case "command":
		if strings.TrimSpace(n.Command.Path) == "" {
			errs = append(errs, errors.New("notifier.command.path is required for the command sink"))
		}
	case "telegram":
		if strings.TrimSpace(n.Telegram.Token) == "" {
			errs = append(errs, errors.New("notifier.telegram.token is required for the telegram sink"))
		}
		if n.Telegram.ChatID == 0 {
			errs = append(errs, errors.New("notifier.telegram.chat_id is required for the telegram sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("notifier.sink: unknown sink %q", n.Sink))
	}
	return errors.Join(errs...)
}
