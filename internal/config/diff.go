package config

import (
	"slices"
	"strings"

	logx "remindd/pkg/logx"
)

// SummarizeConfigChange lists the sections that differ and safe fields for
// logging them. Tokens are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs, logx.String("scheduler.poll_interval", newCfg.Scheduler.PollInterval))
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}
	on, nn := oldCfg.Notifier, newCfg.Notifier
	if on.Sink != nn.Sink || on.RatePerSec != nn.RatePerSec ||
		strings.TrimSpace(on.Timeout) != strings.TrimSpace(nn.Timeout) ||
		on.HistorySize != nn.HistorySize ||
		on.Command.Path != nn.Command.Path || !slices.Equal(on.Command.Args, nn.Command.Args) ||
		on.Telegram.ChatID != nn.Telegram.ChatID || on.Telegram.ThreadID != nn.Telegram.ThreadID ||
		on.Telegram.Token != nn.Telegram.Token {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.String("notifier.sink", nn.Sink),
			logx.Int("notifier.rate_per_sec", nn.RatePerSec),
			logx.Bool("notifier.telegram.token_set", strings.TrimSpace(nn.Telegram.Token) != ""),
		)
	}
	if oldCfg.Reminders.AutoSave != newCfg.Reminders.AutoSave ||
		oldCfg.Reminders.SaveOnExitEnabled() != newCfg.Reminders.SaveOnExitEnabled() {
		changed = append(changed, "reminders")
		attrs = append(attrs, logx.Bool("reminders.auto_save", newCfg.Reminders.AutoSave))
	}
	if oldCfg.Systemd.NotifyEnabled() != newCfg.Systemd.NotifyEnabled() {
		changed = append(changed, "systemd")
	}
	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs, logx.Bool("debug.enabled", newCfg.Debug.Enabled))
	}
	return changed, attrs
}
