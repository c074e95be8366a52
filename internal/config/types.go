package config

import "strings"

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Every field has a default, so a missing file is a valid config.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   StorageConfig   `json:"storage"`
	Notifier  NotifierConfig  `json:"notifier"`
	Reminders RemindersConfig `json:"reminders"`
	Systemd   SystemdConfig   `json:"systemd"`
	Debug     DebugConfig     `json:"debug"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the polling loop.
//
// Defaults:
//   - poll_interval: "10s"
type SchedulerConfig struct {
	PollInterval string `json:"poll_interval"`
}

// StorageConfig selects the reminder persistence backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./reminders.db" }
type StorageConfig struct {
	Driver      string `json:"driver"` // json (default) | sqlite
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// NotifierConfig selects where fired reminders go.
//
// Defaults:
//   - sink: "log"
//   - rate_per_sec: 3
//   - timeout: "15s"
//   - history_size: 50
type NotifierConfig struct {
	Sink        string         `json:"sink"` // log | command | telegram
	RatePerSec  int            `json:"rate_per_sec"`
	Timeout     string         `json:"timeout"`
	HistorySize int            `json:"history_size"`
	Command     CommandConfig  `json:"command"`
	Telegram    TelegramConfig `json:"telegram"`
}

// CommandConfig runs Path with Args followed by the title and message,
// e.g. {"path": "notify-send", "args": ["-a", "remindd"]}.
type CommandConfig struct {
	Path string   `json:"path"`
	Args []string `json:"args,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
}

type RemindersConfig struct {
	// AutoSave persists the list after every create and cancel.
	AutoSave bool `json:"auto_save"`
	// SaveOnExit persists the list on graceful shutdown. Defaults to true.
	SaveOnExit *bool `json:"save_on_exit,omitempty"`
}

func (r RemindersConfig) SaveOnExitEnabled() bool { return r.SaveOnExit == nil || *r.SaveOnExit }

type SystemdConfig struct {
	// Notify sends READY/STOPPING/WATCHDOG to systemd when NOTIFY_SOCKET is
	// set. Defaults to true.
	Notify *bool `json:"notify,omitempty"`
}

func (s SystemdConfig) NotifyEnabled() bool { return s.Notify == nil || *s.Notify }

// DebugConfig controls the optional local HTTP endpoint serving /healthz,
// /reminders, /deliveries and (with pprof) /debug/pprof/.
//
// A non-loopback addr requires token.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default 127.0.0.1:6061
	Token   string `json:"token,omitempty"`
	Pprof   bool   `json:"pprof"`
}

const (
	DefaultPollInterval = "10s"
	DefaultSink         = "log"
	DefaultRatePerSec   = 3
	DefaultTimeout      = "15s"
	DefaultHistorySize  = 50
)

// Default returns a config with every default applied.
func Default() *Config {
	c := &Config{Logging: LoggingConfig{Level: "info", Console: true}}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero fields in place.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Scheduler.PollInterval) == "" {
		c.Scheduler.PollInterval = DefaultPollInterval
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "json"
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "sqlite", "sqlite3":
			c.Storage.Path = "./reminders.db"
		default:
			c.Storage.Path = "./reminders.json"
		}
	}
	if strings.TrimSpace(c.Notifier.Sink) == "" {
		c.Notifier.Sink = DefaultSink
	}
	if c.Notifier.RatePerSec <= 0 {
		c.Notifier.RatePerSec = DefaultRatePerSec
	}
	if strings.TrimSpace(c.Notifier.Timeout) == "" {
		c.Notifier.Timeout = DefaultTimeout
	}
	if c.Notifier.HistorySize <= 0 {
		c.Notifier.HistorySize = DefaultHistorySize
	}
}
