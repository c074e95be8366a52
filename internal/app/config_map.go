package app

import (
	"fmt"
	"strings"
	"time"

	"remindd/internal/config"
	"remindd/internal/notifier"
	"remindd/internal/observability/debughttp"
	"remindd/internal/storage"
	logx "remindd/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	out := storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path)}
	if driver == storage.DriverSQLite || driver == "sqlite3" {
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		out.BusyTimeout = busy
	}
	return out, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	timeout, err := config.ParseDurationOrDefault("notifier.timeout", nc.Timeout, 15*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	if nc.RatePerSec < 0 || nc.HistorySize < 0 {
		return notifier.Config{}, fmt.Errorf("notifier: rate_per_sec and history_size must be >= 0")
	}
	return notifier.Config{
		Sink:        strings.ToLower(strings.TrimSpace(nc.Sink)),
		RatePerSec:  nc.RatePerSec,
		Timeout:     timeout,
		HistorySize: nc.HistorySize,
		Command:     notifier.CommandConfig{Path: nc.Command.Path, Args: nc.Command.Args},
		Telegram: notifier.TelegramConfig{
			Token:    nc.Telegram.Token,
			ChatID:   nc.Telegram.ChatID,
			ThreadID: nc.Telegram.ThreadID,
		},
	}, nil
}

func mapDebugConfig(cfg *config.Config) (debughttp.Config, error) {
	d := cfg.Debug
	out := debughttp.Config{
		Enabled: d.Enabled,
		Addr:    strings.TrimSpace(d.Addr),
		Token:   strings.TrimSpace(d.Token),
		Pprof:   d.Pprof,
	}
	if out.Addr == "" {
		out.Addr = debughttp.DefaultAddr
	}
	if out.Enabled {
		if err := debughttp.CheckAddr(out.Addr, out.Token); err != nil {
			return debughttp.Config{}, fmt.Errorf("debug: %w", err)
		}
	}
	return out, nil
}
