package storage

import (
	"errors"
	"strings"

	logx "remindd/pkg/logx"
)

// OpenBackend initializes the configured backend.
func OpenBackend(cfg Config, log logx.Logger) (Backend, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", DriverJSON, "file":
		if strings.TrimSpace(cfg.Path) == "" {
			cfg.Path = DefaultJSONPath
		}
		return openJSON(cfg, log)
	case DriverSQLite, "sqlite3":
		if strings.TrimSpace(cfg.Path) == "" {
			cfg.Path = DefaultSQLitePath
		}
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// Open initializes the configured backend and wraps it in an empty Store.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	b, err := OpenBackend(cfg, log)
	if err != nil {
		return nil, err
	}
	return NewStore(b, log), nil
}
