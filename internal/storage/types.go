package storage

import (
	"context"
	"time"

	"remindd/internal/reminder"
)

const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"

	DefaultJSONPath   = "./reminders.json"
	DefaultSQLitePath = "./reminders.db"
)

// Config configures the persistence backend.
//
// Driver values:
//   - "json" (or empty): JSON array file
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry is one stored reminder as read back by Load.
//
// Err is non-nil when the entry could not be decoded; it wraps
// reminder.ErrMalformedReminder and Reminder is then the zero value.
type Entry struct {
	Index    int
	Reminder reminder.Reminder
	Err      error
}

// Backend persists a full reminder list.
//
// Load on a store that has never been saved returns no entries and no error.
type Backend interface {
	Save(ctx context.Context, list []reminder.Reminder) error
	Load(ctx context.Context) ([]Entry, error)
	Close() error
}
