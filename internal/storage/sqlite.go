package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore keeps one row per reminder, ordered by position.
// Save rewrites the table in a single transaction.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Backend, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Save(ctx context.Context, list []reminder.Reminder) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM reminders`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO reminders(position, title, message, date, time, recurring) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range list {
		if _, err = stmt.ExecContext(ctx, i, r.Title, r.Message, nullDate(r.Date), r.Time, boolInt(r.Recurring)); err != nil {
			return fmt.Errorf("insert reminder %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) Load(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, title, message, date, time, recurring FROM reminders ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	i := 0
	for rows.Next() {
		var (
			pos       int64
			r         reminder.Reminder
			date      sql.NullString
			recurring int64
		)
		if err := rows.Scan(&pos, &r.Title, &r.Message, &date, &r.Time, &recurring); err != nil {
			out = append(out, malformedEntry(i, err))
			i++
			continue
		}
		if date.Valid {
			d := date.String
			r.Date = &d
		}
		r.Recurring = recurring != 0
		out = append(out, Entry{Index: i, Reminder: r})
		i++
	}
	return out, rows.Err()
}

func nullDate(d *string) any {
	if d == nil {
		return nil
	}
	return *d
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
