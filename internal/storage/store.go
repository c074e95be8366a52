package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

// Store is the in-memory ordered reminder list plus its backend.
//
// It is safe for concurrent use. A failed Save leaves the list untouched,
// and Load does not replace the list (callers assign identities and call
// Replace).
//
// The baseline is the content last written by Save or read by Load. It lets
// callers tell external edits of the backend apart from local changes.
type Store struct {
	mu       sync.Mutex
	items    []reminder.Reminder
	baseline []reminder.Reminder

	// io orders backend reads and writes with their baseline updates.
	ioMu sync.Mutex

	backend Backend
	log     logx.Logger
}

func NewStore(b Backend, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{backend: b, log: log.With(logx.String("comp", "storage"))}
}

// Append adds r at the end of the list.
func (s *Store) Append(r reminder.Reminder) {
	s.mu.Lock()
	s.items = append(s.items, r)
	s.mu.Unlock()
}

// Remove deletes the reminder with the given id, preserving order.
func (s *Store) Remove(id string) (reminder.Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.items {
		if r.ID == id {
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			return r, true
		}
	}
	return reminder.Reminder{}, false
}

// Get returns the reminder with the given id.
func (s *Store) Get(id string) (reminder.Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.items {
		if r.ID == id {
			return r, true
		}
	}
	return reminder.Reminder{}, false
}

// List returns a copy of the list in insertion order.
func (s *Store) List() []reminder.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]reminder.Reminder(nil), s.items...)
}

// Replace swaps the whole list.
func (s *Store) Replace(list []reminder.Reminder) {
	s.mu.Lock()
	s.items = append([]reminder.Reminder(nil), list...)
	s.mu.Unlock()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Save writes the current list through the backend.
// Errors are logged and wrap reminder.ErrPersistenceIO.
func (s *Store) Save(ctx context.Context) error {
	if s.backend == nil {
		return fmt.Errorf("%w: no backend", reminder.ErrPersistenceIO)
	}
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	list := s.List()
	if err := s.backend.Save(ctx, list); err != nil {
		err = persistErr("save", err)
		s.log.Error("save reminders failed", logx.Int("count", len(list)), logx.Err(err))
		return err
	}
	s.setBaseline(list)
	s.log.Debug("reminders saved", logx.Int("count", len(list)))
	return nil
}

// Load reads every stored entry. Entries that fail to decode are returned
// with Err set; they never abort the batch.
func (s *Store) Load(ctx context.Context) ([]Entry, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	return s.load(ctx)
}

// Reload returns the baseline together with a fresh read of the backend,
// as one step with respect to Save. On success the baseline becomes the
// content read.
func (s *Store) Reload(ctx context.Context) (base []reminder.Reminder, entries []Entry, err error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	base = s.Baseline()
	entries, err = s.load(ctx)
	return base, entries, err
}

func (s *Store) load(ctx context.Context) ([]Entry, error) {
	if s.backend == nil {
		return nil, fmt.Errorf("%w: no backend", reminder.ErrPersistenceIO)
	}
	entries, err := s.backend.Load(ctx)
	if err != nil {
		err = persistErr("load", err)
		s.log.Error("load reminders failed", logx.Err(err))
		return nil, err
	}
	bad := 0
	read := make([]reminder.Reminder, 0, len(entries))
	for _, e := range entries {
		if e.Err != nil {
			bad++
			s.log.Warn("stored reminder skipped", logx.Int("index", e.Index), logx.Err(e.Err))
			continue
		}
		read = append(read, e.Reminder)
	}
	s.setBaseline(read)
	s.log.Debug("reminders read", logx.Int("count", len(entries)), logx.Int("malformed", bad))
	return entries, nil
}

// Baseline returns the content last saved or loaded.
func (s *Store) Baseline() []reminder.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]reminder.Reminder(nil), s.baseline...)
}

func (s *Store) setBaseline(list []reminder.Reminder) {
	s.mu.Lock()
	s.baseline = append([]reminder.Reminder(nil), list...)
	s.mu.Unlock()
}

func (s *Store) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

func persistErr(op string, err error) error {
	if errors.Is(err, reminder.ErrPersistenceIO) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", reminder.ErrPersistenceIO, op, err)
}

func malformedEntry(i int, err error) Entry {
	return Entry{Index: i, Err: fmt.Errorf("entry %d: %w: %v", i, reminder.ErrMalformedReminder, err)}
}
