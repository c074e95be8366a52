package reminders

import (
	"context"

	"remindd/internal/reminder"
	"remindd/internal/task/scheduler"
	logx "remindd/pkg/logx"
)

// SyncReport summarizes a SyncReminders pass.
type SyncReport struct {
	Added   int
	Removed int
	Errors  []EntryError
}

func (r SyncReport) Changed() bool { return r.Added > 0 || r.Removed > 0 }

// SyncReminders applies external edits of the backend to the live engine.
//
// The stored content is compared with the store baseline (what this process
// last saved or loaded). Definitions that appeared are appended and
// registered like a fresh create; definitions that disappeared are removed
// together with their jobs. Local changes not yet saved are kept.
//
// A failed read blocks saving like a failed load. A successful sync
// re-enables it; after a failed initial load everything on disk then counts
// as added.
func (s *Service) SyncReminders(ctx context.Context) (SyncReport, error) {
	var rep SyncReport
	var pending []scheduler.Registration

	s.mu.Lock()
	base, entries, err := s.store.Reload(ctx)
	if err != nil {
		// The file may be mid-edit; do not overwrite it until it reads again.
		s.loadFailed.Store(true)
		s.mu.Unlock()
		return rep, err
	}
	s.loadFailed.Store(false)

	baseCount := make(map[string]int, len(base))
	for _, r := range base {
		baseCount[r.Key()]++
	}
	var added []reminder.Reminder
	for _, e := range entries {
		if e.Err != nil {
			rep.Errors = append(rep.Errors, EntryError{Index: e.Index, Err: e.Err})
			continue
		}
		k := e.Reminder.Key()
		if baseCount[k] > 0 {
			baseCount[k]--
			continue
		}
		added = append(added, e.Reminder)
	}

	// Whatever is left in baseCount was deleted externally.
	for _, r := range s.store.List() {
		k := r.Key()
		if baseCount[k] == 0 {
			continue
		}
		baseCount[k]--
		s.store.Remove(r.ID)
		s.sched.Cancel(r.ID)
		rep.Removed++
	}

	for _, r := range added {
		r.ID = s.newID()
		s.store.Append(r)
		reg, err := s.sched.Arm(r.ID, r)
		switch {
		case err != nil:
			rep.Errors = append(rep.Errors, EntryError{Index: -1, Title: r.Title, Err: err})
		case reg.CaughtUp:
			pending = append(pending, reg)
		}
		rep.Added++
	}
	s.mu.Unlock()

	s.catchUp(ctx, pending)

	if rep.Changed() || len(rep.Errors) > 0 {
		s.log.Info("reminders synced from storage",
			logx.Int("added", rep.Added),
			logx.Int("removed", rep.Removed),
			logx.Int("errors", len(rep.Errors)),
		)
	}
	return rep, nil
}
