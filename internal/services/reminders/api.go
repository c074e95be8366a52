package reminders

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"remindd/internal/reminder"
	"remindd/internal/task/scheduler"
	logx "remindd/pkg/logx"
)

// CreateReminder appends r to the list and registers it.
//
// A registration error is returned but the definition is kept, matching a
// load of the same list. If r's time has already passed today and it is
// recurring, it is delivered before CreateReminder returns, after the
// handler lock is released.
func (s *Service) CreateReminder(ctx context.Context, r reminder.Reminder) (Created, error) {
	s.mu.Lock()
	r.ID = s.newID()
	s.store.Append(r)
	reg, err := s.sched.Arm(r.ID, r)
	s.mu.Unlock()

	out := Created{ID: r.ID, Registration: reg}
	if err != nil {
		s.log.Warn("reminder stored without a job", logx.String("id", r.ID), logx.String("title", r.Title), logx.Err(err))
		s.maybeSave(ctx)
		return out, err
	}
	out.Registration = s.sched.CatchUp(ctx, reg)
	s.log.Info("reminder created", logx.String("id", r.ID), logx.String("title", r.Title), logx.Bool("armed", reg.Armed))
	s.maybeSave(ctx)
	return out, nil
}

// CheckReminders is the periodic tick. It fires every due job.
func (s *Service) CheckReminders(ctx context.Context) []scheduler.Fired {
	return s.sched.RunPending(ctx)
}

// SaveReminders persists the list. Errors wrap reminder.ErrPersistenceIO.
//
// After a failed load nothing is written until a load or sync succeeds, so
// an unreadable file is never replaced by the in-memory list.
func (s *Service) SaveReminders(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadFailed.Load() {
		err := fmt.Errorf("%w: stored reminders could not be read; not overwriting them", reminder.ErrPersistenceIO)
		s.log.Warn("save skipped", logx.Err(err))
		return err
	}
	return s.store.Save(ctx)
}

// LoadReminders replaces the list with the stored one and re-derives every
// job against the current clock.
//
// If the backend cannot be read the current list and jobs are left as they
// are and saving is refused until a later load or sync succeeds. Individual
// bad entries are reported in LoadReport.Errors; undecodable entries stay out
// of the list (the JSON backend writes them back as they were), entries with
// a bad time or date are kept. Catch-up deliveries happen after the handler
// lock is released.
func (s *Service) LoadReminders(ctx context.Context) (LoadReport, error) {
	var rep LoadReport
	var pending []scheduler.Registration

	s.mu.Lock()
	entries, err := s.store.Load(ctx)
	if err != nil {
		s.loadFailed.Store(true)
		s.mu.Unlock()
		return rep, err
	}
	s.loadFailed.Store(false)

	list := make([]reminder.Reminder, 0, len(entries))
	for _, e := range entries {
		if e.Err != nil {
			rep.Errors = append(rep.Errors, EntryError{Index: e.Index, Err: e.Err})
			continue
		}
		r := e.Reminder
		r.ID = s.newID()
		list = append(list, r)
	}
	s.store.Replace(list)
	s.sched.Reset()
	rep.Loaded = len(list)

	for i, r := range list {
		reg, err := s.sched.Arm(r.ID, r)
		switch {
		case err != nil:
			rep.Errors = append(rep.Errors, EntryError{Index: i, Title: r.Title, Err: err})
		case !reg.Armed:
			rep.Dropped++
		default:
			rep.Armed++
			if reg.CaughtUp {
				rep.CaughtUp++
				pending = append(pending, reg)
			}
		}
	}
	s.mu.Unlock()

	s.catchUp(ctx, pending)
	s.log.Info("reminders loaded",
		logx.Int("loaded", rep.Loaded),
		logx.Int("armed", rep.Armed),
		logx.Int("caught_up", rep.CaughtUp),
		logx.Int("dropped", rep.Dropped),
		logx.Int("errors", len(rep.Errors)),
	)
	return rep, nil
}

// catchUp delivers caught-up registrations in order of their missed time.
// Call without s.mu held.
func (s *Service) catchUp(ctx context.Context, pending []scheduler.Registration) {
	sort.SliceStable(pending, func(a, b int) bool {
		return pending[a].Job.NextRun.Before(pending[b].Job.NextRun)
	})
	for _, reg := range pending {
		s.sched.CatchUp(ctx, reg)
	}
}

// CancelReminder removes the reminder and its job. It reports whether
// anything was removed.
func (s *Service) CancelReminder(ctx context.Context, id string) bool {
	s.mu.Lock()
	r, inList := s.store.Remove(id)
	hadJob := s.sched.Cancel(id)
	s.mu.Unlock()

	if !inList && !hadJob {
		return false
	}
	s.log.Info("reminder cancelled", logx.String("id", id), logx.String("title", r.Title), logx.Bool("had_job", hadJob))
	s.maybeSave(ctx)
	return true
}

// Reminders returns the list in insertion order.
func (s *Service) Reminders() []reminder.Reminder { return s.store.List() }

// Jobs returns the live jobs ordered by next run.
func (s *Service) Jobs() []scheduler.JobInfo { return s.sched.ListJobs() }

// Overview pairs every stored reminder with its live job.
func (s *Service) Overview() []Item {
	s.mu.Lock()
	list := s.store.List()
	jobs := s.sched.ListJobs()
	s.mu.Unlock()

	byID := make(map[string]scheduler.JobInfo, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
	}
	out := make([]Item, 0, len(list))
	for _, r := range list {
		it := Item{Reminder: r}
		if j, ok := byID[r.ID]; ok {
			j := j
			it.Job = &j
		}
		out = append(out, it)
	}
	return out
}

// Resolve finds a reminder by full id or unique id prefix.
func (s *Service) Resolve(prefix string) (reminder.Reminder, error) {
	var found []reminder.Reminder
	for _, r := range s.store.List() {
		if r.ID == prefix {
			return r, nil
		}
		if prefix != "" && strings.HasPrefix(r.ID, prefix) {
			found = append(found, r)
		}
	}
	switch len(found) {
	case 0:
		return reminder.Reminder{}, fmt.Errorf("no reminder matches %q", prefix)
	case 1:
		return found[0], nil
	default:
		return reminder.Reminder{}, fmt.Errorf("%q matches %d reminders", prefix, len(found))
	}
}

func (s *Service) maybeSave(ctx context.Context) {
	if !s.autoSave.Load() {
		return
	}
	// Failures are logged; auto-save is best-effort.
	_ = s.SaveReminders(ctx)
}
