package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"remindd/internal/eventbus"
	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

// Register computes the first trigger of r and arms a job under id.
//
// Recurring reminders always get a job. If today's time has already passed
// the reminder is delivered immediately and armed for tomorrow. One-shot
// reminders whose instant has passed are dropped without delivery.
//
// Registering an id that already has a job replaces it. Parse failures wrap
// reminder.ErrMalformedReminder and leave the job set untouched.
func (s *Service) Register(ctx context.Context, id string, r reminder.Reminder) (Registration, error) {
	reg, err := s.Arm(id, r)
	if err != nil {
		return reg, err
	}
	return s.CatchUp(ctx, reg), nil
}

// Arm is Register without the catch-up delivery. When the returned
// Registration has CaughtUp set the caller must pass it to CatchUp, which
// lets callers holding their own locks deliver after releasing them.
func (s *Service) Arm(id string, r reminder.Reminder) (Registration, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Registration{}, errors.New("reminder id required")
	}
	sch, err := reminder.Parse(r)
	if err != nil {
		s.log.Warn("reminder rejected", logx.String("id", id), logx.String("title", r.Title), logx.Err(err))
		return Registration{}, fmt.Errorf("register %q: %w", r.Title, err)
	}

	now := s.now()
	s.mu.Lock()
	reg, err := s.armLocked(id, r, sch, now)
	s.mu.Unlock()
	if err != nil {
		return Registration{}, err
	}

	if !reg.Armed {
		s.log.Info("one-time reminder dropped", logx.String("id", id), logx.String("title", r.Title), logx.String("reason", reg.DropReason))
		s.publish(eventbus.TypeReminderDropped, eventbus.ReminderEvent{ID: id, Title: r.Title, Reason: reg.DropReason})
		return reg, nil
	}

	s.log.Info("reminder scheduled",
		logx.String("id", id),
		logx.String("title", r.Title),
		logx.String("kind", reg.Job.Kind.String()),
		logx.Time("next", reg.Job.NextRun),
		logx.Bool("catch_up", reg.CaughtUp),
	)
	s.publish(eventbus.TypeReminderArmed, eventbus.ReminderEvent{ID: id, Title: r.Title, NextRun: reg.Job.NextRun})
	return reg, nil
}

// CatchUp makes the immediate delivery of a caught-up registration and
// records its result in DeliveryErr. Other registrations are returned as is.
func (s *Service) CatchUp(ctx context.Context, reg Registration) Registration {
	if reg.Armed && reg.CaughtUp {
		reg.DeliveryErr = s.deliver(ctx, reg.Job)
	}
	return reg
}

// armLocked decides the first trigger. Call with s.mu held.
func (s *Service) armLocked(id string, r reminder.Reminder, sch reminder.Schedule, now time.Time) (Registration, error) {
	var reg Registration
	j := &job{id: id, title: r.Title, message: r.Message}

	if sch.Recurring {
		daily, err := s.dailySchedule(sch.Clock)
		if err != nil {
			return Registration{}, err
		}
		j.kind = KindRecurring
		j.daily = daily
		j.clock = sch.Clock
		scheduled := sch.Clock.On(now)
		if scheduled.After(now) {
			j.next = scheduled
		} else {
			j.next = j.following(scheduled)
			reg.CaughtUp = true
		}
	} else {
		j.kind = KindOneShot
		target := sch.Day.At(sch.Clock, now.Location())
		switch cmp := sch.Day.Compare(reminder.DayOf(now)); {
		case cmp < 0:
			reg.DropReason = fmt.Sprintf("date %s has already passed", sch.Day)
		case cmp == 0 && !target.After(now):
			reg.DropReason = fmt.Sprintf("time %s has already passed today", sch.Clock)
		default:
			j.next = target
		}
		if reg.DropReason != "" {
			// A stale job under the same id must not outlive its replacement.
			delete(s.jobs, id)
			return reg, nil
		}
	}

	s.seq++
	j.seq = s.seq
	s.jobs[id] = j
	reg.Armed = true
	reg.Job = j.info()
	return reg, nil
}

func (s *Service) dailySchedule(c reminder.Clock) (cron.Schedule, error) {
	spec := fmt.Sprintf("%d %d * * *", c.Minute, c.Hour)
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("daily schedule %q: %w", spec, err)
	}
	return sched, nil
}

// RunPending fires every job whose next run is at or before now.
//
// Job state is advanced under the lock before any delivery, so a job is
// fired once per due occurrence no matter how often RunPending is polled.
// Deliveries happen without the lock, in non-decreasing due order.
func (s *Service) RunPending(ctx context.Context) []Fired {
	now := s.now()

	type dueJob struct {
		Fired
		seq uint64
	}
	var due []dueJob

	s.mu.Lock()
	for id, j := range s.jobs {
		if j.next.After(now) {
			continue
		}
		d := dueJob{Fired: Fired{Due: j.next}, seq: j.seq}
		switch j.kind {
		case KindRecurring:
			next := j.following(j.next)
			if !next.After(now) {
				// Slept through several occurrences: fire once, resume from now.
				next = j.nextAfter(now.In(j.next.Location()))
			}
			j.next = next
			d.Job = j.info()
		default:
			delete(s.jobs, id)
			d.Job = j.info()
			d.Job.Fired = true
		}
		due = append(due, d)
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(a, b int) bool {
		if !due[a].Due.Equal(due[b].Due) {
			return due[a].Due.Before(due[b].Due)
		}
		return due[a].seq < due[b].seq
	})

	out := make([]Fired, 0, len(due))
	for _, d := range due {
		d.Err = s.deliver(ctx, d.Job)
		out = append(out, d.Fired)
	}
	return out
}

func (s *Service) deliver(ctx context.Context, j JobInfo) error {
	s.fired.Add(1)
	var err error
	if s.sink == nil {
		err = errors.New("no notification sink configured")
	} else {
		err = s.sink.Deliver(ctx, j.Title, j.Message)
	}
	if err != nil {
		if !errors.Is(err, reminder.ErrDeliveryFailed) {
			err = fmt.Errorf("%w: %w", reminder.ErrDeliveryFailed, err)
		}
		s.failed.Add(1)
		s.log.Warn("reminder delivery failed", logx.String("id", j.ID), logx.String("title", j.Title), logx.Err(err))
		s.publish(eventbus.TypeReminderDeliveryFailed, eventbus.ReminderEvent{ID: j.ID, Title: j.Title, Error: err.Error()})
		return err
	}
	s.log.Debug("reminder fired", logx.String("id", j.ID), logx.String("title", j.Title), logx.String("kind", j.Kind.String()))
	s.publish(eventbus.TypeReminderFired, eventbus.ReminderEvent{ID: j.ID, Title: j.Title, NextRun: nextOrZero(j)})
	return nil
}

func nextOrZero(j JobInfo) time.Time {
	if j.Fired {
		return time.Time{}
	}
	return j.NextRun
}

// Cancel removes the job for id. It reports whether a job existed.
func (s *Service) Cancel(id string) bool {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
	}
	s.mu.Unlock()
	if ok {
		s.log.Debug("job cancelled", logx.String("id", id), logx.String("title", j.title))
		s.publish(eventbus.TypeReminderCancelled, eventbus.ReminderEvent{ID: id, Title: j.title})
	}
	return ok
}

// ListJobs returns live jobs ordered by next run. It never mutates state.
func (s *Service) ListJobs() []JobInfo {
	s.mu.Lock()
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	out := make([]JobInfo, 0, len(jobs))
	sort.Slice(jobs, func(a, b int) bool {
		if !jobs[a].next.Equal(jobs[b].next) {
			return jobs[a].next.Before(jobs[b].next)
		}
		return jobs[a].seq < jobs[b].seq
	})
	for _, j := range jobs {
		out = append(out, j.info())
	}
	s.mu.Unlock()
	return out
}

// Job returns the live job for id.
func (s *Service) Job(id string) (JobInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return JobInfo{}, false
	}
	return j.info(), true
}

func (s *Service) publish(typ string, data eventbus.ReminderEvent) {
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: data})
}
