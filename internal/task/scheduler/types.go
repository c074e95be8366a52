package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"remindd/internal/eventbus"
	"remindd/internal/notifier"
	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

// Kind tells whether a job re-arms after firing.
type Kind int

const (
	KindRecurring Kind = iota
	KindOneShot
)

func (k Kind) String() string {
	switch k {
	case KindRecurring:
		return "recurring"
	case KindOneShot:
		return "one-shot"
	default:
		return "unknown"
	}
}

// JobInfo is a read-only view of a live job.
type JobInfo struct {
	ID      string
	Title   string
	Message string
	Kind    Kind
	NextRun time.Time
	Fired   bool
}

// Registration reports what Register did with a reminder.
type Registration struct {
	// Armed is true when a live job exists after registration.
	Armed bool
	Job   JobInfo

	// CaughtUp is set when a recurring reminder's time had already passed
	// today and it was delivered immediately.
	CaughtUp    bool
	DeliveryErr error

	// DropReason explains why a one-shot reminder produced no job.
	DropReason string
}

// Fired is one delivery made by RunPending.
type Fired struct {
	Job JobInfo
	Due time.Time
	Err error
}

type job struct {
	id      string
	title   string
	message string
	kind    Kind
	next    time.Time
	seq     uint64
	daily   cron.Schedule  // recurring only
	clock   reminder.Clock // recurring only
}

// nextAfter returns the first daily occurrence strictly after t.
//
// cron skips a wall-clock time that does not exist on a DST spring-forward
// day; the calendar candidate still lands on that day, so every calendar day
// gets an occurrence.
func (j *job) nextAfter(t time.Time) time.Time {
	next := j.daily.Next(t)
	y, m, d := t.Date()
	for i := 0; i <= 2; i++ {
		c := time.Date(y, m, d+i, j.clock.Hour, j.clock.Minute, 0, 0, t.Location())
		if !c.After(t) {
			continue
		}
		if next.IsZero() || c.Before(next) {
			next = c
		}
		break
	}
	return next
}

// following returns the occurrence on the first calendar day after prev's.
// A time repeated by a DST fall-back does not fire twice.
func (j *job) following(prev time.Time) time.Time {
	next := j.nextAfter(prev)
	if sameDay(next, prev) {
		y, m, d := prev.Date()
		next = j.nextAfter(time.Date(y, m, d, 23, 59, 59, 0, prev.Location()))
	}
	return next
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}

func (j *job) info() JobInfo {
	return JobInfo{ID: j.id, Title: j.title, Message: j.message, Kind: j.kind, NextRun: j.next}
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now. Tests use it to simulate days.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBus publishes reminder.* events on bus.
func WithBus(bus eventbus.Bus) Option {
	return func(s *Service) {
		if bus != nil {
			s.bus = bus
		}
	}
}

type Service struct {
	mu   sync.Mutex
	jobs map[string]*job
	seq  uint64

	log    logx.Logger
	bus    eventbus.Bus
	sink   notifier.Sink
	parser cron.Parser
	now    func() time.Time

	fired  atomic.Uint64
	failed atomic.Uint64
}

// Snapshot is a diagnostic view of the scheduler.
type Snapshot struct {
	Jobs        []JobInfo
	FiredTotal  uint64
	FailedTotal uint64
}
