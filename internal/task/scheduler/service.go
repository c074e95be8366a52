package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"remindd/internal/eventbus"
	"remindd/internal/notifier"
	logx "remindd/pkg/logx"
)

func New(sink notifier.Sink, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		jobs: map[string]*job{},
		log:  log,
		bus:  eventbus.Nop(),
		sink: sink,
		// Five fields: daily specs are rendered as "M H * * *".
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Reset drops every live job and returns how many were removed.
func (s *Service) Reset() int {
	s.mu.Lock()
	n := len(s.jobs)
	s.jobs = map[string]*job{}
	s.mu.Unlock()
	if n > 0 {
		s.log.Debug("jobs reset", logx.Int("removed", n))
	}
	return n
}

// Len returns the number of live jobs.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
