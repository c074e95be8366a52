package reminders

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"remindd/internal/storage"
	"remindd/internal/task/scheduler"
	logx "remindd/pkg/logx"
)

type Service struct {
	// mu serializes composite operations so the list and the job set
	// change together.
	mu sync.Mutex

	store *storage.Store
	sched *scheduler.Service
	log   logx.Logger
	newID func() string

	autoSave   atomic.Bool
	loadFailed atomic.Bool
}

type Option func(*Service)

// WithAutoSave persists the list after every create and cancel.
func WithAutoSave(on bool) Option {
	return func(s *Service) { s.autoSave.Store(on) }
}

// WithIDFunc overrides identity generation. Defaults to random UUIDs.
func WithIDFunc(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func New(store *storage.Store, sched *scheduler.Service, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		store: store,
		sched: sched,
		log:   log.With(logx.String("comp", "reminders")),
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetAutoSave toggles auto-save at runtime (config reload).
func (s *Service) SetAutoSave(on bool) {
	if s.autoSave.Swap(on) != on {
		s.log.Info("auto-save updated", logx.Bool("enabled", on))
	}
}
