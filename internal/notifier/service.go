package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

const (
	defaultRatePerSec  = 3
	defaultTimeout     = 15 * time.Second
	defaultHistorySize = 50
)

// Service wraps a Sink with rate limiting, a per-call timeout and history.
// It is itself a Sink and is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	sink Sink
	log  logx.Logger

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sink Sink, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if sink == nil {
		sink = LogSink{Log: log}
	}
	s := &Service{sink: sink, log: log}
	s.applyLocked(cfg)
	return s
}

// Apply updates rate, timeout and history size. The sink itself is fixed for
// the lifetime of the Service.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.Sink != s.cfg.Sink {
		s.log.Warn("notifier sink change requires restart", logx.String("current", s.cfg.Sink), logx.String("requested", cfg.Sink))
	}
	s.applyLocked(cfg)
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	s.cfg = cfg
	// burst = rate so several reminders due in the same tick go out together
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Deliver sends one notification. Failures wrap reminder.ErrDeliveryFailed.
func (s *Service) Deliver(ctx context.Context, title, message string) error {
	s.mu.Lock()
	lim := s.limiter
	timeout := s.cfg.Timeout
	s.mu.Unlock()

	start := time.Now()
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := lim.Wait(dctx)
	if err == nil {
		err = s.sink.Deliver(dctx, title, message)
	}
	took := time.Since(start)

	item := HistoryItem{At: start, Title: title, Message: message, Took: took}
	if err != nil {
		if !errors.Is(err, reminder.ErrDeliveryFailed) {
			err = fmt.Errorf("%w: %w", reminder.ErrDeliveryFailed, err)
		}
		item.Error = err.Error()
		s.log.Warn("notification delivery failed", logx.String("title", title), logx.Duration("took", took), logx.Err(err))
	} else {
		s.log.Debug("notification delivered", logx.String("title", title), logx.Duration("took", took))
	}
	s.record(item)
	return err
}

func (s *Service) record(it HistoryItem) {
	s.mu.Lock()
	limit := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, it)
	if over := len(s.history) - limit; over > 0 {
		s.history = append([]HistoryItem(nil), s.history[over:]...)
	}
	s.hmu.Unlock()
}

// History returns recent deliveries, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}
