// Package supervisor runs named background goroutines with panic recovery
// and restart-with-backoff, all tied to one cancelable context.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	logx "remindd/pkg/logx"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log      logx.Logger
	errOnce  sync.Once
	firstErr atomic.Value // error
	doneOnce sync.Once
	doneCh   chan struct{}
	wg       sync.WaitGroup

	mu    sync.Mutex
	stats map[string]*GoroutineStats
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) {
		if !log.IsZero() {
			s.log = log
		}
	}
}

// GoroutineStats aggregates runs of one named goroutine.
type GoroutineStats struct {
	Name        string    `json:"name"`
	Active      int       `json:"active"`
	Started     uint64    `json:"started"`
	Restarts    uint64    `json:"restarts"`
	Panics      uint64    `json:"panics"`
	LastStartAt time.Time `json:"last_start_at"`
	LastErr     string    `json:"last_err,omitempty"`
}

type Snapshot struct {
	FirstError string           `json:"first_error,omitempty"`
	Goroutines []GoroutineStats `json:"goroutines"`
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		log:    logx.Nop(),
		doneCh: make(chan struct{}),
		stats:  map[string]*GoroutineStats{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Err returns the first error recorded by any goroutine.
func (s *Supervisor) Err() error {
	if err, ok := s.firstErr.Load().(error); ok {
		return err
	}
	return nil
}

func (s *Supervisor) setErr(err error) {
	if err != nil {
		s.errOnce.Do(func() { s.firstErr.Store(err) })
	}
}

// Snapshot returns per-name stats sorted by name.
func (s *Supervisor) Snapshot() Snapshot {
	var snap Snapshot
	if err := s.Err(); err != nil {
		snap.FirstError = err.Error()
	}
	s.mu.Lock()
	for _, st := range s.stats {
		snap.Goroutines = append(snap.Goroutines, *st)
	}
	s.mu.Unlock()
	sort.Slice(snap.Goroutines, func(i, j int) bool { return snap.Goroutines[i].Name < snap.Goroutines[j].Name })
	return snap
}

func (s *Supervisor) note(name string, fn func(st *GoroutineStats)) {
	s.mu.Lock()
	st := s.stats[name]
	if st == nil {
		st = &GoroutineStats{Name: name}
		s.stats[name] = st
	}
	fn(st)
	s.mu.Unlock()
}

// runOnce calls fn, converting a panic into an error.
func (s *Supervisor) runOnce(name string, fn func(ctx context.Context) error, restart bool) (err error) {
	s.note(name, func(st *GoroutineStats) {
		st.Active++
		st.Started++
		st.LastStartAt = time.Now()
		if restart {
			st.Restarts++
		}
	})
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("goroutine panicked", logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			s.note(name, func(st *GoroutineStats) { st.Panics++ })
			err = fmt.Errorf("panic in %s: %v", name, r)
		}
		s.note(name, func(st *GoroutineStats) {
			st.Active--
			if err != nil {
				st.LastErr = err.Error()
			}
		})
	}()
	return fn(s.ctx)
}

// Go runs fn once. A returned error or panic is recorded as Err.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Debug("goroutine started", logx.String("name", name))
		err := s.runOnce(name, fn, false)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.setErr(fmt.Errorf("%s: %w", name, err))
		}
		s.log.Debug("goroutine stopped", logx.String("name", name))
	}()
}

type RestartOption func(*restartCfg)

type restartCfg struct {
	minBackoff  time.Duration
	maxBackoff  time.Duration
	maxRestarts int // <= 0 means unlimited
}

// WithRestartBackoff bounds the exponential backoff between restarts.
func WithRestartBackoff(min, max time.Duration) RestartOption {
	return func(c *restartCfg) {
		if min > 0 {
			c.minBackoff = min
		}
		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// WithMaxRestarts gives up after n restarts. The first run is not counted.
func WithMaxRestarts(n int) RestartOption { return func(c *restartCfg) { c.maxRestarts = n } }

// GoRestart runs fn and restarts it after an error or panic until the
// supervisor is stopped. A nil return ends the loop.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	cfg := restartCfg{minBackoff: 250 * time.Millisecond, maxBackoff: 30 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.maxBackoff < cfg.minBackoff {
		cfg.maxBackoff = cfg.minBackoff
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		backoff := cfg.minBackoff
		for restarts := 0; ; restarts++ {
			startedAt := time.Now()
			err := s.runOnce(name, fn, restarts > 0)
			if s.ctx.Err() != nil || err == nil || errors.Is(err, context.Canceled) {
				return
			}
			err = fmt.Errorf("%s: %w", name, err)
			if cfg.maxRestarts > 0 && restarts >= cfg.maxRestarts {
				s.log.Error("goroutine gave up after restarts", logx.String("name", name), logx.Int("restarts", restarts), logx.Err(err))
				s.setErr(err)
				return
			}
			// A long healthy run resets the backoff.
			if time.Since(startedAt) >= 30*time.Second {
				backoff = cfg.minBackoff
			}
			wait := backoff + time.Duration(rng.Int63n(int64(backoff)/5+1))
			s.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(wait):
			}
			backoff = min(backoff*2, cfg.maxBackoff)
		}
	}()
}

// Stop cancels the context and waits for every goroutine.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

func (s *Supervisor) Wait(ctx context.Context) error {
	s.doneOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.doneCh)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return s.Err()
	}
}
