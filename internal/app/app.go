package app

import (
	"context"
	"sync/atomic"
	"time"

	"remindd/internal/config"
	"remindd/internal/eventbus"
	"remindd/internal/notifier"
	"remindd/internal/runtime/supervisor"
	"remindd/internal/services/reminders"
	"remindd/internal/storage"
	"remindd/internal/task/scheduler"
	logx "remindd/pkg/logx"
	"remindd/pkg/systemd"
)

// App wires config, logging, storage, notifier, scheduler and the reminder
// handler, and owns the background loops once started.
type App struct {
	cfgPath string
	cfgm    *config.ConfigManager
	sup     *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store *storage.Store
	notif *notifier.Service
	sched *scheduler.Service
	rem   *reminders.Service
	sd    *systemd.Notifier

	pollEvery atomic.Int64 // time.Duration
	pollReset chan time.Duration
	lastTick  atomic.Int64 // unix nano
	now       func() time.Time
	watchFile bool
}

type options struct {
	sink      notifier.Sink
	now       func() time.Time
	logLevel  string
	watchFile bool
}

type Option func(*options)

// WithSink replaces the configured notification sink.
func WithSink(s notifier.Sink) Option { return func(o *options) { o.sink = s } }

// WithClock replaces time.Now for scheduling decisions.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithLogLevel overrides logging.level (CLI subcommands run quieter).
func WithLogLevel(level string) Option { return func(o *options) { o.logLevel = level } }

// WithStorageWatch toggles syncing external edits of the reminder file.
// Enabled by default.
func WithStorageWatch(on bool) Option { return func(o *options) { o.watchFile = on } }

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	o := options{now: time.Now, watchFile: true}
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logCfg := mapLogConfig(cfg)
	if o.logLevel != "" {
		logCfg.Level = o.logLevel
	}
	logSvc, root := logx.New(logCfg)
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root.With(logx.String("comp", "config")))

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, root)
	if err != nil {
		return nil, err
	}

	nc, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	sink := o.sink
	if sink == nil {
		sink, err = notifier.NewSink(nc, root.With(logx.String("comp", "sink")))
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	notif := notifier.New(nc, sink, root.With(logx.String("comp", "notifier")))

	sched := scheduler.New(notif, root.With(logx.String("comp", "scheduler")),
		scheduler.WithClock(o.now), scheduler.WithBus(bus))
	rem := reminders.New(store, sched, root, reminders.WithAutoSave(cfg.Reminders.AutoSave))

	poll, err := cfg.PollInterval()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		notif:     notif,
		sched:     sched,
		rem:       rem,
		sd:        systemd.NewNotifier(cfg.Systemd.NotifyEnabled(), root),
		pollReset: make(chan time.Duration, 1),
		now:       o.now,
		watchFile: o.watchFile,
	}
	a.pollEvery.Store(int64(poll))
	log.Debug("app initialized",
		logx.String("config", cfgPath),
		logx.String("storage", sc.Driver),
		logx.String("sink", nc.Sink),
		logx.Duration("poll_interval", poll),
	)
	return a, nil
}

func (a *App) Reminders() *reminders.Service { return a.rem }
func (a *App) Notifier() *notifier.Service   { return a.notif }
func (a *App) Scheduler() *scheduler.Service { return a.sched }
func (a *App) Bus() eventbus.Bus             { return a.bus }
func (a *App) Logger() logx.Logger           { return a.log }
func (a *App) Config() *config.Config        { return a.cfgm.Get() }

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Close releases storage and log files without saving. Used by one-shot
// commands that never call Start.
func (a *App) Close() error {
	err := a.store.Close()
	_ = a.logs.Close()
	return err
}

// Stop shuts the loops down, saves the list and releases resources.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	var firstErr error
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil {
			a.log.Warn("supervisor stop", logx.Err(err))
			firstErr = err
		}
	}
	if cfg := a.cfgm.Get(); cfg == nil || cfg.Reminders.SaveOnExitEnabled() {
		if err := a.rem.SaveReminders(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := a.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
