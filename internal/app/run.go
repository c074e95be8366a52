package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindd/internal/config"
	"remindd/internal/eventbus"
	"remindd/internal/observability/debughttp"
	"remindd/internal/runtime/supervisor"
	"remindd/internal/storage"
	logx "remindd/pkg/logx"
)

// Start loads the persisted reminders and starts the background loops:
// the poll loop, config hot reload, storage sync, event logging and the
// systemd watchdog.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))))

	// A failed load keeps the (empty) in-memory list and blocks saves; the
	// storage watch re-enables them once the file is fixed.
	rep, err := a.rem.LoadReminders(a.sup.Context())
	if err != nil {
		a.log.Error("initial load failed; starting with an empty list, saving disabled until the file reads again", logx.Err(err))
	}
	for _, e := range rep.Errors {
		a.log.Warn("reminder not scheduled", logx.Int("index", e.Index), logx.String("title", e.Title), logx.Err(e.Err))
	}

	a.lastTick.Store(a.now().UnixNano())
	a.sup.GoRestart("scheduler.poll", a.pollLoop)

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		a.logEvents(c, events)
		return nil
	})

	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if _, err := mapDebugConfig(cfg); err != nil {
			return err
		}
		_, err := mapStorageConfig(cfg)
		return err
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch)
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})

	if a.watchFile {
		if sc, err := mapStorageConfig(a.cfgm.Get()); err == nil {
			a.sup.GoRestart("storage.watch", func(c context.Context) error {
				return storage.Watch(c, storagePath(sc), 300*time.Millisecond, a.log, func() { a.syncFromStorage(c) })
			}, supervisor.WithRestartBackoff(time.Second, time.Minute))
		}
	}

	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return a.sd.RunWatchdog(c, a.healthy)
	})

	if dc, err := mapDebugConfig(a.cfgm.Get()); err != nil {
		a.log.Warn("debug server disabled", logx.Err(err))
	} else if dc.Enabled {
		srv := debughttp.New(dc, debughttp.Sources{
			Overview: a.rem.Overview,
			History:  a.notif.History,
			Healthy:  a.healthy,
		}, a.log)
		a.sup.GoRestart("debug.http", srv.Serve, supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	}

	jobs := a.sched.Len()
	a.sd.Status(fmt.Sprintf("%d reminders, %d armed", a.store.Len(), jobs))
	a.sd.Ready()
	a.log.Info("started",
		logx.Int("reminders", a.store.Len()),
		logx.Int("jobs", jobs),
		logx.Duration("poll_interval", time.Duration(a.pollEvery.Load())),
	)
	return nil
}

// pollLoop calls CheckReminders on a fixed interval. A failing tick is
// logged and polling continues.
func (a *App) pollLoop(ctx context.Context) error {
	interval := time.Duration(a.pollEvery.Load())
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-a.pollReset:
			t.Reset(d)
			a.log.Info("poll interval updated", logx.Duration("interval", d))
		case <-t.C:
			a.tick(ctx)
		}
	}
}

func (a *App) tick(ctx context.Context) {
	fired := a.rem.CheckReminders(ctx)
	a.lastTick.Store(a.now().UnixNano())
	failed := 0
	for _, f := range fired {
		if f.Err != nil {
			failed++
		}
	}
	if len(fired) > 0 {
		a.log.Debug("tick", logx.Int("fired", len(fired)), logx.Int("failed", failed))
	}
}

// healthy reports whether the poll loop ticked recently.
func (a *App) healthy() bool {
	interval := time.Duration(a.pollEvery.Load())
	last := time.Unix(0, a.lastTick.Load())
	return a.now().Sub(last) < 3*interval+5*time.Second
}

func (a *App) setPollInterval(d time.Duration) {
	if d <= 0 || time.Duration(a.pollEvery.Swap(int64(d))) == d {
		return
	}
	// keep only the newest value
	select {
	case <-a.pollReset:
	default:
	}
	a.pollReset <- d
}

func (a *App) syncFromStorage(ctx context.Context) {
	rep, err := a.rem.SyncReminders(ctx)
	if err != nil {
		a.log.Warn("storage sync failed", logx.Err(err))
		return
	}
	for _, e := range rep.Errors {
		a.log.Warn("synced reminder not scheduled", logx.String("title", e.Title), logx.Err(e.Err))
	}
}

func (a *App) logEvents(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			fields := []logx.Field{logx.String("type", e.Type)}
			if re, ok := e.Data.(eventbus.ReminderEvent); ok {
				fields = append(fields, logx.String("id", re.ID), logx.String("title", re.Title))
				if !re.NextRun.IsZero() {
					fields = append(fields, logx.Time("next_run", re.NextRun))
				}
				if re.Reason != "" {
					fields = append(fields, logx.String("reason", re.Reason))
				}
			}
			a.log.Debug("event", fields...)
		}
	}
}

// reloadLoop applies hot-reloadable settings. Storage and sink changes are
// reported and take effect on restart.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// coalesce bursts
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					drained = true
				}
			}
			if err := a.applyConfig(last, cfg); err != nil {
				a.log.Warn("config apply failed", logx.Err(err))
				continue
			}
			last = cfg
		}
	}
}

func (a *App) applyConfig(old, cfg *config.Config) error {
	sections, attrs := config.SummarizeConfigChange(old, cfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return nil
	}
	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)

	var errs []error
	a.logs.Apply(mapLogConfig(cfg))
	if d, err := cfg.PollInterval(); err != nil {
		errs = append(errs, err)
	} else {
		a.setPollInterval(d)
	}
	if nc, err := mapNotifierConfig(cfg); err != nil {
		errs = append(errs, err)
	} else {
		a.notif.Apply(nc)
	}
	a.rem.SetAutoSave(cfg.Reminders.AutoSave)

	for _, s := range sections {
		if s == "storage" || s == "systemd" || s == "debug" {
			a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", s))
		}
	}
	return errors.Join(errs...)
}

func storagePath(sc storage.Config) string {
	if sc.Path != "" {
		return sc.Path
	}
	if sc.Driver == storage.DriverSQLite || sc.Driver == "sqlite3" {
		return storage.DefaultSQLitePath
	}
	return storage.DefaultJSONPath
}
