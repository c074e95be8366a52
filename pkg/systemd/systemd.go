// Package systemd speaks the sd_notify protocol: readiness, stopping,
// status text and watchdog keep-alives. Every call is a no-op when the
// process was not started by systemd (NOTIFY_SOCKET unset).
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "remindd/pkg/logx"
)

type Notifier struct {
	enabled bool
	log     logx.Logger
}

func NewNotifier(enabled bool, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{enabled: enabled, log: log.With(logx.String("comp", "systemd"))}
}

// Ready reports READY=1. It returns whether systemd received the message.
func (n *Notifier) Ready() bool { return n.send(daemon.SdNotifyReady) }

// Stopping reports STOPPING=1.
func (n *Notifier) Stopping() bool { return n.send(daemon.SdNotifyStopping) }

// Status sets the free-form unit status shown by systemctl status.
func (n *Notifier) Status(msg string) bool { return n.send("STATUS=" + msg) }

func (n *Notifier) send(state string) bool {
	if n == nil || !n.enabled {
		return false
	}
	ok, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return false
	}
	if ok {
		n.log.Debug("sd_notify sent", logx.String("state", state))
	}
	return ok
}

// WatchdogInterval returns the keep-alive period systemd expects, or 0 when
// the watchdog is not enabled for this process.
func (n *Notifier) WatchdogInterval() time.Duration {
	if n == nil || !n.enabled {
		return 0
	}
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.log.Warn("watchdog config invalid", logx.Err(err))
		return 0
	}
	return d
}

// RunWatchdog sends WATCHDOG=1 at half the configured interval until ctx
// is done. healthy gates each ping; a false result skips it so systemd
// restarts a stuck process.
func (n *Notifier) RunWatchdog(ctx context.Context, healthy func() bool) error {
	interval := n.WatchdogInterval()
	if interval <= 0 {
		return nil
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	n.log.Info("watchdog enabled", logx.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy != nil && !healthy() {
				n.log.Warn("watchdog ping skipped: unhealthy")
				continue
			}
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
