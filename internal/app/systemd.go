package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "bosstimer/pkg/logx"
)

const (
	sdReady    = daemon.SdNotifyReady
	sdStopping = daemon.SdNotifyStopping
	sdWatchdog = daemon.SdNotifyWatchdog
)

// notifySystemd is a no-op outside a systemd unit (NOTIFY_SOCKET unset).
func (a *App) notifySystemd(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		a.log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		a.log.Debug("sd_notify", logx.String("state", state))
	}
}

// startSystemd reports readiness and, under WatchdogSec=, pings the watchdog
// while evaluation passes keep finishing. A stalled tick loop stops the pings
// so systemd restarts the unit.
func (a *App) startSystemd() {
	a.notifySystemd(sdReady)

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		a.log.Warn("systemd watchdog config invalid", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	a.log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				last := time.Unix(0, a.lastPass.Load())
				if time.Since(last) > interval {
					a.log.Warn("tick loop stalled; withholding watchdog ping", logx.Time("last_pass", last))
					continue
				}
				a.notifySystemd(sdWatchdog)
			}
		}
	})
}
