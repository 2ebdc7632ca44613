package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "sgdqbot/pkg/logx"
)

// sdNotifyFunc matches daemon.SdNotify without the unset flag. Outside
// systemd it reports false and no error.
type sdNotifyFunc func(state string) (bool, error)

func systemdNotify(state string) (bool, error) { return daemon.SdNotify(false, state) }

func (a *App) notify(state string) {
	sent, err := a.sdNotify(state)
	switch {
	case err != nil:
		a.log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
	case sent:
		a.log.Debug("systemd notified", logx.String("state", state))
	}
}

// watchdog pings at half the interval systemd asked for. It returns at
// once when the watchdog is not enabled for this process.
func (a *App) watchdog(ctx context.Context) {
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		a.log.Warn("systemd watchdog check failed", logx.Err(err))
		return
	}
	if every <= 0 {
		return
	}
	every /= 2
	a.log.Info("systemd watchdog enabled", logx.Duration("ping_every", every))

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.notify(daemon.SdNotifyWatchdog)
		}
	}
}
