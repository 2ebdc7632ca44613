package app

import (
	"context"
	"strings"

	"sgdqbot/internal/config"
	"sgdqbot/internal/refresh"
	logx "sgdqbot/pkg/logx"
)

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: only the newest config is applied.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			if next == nil {
				continue
			}
			a.applyConfig(ctx, last, next)
			last = next
		}
	}
}

// applyConfig pushes the live-reloadable parts of next into the running
// components. Everything else is reported as needing a restart.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	ch := config.SummarizeChange(prev, next)
	if len(ch.Sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogging(next))

	if srcCfg, err := mapSource(next); err != nil {
		a.log.Warn("invalid schedule source config; keeping previous", logx.Err(err))
	} else {
		a.fetch.Apply(srcCfg)
	}
	if iv, err := refresh.ParseInterval(next.Schedule.Interval); err != nil {
		a.log.Warn("invalid schedule.interval; keeping previous", logx.Err(err))
	} else {
		a.refresh.SetInterval(iv)
	}

	a.router.SetReplyRate(next.Chat.ReplyRatePerSec)
	a.feed.Reconfigure(ctx, mapFeed(next))

	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)
	a.log.Info("config reloaded", fields...)
	if ch.RestartRequired {
		a.log.Warn("config change needs a restart to take full effect", logx.Strings("sections", ch.Sections))
	}
}
