// Package app wires the schedule bot together and owns its start and stop
// order.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"sgdqbot/internal/commands"
	"sgdqbot/internal/config"
	"sgdqbot/internal/eventbus"
	"sgdqbot/internal/feed"
	"sgdqbot/internal/refresh"
	"sgdqbot/internal/router"
	"sgdqbot/internal/runtime/supervisor"
	"sgdqbot/internal/schedule"
	"sgdqbot/internal/source"
	"sgdqbot/internal/transport"
	logx "sgdqbot/pkg/logx"
)

// StopReason is logged when the app stops.
type StopReason string

const (
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
	StopAppStop    StopReason = "app_stop"
)

type Options struct {
	// ConfigPath is optional; empty means defaults only.
	ConfigPath string
	// Args is the positional "server channel nick" override. Any count
	// other than three is ignored.
	Args []string

	adapter  transport.Adapter
	sdNotify sdNotifyFunc
}

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.MemBus

	store    *schedule.Store
	parser   *schedule.Parser
	fetch    *source.Fetcher
	refresh  *refresh.Service
	dispatch *commands.Dispatcher
	adapter  transport.Adapter
	router   *router.Router
	feed     *feed.Service

	sdNotify sdNotifyFunc
	inbox    chan transport.Message
}

func loadConfig(opts Options) (*config.Manager, *config.Config, error) {
	cfgm := config.NewManager(opts.ConfigPath)
	if len(opts.Args) > 0 {
		args := append([]string(nil), opts.Args...)
		cfgm.SetOverlay(func(c *config.Config) { config.ApplyArgs(c, args) })
	}
	cfg, err := cfgm.Parse()
	if err != nil {
		return nil, nil, err
	}
	if err := validate(context.Background(), cfg); err != nil {
		return nil, nil, err
	}
	cfgm.Commit(cfg)
	return cfgm, cfg, nil
}

// Check loads and validates the effective configuration without starting
// anything.
func Check(opts Options) (*config.Config, error) {
	_, cfg, err := loadConfig(opts)
	return cfg, err
}

func New(opts Options) (*App, error) {
	cfgm, cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogging(cfg))

	loc, err := scheduleZone(cfg)
	if err != nil {
		return nil, err
	}
	srcCfg, err := mapSource(cfg)
	if err != nil {
		return nil, err
	}
	iv, err := refresh.ParseInterval(cfg.Schedule.Interval)
	if err != nil {
		return nil, fmt.Errorf("schedule.interval: %w", err)
	}

	ad := opts.adapter
	if ad == nil {
		if ad, err = newAdapter(cfg, log); err != nil {
			return nil, err
		}
	}

	bus := eventbus.New()
	store := schedule.NewStore()
	fetch := source.New(srcCfg, nil, log)
	parser := schedule.NewParser(loc)
	ref := refresh.New(store, fetch, parser, iv,
		refresh.WithLogger(log),
		refresh.WithBus(bus),
	)
	dispatch := commands.NewDispatcher(store)

	notify := opts.sdNotify
	if notify == nil {
		notify = systemdNotify
	}

	return &App{
		cfgm:     cfgm,
		log:      log.With(logx.String("comp", "app")),
		logs:     logs,
		bus:      bus,
		store:    store,
		parser:   parser,
		fetch:    fetch,
		refresh:  ref,
		dispatch: dispatch,
		adapter:  ad,
		router:   router.New(mapRouter(cfg), ad, dispatch, log),
		feed:     feed.New(mapFeed(cfg), store, log, feed.WithBus(bus)),
		sdNotify: notify,
		inbox:    make(chan transport.Message, 256),
	}, nil
}

// Store exposes the schedule snapshot store.
func (a *App) Store() *schedule.Store { return a.store }

// Done is closed when the app context is canceled (fatal error or Stop).
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

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	c := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validate)

	if err := a.refresh.Start(c); err != nil {
		return err
	}
	if err := a.adapter.Start(c, a.inbox); err != nil {
		return fmt.Errorf("%s adapter: %w", a.adapter.Name(), err)
	}
	a.sup.Go("router", func(c context.Context) error {
		return a.router.Run(c, a.inbox)
	})
	a.feed.Start(c)

	if mu, ok := a.adapter.(transport.CommandMenuUpdater); ok {
		a.sup.Go0("menu.update", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := mu.UpdateMenuCommands(mctx, menuCommands()); err != nil {
				a.log.Warn("command menu update failed", logx.Err(err))
			}
		})
	}

	events, unsub := a.bus.Subscribe(64)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	if a.cfgm.Path() != "" {
		a.sup.GoRestart("config.watch", a.cfgm.Watch,
			supervisor.WithRestartBackoff(time.Second, time.Minute),
		)
	}

	a.sup.Go0("systemd.watchdog", a.watchdog)
	a.notify(daemon.SdNotifyReady)

	a.log.Info("app started",
		logx.String("transport", a.adapter.Name()),
		logx.String("interval", a.refresh.Interval().String()),
		logx.String("zone", a.parser.Location().String()),
		logx.Bool("feed", a.feed.Enabled()),
	)
	return nil
}

func menuCommands() []transport.BotCommand {
	var out []transport.BotCommand
	for _, c := range commands.All() {
		out = append(out, transport.BotCommand{
			Command:     c.Token[1:],
			Description: c.Usage,
		})
	}
	return out
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.notify(daemon.SdNotifyStopping)

	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			if took := time.Since(start); took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("feed", 2*time.Second, a.feed.Stop)
	step("refresh", 2*time.Second, a.refresh.Stop)
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("supervisor", 3*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
