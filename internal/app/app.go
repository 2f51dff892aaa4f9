package app

import (
	"context"
	"fmt"
	"time"

	"vaxbot/internal/config"
	"vaxbot/internal/eventbus"
	"vaxbot/internal/notifier"
	"vaxbot/internal/plugin"
	"vaxbot/internal/plugin/builtin/accounts"
	"vaxbot/internal/plugin/builtin/digest"
	"vaxbot/internal/plugin/builtin/pets"
	"vaxbot/internal/plugin/builtin/reminders"
	"vaxbot/internal/plugin/builtin/vaccines"
	"vaxbot/internal/reminder"
	"vaxbot/internal/scheduler"
	"vaxbot/internal/store"
	"vaxbot/internal/supervisor"
	kit "vaxbot/internal/transport"
	telegram "vaxbot/internal/transport/telegram/adapter"
	logx "vaxbot/pkg/logx"
)

// App wires the bot together: config, storage, scheduler, notifier, the
// reminder registrar, the Telegram adapter and the plugins on top.
type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	st   *store.Store

	adapter kit.Adapter

	sched     *scheduler.Service
	notif     *notifier.Service
	registrar *reminder.Registrar

	cmdm *plugin.CommandManager
	pm   *plugin.Manager

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationOrDefault(cfg.Telegram.PollTimeout, "telegram.poll_timeout", 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()

	stCfg, err := mapStoreConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(stCfg, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	schedSvc := scheduler.New(schedCfg, log.With(logx.String("comp", "scheduler")))
	schedSvc.SetBus(bus)

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notifSvc := notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")), bus, st)

	registrar := reminder.NewRegistrar(st, schedSvc, notifSvc, bus,
		mapReminderDefaults(cfg), log.With(logx.String("comp", "reminder")))

	cmdm := plugin.NewCommandManager(log.With(logx.String("comp", "commands")),
		ad, cfgm, cfg.Telegram.OwnerUserIDs)

	pm := plugin.NewManager(log.With(logx.String("comp", "plugins")), plugin.PluginDeps{
		Logger:       log,
		Adapter:      ad,
		Config:       cfgm,
		Bus:          bus,
		Store:        st,
		Scheduler:    schedSvc,
		Notifier:     notifSvc,
		Registrar:    registrar,
		OwnerUserIDs: cfg.Telegram.OwnerUserIDs,
	}, cmdm)

	a := &App{
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		st:        st,
		adapter:   ad,
		sched:     schedSvc,
		notif:     notifSvc,
		registrar: registrar,
		cmdm:      cmdm,
		pm:        pm,
		updates:   make(chan kit.Update, 256),
	}
	if err := a.registerPlugins(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) registerPlugins() error {
	for _, p := range []plugin.Plugin{
		accounts.New(),
		pets.New(),
		vaccines.New(),
		reminders.New(),
		digest.New(),
	} {
		if err := a.pm.Register(p); err != nil {
			return err
		}
	}
	return nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if _, err := mapSchedulerConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if _, err := mapStoreConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}
	if a.sched.Enabled() {
		a.sched.Start(a.sup.Context())
	}

	// Recreate reminder timers from the persisted alarm set. Past instants
	// fire immediately and self-validate against the current records.
	if err := a.registrar.Rebuild(a.sup.Context()); err != nil {
		a.log.Warn("alarm rebuild failed", logx.Any("err", err))
	}

	a.pm.StartAll(a.sup.Context())

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	// Event flow stays visible at debug level.
	events, unsub := a.bus.Subscribe(128)
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

	// Hot-reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, newCfg)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a validated hot-reloaded config into the live services.
// Storage changes need a restart; everything else applies immediately.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	a.cmdm.SetOwners(cfg.Telegram.OwnerUserIDs)
	a.registrar.Apply(mapReminderDefaults(cfg))

	if schedCfg, err := mapSchedulerConfig(cfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Any("err", err))
	} else {
		prev := a.sched.Enabled()
		a.sched.Apply(schedCfg)
		if prev && !schedCfg.Enabled {
			a.log.Info("scheduler disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.sched.Stop(stopCtx)
			cancel()
		} else if !prev && schedCfg.Enabled {
			a.log.Info("scheduler enabled via config")
			a.sched.Start(ctx)
			if err := a.registrar.Rebuild(ctx); err != nil {
				a.log.Warn("alarm rebuild failed", logx.Any("err", err))
			}
		}
	}

	if ncfg, err := mapNotifierConfig(cfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Any("err", err))
	} else {
		prev := a.notif.Enabled()
		a.notif.Apply(ncfg)
		if prev && !ncfg.Enabled {
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		} else if !prev && ncfg.Enabled {
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
			// Registrations were skipped while delivery was off.
			if err := a.registrar.RescheduleAll(ctx); err != nil {
				a.log.Warn("reschedule after notifier enable failed", logx.Any("err", err))
			}
		}
	}

	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run each shutdown step with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
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
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Any("err", err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("plugins", 4*time.Second, func(c context.Context) error { a.pm.StopAll(c); return nil })
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("store", 1*time.Second, func(c context.Context) error { return a.st.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
