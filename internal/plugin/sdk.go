package plugin

import (
	"context"
	"errors"
	"time"

	"vaxbot/internal/config"
	"vaxbot/internal/eventbus"
	"vaxbot/internal/notifier"
	"vaxbot/internal/reminder"
	"vaxbot/internal/scheduler"
	"vaxbot/internal/store"
	"vaxbot/internal/supervisor"
	kit "vaxbot/internal/transport"
	logx "vaxbot/pkg/logx"
)

type Plugin interface {
	Name() string
	Init(ctx context.Context, deps PluginDeps) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Commands() []Command
}

// CallbackProvider is an optional plugin interface for inline-button callbacks.
type CallbackProvider interface {
	Callbacks() []CallbackRoute
}

type PluginDeps struct {
	Logger       logx.Logger
	Adapter      kit.Adapter
	Config       *config.Manager
	Bus          eventbus.Bus
	Store        *store.Store
	Scheduler    *scheduler.Service
	Notifier     *notifier.Service
	Registrar    *reminder.Registrar
	OwnerUserIDs []int64
}

// PluginBase is a small helper to make writing plugins faster and safer.
// Typical usage:
//
//	type Plugin struct { plugin.PluginBase }
//	func (p *Plugin) Init(ctx context.Context, deps plugin.PluginDeps) error { p.InitBase(deps, p.Name()); return nil }
//	func (p *Plugin) Start(ctx context.Context) error { p.StartBase(ctx); return nil }
//	func (p *Plugin) Stop(ctx context.Context) error { return p.StopBase(ctx) }
type PluginBase struct {
	Log        logx.Logger
	Deps       PluginDeps
	Runner     *supervisor.Supervisor
	pluginName string

	ctx context.Context
}

// InitBase wires deps + logger.
func (b *PluginBase) InitBase(deps PluginDeps, pluginName string) {
	b.Deps = deps
	b.pluginName = pluginName
	if !deps.Logger.IsZero() {
		b.Log = deps.Logger.With(logx.String("plugin", pluginName))
	} else {
		b.Log = logx.Nop().With(logx.String("plugin", pluginName))
	}
}

// StartBase creates a per-plugin supervisor tied to ctx.
func (b *PluginBase) StartBase(ctx context.Context) {
	b.ctx = ctx
	b.Runner = supervisor.New(ctx, supervisor.WithLogger(b.Log), supervisor.WithCancelOnError(false))
}

// StopBase cancels runner + waits bounded by ctx.
func (b *PluginBase) StopBase(ctx context.Context) error {
	if b.Runner == nil {
		return nil
	}
	b.Runner.Cancel()
	err := b.Runner.Wait(ctx)
	b.Runner = nil
	return err
}

// Context returns the plugin runtime context (canceled on stop).
func (b *PluginBase) Context() context.Context { return b.ctx }

// Scheduler helpers (namespaced by plugin).
func (b *PluginBase) Cron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	if b.Deps.Scheduler == nil {
		return "", errors.New("scheduler not available")
	}
	return b.Deps.Scheduler.AddCron(b.ns(name), spec, timeout, job)
}

func (b *PluginBase) Daily(name, atHHMM string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	if b.Deps.Scheduler == nil {
		return "", errors.New("scheduler not available")
	}
	return b.Deps.Scheduler.AddDaily(b.ns(name), atHHMM, timeout, job)
}

func (b *PluginBase) ns(name string) string {
	if b.pluginName == "" {
		return name
	}
	if name == "" {
		return b.pluginName
	}
	return b.pluginName + ":" + name
}

// Notifier helpers.
func (b *PluginBase) Notify(ctx context.Context, n kit.Notification) error {
	if b.Deps.Notifier == nil {
		return errors.New("notifier not available")
	}
	return b.Deps.Notifier.Notify(ctx, n)
}

func (b *PluginBase) Info(chatID int64, text string) error {
	ctx := b.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n := kit.Notification{
		Channel:  "telegram",
		Priority: 5,
		Target:   kit.ChatTarget{ChatID: chatID},
		Text:     text,
	}
	return b.Notify(cctx, n)
}

// PublishEvent publishes a lightweight event to the in-process event bus (if present).
// Publish is non-blocking, safe to call from handlers.
func (b *PluginBase) PublishEvent(typ string, data any) {
	if b == nil {
		return
	}
	bus := b.Deps.Bus
	if bus == nil {
		return
	}
	bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// SubscribeEvents subscribes to the event bus and runs fn for each event under
// the plugin supervisor until the plugin context is canceled.
// Call after StartBase.
func (b *PluginBase) SubscribeEvents(buffer int, fn func(ctx context.Context, ev eventbus.Event)) error {
	if b.Deps.Bus == nil {
		return errors.New("event bus not available")
	}
	if b.Runner == nil {
		return errors.New("plugin not started")
	}
	ch, unsub := b.Deps.Bus.Subscribe(buffer)
	b.Runner.Go0("events", func(ctx context.Context) {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				fn(ctx, ev)
			}
		}
	})
	return nil
}
