package plugin

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	logx "vaxbot/pkg/logx"
)

// Manager owns plugin lifecycle: Init once, Start/Stop in registration order.
// It also collects commands and callbacks into the CommandManager registry.
type Manager struct {
	mu sync.Mutex

	log  logx.Logger
	deps PluginDeps
	cmdm *CommandManager

	order []string
	reg   map[string]Plugin
	run   map[string]bool
	// inited tracks plugins that have passed Init at least once; Init is not
	// re-called on restart cycles to avoid double-initialization leaks.
	inited map[string]bool

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

func NewManager(log logx.Logger, deps PluginDeps, cmdm *CommandManager) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		log:    log,
		deps:   deps,
		cmdm:   cmdm,
		reg:    map[string]Plugin{},
		run:    map[string]bool{},
		inited: map[string]bool{},
	}
}

func (pm *Manager) Register(p Plugin) error {
	if p == nil {
		return fmt.Errorf("nil plugin")
	}
	name := p.Name()
	if name == "" {
		return fmt.Errorf("plugin has empty name")
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if _, dup := pm.reg[name]; dup {
		return fmt.Errorf("duplicate plugin %q", name)
	}
	pm.reg[name] = p
	pm.order = append(pm.order, name)
	return nil
}

// StartAll initializes and starts every registered plugin, then publishes the
// combined command/callback registry. A plugin that fails Init or Start is
// skipped with a warning; the rest keep running.
func (pm *Manager) StartAll(ctx context.Context) {
	pm.mu.Lock()
	if pm.baseCtx == nil {
		pm.baseCtx, pm.baseCancel = context.WithCancel(ctx)
	}
	base := pm.baseCtx
	order := append([]string(nil), pm.order...)
	pm.mu.Unlock()

	for _, name := range order {
		pm.mu.Lock()
		p := pm.reg[name]
		already := pm.run[name]
		needInit := !pm.inited[name]
		pm.mu.Unlock()
		if p == nil || already {
			continue
		}

		if needInit {
			if err := pm.safeInit(base, p); err != nil {
				pm.log.Warn("plugin init failed", logx.String("plugin", name), logx.Any("err", err))
				continue
			}
			pm.mu.Lock()
			pm.inited[name] = true
			pm.mu.Unlock()
		}

		if err := pm.safeStart(base, p); err != nil {
			pm.log.Warn("plugin start failed", logx.String("plugin", name), logx.Any("err", err))
			continue
		}
		pm.mu.Lock()
		pm.run[name] = true
		pm.mu.Unlock()
		pm.log.Info("plugin started", logx.String("plugin", name))
	}

	pm.publishRegistry(ctx)
}

// StopAll stops plugins in reverse registration order.
func (pm *Manager) StopAll(ctx context.Context) {
	pm.mu.Lock()
	order := append([]string(nil), pm.order...)
	cancel := pm.baseCancel
	pm.baseCtx, pm.baseCancel = nil, nil
	pm.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		pm.mu.Lock()
		p := pm.reg[name]
		running := pm.run[name]
		pm.mu.Unlock()
		if p == nil || !running {
			continue
		}
		if err := pm.safeStop(ctx, p); err != nil {
			pm.log.Warn("plugin stop failed", logx.String("plugin", name), logx.Any("err", err))
		}
		pm.mu.Lock()
		pm.run[name] = false
		pm.mu.Unlock()
		pm.log.Info("plugin stopped", logx.String("plugin", name))
	}

	if cancel != nil {
		cancel()
	}
}

// Running reports whether the named plugin is currently started.
func (pm *Manager) Running(name string) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.run[name]
}

func (pm *Manager) publishRegistry(ctx context.Context) {
	pm.mu.Lock()
	order := append([]string(nil), pm.order...)
	pm.mu.Unlock()

	var cmds []Command
	var cbs []CallbackRoute
	for _, name := range order {
		pm.mu.Lock()
		p := pm.reg[name]
		running := pm.run[name]
		pm.mu.Unlock()
		if p == nil || !running {
			continue
		}
		for _, c := range pm.safeCommands(p) {
			c.PluginName = name
			cmds = append(cmds, c)
		}
		if cbp, ok := p.(CallbackProvider); ok {
			for _, r := range pm.safeCallbacks(p, cbp) {
				if r.Plugin == "" {
					r.Plugin = name
				}
				cbs = append(cbs, r)
			}
		}
	}
	pm.cmdm.SetRegistry(ctx, cmds, cbs)
}

func (pm *Manager) safeInit(ctx context.Context, p Plugin) (err error) {
	defer pm.recoverStage(p, "init", &err)
	ictx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return p.Init(ictx, pm.deps)
}

func (pm *Manager) safeStart(ctx context.Context, p Plugin) (err error) {
	defer pm.recoverStage(p, "start", &err)
	return p.Start(ctx)
}

func (pm *Manager) safeStop(ctx context.Context, p Plugin) (err error) {
	defer pm.recoverStage(p, "stop", &err)
	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return p.Stop(sctx)
}

func (pm *Manager) safeCommands(p Plugin) (out []Command) {
	defer func() {
		if r := recover(); r != nil {
			pm.log.Error("panic in plugin Commands()",
				logx.String("plugin", p.Name()), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			out = nil
		}
	}()
	return p.Commands()
}

func (pm *Manager) safeCallbacks(p Plugin, cbp CallbackProvider) (out []CallbackRoute) {
	defer func() {
		if r := recover(); r != nil {
			pm.log.Error("panic in plugin Callbacks()",
				logx.String("plugin", p.Name()), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			out = nil
		}
	}()
	return cbp.Callbacks()
}

func (pm *Manager) recoverStage(p Plugin, stage string, err *error) {
	if r := recover(); r != nil {
		pm.log.Error("panic in plugin "+stage,
			logx.String("plugin", p.Name()), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		*err = fmt.Errorf("panic in %s: %v", stage, r)
	}
}
