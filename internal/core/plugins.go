package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"remindbot/internal/kit"
	"remindbot/internal/storage"
)

type Plugin interface {
	Name() string
	Init(ctx context.Context, deps PluginDeps) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Commands() []Command
}

// ConfigurablePlugin receives its raw config block on start and on every
// effective reload.
type ConfigurablePlugin interface {
	OnConfigChange(ctx context.Context, raw json.RawMessage) error
}

type PluginDeps struct {
	Logger   *slog.Logger
	Adapter  kit.Adapter
	Config   *ConfigManager
	Services *Services
	Store    storage.Store
}

type PluginManager struct {
	mu sync.Mutex

	log  *slog.Logger
	cfgm *ConfigManager
	deps PluginDeps
	reg  map[string]Plugin
	run  map[string]bool
	// last config blob hash per running plugin, used to skip redundant
	// OnConfigChange calls
	lastRawHash map[string]uint64

	// Long-lived base context for plugin contexts. The app ctx passed to
	// StartAll/OnConfigUpdate may be call-scoped, so it is only bridged:
	// when it is done, baseCancel fires.
	baseCtx    context.Context
	baseCancel context.CancelFunc
	bound      bool

	// per-plugin run context, cancelled on disable/stop
	pctx    map[string]context.Context
	pcancel map[string]context.CancelFunc

	cmdm *CommandManager
}

func NewPluginManager(log *slog.Logger, cfgm *ConfigManager, deps PluginDeps, cmdm *CommandManager) *PluginManager {
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &PluginManager{
		log:         log,
		cfgm:        cfgm,
		deps:        deps,
		reg:         map[string]Plugin{},
		run:         map[string]bool{},
		lastRawHash: map[string]uint64{},
		baseCtx:     baseCtx,
		baseCancel:  baseCancel,
		pctx:        map[string]context.Context{},
		pcancel:     map[string]context.CancelFunc{},
		cmdm:        cmdm,
	}
}

// BindContext bridges appCtx cancellation into the plugin base context. First
// non-nil bind wins.
func (pm *PluginManager) BindContext(appCtx context.Context) {
	pm.mu.Lock()
	if pm.bound || appCtx == nil {
		pm.mu.Unlock()
		return
	}
	pm.bound = true
	baseCancel := pm.baseCancel
	pm.mu.Unlock()

	go func() {
		<-appCtx.Done()
		baseCancel()
	}()
}

func (pm *PluginManager) Register(p ...Plugin) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, pl := range p {
		pm.reg[pl.Name()] = pl
	}
	pm.refreshRegistryLocked(pm.cfgm.Get())
}

func (pm *PluginManager) StartAll(ctx context.Context) error {
	pm.BindContext(ctx)
	return pm.reconcile(pm.cfgm.Get())
}

func (pm *PluginManager) StopAll(ctx context.Context, reason StopReason) {
	pm.mu.Lock()
	names := make([]string, 0, len(pm.reg))
	for name := range pm.reg {
		names = append(names, name)
	}
	pm.mu.Unlock()

	for _, name := range names {
		pm.stopOne(ctx, name, reason)
	}

	pm.mu.Lock()
	pm.refreshRegistryLocked(pm.cfgm.Get())
	pm.mu.Unlock()
}

func (pm *PluginManager) OnConfigUpdate(ctx context.Context, cfg *Config) {
	pm.BindContext(ctx)
	_ = pm.reconcile(cfg)
}

func (pm *PluginManager) stopOne(stopCtx context.Context, name string, reason StopReason) {
	pm.mu.Lock()
	p := pm.reg[name]
	running := pm.run[name]
	cancel := pm.pcancel[name]
	pm.mu.Unlock()

	if !running || p == nil {
		return
	}

	pm.log.Debug("stopping plugin", slog.String("plugin", name), slog.String("reason", string(reason)))

	// cancel plugin context first so background loops unwind promptly
	if cancel != nil {
		cancel()
	}

	// bound Stop so a misbehaving plugin cannot stall shutdown
	done := make(chan struct{})
	go func() {
		_ = pm.safeCall("plugin.stop."+name, func() error { return p.Stop(stopCtx) })
		close(done)
	}()
	select {
	case <-done:
	case <-stopCtx.Done():
		pm.log.Warn("plugin stop timeout (continuing)", slog.String("plugin", name), slog.String("err", stopCtx.Err().Error()))
	}

	pm.mu.Lock()
	pm.run[name] = false
	delete(pm.pctx, name)
	delete(pm.pcancel, name)
	delete(pm.lastRawHash, name)
	pm.mu.Unlock()

	pm.log.Info("plugin stopped", slog.String("plugin", name), slog.String("reason", string(reason)))
}

func (pm *PluginManager) reconcile(cfg *Config) error {
	type op struct {
		name    string
		p       Plugin
		raw     PluginConfigRaw
		enabled bool
		run     bool
	}
	pm.mu.Lock()
	ops := make([]op, 0, len(pm.reg))
	for name, p := range pm.reg {
		raw, ok := cfg.Plugins[name]
		enabled := ok && raw.Enabled
		ops = append(ops, op{name: name, p: p, raw: raw, enabled: enabled, run: pm.run[name]})
	}
	pm.mu.Unlock()

	const callTimeout = 10 * time.Second

	for _, o := range ops {
		switch {
		case o.enabled && !o.run:
			pctx, cancel := context.WithCancel(pm.baseCtx)

			ictx, icancel := context.WithTimeout(pctx, callTimeout)
			err := pm.safeCall("plugin.init."+o.name, func() error { return o.p.Init(ictx, pm.deps) })
			icancel()
			if err != nil {
				pm.log.Error("plugin init failed", slog.String("plugin", o.name), slog.Any("err", err))
				cancel()
				continue
			}

			// apply config before Start
			if cp, ok := o.p.(ConfigurablePlugin); ok {
				cctx, ccancel := context.WithTimeout(pctx, callTimeout)
				_ = pm.safeCall("plugin.config."+o.name, func() error { return cp.OnConfigChange(cctx, o.raw.Config) })
				ccancel()
			}

			if err := pm.startWithTimeout(o.name, o.p, pctx, cancel, callTimeout); err != nil {
				pm.log.Error("plugin start failed", slog.String("plugin", o.name), slog.Any("err", err))
				cancel()
				continue
			}

			pm.mu.Lock()
			pm.run[o.name] = true
			pm.pctx[o.name] = pctx
			pm.pcancel[o.name] = cancel
			pm.lastRawHash[o.name] = canonicalHashJSON(o.raw.Config)
			pm.mu.Unlock()

			pm.log.Info("plugin started", slog.String("plugin", o.name))

		case !o.enabled && o.run:
			stopCtx, cancel := context.WithTimeout(pm.baseCtx, callTimeout)
			pm.stopOne(stopCtx, o.name, StopPluginDisable)
			cancel()

		case o.enabled && o.run:
			cp, ok := o.p.(ConfigurablePlugin)
			if !ok {
				break
			}
			newHash := canonicalHashJSON(o.raw.Config)
			pm.mu.Lock()
			oldHash := pm.lastRawHash[o.name]
			pctx := pm.pctx[o.name]
			pm.mu.Unlock()
			if newHash == oldHash {
				pm.log.Debug("plugin config unchanged; skipping", slog.String("plugin", o.name))
				break
			}
			pm.mu.Lock()
			pm.lastRawHash[o.name] = newHash
			pm.mu.Unlock()
			if pctx == nil {
				pctx = pm.baseCtx
			}
			cctx, ccancel := context.WithTimeout(pctx, callTimeout)
			if err := pm.safeCall("plugin.config."+o.name, func() error { return cp.OnConfigChange(cctx, o.raw.Config) }); err != nil {
				pm.log.Warn("plugin config apply failed", slog.String("plugin", o.name), slog.Any("err", err))
			}
			ccancel()
		}
	}

	pm.mu.Lock()
	pm.refreshRegistryLocked(cfg)
	pm.mu.Unlock()
	return nil
}

// startWithTimeout calls Start(pctx) but enforces a deadline. On timeout the
// plugin context is cancelled and Start gets a short grace to return.
func (pm *PluginManager) startWithTimeout(name string, p Plugin, pctx context.Context, cancel context.CancelFunc, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- pm.safeCall("plugin.start."+name, func() error { return p.Start(pctx) })
	}()

	if timeout <= 0 {
		return <-done
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case err := <-done:
		return err
	case <-t.C:
		cancel()
		grace := time.NewTimer(2 * time.Second)
		defer grace.Stop()
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("start timeout (%s): %w", timeout, err)
			}
			return fmt.Errorf("start timeout (%s)", timeout)
		case <-grace.C:
			return fmt.Errorf("start timeout (%s): start did not return after cancel", timeout)
		}
	}
}

func (pm *PluginManager) safeCall(label string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pm.log.Error("panic in plugin call",
				slog.String("call", label),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic in %s: %v", label, r)
		}
	}()
	return fn()
}

func (pm *PluginManager) refreshRegistryLocked(cfg *Config) {
	cmds := []Command{}
	for name, p := range pm.reg {
		if !pm.run[name] {
			continue
		}
		raw, ok := cfg.Plugins[name]
		if !ok || !raw.Enabled {
			continue
		}
		for _, c := range p.Commands() {
			c.PluginName = name
			cmds = append(cmds, c)
		}
	}
	pm.cmdm.SetRegistry(cmds)
}
