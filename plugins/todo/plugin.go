// Package todo is a room-scoped reminder plugin: tasks are stored per chat,
// and a recurring job posts the open tasks back to their rooms at configured
// hours.
package todo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"remindbot/internal/core"
	"remindbot/internal/settings"
)

func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Name() string { return "todo" }

func (p *Plugin) Init(ctx context.Context, deps core.PluginDeps) error {
	p.InitBase(deps, p.Name())
	p.resolver = settings.NewResolver(Config{}.source(), definitions()...)
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.StartBase(ctx)

	p.mu.Lock()
	p.started = true
	p.mu.Unlock()

	tz, err := p.resolver.Resolve(ctx, settingTimeZone)
	if err != nil {
		return err
	}
	if hour, err := settings.CurrentHour(time.Now(), tz); err != nil {
		p.Log.Warn("invalid notification time zone", slog.String("tz", tz), slog.Any("err", err))
	} else {
		p.Log.Info("current hour", slog.String("hour", hour), slog.String("tz", tz))
	}

	return p.registerNotifyJob(ctx)
}

func (p *Plugin) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.started = false
	p.mu.Unlock()

	// cancelling an already-unregistered job is a no-op
	p.Unschedule(notifyJobName)
	return p.StopBase(ctx)
}

// OnConfigChange applies the new raw block and re-registers the notify job
// unconditionally: the interval may be unchanged while the hours or the time
// zone moved, and re-registration by name is cheap.
func (p *Plugin) OnConfigChange(ctx context.Context, raw json.RawMessage) error {
	cfg, err := core.DecodePluginConfig[Config](raw)
	if err != nil {
		return fmt.Errorf("todo config: %w", err)
	}

	p.mu.Lock()
	p.cfg = cfg
	started := p.started
	p.mu.Unlock()

	p.resolver.SetSource(cfg.source())

	if !started {
		return nil
	}
	return p.registerNotifyJob(ctx)
}

func (p *Plugin) registerNotifyJob(ctx context.Context) error {
	interval, err := p.resolver.Resolve(ctx, settingNotifyInterval)
	if err != nil {
		return err
	}
	if _, err := p.Schedule(notifyJobName, interval, time.Minute, p.runNotify); err != nil {
		return fmt.Errorf("register notify job: %w", err)
	}
	p.Log.Info("notify job registered", slog.String("interval", interval))
	return nil
}
