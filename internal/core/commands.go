package core

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"remindbot/internal/kit"
	"remindbot/internal/storage"
)

type Command struct {
	// Route is the command word without the leading slash, e.g. "todo".
	Route       string
	Aliases     []string
	Description string
	Usage       string

	PluginName string
	Timeout    time.Duration // optional per-command override
	Handle     HandlerFunc
}

type Request struct {
	Update   kit.Update
	Chat     kit.ChatTarget
	FromID   int64
	FromName string
	Command  string
	// Args are the whitespace-separated tokens after the command word.
	Args  []string
	ReqID string

	Adapter  kit.Adapter
	Config   *Config
	Logger   *slog.Logger
	Services *Services
}

type Services struct {
	Scheduler SchedulerPort
	Notifier  NotifierPort
	Store     storage.Store
}

type SchedulerPort interface {
	Enabled() bool
	AddSchedule(name, schedule string, timeout time.Duration, job func(ctx context.Context) error) (string, error)
	AddCron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) (string, error)
	AddInterval(name string, every time.Duration, timeout time.Duration, job func(ctx context.Context) error) (string, error)
	Remove(name string) bool
}

type NotifierPort interface {
	Notify(ctx context.Context, n kit.Notification) error
}

type CommandManager struct {
	mu sync.RWMutex

	routes map[string]Command // route or alias -> command

	log     *slog.Logger
	adapter kit.Adapter
	cfgm    *ConfigManager
	serv    *Services

	jobs chan func()
}

func NewCommandManager(log *slog.Logger, adapter kit.Adapter, cfgm *ConfigManager, serv *Services) *CommandManager {
	return &CommandManager{
		routes:  map[string]Command{},
		log:     log,
		adapter: adapter,
		cfgm:    cfgm,
		serv:    serv,
		jobs:    make(chan func(), 256),
	}
}

func (m *CommandManager) SetRegistry(cmds []Command) {
	routes := map[string]Command{}
	for _, c := range cmds {
		route := strings.TrimSpace(c.Route)
		if route == "" || strings.Contains(route, " ") || c.Handle == nil {
			continue
		}
		routes[route] = c
		for _, a := range c.Aliases {
			a = strings.TrimSpace(a)
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			routes[a] = c
		}
	}

	m.mu.Lock()
	m.routes = routes
	m.mu.Unlock()
}

func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	if m.log != nil {
		m.log.Info("command dispatcher started", slog.Int("workers", workers), slog.Int("job_queue_cap", cap(m.jobs)))
	}

	var (
		wg        sync.WaitGroup
		closeOnce sync.Once
	)
	closeJobs := func() {
		closeOnce.Do(func() { close(m.jobs) })
	}

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil && m.log != nil {
					m.log.Error("panic in command worker", slog.Int("worker", idx), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
				}
			}()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-m.jobs:
					if !ok {
						return
					}
					if job == nil {
						continue
					}
					job()
				}
			}
		}()
	}

	defer func() {
		closeJobs()
		wg.Wait()
		if m.log != nil {
			m.log.Info("command dispatcher stopped")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.routeMessage(ctx, up)
		}
	}
}

func (m *CommandManager) routeMessage(root context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return
	}
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	args := parts[1:]

	m.mu.RLock()
	cmd, ok := m.routes[word]
	m.mu.RUnlock()
	if !ok {
		return
	}

	rid := newReqID()
	reqLog := m.log.With(
		slog.String("rid", rid),
		slog.Int64("chat_id", msg.ChatID),
		slog.Int64("from_id", msg.FromID),
		slog.String("cmd", cmd.Route),
	)

	req := &Request{
		Update:   up,
		Chat:     kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:   msg.FromID,
		FromName: msg.FromName,
		Command:  cmd.Route,
		Args:     args,
		ReqID:    rid,
		Adapter:  m.adapter,
		Config:   m.cfgm.Get(),
		Logger:   reqLog,
		Services: m.serv,
	}

	final := Chain(
		cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(cmd.Timeout),
	)

	select {
	case m.jobs <- func() { _ = final(root, req) }:
	default:
		_, _ = m.adapter.SendText(root, req.Chat, "busy, try again", nil)
	}
}
