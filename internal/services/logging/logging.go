package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

func Stdout() io.Writer { return os.Stdout }

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

type Service struct {
	atomicH *AtomicHandler
	logger  *slog.Logger

	mu   sync.Mutex
	file *os.File
}

func New(cfg Config) (*Service, *slog.Logger) {
	ah := NewAtomicHandler(NewPrettyHandler(Stdout(), slog.LevelInfo))
	svc := &Service{
		atomicH: ah,
		logger:  slog.New(ah),
	}
	svc.Apply(cfg)
	return svc, svc.logger
}

func (s *Service) Logger() *slog.Logger { return s.logger }

// Apply swaps handlers according to cfg. The returned *slog.Logger from New
// stays valid across Apply calls.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	level := parseLevel(cfg.Level, slog.LevelInfo)

	var handlers []slog.Handler
	if cfg.Console {
		handlers = append(handlers, NewPrettyHandler(Stdout(), level))
	}

	// file handler (close old safely)
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if cfg.File.Enabled && strings.TrimSpace(cfg.File.Path) != "" {
		f, err := os.OpenFile(cfg.File.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			s.file = f
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		}
	}

	if len(handlers) == 0 {
		handlers = append(handlers, NewPrettyHandler(Stdout(), level))
	}
	s.atomicH.Swap(Fanout(handlers...))
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

func parseLevel(s string, def slog.Level) slog.Level {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return def
	}
}

// ---- Atomic handler (hot swap without replacing slog.Logger) ----

type AtomicHandler struct {
	mu sync.RWMutex
	h  slog.Handler
}

func NewAtomicHandler(h slog.Handler) *AtomicHandler { return &AtomicHandler{h: h} }

func (a *AtomicHandler) Swap(h slog.Handler) {
	a.mu.Lock()
	a.h = h
	a.mu.Unlock()
}

func (a *AtomicHandler) cur() slog.Handler {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.h
}

func (a *AtomicHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return a.cur().Enabled(ctx, lvl)
}

func (a *AtomicHandler) Handle(ctx context.Context, r slog.Record) error {
	return a.cur().Handle(ctx, r)
}

func (a *AtomicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &withAttrsHandler{base: a, attrs: attrs}
}

func (a *AtomicHandler) WithGroup(name string) slog.Handler {
	return &withGroupHandler{base: a, group: name}
}

type withAttrsHandler struct {
	base  slog.Handler
	attrs []slog.Attr
}

func (w *withAttrsHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return w.base.Enabled(ctx, lvl)
}

func (w *withAttrsHandler) Handle(ctx context.Context, r slog.Record) error {
	r = r.Clone()
	r.AddAttrs(w.attrs...)
	return w.base.Handle(ctx, r)
}

func (w *withAttrsHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr(nil), w.attrs...), attrs...)
	return &withAttrsHandler{base: w.base, attrs: merged}
}

func (w *withAttrsHandler) WithGroup(name string) slog.Handler {
	return &withGroupHandler{base: w, group: name}
}

type withGroupHandler struct {
	base  slog.Handler
	group string
}

func (w *withGroupHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return w.base.Enabled(ctx, lvl)
}

func (w *withGroupHandler) Handle(ctx context.Context, r slog.Record) error {
	return w.base.Handle(ctx, r)
}

func (w *withGroupHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &withAttrsHandler{base: w, attrs: attrs}
}

func (w *withGroupHandler) WithGroup(name string) slog.Handler {
	return &withGroupHandler{base: w, group: name}
}

// ---- Fanout handler ----

type fanoutHandler struct {
	hs []slog.Handler
}

func Fanout(hs ...slog.Handler) slog.Handler { return &fanoutHandler{hs: hs} }

func (f *fanoutHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	for _, h := range f.hs {
		if h.Enabled(ctx, lvl) {
			return true
		}
	}
	return false
}

func (f *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range f.hs {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(f.hs))
	for i, h := range f.hs {
		hs[i] = h.WithAttrs(attrs)
	}
	return &fanoutHandler{hs: hs}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(f.hs))
	for i, h := range f.hs {
		hs[i] = h.WithGroup(name)
	}
	return &fanoutHandler{hs: hs}
}
