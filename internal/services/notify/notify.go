// Package notify delivers transient, user-facing notices through the chat
// adapter. Transient notices are sent silently and are not part of the room's
// durable conversation flow.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"remindbot/internal/kit"
)

var ErrStopped = errors.New("notify: service stopped")

type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

type Config struct {
	// RatePerSecond caps outgoing sends. Zero disables the limiter.
	RatePerSecond float64
	Burst         int
	SendTimeout   time.Duration
}

type Service struct {
	sender  Sender
	limiter *rate.Limiter
	timeout time.Duration
	log     *slog.Logger

	stopped chan struct{}
}

func New(sender Sender, cfg Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	var lim *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		sender:  sender,
		limiter: lim,
		timeout: timeout,
		log:     log.With("component", "notify"),
		stopped: make(chan struct{}),
	}
}

// Notify sends one transient notice. Delivery is best effort: the caller gets
// the error but the service stays usable.
func (s *Service) Notify(ctx context.Context, n kit.Notification) error {
	select {
	case <-s.stopped:
		return ErrStopped
	default:
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	// Copy the options so the caller's struct is left untouched.
	var opt kit.SendOptions
	if n.Options != nil {
		opt = *n.Options
	}
	opt.Silent = true

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.sender.SendText(sctx, n.Target, n.Text, &opt)
	if err != nil {
		s.log.Warn("send failed", "chat_id", n.Target.ChatID, "err", err)
	}
	return err
}

func (s *Service) Stop() {
	select {
	case <-s.stopped:
	default:
		close(s.stopped)
	}
}
