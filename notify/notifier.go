// Package notify delivers human-readable alerts. A Notifier fans a message
// out to every registered Sender, throttled so a burst of closes cannot
// exhaust the push provider's quota.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

type Notifier struct {
	senders []Sender
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewNotifier allows perMinute messages per minute with a burst of the same
// size. perMinute <= 0 disables throttling.
func NewNotifier(senders []Sender, perMinute int, log zerolog.Logger) *Notifier {
	lim := rate.NewLimiter(rate.Inf, 0)
	if perMinute > 0 {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
	return &Notifier{
		senders: senders,
		limiter: lim,
		log:     log.With().Str("component", "notifier").Logger(),
	}
}

// Notify waits for the rate limiter and sends to all senders. A failing
// sender does not stop delivery to the others; failures are combined.
func (n *Notifier) Notify(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notify: %w", err)
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.log.Error().Err(err).Str("sender", s.Name()).Msg("sender failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.log.Debug().Str("sender", s.Name()).Str("title", title).Msg("notification sent")
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// LogSender writes notifications to the log. It is the fallback when no
// push channel is configured.
type LogSender struct {
	log zerolog.Logger
}

func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (l *LogSender) Send(_ context.Context, title, message string) error {
	l.log.Info().Str("title", title).Msg(message)
	return nil
}

func (l *LogSender) Name() string { return "log" }
