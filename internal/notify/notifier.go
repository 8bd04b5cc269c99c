// README: Best-effort operator notifications; failures are logged and reported as false.
package notify

import (
	"context"
	"log/slog"

	"driverbuddy/internal/logger"
	"driverbuddy/internal/metrics"
)

// Notifier delivers a text alert. It never returns an error to the caller.
type Notifier interface {
	Notify(ctx context.Context, text string) bool
}

// Multi fans out to every notifier and succeeds when at least one does.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, text string) bool {
	ok := false
	for _, n := range m {
		if n.Notify(ctx, text) {
			ok = true
		}
	}
	return ok
}

// Log writes alerts to the structured log when no channel is configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(l *slog.Logger) *Log {
	return &Log{logger: logger.Or(l).With("component", "notify")}
}

func (l *Log) Notify(ctx context.Context, text string) bool {
	l.logger.InfoContext(ctx, "notification", "text", text)
	metrics.NotificationsTotal.WithLabelValues("log", metrics.Outcome(true)).Inc()
	return true
}

// Nop drops every alert.
type Nop struct{}

func (Nop) Notify(context.Context, string) bool { return false }
