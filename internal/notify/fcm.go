// README: Firebase Cloud Messaging notifier publishing alerts to an operator topic.
package notify

import (
	"context"
	"log/slog"
	"strings"

	"firebase.google.com/go/v4/messaging"

	"driverbuddy/internal/logger"
	"driverbuddy/internal/metrics"
)

const fcmTitle = "DriverBuddy"

// MessageSender is satisfied by *messaging.Client.
type MessageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type FCM struct {
	client MessageSender
	topic  string
	logger *slog.Logger
}

func NewFCM(client MessageSender, topic string, l *slog.Logger) *FCM {
	return &FCM{
		client: client,
		topic:  topic,
		logger: logger.Or(l).With("component", "notify", "channel", "fcm"),
	}
}

func (f *FCM) Notify(ctx context.Context, text string) bool {
	title, body := fcmTitle, text
	if first, rest, ok := strings.Cut(text, "\n"); ok {
		title, body = first, rest
	}
	id, err := f.client.Send(ctx, &messaging.Message{
		Topic: f.topic,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: map[string]string{"text": text},
	})
	metrics.NotificationsTotal.WithLabelValues("fcm", metrics.Outcome(err == nil)).Inc()
	if err != nil {
		f.logger.WarnContext(ctx, "fcm notification failed", logger.Err(err))
		return false
	}
	f.logger.DebugContext(ctx, "fcm notification sent", "fcm_message_id", id)
	return true
}
