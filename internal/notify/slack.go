// README: Slack incoming-webhook notifier.
package notify

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/slack-go/slack"

	"driverbuddy/internal/logger"
	"driverbuddy/internal/metrics"
)

const slackTimeout = 5 * time.Second

type Slack struct {
	webhookURL string
	client     *http.Client
	logger     *slog.Logger
}

func NewSlack(webhookURL string, l *slog.Logger) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: slackTimeout},
		logger:     logger.Or(l).With("component", "notify", "channel", "slack"),
	}
}

func (s *Slack) Notify(ctx context.Context, text string) bool {
	if s.webhookURL == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, slackTimeout)
	defer cancel()

	err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.client, &slack.WebhookMessage{Text: text})
	metrics.NotificationsTotal.WithLabelValues("slack", metrics.Outcome(err == nil)).Inc()
	if err != nil {
		s.logger.WarnContext(ctx, "slack notification failed", logger.Err(err))
		return false
	}
	return true
}
