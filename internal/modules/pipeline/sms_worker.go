// README: SMS queue consumer; sends a pending message once and records the provider outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"driverbuddy/internal/logger"
	"driverbuddy/internal/metrics"
	"driverbuddy/internal/modules/message"
	"driverbuddy/internal/queue"
	"driverbuddy/internal/sms"
	"driverbuddy/internal/types"
)

type MessageSendStore interface {
	Get(ctx context.Context, id types.ID) (*message.Message, error)
	MarkSent(ctx context.Context, id types.ID, providerID string) (bool, error)
	MarkFailed(ctx context.Context, id types.ID, errorCode, errorMessage string) (bool, error)
}

// Claimer hands out short-lived exclusive claims on a key.
type Claimer interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

var errClaimHeld = errors.New("send already claimed by another worker")

type SMSWorkerDeps struct {
	Messages MessageSendStore
	Claims   Claimer
	Sender   sms.Sender
	// StatusCallbackURL is passed to the provider with every send.
	StatusCallbackURL string
	Logger            *slog.Logger
}

type SMSWorker struct {
	deps   SMSWorkerDeps
	logger *slog.Logger
}

func NewSMSWorker(deps SMSWorkerDeps) *SMSWorker {
	if deps.Sender == nil {
		deps.Sender = sms.Disabled{}
	}
	return &SMSWorker{deps: deps, logger: logger.Or(deps.Logger).With("component", "sms_worker")}
}

func SendClaimKey(id types.ID) string {
	return "sms:send:" + string(id)
}

// Handle sends the job's message unless it already left the pending state.
// A failed send is recorded and acknowledged; it is not retried here.
func (w *SMSWorker) Handle(ctx context.Context, msg queue.Message) error {
	job, err := queue.Decode[queue.SMSJob](msg.Body)
	if err != nil {
		return Drop("malformed sms job: %v", err)
	}
	log := w.logger.With("message_id", string(job.MessageID))

	key := SendClaimKey(job.MessageID)
	if w.deps.Claims != nil {
		ok, err := w.deps.Claims.Acquire(ctx, key)
		if err != nil {
			return fmt.Errorf("acquire send claim: %w", err)
		}
		if !ok {
			return errClaimHeld
		}
	}

	m, err := w.deps.Messages.Get(ctx, job.MessageID)
	if err != nil {
		w.release(ctx, log, key)
		if errors.Is(err, message.ErrNotFound) {
			return Drop("message %s not found", job.MessageID)
		}
		return err
	}
	if m.HasProviderID() || m.Status != message.StatusPending {
		w.release(ctx, log, key)
		log.InfoContext(ctx, "message already processed", "status", string(m.Status))
		return nil
	}

	providerID, sendErr := w.deps.Sender.Send(ctx, sms.SendRequest{
		To:                m.ToPhone,
		Body:              m.Body,
		StatusCallbackURL: w.deps.StatusCallbackURL,
	})
	metrics.SMSSendsTotal.WithLabelValues("queued", metrics.Outcome(sendErr == nil)).Inc()

	if sendErr != nil {
		code, text := "", sendErr.Error()
		var perr *sms.ProviderError
		if errors.As(sendErr, &perr) {
			code, text = perr.Code, perr.Message
		}
		if _, err := w.deps.Messages.MarkFailed(ctx, m.ID, code, text); err != nil {
			return fmt.Errorf("record send failure: %w", err)
		}
		log.WarnContext(ctx, "sms send failed", "error_code", code, logger.Err(sendErr))
		return nil
	}

	// The provider accepted the message; a recording failure must not lead to a resend.
	if _, err := w.deps.Messages.MarkSent(ctx, m.ID, providerID); err != nil {
		log.ErrorContext(ctx, "sms sent but not recorded", "provider_message_id", providerID, logger.Err(err))
		return nil
	}
	log.InfoContext(ctx, "sms sent", "provider_message_id", providerID)
	return nil
}

func (w *SMSWorker) release(ctx context.Context, log *slog.Logger, key string) {
	if w.deps.Claims == nil {
		return
	}
	if err := w.deps.Claims.Release(ctx, key); err != nil {
		log.WarnContext(ctx, "release send claim failed", logger.Err(err))
	}
}
