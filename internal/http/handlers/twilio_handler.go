// README: Twilio webhooks for inbound driver replies and delivery status callbacks.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"driverbuddy/internal/logger"
	"driverbuddy/internal/modules/message"
)

type MessageWebhooks interface {
	ReceiveInbound(ctx context.Context, cmd message.InboundCommand) (*message.Message, error)
	Reconcile(ctx context.Context, cb message.StatusCallback) (message.Outcome, error)
}

type TwilioHandler struct {
	messages MessageWebhooks
	logger   *slog.Logger
}

func NewTwilioHandler(messages MessageWebhooks, l *slog.Logger) *TwilioHandler {
	return &TwilioHandler{messages: messages, logger: logger.Or(l).With("component", "twilio_webhook")}
}

func (h *TwilioHandler) Inbound(c *gin.Context) {
	m, err := h.messages.ReceiveInbound(c.Request.Context(), message.InboundCommand{
		From:              c.PostForm("From"),
		To:                c.PostForm("To"),
		Body:              c.PostForm("Body"),
		ProviderMessageID: c.PostForm("MessageSid"),
	})
	switch {
	case errors.Is(err, message.ErrDriverNotFound):
		h.logger.InfoContext(c.Request.Context(), "inbound sms from unknown number", "from", c.PostForm("From"))
		writeJSON(c, http.StatusOK, webhookResponse{Status: "error", Message: "Driver not found"})
	case errors.Is(err, message.ErrBadRequest):
		writeJSON(c, http.StatusOK, webhookResponse{Status: "error", Message: "From missing"})
	case err != nil:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "error processing inbound message")
	default:
		writeJSON(c, http.StatusOK, webhookResponse{Status: "ok", MessageID: &m.ID})
	}
}

func (h *TwilioHandler) Status(c *gin.Context) {
	sid := c.PostForm("MessageSid")
	if sid == "" {
		writeJSON(c, http.StatusOK, webhookResponse{Status: "error", Message: "MessageSid missing"})
		return
	}
	outcome, err := h.messages.Reconcile(c.Request.Context(), message.StatusCallback{
		ProviderMessageID: sid,
		Status:            c.PostForm("MessageStatus"),
		ErrorCode:         c.PostForm("ErrorCode"),
		ErrorMessage:      c.PostForm("ErrorMessage"),
	})
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "status callback failed", "provider_message_id", sid, logger.Err(err))
		writeJSON(c, http.StatusOK, webhookResponse{Status: "error", Message: "status update failed"})
		return
	}
	resp := webhookResponse{Status: "ok"}
	if outcome == message.OutcomeUnmatched {
		resp.Message = "Message not found in database"
	}
	writeJSON(c, http.StatusOK, resp)
}
