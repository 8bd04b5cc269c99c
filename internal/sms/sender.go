// README: SMS send capability backed by the Twilio Messages API.
package sms

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

var ErrNotConfigured = errors.New("sms provider not configured")

type SendRequest struct {
	To                string
	Body              string
	StatusCallbackURL string
}

// Sender returns the provider message id on success.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (string, error)
}

// ProviderError carries the provider's error code for storage on the message.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
}

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

type Twilio struct {
	api  messageCreator
	from string
}

func NewTwilio(accountSID, authToken, from string) *Twilio {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Twilio{api: client.Api, from: from}
}

func (t *Twilio) Send(ctx context.Context, req SendRequest) (string, error) {
	if t.from == "" {
		return "", ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(req.To)
	params.SetFrom(t.from)
	params.SetBody(req.Body)
	if req.StatusCallbackURL != "" {
		params.SetStatusCallback(req.StatusCallbackURL)
	}

	resp, err := t.api.CreateMessage(params)
	if err != nil {
		var restErr *twilioclient.TwilioRestError
		if errors.As(err, &restErr) {
			return "", &ProviderError{Code: strconv.Itoa(restErr.Code), Message: restErr.Message}
		}
		return "", fmt.Errorf("twilio create message: %w", err)
	}
	if resp.Sid == nil || *resp.Sid == "" {
		return "", errors.New("twilio returned no message sid")
	}
	return *resp.Sid, nil
}

// Disabled is used when no provider credentials are configured.
type Disabled struct{}

func (Disabled) Send(context.Context, SendRequest) (string, error) {
	return "", ErrNotConfigured
}
