// README: Validates the X-Twilio-Signature header on provider webhooks.
package sms

import "github.com/twilio/twilio-go/client"

type SignatureValidator struct {
	validator client.RequestValidator
}

func NewSignatureValidator(authToken string) *SignatureValidator {
	return &SignatureValidator{validator: client.NewRequestValidator(authToken)}
}

// Valid checks signature against the full public URL and the posted form fields.
func (v *SignatureValidator) Valid(url string, params map[string]string, signature string) bool {
	if signature == "" {
		return false
	}
	return v.validator.Validate(url, params, signature)
}
