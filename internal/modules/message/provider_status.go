// README: Provider delivery status codes and their mapping onto message statuses.
package message

import "strings"

// ProviderStatus is the closed set of status codes the SMS provider reports.
type ProviderStatus int

const (
	ProviderUnknown ProviderStatus = iota
	ProviderQueued
	ProviderSending
	ProviderSent
	ProviderDelivered
	ProviderFailed
	ProviderUndelivered
	ProviderReceiving
	ProviderReceived
)

// ParseProviderStatus is case-insensitive and ignores surrounding whitespace.
func ParseProviderStatus(code string) ProviderStatus {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "queued":
		return ProviderQueued
	case "sending":
		return ProviderSending
	case "sent":
		return ProviderSent
	case "delivered":
		return ProviderDelivered
	case "failed":
		return ProviderFailed
	case "undelivered":
		return ProviderUndelivered
	case "receiving":
		return ProviderReceiving
	case "received":
		return ProviderReceived
	default:
		return ProviderUnknown
	}
}

// Internal maps the provider code onto a message status. ok is false for unknown codes.
func (p ProviderStatus) Internal() (Status, bool) {
	switch p {
	case ProviderQueued, ProviderSending, ProviderReceiving:
		return StatusPending, true
	case ProviderSent:
		return StatusSent, true
	case ProviderDelivered:
		return StatusDelivered, true
	case ProviderFailed:
		return StatusFailed, true
	case ProviderUndelivered:
		return StatusUndelivered, true
	case ProviderReceived:
		return StatusReceived, true
	default:
		return "", false
	}
}

// IsFailure reports codes that may be false negatives on virtual-to-virtual routes.
func (p ProviderStatus) IsFailure() bool {
	return p == ProviderFailed || p == ProviderUndelivered
}

func (p ProviderStatus) String() string {
	switch p {
	case ProviderQueued:
		return "queued"
	case ProviderSending:
		return "sending"
	case ProviderSent:
		return "sent"
	case ProviderDelivered:
		return "delivered"
	case ProviderFailed:
		return "failed"
	case ProviderUndelivered:
		return "undelivered"
	case ProviderReceiving:
		return "receiving"
	case ProviderReceived:
		return "received"
	default:
		return "unknown"
	}
}
