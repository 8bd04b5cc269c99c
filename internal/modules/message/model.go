// README: SMS message record and the closed status vocabularies used for delivery tracking.
package message

import (
	"time"

	"driverbuddy/internal/types"
)

type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusSent        Status = "sent"
	StatusDelivered   Status = "delivered"
	StatusFailed      Status = "failed"
	StatusUndelivered Status = "undelivered"
	StatusReceived    Status = "received"
)

type Message struct {
	ID                types.ID
	EventID           *types.ID
	DriverID          *types.ID
	Direction         Direction
	Body              string
	ProviderMessageID string
	FromPhone         string
	ToPhone           string
	Status            Status
	ErrorCode         string
	ErrorMessage      string
	IdempotencyKey    string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (m *Message) HasProviderID() bool {
	return m.ProviderMessageID != ""
}

// StopAlertKey identifies the single outbound alert for a stop event, whether it
// went out during ingestion or through the SMS queue.
func StopAlertKey(eventID types.ID) string {
	return "event:" + string(eventID) + ":stop_alert"
}

func InboundKey(providerID string) string {
	return "inbound:" + providerID
}
