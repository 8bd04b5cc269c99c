// README: JSON job payloads carried on the event and SMS queues.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"driverbuddy/internal/types"
)

// EventJob announces a newly detected stop.
type EventJob struct {
	EventID   types.ID        `json:"event_id"`
	DriverID  *types.ID       `json:"driver_id,omitempty"`
	VehicleID string          `json:"vehicle_id"`
	Latitude  decimal.Decimal `json:"latitude"`
	Longitude decimal.Decimal `json:"longitude"`
	Timestamp time.Time       `json:"timestamp"`
}

func (j EventJob) Validate() error {
	if j.EventID == "" || j.VehicleID == "" {
		return fmt.Errorf("event job missing event_id or vehicle_id")
	}
	return nil
}

// SMSJob asks the SMS worker to deliver a stored outbound message.
type SMSJob struct {
	MessageID types.ID  `json:"message_id"`
	ToPhone   string    `json:"to_phone"`
	Body      string    `json:"body"`
	EventID   *types.ID `json:"event_id,omitempty"`
}

func (j SMSJob) Validate() error {
	if j.MessageID == "" || j.ToPhone == "" {
		return fmt.Errorf("sms job missing message_id or to_phone")
	}
	return nil
}

type validator interface {
	Validate() error
}

// SendJSON encodes job and sends it to q.
func SendJSON(ctx context.Context, q Queue, job any) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return q.Send(ctx, body)
}

// Decode unmarshals a job body and validates it.
func Decode[T validator](body []byte) (T, error) {
	var job T
	if err := json.Unmarshal(body, &job); err != nil {
		return job, fmt.Errorf("decode job: %w", err)
	}
	if err := job.Validate(); err != nil {
		return job, err
	}
	return job, nil
}
