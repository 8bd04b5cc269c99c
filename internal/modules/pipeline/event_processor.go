// README: Event queue consumer; turns a detected stop into a pending SMS and an operator alert.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"driverbuddy/internal/logger"
	"driverbuddy/internal/modules/driver"
	"driverbuddy/internal/modules/event"
	"driverbuddy/internal/modules/message"
	"driverbuddy/internal/notify"
	"driverbuddy/internal/queue"
	"driverbuddy/internal/types"
)

type EventLookup interface {
	Get(ctx context.Context, id types.ID) (*event.Event, error)
}

type DriverLookup interface {
	Get(ctx context.Context, id types.ID) (*driver.Driver, error)
}

type MessageCreator interface {
	Create(ctx context.Context, m *message.Message) (bool, error)
}

// AddressLookup resolves a stop position to a street address for operator alerts.
type AddressLookup interface {
	Address(ctx context.Context, p types.Point) (string, error)
}

type EventProcessorDeps struct {
	Events     EventLookup
	Drivers    DriverLookup
	Messages   MessageCreator
	SMSQueue   queue.Queue
	Notifier   notify.Notifier
	Addresses  AddressLookup
	FromNumber string
	Logger     *slog.Logger
}

type EventProcessor struct {
	deps   EventProcessorDeps
	now    func() time.Time
	logger *slog.Logger
}

func NewEventProcessor(deps EventProcessorDeps) *EventProcessor {
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	return &EventProcessor{
		deps:   deps,
		now:    time.Now,
		logger: logger.Or(deps.Logger).With("component", "event_processor"),
	}
}

// Handle processes one event job. Any error before the SMS job is enqueued
// leaves the event job for redelivery.
func (p *EventProcessor) Handle(ctx context.Context, msg queue.Message) error {
	job, err := queue.Decode[queue.EventJob](msg.Body)
	if err != nil {
		return Drop("malformed event job: %v", err)
	}
	log := p.logger.With("event_id", string(job.EventID), "vehicle_id", job.VehicleID)

	ev, err := p.deps.Events.Get(ctx, job.EventID)
	if errors.Is(err, event.ErrNotFound) {
		return Drop("event %s not found", job.EventID)
	}
	if err != nil {
		return err
	}

	var drv *driver.Driver
	if ev.DriverID != nil {
		drv, err = p.deps.Drivers.Get(ctx, *ev.DriverID)
		if errors.Is(err, driver.ErrNotFound) {
			return Drop("driver %s for event %s not found", *ev.DriverID, ev.ID)
		}
		if err != nil {
			return err
		}
	}

	firstAttempt := msg.ReceiveCount <= 1
	if !drv.HasPhone() {
		log.InfoContext(ctx, "no driver phone on file; sms skipped")
		if firstAttempt {
			p.alert(ctx, log, ev, drv)
		}
		return nil
	}

	now := p.now().UTC()
	m := &message.Message{
		ID:             types.NewID(),
		EventID:        &ev.ID,
		DriverID:       &drv.ID,
		Direction:      message.DirectionOutbound,
		Body:           event.StopSMSBody(ev.VehicleID, ev.Position, ev.StartTime),
		FromPhone:      p.deps.FromNumber,
		ToPhone:        drv.Phone,
		Status:         message.StatusPending,
		IdempotencyKey: message.StopAlertKey(ev.ID),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created, err := p.deps.Messages.Create(ctx, m)
	if err != nil {
		return err
	}
	log = log.With("message_id", string(m.ID))

	if m.Status == message.StatusPending {
		job := queue.SMSJob{MessageID: m.ID, ToPhone: m.ToPhone, Body: m.Body, EventID: m.EventID}
		if err := queue.SendJSON(ctx, p.deps.SMSQueue, job); err != nil {
			return err
		}
		log.InfoContext(ctx, "sms job enqueued", "message_created", created)
	} else {
		log.InfoContext(ctx, "stop alert already handled", "status", string(m.Status))
	}

	if created || firstAttempt {
		p.alert(ctx, log, ev, drv)
	}
	return nil
}

func (p *EventProcessor) alert(ctx context.Context, log *slog.Logger, ev *event.Event, drv *driver.Driver) {
	address := ""
	if p.deps.Addresses != nil {
		a, err := p.deps.Addresses.Address(ctx, ev.Position)
		if err != nil {
			log.WarnContext(ctx, "reverse geocode failed", logger.Err(err))
		}
		address = a
	}
	contact := event.Contact{}
	if drv != nil {
		contact = event.Contact{Name: drv.Name, Phone: drv.Phone}
	}
	p.deps.Notifier.Notify(ctx, event.StopAlert(ev.VehicleID, contact, ev.Position, ev.StartTime, address))
}
