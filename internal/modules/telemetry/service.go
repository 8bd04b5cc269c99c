// README: Ingestion handler; detects stop/move transitions and starts the alert pipeline for new stops.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"driverbuddy/internal/logger"
	"driverbuddy/internal/metrics"
	"driverbuddy/internal/modules/driver"
	"driverbuddy/internal/modules/event"
	"driverbuddy/internal/modules/message"
	"driverbuddy/internal/notify"
	"driverbuddy/internal/queue"
	"driverbuddy/internal/sms"
	"driverbuddy/internal/types"
)

var ErrBadRequest = errors.New("bad request")

// MessageRecorder stores the outbound message for an in-path send.
type MessageRecorder interface {
	Create(ctx context.Context, m *message.Message) (bool, error)
}

type Config struct {
	StopSpeedThreshold float64
	DirectSMS          bool
	FromNumber         string
}

type Service struct {
	tx       Transactor
	events   queue.Queue
	messages MessageRecorder
	sender   sms.Sender
	notifier notify.Notifier
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger
}

type Deps struct {
	Tx       Transactor
	Events   queue.Queue
	Messages MessageRecorder
	Sender   sms.Sender
	Notifier notify.Notifier
	Logger   *slog.Logger
}

func NewService(deps Deps, cfg Config) *Service {
	s := &Service{
		tx:       deps.Tx,
		events:   deps.Events,
		messages: deps.Messages,
		sender:   deps.Sender,
		notifier: deps.Notifier,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.Or(deps.Logger).With("component", "ingest"),
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.sender == nil {
		s.sender = sms.Disabled{}
	}
	return s
}

// Ingest applies one telemetry sample. Driver creation and the event change
// commit together; alerting for a new stop happens after commit and never
// fails the call.
func (s *Service) Ingest(ctx context.Context, cmd IngestCommand) (Result, error) {
	sample := cmd.Sample
	if err := sample.validate(); err != nil {
		return Result{}, err
	}
	sample.Timestamp = sample.Timestamp.UTC()
	metrics.TelemetrySamplesTotal.Inc()

	var (
		res     Result
		drv     *driver.Driver
		created *event.Event
	)
	err := s.tx.InTx(ctx, func(r Repos) error {
		res, drv, created = Result{Transition: event.TransitionNone}, nil, nil

		if sample.DriverID != "" {
			d, _, err := r.Drivers.GetOrCreate(ctx, sample.DriverID)
			if err != nil {
				return err
			}
			drv = d
		}
		if err := r.Events.LockVehicle(ctx, sample.VehicleID); err != nil {
			return err
		}
		latest, err := r.Events.Latest(ctx, sample.VehicleID)
		if err != nil && !errors.Is(err, event.ErrNotFound) {
			return err
		}
		state, open := event.StateFrom(latest)
		res.Transition = event.Detect(sample.Speed, state, s.cfg.StopSpeedThreshold)

		switch res.Transition {
		case event.TransitionStopStarted:
			e := &event.Event{
				ID:        types.NewID(),
				VehicleID: sample.VehicleID,
				Type:      event.TypeStop,
				StartTime: sample.Timestamp,
				Position:  sample.Position,
				Metadata:  sample.metadata(),
				CreatedAt: s.now().UTC(),
			}
			if drv != nil {
				e.DriverID = &drv.ID
			}
			ok, err := r.Events.Create(ctx, e)
			if err != nil {
				return err
			}
			res.EventID, res.EventCreated = e.ID, ok
			if ok {
				created = e
			}
		case event.TransitionMoveStarted:
			if _, err := r.Events.Close(ctx, open.ID, sample.Timestamp); err != nil {
				return err
			}
			res.EventID = open.ID
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	metrics.TransitionsTotal.WithLabelValues(string(res.Transition)).Inc()
	if res.Transition != event.TransitionNone {
		s.logger.InfoContext(ctx, "transition detected",
			"vehicle_id", sample.VehicleID,
			"transition", string(res.Transition),
			"event_id", string(res.EventID),
			"event_created", res.EventCreated,
		)
	}
	if created != nil {
		s.afterStop(ctx, created, drv, cmd.StatusCallbackURL)
	}
	return res, nil
}

func (s *Service) afterStop(ctx context.Context, e *event.Event, drv *driver.Driver, callbackURL string) {
	log := s.logger.With("event_id", string(e.ID), "vehicle_id", e.VehicleID)

	contact := event.Contact{}
	if drv != nil {
		contact = event.Contact{Name: drv.Name, Phone: drv.Phone}
	}
	s.notifier.Notify(ctx, event.StopAlert(e.VehicleID, contact, e.Position, e.StartTime, ""))

	if s.cfg.DirectSMS && drv.HasPhone() {
		s.sendDirect(ctx, log, e, drv, callbackURL)
	}

	job := queue.EventJob{
		EventID:   e.ID,
		DriverID:  e.DriverID,
		VehicleID: e.VehicleID,
		Latitude:  e.Position.Lat,
		Longitude: e.Position.Lng,
		Timestamp: e.StartTime,
	}
	if err := queue.SendJSON(ctx, s.events, job); err != nil {
		metrics.EnqueueFailuresTotal.WithLabelValues(s.events.Name()).Inc()
		log.ErrorContext(ctx, "event job not enqueued; queued processing will not run for this stop", logger.Err(err))
	}
}

// sendDirect attempts the immediate SMS. Failures fall through to the queued path.
func (s *Service) sendDirect(ctx context.Context, log *slog.Logger, e *event.Event, drv *driver.Driver, callbackURL string) {
	body := event.StopSMSBody(e.VehicleID, e.Position, e.StartTime)
	sid, err := s.sender.Send(ctx, sms.SendRequest{To: drv.Phone, Body: body, StatusCallbackURL: callbackURL})
	metrics.SMSSendsTotal.WithLabelValues("direct", metrics.Outcome(err == nil)).Inc()
	if err != nil {
		log.WarnContext(ctx, "direct sms failed; relying on queued send", logger.Err(err))
		return
	}

	now := s.now().UTC()
	m := &message.Message{
		ID:                types.NewID(),
		EventID:           &e.ID,
		DriverID:          &drv.ID,
		Direction:         message.DirectionOutbound,
		Body:              body,
		ProviderMessageID: sid,
		FromPhone:         s.cfg.FromNumber,
		ToPhone:           drv.Phone,
		Status:            message.StatusSent,
		IdempotencyKey:    message.StopAlertKey(e.ID),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if _, err := s.messages.Create(ctx, m); err != nil {
		log.ErrorContext(ctx, "direct sms sent but not recorded", "provider_message_id", sid, logger.Err(err))
		return
	}
	log.InfoContext(ctx, "direct sms sent", "message_id", string(m.ID), "provider_message_id", sid)
}
