// README: Delivery status reconciliation and inbound reply association.
package message

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"driverbuddy/internal/logger"
	"driverbuddy/internal/metrics"
	"driverbuddy/internal/modules/driver"
	"driverbuddy/internal/modules/event"
	"driverbuddy/internal/notify"
	"driverbuddy/internal/types"
)

var (
	ErrNotFound       = errors.New("message not found")
	ErrBadRequest     = errors.New("bad request")
	ErrDriverNotFound = errors.New("driver not found")
)

// DefaultReplyWindow bounds how far back a reply may attach to a closed stop.
const DefaultReplyWindow = time.Hour

type Repository interface {
	Create(ctx context.Context, m *Message) (bool, error)
	Get(ctx context.Context, id types.ID) (*Message, error)
	GetByProviderID(ctx context.Context, providerID string) (*Message, error)
	ListByEvent(ctx context.Context, eventID types.ID) ([]Message, error)
	ApplyStatus(ctx context.Context, id types.ID, status Status, errorCode, errorMessage string) (bool, error)
}

type DriverFinder interface {
	FindByPhone(ctx context.Context, phone string) (*driver.Driver, error)
}

type EventFinder interface {
	OpenByDriver(ctx context.Context, driverID types.ID) (*event.Event, error)
	LatestByDriverSince(ctx context.Context, driverID types.ID, since time.Time) (*event.Event, error)
}

type Service struct {
	store       Repository
	drivers     DriverFinder
	events      EventFinder
	notifier    notify.Notifier
	replyWindow time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

type Option func(*Service)

func WithReplyWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.replyWindow = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = logger.Or(l) }
}

func NewService(store Repository, drivers DriverFinder, events EventFinder, notifier notify.Notifier, opts ...Option) *Service {
	s := &Service{
		store:       store,
		drivers:     drivers,
		events:      events,
		notifier:    notifier,
		replyWindow: DefaultReplyWindow,
		now:         time.Now,
		logger:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	s.logger = s.logger.With("component", "messages")
	return s
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Message, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByEvent(ctx context.Context, eventID types.ID) ([]Message, error) {
	return s.store.ListByEvent(ctx, eventID)
}

type StatusCallback struct {
	ProviderMessageID string
	Status            string
	ErrorCode         string
	ErrorMessage      string
}

type Outcome string

const (
	OutcomeUnmatched     Outcome = "unmatched"
	OutcomeUnknownStatus Outcome = "unknown_status"
	OutcomeUpdated       Outcome = "updated"
	OutcomeKeptDelivered Outcome = "kept_delivered"
)

// Reconcile applies a provider status callback to the tracked message.
// Callbacks are last-write-wins except that delivered is final.
func (s *Service) Reconcile(ctx context.Context, cb StatusCallback) (Outcome, error) {
	sid := strings.TrimSpace(cb.ProviderMessageID)
	if sid == "" {
		return "", ErrBadRequest
	}
	log := s.logger.With("provider_message_id", sid, "provider_status", cb.Status)

	m, err := s.store.GetByProviderID(ctx, sid)
	if errors.Is(err, ErrNotFound) {
		log.InfoContext(ctx, "status callback for untracked message")
		return s.countOutcome(OutcomeUnmatched), nil
	}
	if err != nil {
		return "", err
	}
	log = log.With("message_id", string(m.ID))

	code := ParseProviderStatus(cb.Status)
	status, ok := code.Internal()
	if !ok {
		log.WarnContext(ctx, "unrecognised provider status; leaving message unchanged")
		return s.countOutcome(OutcomeUnknownStatus), nil
	}

	if code.IsFailure() && m.HasProviderID() {
		// The provider accepted the message, so a failure here may be a
		// sender-side artefact on virtual-to-virtual routes. Applied as reported.
		metrics.VirtualAmbiguityTotal.Inc()
		log.WarnContext(ctx, "failure reported for provider-accepted message; may be a virtual-to-virtual false negative",
			"error_code", cb.ErrorCode, "error_message", cb.ErrorMessage)
	}

	updated, err := s.store.ApplyStatus(ctx, m.ID, status, cb.ErrorCode, cb.ErrorMessage)
	if err != nil {
		return "", err
	}
	if !updated {
		log.InfoContext(ctx, "message already delivered; ignoring later status")
		return s.countOutcome(OutcomeKeptDelivered), nil
	}
	log.InfoContext(ctx, "message status updated", "from", string(m.Status), "to", string(status))
	return s.countOutcome(OutcomeUpdated), nil
}

func (s *Service) countOutcome(o Outcome) Outcome {
	metrics.StatusCallbacksTotal.WithLabelValues(string(o)).Inc()
	return o
}

type InboundCommand struct {
	From              string
	To                string
	Body              string
	ProviderMessageID string
}

// ReceiveInbound stores a driver reply, attaching it to the driver's open stop
// or, failing that, to a stop started within the reply window.
func (s *Service) ReceiveInbound(ctx context.Context, cmd InboundCommand) (*Message, error) {
	if cmd.From == "" {
		return nil, ErrBadRequest
	}
	d, err := s.drivers.FindByPhone(ctx, cmd.From)
	if errors.Is(err, driver.ErrNotFound) {
		metrics.InboundMessagesTotal.WithLabelValues("unknown_driver").Inc()
		return nil, ErrDriverNotFound
	}
	if err != nil {
		return nil, err
	}

	ev, err := s.associate(ctx, d.ID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	m := &Message{
		ID:                types.NewID(),
		DriverID:          &d.ID,
		Direction:         DirectionInbound,
		Body:              cmd.Body,
		ProviderMessageID: cmd.ProviderMessageID,
		FromPhone:         cmd.From,
		ToPhone:           cmd.To,
		Status:            StatusReceived,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if cmd.ProviderMessageID != "" {
		m.IdempotencyKey = InboundKey(cmd.ProviderMessageID)
	}
	if ev != nil {
		m.EventID = &ev.ID
	}

	created, err := s.store.Create(ctx, m)
	if err != nil {
		return nil, err
	}
	if !created {
		s.logger.InfoContext(ctx, "duplicate inbound message", "provider_message_id", cmd.ProviderMessageID)
		return m, nil
	}

	outcome := "unassociated"
	if ev != nil {
		outcome = "associated"
	}
	metrics.InboundMessagesTotal.WithLabelValues(outcome).Inc()
	s.logger.InfoContext(ctx, "inbound message stored", "message_id", string(m.ID), "driver_id", string(d.ID), "association", outcome)

	contact := event.Contact{Name: d.Name, Phone: d.Phone}
	s.notifier.Notify(ctx, event.ReplyAlert(contact, cmd.Body, ev))
	return m, nil
}

func (s *Service) associate(ctx context.Context, driverID types.ID) (*event.Event, error) {
	ev, err := s.events.OpenByDriver(ctx, driverID)
	if err == nil {
		return ev, nil
	}
	if !errors.Is(err, event.ErrNotFound) {
		return nil, err
	}
	ev, err = s.events.LatestByDriverSince(ctx, driverID, s.now().Add(-s.replyWindow))
	if errors.Is(err, event.ErrNotFound) {
		return nil, nil
	}
	return ev, err
}
