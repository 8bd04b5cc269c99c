package message

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"driverbuddy/internal/modules/driver"
	"driverbuddy/internal/modules/event"
	"driverbuddy/internal/types"
)

type mockStore struct {
	mu       sync.Mutex
	messages map[types.ID]*Message
}

func newMockStore() *mockStore {
	return &mockStore{messages: map[types.ID]*Message{}}
}

func (m *mockStore) Create(_ context.Context, msg *Message) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.messages {
		if (msg.IdempotencyKey != "" && existing.IdempotencyKey == msg.IdempotencyKey) ||
			(msg.ProviderMessageID != "" && existing.ProviderMessageID == msg.ProviderMessageID) {
			*msg = *existing
			return false, nil
		}
	}
	cp := *msg
	m.messages[msg.ID] = &cp
	return true, nil
}

func (m *mockStore) Get(_ context.Context, id types.ID) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *mockStore) GetByProviderID(_ context.Context, providerID string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ProviderMessageID == providerID {
			cp := *msg
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockStore) ListByEvent(_ context.Context, eventID types.ID) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Message
	for _, msg := range m.messages {
		if msg.EventID != nil && *msg.EventID == eventID {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (m *mockStore) ApplyStatus(_ context.Context, id types.ID, status Status, code, text string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.Status == StatusDelivered {
		return false, nil
	}
	msg.Status = status
	if code != "" {
		msg.ErrorCode = code
	}
	if text != "" {
		msg.ErrorMessage = text
	}
	return true, nil
}

func (m *mockStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

type mockDrivers map[string]*driver.Driver

func (m mockDrivers) FindByPhone(_ context.Context, phone string) (*driver.Driver, error) {
	d, ok := m[phone]
	if !ok {
		return nil, driver.ErrNotFound
	}
	return d, nil
}

type mockEvents struct {
	events []*event.Event
}

func (m *mockEvents) OpenByDriver(_ context.Context, driverID types.ID) (*event.Event, error) {
	for _, e := range m.events {
		if e.DriverID != nil && *e.DriverID == driverID && e.Open() {
			return e, nil
		}
	}
	return nil, event.ErrNotFound
}

func (m *mockEvents) LatestByDriverSince(_ context.Context, driverID types.ID, since time.Time) (*event.Event, error) {
	var best *event.Event
	for _, e := range m.events {
		if e.DriverID == nil || *e.DriverID != driverID || e.StartTime.Before(since) {
			continue
		}
		if best == nil || e.StartTime.After(best.StartTime) {
			best = e
		}
	}
	if best == nil {
		return nil, event.ErrNotFound
	}
	return best, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingNotifier) Notify(_ context.Context, text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return true
}

func TestProviderStatusMapping(t *testing.T) {
	cases := []struct {
		code string
		want Status
		ok   bool
	}{
		{"queued", StatusPending, true},
		{"sending", StatusPending, true},
		{"sent", StatusSent, true},
		{"delivered", StatusDelivered, true},
		{"failed", StatusFailed, true},
		{"undelivered", StatusUndelivered, true},
		{"receiving", StatusPending, true},
		{"received", StatusReceived, true},
		{"read", "", false},
		{"", "", false},
		{"DELIVERED", StatusDelivered, true},
		{"Delivered", StatusDelivered, true},
		{"FAILED", StatusFailed, true},
		{" sent", StatusSent, true},
		{"Undelivered\n", StatusUndelivered, true},
	}
	for _, tc := range cases {
		p := ParseProviderStatus(tc.code)
		got, ok := p.Internal()
		if got != tc.want || ok != tc.ok {
			t.Errorf("%q: got (%q, %v), want (%q, %v)", tc.code, got, ok, tc.want, tc.ok)
		}
		if tc.ok && p.String() != strings.ToLower(strings.TrimSpace(tc.code)) {
			t.Errorf("%q: String() = %q", tc.code, p.String())
		}
	}
}

func seedSent(t *testing.T, store *mockStore, sid string, status Status) *Message {
	t.Helper()
	m := &Message{ID: types.NewID(), Direction: DirectionOutbound, ProviderMessageID: sid, Status: status}
	if _, err := store.Create(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestReconcileUnknownProviderIDIsNoop(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, mockDrivers{}, &mockEvents{}, nil)

	out, err := svc.Reconcile(context.Background(), StatusCallback{ProviderMessageID: "SM404", Status: "delivered"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out != OutcomeUnmatched {
		t.Fatalf("outcome = %s", out)
	}
	if store.count() != 0 {
		t.Fatal("no record should be created for an unknown provider id")
	}
}

func TestReconcileAppliesMappedStatus(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, mockDrivers{}, &mockEvents{}, nil)
	m := seedSent(t, store, "SM1", StatusSent)

	out, err := svc.Reconcile(context.Background(), StatusCallback{
		ProviderMessageID: "SM1", Status: "undelivered", ErrorCode: "30006", ErrorMessage: "Landline or unreachable carrier",
	})
	if err != nil || out != OutcomeUpdated {
		t.Fatalf("reconcile: %s %v", out, err)
	}
	got, _ := store.Get(context.Background(), m.ID)
	if got.Status != StatusUndelivered || got.ErrorCode != "30006" {
		t.Fatalf("unexpected message %+v", got)
	}
	if got.ProviderMessageID != "SM1" {
		t.Fatal("provider id must never be cleared")
	}
}

func TestReconcileLastWriteWinsUntilDelivered(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := NewService(store, mockDrivers{}, &mockEvents{}, nil)
	m := seedSent(t, store, "SM2", StatusSent)

	steps := []struct {
		code string
		want Status
		out  Outcome
	}{
		{"failed", StatusFailed, OutcomeUpdated},
		{"sent", StatusSent, OutcomeUpdated},
		{"bogus", StatusSent, OutcomeUnknownStatus},
		{"delivered", StatusDelivered, OutcomeUpdated},
		{"failed", StatusDelivered, OutcomeKeptDelivered},
		{"queued", StatusDelivered, OutcomeKeptDelivered},
	}
	for i, step := range steps {
		out, err := svc.Reconcile(ctx, StatusCallback{ProviderMessageID: "SM2", Status: step.code})
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		got, _ := store.Get(ctx, m.ID)
		if got.Status != step.want || out != step.out {
			t.Fatalf("step %d (%s): status %s outcome %s, want %s %s", i, step.code, got.Status, out, step.want, step.out)
		}
	}
}

func TestReconcileRequiresProviderID(t *testing.T) {
	svc := NewService(newMockStore(), mockDrivers{}, &mockEvents{}, nil)
	if _, err := svc.Reconcile(context.Background(), StatusCallback{Status: "sent"}); err != ErrBadRequest {
		t.Fatalf("err = %v", err)
	}
}

func TestReceiveInboundAssociation(t *testing.T) {
	now := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
	driverID := types.ID("drv-1")
	ana := &driver.Driver{ID: driverID, Name: "Ana", Phone: "+15550001"}
	closedAt := now.Add(-10 * time.Minute)

	stopAt := func(ago time.Duration, open bool) *event.Event {
		e := &event.Event{
			ID:        types.NewID(),
			DriverID:  &driverID,
			VehicleID: "truck-1",
			Type:      event.TypeStop,
			StartTime: now.Add(-ago),
			Position:  types.PointFromFloat(1, 2),
		}
		if !open {
			e.EndTime = &closedAt
		}
		return e
	}

	cases := []struct {
		name   string
		events []*event.Event
		want   int // index into events, -1 for none
	}{
		{"open event", []*event.Event{stopAt(3*time.Hour, true)}, 0},
		{"open wins over recent closed", []*event.Event{stopAt(20*time.Minute, false), stopAt(2*time.Hour, true)}, 1},
		{"closed 45 minutes ago", []*event.Event{stopAt(45*time.Minute, false)}, 0},
		{"closed 90 minutes ago", []*event.Event{stopAt(90*time.Minute, false)}, -1},
		{"no events", nil, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMockStore()
			notifier := &recordingNotifier{}
			svc := NewService(store, mockDrivers{ana.Phone: ana}, &mockEvents{events: tc.events}, notifier,
				WithClock(func() time.Time { return now }))

			m, err := svc.ReceiveInbound(context.Background(), InboundCommand{
				From: ana.Phone, To: "+15559999", Body: "on my way", ProviderMessageID: "SMin-" + tc.name,
			})
			if err != nil {
				t.Fatalf("receive: %v", err)
			}
			if m.Direction != DirectionInbound || m.Status != StatusReceived {
				t.Fatalf("unexpected message %+v", m)
			}
			if tc.want < 0 {
				if m.EventID != nil {
					t.Fatalf("expected no association, got %s", *m.EventID)
				}
			} else if m.EventID == nil || *m.EventID != tc.events[tc.want].ID {
				t.Fatalf("expected association with %s, got %v", tc.events[tc.want].ID, m.EventID)
			}
			if len(notifier.texts) != 1 {
				t.Fatalf("expected one notification, got %d", len(notifier.texts))
			}
		})
	}
}

func TestReceiveInboundUnknownDriver(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, mockDrivers{}, &mockEvents{}, nil)
	_, err := svc.ReceiveInbound(context.Background(), InboundCommand{From: "+1000", Body: "hi"})
	if err != ErrDriverNotFound {
		t.Fatalf("err = %v", err)
	}
	if store.count() != 0 {
		t.Fatal("nothing should be stored for unknown senders")
	}
}

func TestReceiveInboundDuplicateDelivery(t *testing.T) {
	ana := &driver.Driver{ID: "drv-1", Name: "Ana", Phone: "+15550001"}
	store := newMockStore()
	notifier := &recordingNotifier{}
	svc := NewService(store, mockDrivers{ana.Phone: ana}, &mockEvents{}, notifier)

	cmd := InboundCommand{From: ana.Phone, Body: "ok", ProviderMessageID: "SMdup"}
	first, err := svc.ReceiveInbound(context.Background(), cmd)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.ReceiveInbound(context.Background(), cmd)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID || store.count() != 1 {
		t.Fatalf("duplicate webhook created a second message")
	}
	if len(notifier.texts) != 1 {
		t.Fatalf("duplicate webhook notified twice")
	}
}
