package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"driverbuddy/internal/dedup"
	"driverbuddy/internal/modules/driver"
	"driverbuddy/internal/modules/event"
	"driverbuddy/internal/modules/message"
	"driverbuddy/internal/modules/telemetry"
	"driverbuddy/internal/sms"
	"driverbuddy/internal/types"
)

// memStore backs drivers, events and messages for pipeline tests.
type memStore struct {
	mu        sync.Mutex
	drivers   map[types.ID]driver.Driver
	events    map[types.ID]event.Event
	messages  []message.Message
	createErr error
}

func newMemStore() *memStore {
	return &memStore{
		drivers: map[types.ID]driver.Driver{},
		events:  map[types.ID]event.Event{},
	}
}

func (s *memStore) InTx(ctx context.Context, fn func(telemetry.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(telemetry.Repos{Drivers: txDrivers{s}, Events: txEvents{s}})
}

type txDrivers struct{ s *memStore }

func (r txDrivers) GetOrCreate(_ context.Context, id types.ID) (*driver.Driver, bool, error) {
	if d, ok := r.s.drivers[id]; ok {
		return &d, false, nil
	}
	d := driver.Driver{ID: id, Name: driver.DefaultName(id), CreatedAt: time.Now()}
	r.s.drivers[id] = d
	return &d, true, nil
}

type txEvents struct{ s *memStore }

func (r txEvents) LockVehicle(context.Context, string) error { return nil }

func (r txEvents) Latest(_ context.Context, vehicleID string) (*event.Event, error) {
	var latest *event.Event
	for _, e := range r.s.events {
		if e.VehicleID != vehicleID {
			continue
		}
		if latest == nil || e.StartTime.After(latest.StartTime) {
			cp := e
			latest = &cp
		}
	}
	if latest == nil {
		return nil, event.ErrNotFound
	}
	return latest, nil
}

func (r txEvents) Create(_ context.Context, e *event.Event) (bool, error) {
	r.s.events[e.ID] = *e
	return true, nil
}

func (r txEvents) Close(_ context.Context, id types.ID, end time.Time) (bool, error) {
	e, ok := r.s.events[id]
	if !ok || e.EndTime != nil {
		return false, nil
	}
	e.EndTime = &end
	r.s.events[id] = e
	return true, nil
}

func (s *memStore) addDriver(d driver.Driver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drivers[d.ID] = d
}

func (s *memStore) addEvent(e event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = e
}

func (s *memStore) event(id types.ID) (event.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	return e, ok
}

func (s *memStore) allMessages() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message.Message(nil), s.messages...)
}

// eventLookup, driverLookup and messageStore expose the same data through the
// consumer interfaces of the workers.
type eventLookup struct{ s *memStore }

func (l eventLookup) Get(_ context.Context, id types.ID) (*event.Event, error) {
	e, ok := l.s.event(id)
	if !ok {
		return nil, event.ErrNotFound
	}
	return &e, nil
}

type driverLookup struct{ s *memStore }

func (l driverLookup) Get(_ context.Context, id types.ID) (*driver.Driver, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	d, ok := l.s.drivers[id]
	if !ok {
		return nil, driver.ErrNotFound
	}
	return &d, nil
}

type messageStore struct{ s *memStore }

func (m messageStore) Create(_ context.Context, msg *message.Message) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.createErr != nil {
		return false, m.s.createErr
	}
	for _, existing := range m.s.messages {
		if msg.IdempotencyKey != "" && existing.IdempotencyKey == msg.IdempotencyKey {
			*msg = existing
			return false, nil
		}
	}
	m.s.messages = append(m.s.messages, *msg)
	return true, nil
}

func (m messageStore) Get(_ context.Context, id types.ID) (*message.Message, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.messages {
		if existing.ID == id {
			cp := existing
			return &cp, nil
		}
	}
	return nil, message.ErrNotFound
}

func (m messageStore) MarkSent(_ context.Context, id types.ID, providerID string) (bool, error) {
	return m.update(id, func(msg *message.Message) {
		msg.ProviderMessageID = providerID
		msg.Status = message.StatusSent
		msg.ErrorCode, msg.ErrorMessage = "", ""
	}), nil
}

func (m messageStore) MarkFailed(_ context.Context, id types.ID, code, text string) (bool, error) {
	return m.update(id, func(msg *message.Message) {
		msg.Status = message.StatusFailed
		msg.ErrorCode, msg.ErrorMessage = code, text
	}), nil
}

func (m messageStore) update(id types.ID, fn func(*message.Message)) bool {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for i := range m.s.messages {
		if m.s.messages[i].ID == id && m.s.messages[i].ProviderMessageID == "" {
			fn(&m.s.messages[i])
			return true
		}
	}
	return false
}

type fakeSender struct {
	mu    sync.Mutex
	reqs  []sms.SendRequest
	err   error
	delay time.Duration
}

func (f *fakeSender) Send(_ context.Context, req sms.SendRequest) (string, error) {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("SM%03d", len(f.reqs)), nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *recordingNotifier) Notify(_ context.Context, text string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return true
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.texts...)
}

type staticAddress string

func (a staticAddress) Address(context.Context, types.Point) (string, error) {
	return string(a), nil
}

func newClaims(t *testing.T) *dedup.Claims {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return dedup.NewClaims(client, "driverbuddy-test", time.Minute)
}
