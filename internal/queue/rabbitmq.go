// README: RabbitMQ-backed queue: quorum queue with delivery limit and dead-letter exchange, polled with basic.get.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"driverbuddy/internal/logger"
	"driverbuddy/internal/types"
)

const reconnInterval = 5 * time.Second

type pendingDelivery struct {
	delivery amqp.Delivery
	timer    *time.Timer
}

// Rabbit emulates visibility timeouts by nacking unacknowledged deliveries back
// onto the queue once the window lapses.
type Rabbit struct {
	ctx  context.Context
	url  string
	name string
	opts Options
	log  *slog.Logger

	mu           sync.Mutex
	conn         *amqp.Connection
	pub          *amqp.Channel
	sub          *amqp.Channel
	generation   int
	reconnecting bool
	pending      map[string]*pendingDelivery
}

var _ Queue = (*Rabbit)(nil)

func NewRabbit(ctx context.Context, url, name string, opts Options, log *slog.Logger) (*Rabbit, error) {
	r := &Rabbit{
		ctx:     ctx,
		url:     url,
		name:    name,
		opts:    opts.withDefaults(),
		log:     logger.Or(log).With("component", "rabbitmq", "queue", name),
		pending: map[string]*pendingDelivery{},
	}
	if err := r.connect(); err != nil {
		return nil, fmt.Errorf("rabbit connect: %w", err)
	}
	return r, nil
}

func (r *Rabbit) Name() string {
	return r.name
}

func (r *Rabbit) Send(ctx context.Context, body []byte) error {
	r.mu.Lock()
	if !r.aliveLocked() {
		r.mu.Unlock()
		go r.reconnect(r.ctx)
		return ErrClosed
	}
	pub := r.pub
	r.mu.Unlock()

	pubctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conf, err := pub.PublishWithDeferredConfirmWithContext(pubctx, "", r.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    string(types.NewID()),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	acked, err := conf.WaitContext(pubctx)
	if err != nil {
		return fmt.Errorf("publish confirm: %w", err)
	}
	if !acked {
		return errors.New("publish nacked by broker")
	}
	return nil
}

func (r *Rabbit) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max < 1 {
		max = 1
	}
	deadline := time.Now().Add(wait)
	for {
		msgs, err := r.get(max)
		if err != nil || len(msgs) > 0 {
			return msgs, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		timer := time.NewTimer(min(r.opts.PollInterval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Delete acknowledges a delivery. Receipts whose visibility window already
// lapsed are ignored since the broker has requeued the message.
func (r *Rabbit) Delete(_ context.Context, receipt string) error {
	p, ok := r.take(receipt)
	if !ok {
		return nil
	}
	p.timer.Stop()
	return p.delivery.Ack(false)
}

// take removes a pending delivery. Whichever of Delete and expire takes it
// settles it with the broker.
func (r *Rabbit) take(receipt string) (*pendingDelivery, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[receipt]
	if ok {
		delete(r.pending, receipt)
	}
	return p, ok
}

func (r *Rabbit) IsAlive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aliveLocked()
}

func (r *Rabbit) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for receipt, p := range r.pending {
		p.timer.Stop()
		delete(r.pending, receipt)
	}
	if r.conn != nil && !r.conn.IsClosed() {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("close connection: %w", err)
		}
	}
	return nil
}

func (r *Rabbit) get(max int) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.aliveLocked() {
		go r.reconnect(r.ctx)
		return nil, ErrClosed
	}

	var msgs []Message
	for len(msgs) < max {
		d, ok, err := r.sub.Get(r.name, false)
		if err != nil {
			return msgs, fmt.Errorf("basic.get: %w", err)
		}
		if !ok {
			break
		}
		receipt := strconv.Itoa(r.generation) + ":" + strconv.FormatUint(d.DeliveryTag, 10)
		r.pending[receipt] = &pendingDelivery{
			delivery: d,
			timer:    time.AfterFunc(r.opts.Visibility, func() { r.expire(receipt) }),
		}
		msgs = append(msgs, Message{
			Body:         d.Body,
			Receipt:      receipt,
			ReceiveCount: deliveryCount(d),
		})
	}
	return msgs, nil
}

func (r *Rabbit) expire(receipt string) {
	p, ok := r.take(receipt)
	if !ok {
		return
	}
	if err := p.delivery.Nack(false, true); err != nil {
		r.log.Warn("requeue after visibility timeout failed", logger.Err(err))
	}
}

func (r *Rabbit) aliveLocked() bool {
	return r.conn != nil && !r.conn.IsClosed() &&
		r.pub != nil && !r.pub.IsClosed() &&
		r.sub != nil && !r.sub.IsClosed()
}

func (r *Rabbit) connect() error {
	conn, err := amqp.Dial(r.url)
	if err != nil {
		return err
	}
	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := pub.Confirm(false); err != nil {
		_ = conn.Close()
		return err
	}
	sub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := r.declare(sub); err != nil {
		_ = conn.Close()
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Delivery tags are channel scoped; deliveries from a previous connection
	// are redelivered by the broker.
	for receipt, p := range r.pending {
		p.timer.Stop()
		delete(r.pending, receipt)
	}
	r.conn, r.pub, r.sub = conn, pub, sub
	r.generation++
	return nil
}

func (r *Rabbit) declare(ch *amqp.Channel) error {
	dlx := r.name + ".dlx"
	dead := r.name + ".dead"
	if err := ch.ExchangeDeclare(dlx, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlx: %w", err)
	}
	if _, err := ch.QueueDeclare(dead, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead queue: %w", err)
	}
	if err := ch.QueueBind(dead, "", dlx, false, nil); err != nil {
		return fmt.Errorf("bind dead queue: %w", err)
	}
	_, err := ch.QueueDeclare(r.name, true, false, false, false, amqp.Table{
		"x-queue-type":           "quorum",
		"x-delivery-limit":       int32(r.opts.MaxReceive - 1),
		"x-dead-letter-exchange": dlx,
	})
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	return nil
}

func (r *Rabbit) reconnect(ctx context.Context) {
	r.mu.Lock()
	if r.reconnecting {
		r.mu.Unlock()
		return
	}
	r.reconnecting = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.reconnecting = false
		r.mu.Unlock()
	}()

	t := time.NewTicker(reconnInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := r.connect(); err == nil {
				r.log.Info("reconnected")
				return
			}
			r.log.Info("reconnect failed")
		case <-ctx.Done():
			return
		}
	}
}

// deliveryCount reads the quorum queue redelivery header; first deliveries carry none.
func deliveryCount(d amqp.Delivery) int {
	switch v := d.Headers["x-delivery-count"].(type) {
	case int64:
		return int(v) + 1
	case int32:
		return int(v) + 1
	case int:
		return v + 1
	}
	return 1
}
