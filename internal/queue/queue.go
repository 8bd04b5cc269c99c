// README: At-least-once work queue with visibility timeouts, shared by the event and SMS pipelines.
package queue

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("queue closed")

// Message is one delivery of a job. Receipt is only valid until the visibility timeout lapses.
type Message struct {
	Body         []byte
	Receipt      string
	ReceiveCount int
}

// Queue hides received messages for a visibility window; messages that are not
// deleted in time are redelivered until the receive limit moves them aside.
type Queue interface {
	Name() string
	Send(ctx context.Context, body []byte) error
	// Receive waits up to wait for at least one message and returns at most max.
	Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error)
	Delete(ctx context.Context, receipt string) error
}

type Options struct {
	Visibility   time.Duration
	MaxReceive   int
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Visibility <= 0 {
		o.Visibility = 60 * time.Second
	}
	if o.MaxReceive <= 0 {
		o.MaxReceive = 5
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	return o
}
