// README: In-process queue with the same visibility and receive-limit semantics; for local runs and tests.
package queue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"driverbuddy/internal/types"
)

type memoryItem struct {
	id             string
	body           []byte
	receives       int
	invisibleUntil time.Time
}

type Memory struct {
	name string
	opts Options
	now  func() time.Time

	mu    sync.Mutex
	items []*memoryItem
	dead  [][]byte
}

func NewMemory(name string, opts Options) *Memory {
	return &Memory{name: name, opts: opts.withDefaults(), now: time.Now}
}

func (q *Memory) Name() string {
	return q.name
}

func (q *Memory) Send(_ context.Context, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, &memoryItem{id: string(types.NewID()), body: append([]byte(nil), body...)})
	return nil
}

func (q *Memory) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max < 1 {
		max = 1
	}
	deadline := time.Now().Add(wait)
	for {
		if msgs := q.claim(max); len(msgs) > 0 {
			return msgs, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		timer := time.NewTimer(min(q.opts.PollInterval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (q *Memory) Delete(_ context.Context, receipt string) error {
	id, count, ok := strings.Cut(receipt, ":")
	if !ok {
		return fmt.Errorf("malformed receipt %q", receipt)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, it := range q.items {
		if it.id == id && strconv.Itoa(it.receives) == count {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return nil
		}
	}
	return nil
}

// Len returns the number of jobs not yet deleted, visible or not.
func (q *Memory) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Bodies returns the bodies of every job not yet deleted.
func (q *Memory) Bodies() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([][]byte, len(q.items))
	for i, it := range q.items {
		out[i] = it.body
	}
	return out
}

func (q *Memory) DeadLetters() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([][]byte(nil), q.dead...)
}

func (q *Memory) claim(max int) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	var msgs []Message
	kept := q.items[:0]
	for _, it := range q.items {
		if len(msgs) >= max || it.invisibleUntil.After(now) {
			kept = append(kept, it)
			continue
		}
		it.receives++
		if it.receives > q.opts.MaxReceive {
			q.dead = append(q.dead, it.body)
			continue
		}
		it.invisibleUntil = now.Add(q.opts.Visibility)
		kept = append(kept, it)
		msgs = append(msgs, Message{
			Body:         it.body,
			Receipt:      it.id + ":" + strconv.Itoa(it.receives),
			ReceiveCount: it.receives,
		})
	}
	q.items = kept
	return msgs
}
