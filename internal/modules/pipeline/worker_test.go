package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"driverbuddy/internal/queue"
)

func TestWorkerAckDropAndRetry(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory("jobs", queue.Options{Visibility: time.Minute})
	for _, body := range []string{"ok", "drop", "retry", "panic"} {
		if err := q.Send(ctx, []byte(body)); err != nil {
			t.Fatal(err)
		}
	}

	w := NewWorker("test", q, func(_ context.Context, msg queue.Message) error {
		switch string(msg.Body) {
		case "drop":
			return Drop("unusable")
		case "retry":
			return errors.New("transient")
		case "panic":
			panic("boom")
		}
		return nil
	}, WorkerConfig{}, nil)

	msgs, err := q.Receive(ctx, 10, 0)
	if err != nil || len(msgs) != 4 {
		t.Fatalf("receive = %d, %v", len(msgs), err)
	}
	for _, m := range msgs {
		w.process(ctx, m)
	}

	left := q.Bodies()
	if len(left) != 2 {
		t.Fatalf("remaining jobs = %q", left)
	}
	for _, b := range left {
		if s := string(b); s != "retry" && s != "panic" {
			t.Fatalf("unexpected job left on queue: %q", s)
		}
	}
}

func TestIsDrop(t *testing.T) {
	if !IsDrop(Drop("x %d", 1)) {
		t.Fatal("Drop not recognised")
	}
	if IsDrop(errors.New("x")) || IsDrop(nil) {
		t.Fatal("plain error recognised as drop")
	}
	if got := Drop("event %s not found", "e1").Error(); got != "dropped: event e1 not found" {
		t.Fatalf("message = %q", got)
	}
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	q := queue.NewMemory("jobs", queue.Options{PollInterval: 5 * time.Millisecond})
	var handled atomic.Int32
	w := NewWorker("test", q, func(context.Context, queue.Message) error {
		handled.Add(1)
		return nil
	}, WorkerConfig{Wait: 50 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	_ = q.Send(context.Background(), []byte("job"))
	deadline := time.Now().Add(2 * time.Second)
	for handled.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if handled.Load() != 1 {
		t.Fatal("job was not handled")
	}
	if !w.Running() {
		t.Fatal("worker should report running")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	if w.Running() {
		t.Fatal("worker still reports running")
	}
	if q.Len() != 0 {
		t.Fatal("handled job was not acknowledged")
	}
}

func TestWorkerFinishesJobAfterCancel(t *testing.T) {
	q := queue.NewMemory("jobs", queue.Options{PollInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	var jobCtxErr error
	w := NewWorker("test", q, func(jobCtx context.Context, _ queue.Message) error {
		cancel()
		time.Sleep(10 * time.Millisecond)
		jobCtxErr = jobCtx.Err()
		return nil
	}, WorkerConfig{Wait: 50 * time.Millisecond}, nil)

	_ = q.Send(context.Background(), []byte("job"))
	if err := w.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if jobCtxErr != nil {
		t.Fatalf("job context cancelled mid-job: %v", jobCtxErr)
	}
	if q.Len() != 0 {
		t.Fatal("job finished during shutdown was not acknowledged")
	}
}

func TestSupervisorStopsAllRunners(t *testing.T) {
	a := NewWorker("a", queue.NewMemory("a", queue.Options{}), func(context.Context, queue.Message) error { return nil }, WorkerConfig{Wait: 20 * time.Millisecond}, nil)
	b := NewWorker("b", queue.NewMemory("b", queue.Options{}), func(context.Context, queue.Message) error { return nil }, WorkerConfig{Wait: 20 * time.Millisecond}, nil)
	sup := NewSupervisor(a, b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !(a.Running() && b.Running()) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	status := sup.Status()
	if !status["a"] || !status["b"] {
		t.Fatalf("status = %v", status)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}
	if status := sup.Status(); status["a"] || status["b"] {
		t.Fatalf("status after stop = %v", status)
	}
}
