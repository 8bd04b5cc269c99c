package queue

import (
	"context"
	"testing"
	"time"
)

func TestMemoryVisibilityAndDeadLetter(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	q := NewMemory("mem", Options{Visibility: time.Minute, MaxReceive: 2})
	q.now = clock.now

	if err := q.Send(ctx, []byte("x")); err != nil {
		t.Fatal(err)
	}
	first, _ := q.Receive(ctx, 5, 0)
	if len(first) != 1 {
		t.Fatalf("first receive = %d", len(first))
	}
	if again, _ := q.Receive(ctx, 5, 0); len(again) != 0 {
		t.Fatal("in-flight job must stay hidden")
	}

	clock.advance(time.Minute + time.Second)
	second, _ := q.Receive(ctx, 5, 0)
	if len(second) != 1 || second[0].ReceiveCount != 2 {
		t.Fatalf("redelivery = %+v", second)
	}
	_ = q.Delete(ctx, first[0].Receipt)
	if q.Len() != 1 {
		t.Fatal("stale receipt deleted the job")
	}

	clock.advance(time.Minute + time.Second)
	if third, _ := q.Receive(ctx, 5, 0); len(third) != 0 {
		t.Fatalf("job past the receive limit was delivered: %+v", third)
	}
	if len(q.DeadLetters()) != 1 || q.Len() != 0 {
		t.Fatalf("expected job in dead letters, len=%d dead=%d", q.Len(), len(q.DeadLetters()))
	}
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	q := NewMemory("mem", Options{})
	_ = q.Send(ctx, []byte("a"))
	_ = q.Send(ctx, []byte("b"))
	msgs, _ := q.Receive(ctx, 1, 0)
	if len(msgs) != 1 || string(msgs[0].Body) != "a" {
		t.Fatalf("fifo order broken: %+v", msgs)
	}
	if err := q.Delete(ctx, msgs[0].Receipt); err != nil {
		t.Fatal(err)
	}
	if q.Len() != 1 {
		t.Fatalf("len = %d", q.Len())
	}
}
