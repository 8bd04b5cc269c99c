package dedup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClaims(t *testing.T, ttl time.Duration) (*Claims, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewClaims(client, "sms:send", ttl), mr
}

func TestAcquireOnce(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClaims(t, time.Minute)

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.Acquire(ctx, "msg-1")
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if won != 1 {
		t.Fatalf("expected a single winner, got %d", won)
	}
	if !mr.Exists("sms:send:msg-1") {
		t.Fatal("claim key missing")
	}
}

func TestClaimExpiresAndReleases(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClaims(t, time.Minute)

	if ok, _ := c.Acquire(ctx, "a"); !ok {
		t.Fatal("first acquire should win")
	}
	mr.FastForward(61 * time.Second)
	if ok, _ := c.Acquire(ctx, "a"); !ok {
		t.Fatal("expired claim should be re-acquirable")
	}
	if err := c.Release(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := c.Acquire(ctx, "a"); !ok {
		t.Fatal("released claim should be re-acquirable")
	}
}
