// README: Redis idempotency claims so concurrent duplicate jobs perform a side effect once.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const claimKeyPrefix = "%s:%s"

type Claims struct {
	redis     *redis.Client
	namespace string
	ttl       time.Duration
}

// NewClaims expires claims after ttl so a crashed holder cannot block retries forever.
func NewClaims(client *redis.Client, namespace string, ttl time.Duration) *Claims {
	return &Claims{redis: client, namespace: namespace, ttl: ttl}
}

// Acquire reports whether the caller now holds the claim for key.
func (c *Claims) Acquire(ctx context.Context, key string) (bool, error) {
	return c.redis.SetNX(ctx, c.key(key), time.Now().UTC().Format(time.RFC3339Nano), c.ttl).Result()
}

func (c *Claims) Release(ctx context.Context, key string) error {
	return c.redis.Del(ctx, c.key(key)).Err()
}

func (c *Claims) key(key string) string {
	return fmt.Sprintf(claimKeyPrefix, c.namespace, key)
}
