// README: Redis client initialization for work queues and idempotency claims.
package infra

import (
	"context"

	"github.com/redis/go-redis/v9"
)

func NewRedis(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

func PingRedis(ctx context.Context, c *redis.Client) error {
	return c.Ping(ctx).Err()
}
