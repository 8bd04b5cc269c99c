// README: Redis-backed queue: ready list, in-flight sorted set keyed by visibility deadline, dead-letter list.
package queue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"driverbuddy/internal/types"
)

const (
	readyKeyPrefix    = "queue:%s:ready"
	inflightKeyPrefix = "queue:%s:inflight"
	bodiesKeyPrefix   = "queue:%s:bodies"
	receivesKeyPrefix = "queue:%s:receives"
	deadKeyPrefix     = "queue:%s:dead"
)

// claimScript requeues expired in-flight ids, then moves up to ARGV[3] ready ids
// in flight. Ids past the receive limit go to the dead list instead.
var claimScript = redis.NewScript(`
local ready, inflight, bodies, receives, dead = KEYS[1], KEYS[2], KEYS[3], KEYS[4], KEYS[5]
local now = tonumber(ARGV[1])
local deadline = now + tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local maxReceive = tonumber(ARGV[4])

local expired = redis.call('ZRANGEBYSCORE', inflight, '-inf', now)
for _, id in ipairs(expired) do
  redis.call('ZREM', inflight, id)
  redis.call('RPUSH', ready, id)
end

local out = {}
local claimed = 0
while claimed < max do
  local id = redis.call('RPOP', ready)
  if not id then break end
  local body = redis.call('HGET', bodies, id)
  if body then
    local count = redis.call('HINCRBY', receives, id, 1)
    if count > maxReceive then
      redis.call('LPUSH', dead, body)
      redis.call('HDEL', bodies, id)
      redis.call('HDEL', receives, id)
    else
      redis.call('ZADD', inflight, deadline, id)
      table.insert(out, id)
      table.insert(out, body)
      table.insert(out, count)
      claimed = claimed + 1
    end
  end
end
return out
`)

// deleteScript removes a message only if the receipt belongs to its latest delivery.
var deleteScript = redis.NewScript(`
local count = redis.call('HGET', KEYS[3], ARGV[1])
if count ~= ARGV[2] then return 0 end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
return 1
`)

type Redis struct {
	redis *redis.Client
	name  string
	opts  Options
	now   func() time.Time
}

func NewRedis(client *redis.Client, name string, opts Options) *Redis {
	return &Redis{redis: client, name: name, opts: opts.withDefaults(), now: time.Now}
}

func (q *Redis) Name() string {
	return q.name
}

func (q *Redis) Send(ctx context.Context, body []byte) error {
	id := string(types.NewID())
	_, err := q.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.key(bodiesKeyPrefix), id, body)
		pipe.LPush(ctx, q.key(readyKeyPrefix), id)
		return nil
	})
	return err
}

func (q *Redis) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max < 1 {
		max = 1
	}
	deadline := time.Now().Add(wait)
	for {
		msgs, err := q.claim(ctx, max)
		if err != nil || len(msgs) > 0 {
			return msgs, err
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

func (q *Redis) Delete(ctx context.Context, receipt string) error {
	id, count, ok := strings.Cut(receipt, ":")
	if !ok {
		return fmt.Errorf("malformed receipt %q", receipt)
	}
	return deleteScript.Run(ctx, q.redis,
		[]string{q.key(inflightKeyPrefix), q.key(bodiesKeyPrefix), q.key(receivesKeyPrefix)},
		id, count,
	).Err()
}

type Stats struct {
	Ready    int64
	InFlight int64
	Dead     int64
}

func (q *Redis) Stats(ctx context.Context) (Stats, error) {
	pipe := q.redis.Pipeline()
	ready := pipe.LLen(ctx, q.key(readyKeyPrefix))
	inflight := pipe.ZCard(ctx, q.key(inflightKeyPrefix))
	dead := pipe.LLen(ctx, q.key(deadKeyPrefix))
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, err
	}
	return Stats{Ready: ready.Val(), InFlight: inflight.Val(), Dead: dead.Val()}, nil
}

// DeadLetters returns the bodies moved aside after too many deliveries, newest first.
func (q *Redis) DeadLetters(ctx context.Context, limit int64) ([][]byte, error) {
	vals, err := q.redis.LRange(ctx, q.key(deadKeyPrefix), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (q *Redis) claim(ctx context.Context, max int) ([]Message, error) {
	res, err := claimScript.Run(ctx, q.redis,
		[]string{
			q.key(readyKeyPrefix),
			q.key(inflightKeyPrefix),
			q.key(bodiesKeyPrefix),
			q.key(receivesKeyPrefix),
			q.key(deadKeyPrefix),
		},
		q.now().UnixMilli(),
		q.opts.Visibility.Milliseconds(),
		max,
		q.opts.MaxReceive,
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", q.name, err)
	}
	msgs := make([]Message, 0, len(res)/3)
	for i := 0; i+2 < len(res); i += 3 {
		id, _ := res[i].(string)
		body, _ := res[i+1].(string)
		count, _ := res[i+2].(int64)
		msgs = append(msgs, Message{
			Body:         []byte(body),
			Receipt:      id + ":" + strconv.FormatInt(count, 10),
			ReceiveCount: int(count),
		})
	}
	return msgs, nil
}

func (q *Redis) key(prefix string) string {
	return fmt.Sprintf(prefix, q.name)
}
