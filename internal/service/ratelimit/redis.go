package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrLuaScript increments the window key and sets its TTL on creation, so
// stale windows expire on their own.
const incrLuaScript = `
local n = redis.call("INCR", KEYS[1])
if n == 1 then
    redis.call("EXPIRE", KEYS[1], tonumber(ARGV[1]))
end
return n
`

// RedisCounter stores one key per identity and minute.
type RedisCounter struct {
	client *redis.Client
	script *redis.Script
	prefix string
}

// NewRedisCounter creates a counter with keys under prefix.
func NewRedisCounter(client *redis.Client, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "ratelimit:subscribe"
	}
	return &RedisCounter{client: client, script: redis.NewScript(incrLuaScript), prefix: prefix}
}

// Key returns the Redis key for identity and window.
func (c *RedisCounter) Key(identity string, window time.Time) string {
	return fmt.Sprintf("%s:%s:min:%d", c.prefix, identity, window.Unix()/60)
}

func (c *RedisCounter) Incr(ctx context.Context, identity string, window time.Time) (int64, error) {
	n, err := c.script.Run(ctx, c.client, []string{c.Key(identity, window)}, 120).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return n, nil
}
