package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript counts hits for KEYS[1] and starts the window on the first
// hit. It returns the remaining allowance, or -1 once the limit is exceeded.
const fixedWindowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local limit = tonumber(ARGV[2])
if current > limit then
  return -1
end
return limit - current
`

// Limiter is a fixed window rate limiter shared across instances through Redis.
type Limiter struct {
	client redis.Scripter
	script *redis.Script
	prefix string
}

// NewLimiter builds a limiter storing counters under prefix. A nil client
// yields a limiter that allows everything.
func NewLimiter(client redis.Scripter, prefix string) *Limiter {
	return &Limiter{client: client, script: redis.NewScript(fixedWindowScript), prefix: prefix}
}

// Allow records one hit for key and reports whether it is within limit for the
// current window, along with the remaining allowance. Redis failures fail open.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	if l == nil || l.client == nil || key == "" || limit <= 0 || window <= 0 {
		return true, limit, nil
	}
	ttl := window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}

	ctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()

	remaining, err := l.script.Run(ctx, l.client, []string{l.prefix + key}, ttl, limit).Int64()
	if err != nil {
		return true, limit, err
	}
	if remaining < 0 {
		return false, 0, nil
	}
	return true, int(remaining), nil
}
