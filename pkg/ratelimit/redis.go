package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisLimiter shares counters between replicas. When Redis is unreachable
// it falls back to a per-process window so submissions keep flowing.
type RedisLimiter struct {
	client   redis.UniversalClient
	limit    int
	window   time.Duration
	prefix   string
	timeout  time.Duration
	fallback *InMemoryLimiter
	logger   *slog.Logger
}

// NewRedis returns a limiter backed by client.
func NewRedis(client redis.UniversalClient, limit int, window time.Duration, logger *slog.Logger) *RedisLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLimiter{
		client:   client,
		limit:    limit,
		window:   window,
		prefix:   "gating:rl:",
		timeout:  2 * time.Second,
		fallback: NewInMemory(limit, window),
		logger:   logger,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) Decision {
	if l.client == nil {
		return l.fallback.Allow(ctx, key)
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	res, err := rateLimitScript.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil || len(res) < 2 {
		l.logger.Warn("rate limiter falling back to in-memory window", "error", err)
		return l.fallback.Allow(ctx, key)
	}
	count, ttlMs := res[0], res[1]
	if ttlMs < 0 {
		ttlMs = l.window.Milliseconds()
	}
	return decide(int(count), l.limit, time.Now().UTC().Add(time.Duration(ttlMs)*time.Millisecond))
}
