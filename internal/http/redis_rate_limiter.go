package httpx

import (
	"context"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

const redisLimiterPrefix = "backendless:ratelimit:"

type redisRateLimiter struct {
	client  redis.UniversalClient
	logger  *slog.Logger
	timeout time.Duration
}

// NewRedisRateLimiter shares counters across API replicas. The client stays
// owned by the caller. Redis failures fail open.
func NewRedisRateLimiter(client redis.UniversalClient, logger *slog.Logger) RateLimiter {
	return &redisRateLimiter{client: client, logger: logger, timeout: 250 * time.Millisecond}
}

func (rl *redisRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()

	redisKey := redisLimiterPrefix + key
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.ExpireNX(ctx, redisKey, window)
		ttl = pipe.PTTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		if rl.logger != nil {
			rl.logger.Error("redis rate limiter error", "key", key, "error", err)
		}
		return rateDecision{allowed: true}
	}
	remaining := ttl.Val()
	if remaining <= 0 {
		remaining = window
	}
	count := int(incr.Val())
	return rateDecision{
		allowed:   count <= limit,
		count:     count,
		windowEnd: time.Now().Add(remaining),
	}
}

func (rl *redisRateLimiter) Close() {}
