package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	// Allow reports whether the request fits the window, the remaining
	// budget and when the window resets.
	Allow(ctx context.Context, key string) (bool, int, time.Time, error)
	Reset(ctx context.Context, key string) error
	WithLimit(maxAttempts int64, window time.Duration) RateLimiter
}

// RedisRateLimiter keeps the counters in Redis so every API instance shares
// one budget per device.
type RedisRateLimiter struct {
	client      *redis.Client
	prefix      string
	window      time.Duration
	maxAttempts int64
	now         func() time.Time
}

func NewRedisRateLimiter(client *redis.Client, window time.Duration, maxAttempts int64) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:      client,
		prefix:      "fieldtrack:ratelimit:",
		window:      window,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

func (rl *RedisRateLimiter) WithLimit(maxAttempts int64, window time.Duration) RateLimiter {
	return &RedisRateLimiter{
		client:      rl.client,
		prefix:      rl.prefix,
		window:      window,
		maxAttempts: maxAttempts,
		now:         rl.now,
	}
}

func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, int, time.Time, error) {
	windowStart := rl.now().Truncate(rl.window)
	resetTime := windowStart.Add(rl.window)
	redisKey := fmt.Sprintf("%s%s:%d", rl.prefix, key, windowStart.Unix())

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireAt(ctx, redisKey, resetTime)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limiter error: %w", err)
	}

	count := incr.Val()
	remaining := rl.maxAttempts - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= rl.maxAttempts, int(remaining), resetTime, nil
}

// Reset clears the current window for key.
func (rl *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	windowStart := rl.now().Truncate(rl.window)
	return rl.client.Del(ctx, fmt.Sprintf("%s%s:%d", rl.prefix, key, windowStart.Unix())).Err()
}

func (rl *RedisRateLimiter) GetWindow() time.Duration {
	return rl.window
}

func (rl *RedisRateLimiter) GetMaxAttempts() int64 {
	return rl.maxAttempts
}
