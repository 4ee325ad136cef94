package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "labsite:rl:"

// RedisLimiter is a coarse fixed-window limiter shared by every instance of the
// service. Each key may make floor(rps*window)+burst requests per window.
type RedisLimiter struct {
	client    *redis.Client
	window    time.Duration
	perWindow int64
	now       func() time.Time
}

func NewRedisLimiter(client *redis.Client, rps float64, burst int, window time.Duration) *RedisLimiter {
	if window < time.Second {
		window = time.Second
	}
	window = window.Truncate(time.Second)
	return &RedisLimiter{
		client:    client,
		window:    window,
		perWindow: int64(rps*window.Seconds()) + int64(burst),
		now:       time.Now,
	}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	secs := int64(r.window / time.Second)
	now := r.now()
	bucket := now.Unix() / secs
	redisKey := fmt.Sprintf("%s%s:%d", rateLimitPrefix, key, bucket)

	cnt, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, err
	}
	if cnt == 1 {
		// one extra second so a slow clock never reuses a live key
		_ = r.client.Expire(ctx, redisKey, r.window+time.Second).Err()
	}
	if cnt > r.perWindow {
		end := time.Unix((bucket+1)*secs, 0)
		return false, end.Sub(now), nil
	}
	return true, 0, nil
}

// RedisRateLimitMiddleware is RateLimit over a RedisLimiter, falling back to the
// in-process limiter when no client is configured.
func RedisRateLimitMiddleware(client *redis.Client, rps float64, burst int, window time.Duration) gin.HandlerFunc {
	if client == nil {
		return RateLimitMiddleware(rps, burst)
	}
	return RateLimit(NewRedisLimiter(client, rps, burst, window), "redis")
}
