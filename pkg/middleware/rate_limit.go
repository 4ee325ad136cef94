package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/researchlab/labsite/internal/admin"
	"github.com/researchlab/labsite/pkg/logger"
	"github.com/researchlab/labsite/pkg/metrics"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more request under key fits its budget. When it
// does not, retryAfter says how long the caller should wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)
}

// limiterKey prefers the authenticated admin, then the client IP.
func limiterKey(c *gin.Context) string {
	if sub, ok := admin.Principal(c.Request.Context()); ok {
		return "sub:" + sub
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

// RateLimit rejects requests over the limiter's budget with 429. name labels the
// allowed/rejected counters. A limiter error fails the request with 500.
func RateLimit(l Limiter, name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, retry, err := l.Allow(c.Request.Context(), limiterKey(c))
		if err != nil {
			logger.Errorf("rate limit check failed: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Rate limit check failed"})
			return
		}
		if !ok {
			secs := int(math.Ceil(retry.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			metrics.RateLimitRejected.WithLabelValues(name).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "Rate limit exceeded"})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues(name).Inc()
		c.Next()
	}
}

// MemoryLimiter is a token bucket per key, local to this process.
// rps = allowed events per second, burst = maximum tokens in a bucket.
type MemoryLimiter struct {
	rps     rate.Limit
	burst   int
	buckets sync.Map // map[string]*rate.Limiter
}

func NewMemoryLimiter(rps float64, burst int) *MemoryLimiter {
	if burst < 1 {
		burst = 1
	}
	return &MemoryLimiter{rps: rate.Limit(rps), burst: burst}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	v, ok := m.buckets.Load(key)
	if !ok {
		v, _ = m.buckets.LoadOrStore(key, rate.NewLimiter(m.rps, m.burst))
	}
	lim := v.(*rate.Limiter)
	if lim.Allow() {
		return true, 0, nil
	}
	if m.rps <= 0 {
		return false, time.Minute, nil
	}
	return false, time.Duration(float64(time.Second) / float64(m.rps)), nil
}

// RateLimitMiddleware is RateLimit over a fresh MemoryLimiter.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	return RateLimit(NewMemoryLimiter(rps, burst), "memory")
}
