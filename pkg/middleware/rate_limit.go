package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	apperrors "inventory-service/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RateCounter counts hits per key in fixed windows.
type RateCounter interface {
	// Increment adds a hit to key's current window and returns the count so
	// far. The window starts on the first hit.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

type InMemoryRateCounter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	now     func() time.Time
}

type rateWindow struct {
	count     int64
	expiresAt time.Time
}

func NewInMemoryRateCounter() *InMemoryRateCounter {
	return &InMemoryRateCounter{windows: make(map[string]*rateWindow), now: time.Now}
}

func (r *InMemoryRateCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	w, ok := r.windows[key]
	if !ok || now.After(w.expiresAt) {
		w = &rateWindow{expiresAt: now.Add(window)}
		r.windows[key] = w
	}
	w.count++
	return w.count, nil
}

type RedisRateCounter struct {
	client *redis.Client
}

func NewRedisRateCounter(client *redis.Client) *RedisRateCounter {
	return &RedisRateCounter{client: client}
}

func (r *RedisRateCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	key = "ratelimit:" + key
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// RateLimiter allows limit requests per client IP and route per minute and
// answers 429 past it. Counter errors fail open.
func RateLimiter(counter RateCounter, limit int, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}

		key := c.FullPath() + ":" + c.ClientIP()
		count, err := counter.Increment(c.Request.Context(), key, time.Minute)
		if err != nil {
			logger.Warn("Rate limit counter unavailable", zap.Error(err))
			c.Next()
			return
		}

		remaining := int64(limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(limit) {
			logger.Warn("Rate limit exceeded",
				zap.String("ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path),
			)
			c.Header("Retry-After", "60")
			stdErr := apperrors.NewTooManyRequests(limit)
			c.AbortWithStatusJSON(stdErr.HTTPStatus(), stdErr)
			return
		}
		c.Next()
	}
}
