package middleware

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"counselmeet-backend/pkg/errors"
	"counselmeet-backend/pkg/logger"
	"counselmeet-backend/pkg/metrics"
	"counselmeet-backend/pkg/response"
)

// counterStore is the subset of the Redis client a fixed window needs
type counterStore interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// RateLimiterConfig configures a fixed-window limiter
type RateLimiterConfig struct {
	// Store may be nil, in which case only the in-memory window is used
	Store counterStore
	// Degraded reports whether Store should be bypassed
	Degraded func() bool
	Prefix   string
	Requests int
	Window   time.Duration
	// Metrics is optional
	Metrics *metrics.Metrics
}

// RateLimiter counts requests per user (or per IP for anonymous callers) in fixed windows.
// It falls back to an in-process window while Redis is degraded or failing.
type RateLimiter struct {
	cfg      RateLimiterConfig
	fallback *InMemoryRateLimiter
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "ratelimit"
	}
	return &RateLimiter{
		cfg:      cfg,
		fallback: NewInMemoryRateLimiter(),
	}
}

// Middleware returns a Gin middleware for rate limiting
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := "ip:" + c.ClientIP()
		if userID, exists := c.Get("user_id"); exists {
			identifier = fmt.Sprintf("user:%v", userID)
		}

		allowed, remaining, resetAt := rl.Allow(c.Request.Context(), identifier)

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			if rl.cfg.Metrics != nil {
				rl.cfg.Metrics.RecordRateLimitBlocked(c.FullPath())
			}
			c.Header("Retry-After", strconv.Itoa(int(time.Until(resetAt).Seconds())+1))
			response.FromError(c, errors.RateLimitExceededError())
			c.Abort()
			return
		}

		c.Next()
	}
}

// Allow counts one request for identifier and reports whether it fits the window
func (rl *RateLimiter) Allow(ctx context.Context, identifier string) (bool, int, time.Time) {
	if rl.cfg.Store != nil {
		if rl.cfg.Degraded == nil || !rl.cfg.Degraded() {
			allowed, remaining, resetAt, err := rl.checkRedis(ctx, identifier)
			if err == nil {
				return allowed, remaining, resetAt
			}
			logger.Warn("Redis rate limit check failed, using in-memory window",
				zap.Error(err),
				zap.String("identifier", identifier))
		}
		metrics.RecordRedisFallbackHit()
	}
	return rl.fallback.Check(identifier, rl.cfg.Requests, rl.cfg.Window)
}

func (rl *RateLimiter) checkRedis(ctx context.Context, identifier string) (bool, int, time.Time, error) {
	key := rl.cfg.Prefix + ":" + identifier

	count, err := rl.cfg.Store.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	ttl, err := rl.cfg.Store.TTL(ctx, key).Result()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("failed to read rate limit ttl: %w", err)
	}
	// First hit of a window, or a key left without expiry
	if count == 1 || ttl < 0 {
		if err := rl.cfg.Store.Expire(ctx, key, rl.cfg.Window).Err(); err != nil {
			return false, 0, time.Time{}, fmt.Errorf("failed to set rate limit window: %w", err)
		}
		ttl = rl.cfg.Window
	}

	remaining := rl.cfg.Requests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return int(count) <= rl.cfg.Requests, remaining, time.Now().Add(ttl), nil
}

// InMemoryRateLimiter provides in-memory rate limiting as fallback when Redis is degraded
type InMemoryRateLimiter struct {
	mu     sync.Mutex
	limits map[string]*windowCount
	now    func() time.Time
}

type windowCount struct {
	count   int
	resetAt time.Time
}

// pruneThreshold bounds how many identifiers are kept before expired windows are dropped
const pruneThreshold = 10000

// NewInMemoryRateLimiter creates a new in-memory rate limiter
func NewInMemoryRateLimiter() *InMemoryRateLimiter {
	return &InMemoryRateLimiter{
		limits: make(map[string]*windowCount),
		now:    time.Now,
	}
}

// Check counts one request and returns whether it is allowed, the remaining budget and the window reset time
func (im *InMemoryRateLimiter) Check(identifier string, requests int, window time.Duration) (bool, int, time.Time) {
	im.mu.Lock()
	defer im.mu.Unlock()

	now := im.now()
	if len(im.limits) > pruneThreshold {
		for id, w := range im.limits {
			if !now.Before(w.resetAt) {
				delete(im.limits, id)
			}
		}
	}

	w, ok := im.limits[identifier]
	if !ok || !now.Before(w.resetAt) {
		w = &windowCount{resetAt: now.Add(window)}
		im.limits[identifier] = w
	}
	w.count++

	remaining := requests - w.count
	if remaining < 0 {
		remaining = 0
	}
	return w.count <= requests, remaining, w.resetAt
}
