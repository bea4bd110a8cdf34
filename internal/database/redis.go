package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"counselmeet-backend/pkg/logger"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

var (
	redisDegradedMode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redis_degraded_mode",
		Help: "Indicates if Redis is in degraded mode (1 = degraded, 0 = healthy)",
	})
	redisHealthChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redis_health_check_total",
		Help: "Total number of Redis health checks",
	}, []string{"result"})
)

// errDegraded is returned by every command issued while Redis is degraded
var errDegraded = fmt.Errorf("redis is in degraded mode")

// RedisClient wraps Redis client with degraded mode support.
// Its command methods fail fast while degraded instead of waiting on timeouts.
type RedisClient struct {
	Client *redis.Client

	degradedMu    sync.RWMutex
	degraded      bool
	healthCheckMu sync.Mutex
}

// NewRedisDB creates a Redis client and probes it once.
// An unreachable server is not an error: the client starts degraded.
func NewRedisDB(ctx context.Context, cfg *RedisConfig) *RedisClient {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		DialTimeout:  cfg.Timeout,
	})

	r := &RedisClient{Client: client}
	if err := r.HealthCheck(ctx); err != nil {
		logger.Warn("Redis unavailable at startup, running degraded", zap.Error(err))
	}
	return r
}

// Close closes the Redis client connection
func (r *RedisClient) Close() error {
	return r.Client.Close()
}

// StartHealthCheck probes Redis every interval until ctx is done
func (r *RedisClient) StartHealthCheck(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = r.HealthCheck(ctx)
			}
		}
	}()
}

// IsDegraded returns true if Redis is in degraded mode
func (r *RedisClient) IsDegraded() bool {
	r.degradedMu.RLock()
	defer r.degradedMu.RUnlock()
	return r.degraded
}

func (r *RedisClient) setDegraded(degraded bool) {
	r.degradedMu.Lock()
	defer r.degradedMu.Unlock()

	if r.degraded == degraded {
		return
	}
	r.degraded = degraded
	if degraded {
		redisDegradedMode.Set(1)
		logger.Warn("Redis entered degraded mode")
	} else {
		redisDegradedMode.Set(0)
		logger.Info("Redis recovered from degraded mode")
	}
}

// HealthCheck pings Redis and updates degraded mode.
// Concurrent checks are serialized.
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	r.healthCheckMu.Lock()
	defer r.healthCheckMu.Unlock()

	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := r.Client.Ping(healthCtx).Err(); err != nil {
		redisHealthChecks.WithLabelValues("failed").Inc()
		r.setDegraded(true)
		return fmt.Errorf("redis health check failed: %w", err)
	}

	redisHealthChecks.WithLabelValues("ok").Inc()
	r.setDegraded(false)
	return nil
}

// Exists performs an EXISTS operation with degraded mode handling
func (r *RedisClient) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	if r.IsDegraded() {
		return redis.NewIntResult(0, fmt.Errorf("exists skipped: %w", errDegraded))
	}
	return r.Client.Exists(ctx, keys...)
}

// Incr performs an INCR operation with degraded mode handling
func (r *RedisClient) Incr(ctx context.Context, key string) *redis.IntCmd {
	if r.IsDegraded() {
		return redis.NewIntResult(0, fmt.Errorf("incr skipped: %w", errDegraded))
	}
	return r.Client.Incr(ctx, key)
}

// TTL performs a TTL operation with degraded mode handling
func (r *RedisClient) TTL(ctx context.Context, key string) *redis.DurationCmd {
	if r.IsDegraded() {
		return redis.NewDurationResult(0, fmt.Errorf("ttl skipped: %w", errDegraded))
	}
	return r.Client.TTL(ctx, key)
}

// Expire performs an EXPIRE operation with degraded mode handling
func (r *RedisClient) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	if r.IsDegraded() {
		return redis.NewBoolResult(false, fmt.Errorf("expire skipped: %w", errDegraded))
	}
	return r.Client.Expire(ctx, key, expiration)
}

// LPush performs an LPUSH operation with degraded mode handling
func (r *RedisClient) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	if r.IsDegraded() {
		return redis.NewIntResult(0, fmt.Errorf("lpush skipped: %w", errDegraded))
	}
	return r.Client.LPush(ctx, key, values...)
}

// LRange performs an LRANGE operation with degraded mode handling
func (r *RedisClient) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	if r.IsDegraded() {
		return redis.NewStringSliceResult(nil, fmt.Errorf("lrange skipped: %w", errDegraded))
	}
	return r.Client.LRange(ctx, key, start, stop)
}
