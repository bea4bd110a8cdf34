package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"counselmeet-backend/pkg/logger"
	"counselmeet-backend/pkg/metrics"
)

// Timeout bounds the request context of REST handlers.
// Handlers observe the deadline through c.Request.Context(); the websocket
// route must not use it since the connection outlives the upgrade request.
func Timeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			duration := time.Since(start)
			metrics.RecordRequestTimeout(duration, c.Request.Method, c.FullPath())
			logger.Warn("Request exceeded its deadline",
				zap.Duration("timeout", timeout),
				zap.Duration("duration", duration),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path))
		}
	}
}
