package context

import (
	"context"
	"time"
)

// Default timeouts for different operations
const (
	// DefaultTimeout bounds one REST request
	DefaultTimeout = 30 * time.Second

	// ShortTimeout is for quick probes like health checks and schema setup
	ShortTimeout = 5 * time.Second

	// ShutdownTimeout bounds graceful shutdown, encoder finalization included
	ShutdownTimeout = 45 * time.Second
)

// WithShortTimeout creates a context with a short timeout
func WithShortTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ShortTimeout)
}

// WithShutdownTimeout returns a context for shutdown work. It is detached from
// parent's cancellation, which has usually already fired when shutdown starts.
func WithShutdownTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), ShutdownTimeout)
}
