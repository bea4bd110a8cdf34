package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"counselmeet-backend/pkg/logger"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState string

const (
	CircuitBreakerClosed   CircuitBreakerState = "closed"
	CircuitBreakerHalfOpen CircuitBreakerState = "half_open"
	CircuitBreakerOpen     CircuitBreakerState = "open"
)

// ErrCircuitOpen is returned without calling the operation while the breaker is open
var ErrCircuitOpen = errors.New("circuit breaker open")

// Config tunes retries and the breaker
type Config struct {
	// Name labels metrics and logs, e.g. "minio"
	Name             string
	FailureThreshold int
	CoolDown         time.Duration
	MaxAttempts      int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
}

// DefaultConfig returns the settings used for object storage
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 3,
		CoolDown:         10 * time.Second,
		MaxAttempts:      3,
		InitialBackoff:   100 * time.Millisecond,
		MaxBackoff:       5 * time.Second,
	}
}

// Breaker wraps calls to a flaky dependency with retry and a circuit breaker
type Breaker struct {
	cfg Config

	mu                  sync.Mutex
	state               CircuitBreakerState
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool

	now func() time.Time
}

// breakerMetrics tracks operations per breaker
type breakerMetrics struct {
	requestsTotal       *prometheus.CounterVec
	errorsTotal         *prometheus.CounterVec
	circuitBreakerState *prometheus.GaugeVec
}

var (
	metricsInstance *breakerMetrics
	metricsOnce     sync.Once
)

func registerMetrics() *breakerMetrics {
	metricsOnce.Do(func() {
		metricsInstance = &breakerMetrics{
			requestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "resilience_requests_total",
					Help: "Total number of operations run through a circuit breaker",
				},
				[]string{"breaker", "operation", "status"},
			),
			errorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "resilience_errors_total",
					Help: "Total number of failed attempts by error class",
				},
				[]string{"breaker", "operation", "error_type"},
			),
			circuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "resilience_circuit_breaker_state",
				Help: "State of the circuit breaker (0=closed, 1=half_open, 2=open)",
			}, []string{"breaker"}),
		}
		prometheus.MustRegister(metricsInstance.requestsTotal)
		prometheus.MustRegister(metricsInstance.errorsTotal)
		prometheus.MustRegister(metricsInstance.circuitBreakerState)
	})
	return metricsInstance
}

// NewBreaker creates a closed breaker
func NewBreaker(cfg Config) *Breaker {
	def := DefaultConfig(cfg.Name)
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = def.CoolDown
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	registerMetrics()
	return &Breaker{cfg: cfg, state: CircuitBreakerClosed, now: time.Now}
}

// Execute runs fn with linear backoff between attempts. Attempts stop early when the
// breaker opens or ctx ends.
func (b *Breaker) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	m := registerMetrics()

	var lastErr error
	for attempt := 1; attempt <= b.cfg.MaxAttempts; attempt++ {
		if !b.allow() {
			m.requestsTotal.WithLabelValues(b.cfg.Name, operation, "circuit_breaker_open").Inc()
			if lastErr != nil {
				return fmt.Errorf("%w after %d attempts: %v", ErrCircuitOpen, attempt-1, lastErr)
			}
			return ErrCircuitOpen
		}

		if attempt > 1 {
			logger.Warn("Retrying operation",
				zap.String("breaker", b.cfg.Name),
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
		}

		err := fn(ctx)
		if err == nil {
			b.onSuccess()
			m.requestsTotal.WithLabelValues(b.cfg.Name, operation, "success").Inc()
			return nil
		}

		lastErr = err
		b.onFailure(operation)
		m.errorsTotal.WithLabelValues(b.cfg.Name, operation, classifyError(err)).Inc()

		if attempt == b.cfg.MaxAttempts {
			break
		}

		backoff := time.Duration(attempt) * b.cfg.InitialBackoff
		if backoff > b.cfg.MaxBackoff {
			backoff = b.cfg.MaxBackoff
		}
		select {
		case <-ctx.Done():
			m.requestsTotal.WithLabelValues(b.cfg.Name, operation, "failure").Inc()
			return fmt.Errorf("%s canceled after %d attempts: %w", operation, attempt, lastErr)
		case <-time.After(backoff):
		}
	}

	m.requestsTotal.WithLabelValues(b.cfg.Name, operation, "failure").Inc()
	return fmt.Errorf("%s failed after %d attempts: %w", operation, b.cfg.MaxAttempts, lastErr)
}

// allow reports whether a call may proceed. An open breaker lets a single trial through once the cool-down elapsed.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitBreakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.CoolDown {
			return false
		}
		b.setState(CircuitBreakerHalfOpen)
		b.trialInFlight = true
		return true
	case CircuitBreakerHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	}
	return true
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.trialInFlight = false
	if b.state != CircuitBreakerClosed {
		logger.Info("Circuit breaker closed", zap.String("breaker", b.cfg.Name))
		b.setState(CircuitBreakerClosed)
	}
}

func (b *Breaker) onFailure(operation string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures++
	b.trialInFlight = false
	if b.state == CircuitBreakerHalfOpen || b.consecutiveFailures >= b.cfg.FailureThreshold {
		if b.state != CircuitBreakerOpen {
			logger.Error("Circuit breaker opened",
				zap.String("breaker", b.cfg.Name),
				zap.String("operation", operation),
				zap.Int("consecutive_failures", b.consecutiveFailures))
		}
		b.openedAt = b.now()
		b.setState(CircuitBreakerOpen)
	}
}

// setState must be called with b.mu held
func (b *Breaker) setState(s CircuitBreakerState) {
	b.state = s
	v := 0.0
	switch s {
	case CircuitBreakerHalfOpen:
		v = 1
	case CircuitBreakerOpen:
		v = 2
	}
	registerMetrics().circuitBreakerState.WithLabelValues(b.cfg.Name).Set(v)
}

// State returns the current circuit breaker state
func (b *Breaker) State() CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// classifyError classifies errors for better metrics
func classifyError(err error) string {
	if err == nil {
		return "none"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "network unreachable"):
		return "network"
	case strings.Contains(errMsg, "no such host") || strings.Contains(errMsg, "dns"):
		return "dns"
	case strings.Contains(errMsg, "bucket") && strings.Contains(errMsg, "not exist"),
		strings.Contains(errMsg, "not found"):
		return "not_found"
	case strings.Contains(errMsg, "permission denied") || strings.Contains(errMsg, "access denied"):
		return "permission"
	default:
		return "unknown"
	}
}
