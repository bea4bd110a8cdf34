package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Storage and request metrics for monitoring query performance and reliability
var (
	CassandraQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cassandra_query_duration_seconds",
		Help:    "Cassandra query latency in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"operation", "table"})

	CassandraQueryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cassandra_query_total",
		Help: "Total number of Cassandra queries executed",
	}, []string{"operation", "table", "status"})

	CassandraWriteErrorTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cassandra_write_error_total",
		Help: "Total number of Cassandra write errors",
	}, []string{"table", "error_type"})

	CassandraReadErrorTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cassandra_read_error_total",
		Help: "Total number of Cassandra read errors",
	}, []string{"table", "error_type"})

	// CockroachDB connection pool metrics
	DBConnectionsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "db_connections_in_use",
		Help: "Current number of database connections in use",
	})

	DBConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "db_connections_idle",
		Help: "Current number of idle database connections",
	})

	// Request timeout metrics
	RequestTimeoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "request_timeout_total",
		Help: "Total number of request timeouts",
	})

	RequestTimeoutDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "request_timeout_duration_seconds",
		Help:    "Request timeout duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "path"})

	// Redis fallback metrics
	RedisFallbackHitTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redis_fallback_hits_total",
		Help: "Total number of requests served by an in-memory fallback while Redis was unavailable",
	})
)

// RecordCassandraQueryDuration records the duration of a Cassandra query
func RecordCassandraQueryDuration(operation, table string, duration float64) {
	CassandraQueryDuration.WithLabelValues(operation, table).Observe(duration)
}

// RecordCassandraQuery records a Cassandra query execution
func RecordCassandraQuery(operation, table, status string) {
	CassandraQueryTotal.WithLabelValues(operation, table, status).Inc()
}

// RecordCassandraWriteError records a Cassandra write error
func RecordCassandraWriteError(table, errorType string) {
	CassandraWriteErrorTotal.WithLabelValues(table, errorType).Inc()
}

// RecordCassandraReadError records a Cassandra read error
func RecordCassandraReadError(table, errorType string) {
	CassandraReadErrorTotal.WithLabelValues(table, errorType).Inc()
}

// RecordDBConnections sets the pool gauges
func RecordDBConnections(inUse, idle int) {
	DBConnectionsInUse.Set(float64(inUse))
	DBConnectionsIdle.Set(float64(idle))
}

// RecordRequestTimeout records a request timeout
func RecordRequestTimeout(duration time.Duration, method, path string) {
	RequestTimeoutTotal.Inc()
	RequestTimeoutDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRedisFallbackHit records a request served by an in-memory fallback
func RecordRedisFallbackHit() {
	RedisFallbackHitTotal.Inc()
}
