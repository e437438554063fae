// Package metrics provides Prometheus instrumentation for the disputes service.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "disputes",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "disputes",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// DisputesOpenedTotal counts disputes opened.
	DisputesOpenedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "disputes",
		Name:      "opened_total",
		Help:      "Total disputes opened.",
	})

	// PhaseTransitionsTotal counts phase transitions by target phase and trigger.
	PhaseTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "disputes",
			Name:      "phase_transitions_total",
			Help:      "Total dispute phase transitions by target phase and trigger (party|scheduler|fallback).",
		},
		[]string{"phase", "trigger"},
	)

	// TransitionConflictsTotal counts optimistic-concurrency losses.
	TransitionConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "disputes",
		Name:      "transition_conflicts_total",
		Help:      "Total phase transitions lost to the optimistic-concurrency guard.",
	})

	// DisputesResolvedTotal counts terminal outcomes by kind.
	DisputesResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "disputes",
			Name:      "resolved_total",
			Help:      "Total disputes reaching a terminal phase, by outcome kind.",
		},
		[]string{"outcome"},
	)

	// DisputeDuration observes time from open to terminal phase.
	DisputeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "disputes",
		Name:      "duration_seconds",
		Help:      "Time from dispute open to terminal phase in seconds.",
		Buckets:   []float64{3600, 21600, 43200, 86400, 172800, 345600, 432000, 604800},
	})

	// MediatorCallsTotal counts AI capability calls by operation and result.
	MediatorCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "disputes",
			Name:      "mediator_calls_total",
			Help:      "Total mediation capability calls by operation (options|decision) and result.",
		},
		[]string{"operation", "result"},
	)

	// FeeChargesTotal counts dispute fee charge attempts by kind and status.
	FeeChargesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "disputes",
			Name:      "fee_charges_total",
			Help:      "Total dispute fee charges by kind (open|escalation) and status.",
		},
		[]string{"kind", "status"},
	)

	// SettlementsTotal counts escrow settlements by result.
	SettlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "disputes",
			Name:      "settlements_total",
			Help:      "Total escrow settlement attempts by result.",
		},
		[]string{"result"},
	)

	// SchedulerTicksTotal counts scheduler passes.
	SchedulerTicksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "disputes",
		Name:      "scheduler_ticks_total",
		Help:      "Total scheduler ticks.",
	})

	// OpenDisputes tracks disputes currently in a non-terminal phase.
	OpenDisputes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "disputes",
		Name:      "open",
		Help:      "Number of disputes currently in a non-terminal phase.",
	})

	// WebhookDeliveriesTotal counts webhook delivery attempts by result.
	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "disputes",
			Name:      "webhook_deliveries_total",
			Help:      "Total webhook deliveries by result.",
		},
		[]string{"result"},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "disputes", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "disputes", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "disputes", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "disputes", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		DisputesOpenedTotal,
		PhaseTransitionsTotal,
		TransitionConflictsTotal,
		DisputesResolvedTotal,
		DisputeDuration,
		MediatorCallsTotal,
		FeeChargesTotal,
		SettlementsTotal,
		SchedulerTicksTotal,
		OpenDisputes,
		WebhookDeliveriesTotal,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
