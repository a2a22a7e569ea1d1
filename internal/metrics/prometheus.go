package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leetquery_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leetquery_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	queryExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leetquery_query_executions_total",
			Help: "Statements executed, by leading keyword and outcome",
		},
		[]string{"query_type", "outcome"},
	)

	queryExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leetquery_query_execution_duration_seconds",
			Help:    "Statement execution time in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 15},
		},
		[]string{"category"},
	)

	rateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leetquery_rate_limit_decisions_total",
			Help: "Token bucket decisions by policy",
		},
		[]string{"policy", "decision"},
	)

	authFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leetquery_auth_failures_total",
			Help: "Requests refused by the identity gate",
		},
		[]string{"reason"},
	)

	validationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leetquery_validation_failures_total",
			Help: "Inputs rejected by field validation",
		},
		[]string{"field"},
	)

	queryLogDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leetquery_query_log_dropped_total",
			Help: "Audit records dropped because the buffer was full",
		},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "leetquery_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"name"},
	)

	dependencyUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "leetquery_dependency_up",
			Help: "Whether the last health check of a dependency succeeded",
		},
		[]string{"dependency"},
	)
)

func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func RecordQueryExecution(queryType, category, outcome string, duration time.Duration) {
	queryExecutionsTotal.WithLabelValues(queryType, outcome).Inc()
	queryExecutionDuration.WithLabelValues(category).Observe(duration.Seconds())
}

func RecordRateLimit(policy string, allowed bool) {
	decision := "allowed"
	if !allowed {
		decision = "rejected"
	}
	rateLimitDecisions.WithLabelValues(policy, decision).Inc()
}

func RecordAuthFailure(reason string) {
	authFailures.WithLabelValues(reason).Inc()
}

func RecordValidationFailure(field string) {
	validationFailures.WithLabelValues(field).Inc()
}

func RecordQueryLogDropped() {
	queryLogDropped.Inc()
}

func SetBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}

func SetDependencyUp(dependency string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	dependencyUp.WithLabelValues(dependency).Set(v)
}

// Handler returns the Prometheus metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}
