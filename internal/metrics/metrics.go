package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Outbound API metrics
	apiCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "twooter_api_call_duration_seconds",
			Help:    "Twooter API call duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"class", "method", "status_code"},
	)

	rateLimitRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twooter_rate_limit_retries_total",
			Help: "Total number of backoff sleeps caused by rate limiting",
		},
		[]string{"class"},
	)

	rateLimitExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twooter_rate_limit_exhausted_total",
			Help: "Total number of calls that stayed rate limited after every retry",
		},
		[]string{"class"},
	)

	// Authentication metrics
	authStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twooter_auth_steps_total",
			Help: "Authentication fallback steps by outcome",
		},
		[]string{"step", "outcome"}, // succeeded/failed/skipped
	)

	// Credential store metrics
	storeOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twooter_credential_store_operations_total",
			Help: "Total number of credential store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	storeOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "twooter_credential_store_operation_duration_seconds",
			Help:    "Credential store operation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"backend", "operation"},
	)

	// Façade metrics
	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twooter_actions_total",
			Help: "Total number of bot actions by result",
		},
		[]string{"action", "result"},
	)

	registerOnce sync.Once
)

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() error {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			apiCallDuration,
			rateLimitRetriesTotal,
			rateLimitExhaustedTotal,
			authStepsTotal,
			storeOperationsTotal,
			storeOperationDuration,
			actionsTotal,
		)
	})
	return nil
}

// RecordAPICall records metrics for a Twooter API call
func RecordAPICall(class, method string, statusCode int, duration time.Duration) {
	apiCallDuration.WithLabelValues(class, method, strconv.Itoa(statusCode)).Observe(duration.Seconds())
}

// RecordRateLimitRetry records one backoff sleep
func RecordRateLimitRetry(class string) {
	rateLimitRetriesTotal.WithLabelValues(class).Inc()
}

// RecordRateLimitExhausted records a call that ran out of retries
func RecordRateLimitExhausted(class string) {
	rateLimitExhaustedTotal.WithLabelValues(class).Inc()
}

// RecordAuthStep records the outcome of one authentication step
func RecordAuthStep(step, outcome string) {
	authStepsTotal.WithLabelValues(step, outcome).Inc()
}

// RecordStoreOperation records credential store operations
func RecordStoreOperation(backend, operation, status string, duration time.Duration) {
	storeOperationsTotal.WithLabelValues(backend, operation, status).Inc()
	storeOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordAction records a façade action result
func RecordAction(action, result string) {
	actionsTotal.WithLabelValues(action, result).Inc()
}

// PrometheusHandler returns the Prometheus metrics handler
func PrometheusHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
