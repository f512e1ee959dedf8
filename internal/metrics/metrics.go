package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics (gateway side)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_server_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_server_requests_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status_code"},
	)

	// Client-side action metrics: one dispatched action is one pending to
	// resolved transition in the state store.
	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_actions_total",
			Help: "Total number of dispatched store actions",
		},
		[]string{"action", "status"}, // register/login/lend/..., success/failure
	)

	gatewayCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_call_duration_seconds",
			Help:    "Lending gateway call duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"method", "path", "status_code"},
	)

	// Lending metrics (gateway side)
	lendingOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lending_operations_total",
			Help: "Total number of lend/return operations",
		},
		[]string{"operation", "status"}, // lend/return, success/failure
	)

	activeBorrows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lending_active_borrows",
			Help: "Number of borrow records not yet returned",
		},
	)
)

// Init registers all metrics with the default registry
func Init() error {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		actionsTotal,
		gatewayCallDuration,
		lendingOperationsTotal,
		activeBorrows,
	)

	return nil
}

// HTTPMetricsMiddleware records HTTP metrics
func HTTPMetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		// Process request
		err := c.Next()

		// Record metrics
		duration := time.Since(start).Seconds()
		method := c.Method()
		route := c.Route().Path
		if route == "" {
			route = c.Path()
		}
		statusCode := strconv.Itoa(c.Response().StatusCode())

		httpRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
		httpRequestDuration.WithLabelValues(method, route, statusCode).Observe(duration)

		return err
	}
}

// RecordAction records a resolved store action
func RecordAction(action, status string) {
	actionsTotal.WithLabelValues(action, status).Inc()
}

// RecordGatewayCall records metrics for a lending gateway call
func RecordGatewayCall(method, path string, statusCode int, duration time.Duration) {
	statusStr := strconv.Itoa(statusCode)
	gatewayCallDuration.WithLabelValues(method, path, statusStr).Observe(duration.Seconds())
}

// RecordLendingOperation records lend/return outcomes
func RecordLendingOperation(operation, status string) {
	lendingOperationsTotal.WithLabelValues(operation, status).Inc()
}

// SetActiveBorrows updates the active borrow gauge
func SetActiveBorrows(n int) {
	activeBorrows.Set(float64(n))
}

// PrometheusHandler returns the Prometheus metrics handler
func PrometheusHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
