package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Prediction metrics
	PredictionRequestsTotal *prometheus.CounterVec
	PredictionDuration      *prometheus.HistogramVec
	PredictionErrorsTotal   *prometheus.CounterVec
	PredictionAccuracy      *prometheus.HistogramVec

	// Per-model metrics
	ModelDuration    *prometheus.HistogramVec
	ModelErrorsTotal *prometheus.CounterVec
	ModelFallbacks   *prometheus.CounterVec

	// Backtest metrics
	BacktestRequestsTotal *prometheus.CounterVec
	BacktestDuration      *prometheus.HistogramVec
	BacktestRMSE          *prometheus.HistogramVec

	// External API metrics
	ExternalAPIRequestsTotal *prometheus.CounterVec
	ExternalAPIErrorsTotal   *prometheus.CounterVec
	ExternalAPIDuration      *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryTotal    *prometheus.CounterVec
	DBErrorsTotal   *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// defaultBuckets are the default histogram buckets for duration metrics (in seconds)
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// accuracyBuckets are histogram buckets for model accuracy scores (0 to 1)
var accuracyBuckets = []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}

// rmseBuckets are histogram buckets for backtest RMSE in price units
var rmseBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100}

// globalMetrics is the global metrics instance
var globalMetrics *Metrics

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	m := &Metrics{
		// Prediction metrics
		PredictionRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stock_forecast",
				Subsystem: "prediction",
				Name:      "requests_total",
				Help:      "Total number of forecast requests",
			},
			[]string{"symbol"},
		),
		PredictionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stock_forecast",
				Subsystem: "prediction",
				Name:      "duration_seconds",
				Help:      "Duration of forecast requests in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"symbol", "status"},
		),
		PredictionErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stock_forecast",
				Subsystem: "prediction",
				Name:      "errors_total",
				Help:      "Total number of forecast errors",
			},
			[]string{"symbol", "error_type"},
		),
		PredictionAccuracy: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stock_forecast",
				Subsystem: "prediction",
				Name:      "accuracy_score",
				Help:      "Distribution of model accuracy scores",
				Buckets:   accuracyBuckets,
			},
			[]string{"model"},
		),

		// Per-model metrics
		ModelDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stock_forecast",
				Subsystem: "model",
				Name:      "duration_seconds",
				Help:      "Duration of individual model runs in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"model"},
		),
		ModelErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stock_forecast",
				Subsystem: "model",
				Name:      "errors_total",
				Help:      "Total number of model errors",
			},
			[]string{"model", "error_type"},
		),
		ModelFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stock_forecast",
				Subsystem: "model",
				Name:      "fallbacks_total",
				Help:      "Total number of forecasts served by a fallback method",
			},
			[]string{"model"},
		),

		// Backtest metrics
		BacktestRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stock_forecast",
				Subsystem: "backtest",
				Name:      "requests_total",
				Help:      "Total number of backtest requests",
			},
			[]string{"symbol"},
		),
		BacktestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stock_forecast",
				Subsystem: "backtest",
				Name:      "duration_seconds",
				Help:      "Duration of backtest runs in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"model"},
		),
		BacktestRMSE: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stock_forecast",
				Subsystem: "backtest",
				Name:      "rmse",
				Help:      "Distribution of walk-forward RMSE per model",
				Buckets:   rmseBuckets,
			},
			[]string{"model"},
		),

		// External API metrics
		ExternalAPIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stock_forecast",
				Subsystem: "external_api",
				Name:      "requests_total",
				Help:      "Total number of external API requests",
			},
			[]string{"service", "operation"},
		),
		ExternalAPIErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stock_forecast",
				Subsystem: "external_api",
				Name:      "errors_total",
				Help:      "Total number of external API errors",
			},
			[]string{"service", "operation", "error_type"},
		),
		ExternalAPIDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stock_forecast",
				Subsystem: "external_api",
				Name:      "duration_seconds",
				Help:      "Duration of external API calls in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"service", "operation"},
		),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stock_forecast",
				Subsystem: "database",
				Name:      "query_duration_seconds",
				Help:      "Duration of database queries in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"operation", "table"},
		),
		DBQueryTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stock_forecast",
				Subsystem: "database",
				Name:      "queries_total",
				Help:      "Total number of database queries",
			},
			[]string{"operation", "table"},
		),
		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stock_forecast",
				Subsystem: "database",
				Name:      "errors_total",
				Help:      "Total number of database errors",
			},
			[]string{"operation", "table"},
		),

		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stock_forecast",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stock_forecast",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stock_forecast",
				Subsystem: "http",
				Name:      "response_size_bytes",
				Help:      "Size of HTTP responses in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),

		// Circuit breaker metrics
		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "stock_forecast",
				Subsystem: "circuit_breaker",
				Name:      "state",
				Help:      "Current state of circuit breakers (0=closed, 1=half-open, 2=open)",
			},
			[]string{"service"},
		),
		CircuitBreakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stock_forecast",
				Subsystem: "circuit_breaker",
				Name:      "trips_total",
				Help:      "Total number of circuit breaker trips",
			},
			[]string{"service"},
		),
	}

	return m
}

// InitMetrics initializes the global metrics instance
func InitMetrics() *Metrics {
	globalMetrics = NewMetrics(nil)
	return globalMetrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	if globalMetrics == nil {
		return InitMetrics()
	}
	return globalMetrics
}

// RecordPredictionRequest records a forecast request
func (m *Metrics) RecordPredictionRequest(symbol string) {
	m.PredictionRequestsTotal.WithLabelValues(symbol).Inc()
}

// RecordPredictionDuration records the duration of a forecast request
func (m *Metrics) RecordPredictionDuration(symbol, status string, duration time.Duration) {
	m.PredictionDuration.WithLabelValues(symbol, status).Observe(duration.Seconds())
}

// RecordPredictionError records a forecast error
func (m *Metrics) RecordPredictionError(symbol, errorType string) {
	m.PredictionErrorsTotal.WithLabelValues(symbol, errorType).Inc()
}

// RecordPredictionAccuracy records a model's reported accuracy score
func (m *Metrics) RecordPredictionAccuracy(model string, accuracy float64) {
	m.PredictionAccuracy.WithLabelValues(model).Observe(accuracy)
}

// RecordModelDuration records the duration of one model run
func (m *Metrics) RecordModelDuration(model string, duration time.Duration) {
	m.ModelDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordModelError records a model error
func (m *Metrics) RecordModelError(model, errorType string) {
	m.ModelErrorsTotal.WithLabelValues(model, errorType).Inc()
}

// RecordModelFallback records a forecast served by a fallback method
func (m *Metrics) RecordModelFallback(model string) {
	m.ModelFallbacks.WithLabelValues(model).Inc()
}

// RecordBacktestRequest records a backtest request
func (m *Metrics) RecordBacktestRequest(symbol string) {
	m.BacktestRequestsTotal.WithLabelValues(symbol).Inc()
}

// RecordBacktestDuration records the duration of one backtest run
func (m *Metrics) RecordBacktestDuration(model string, duration time.Duration) {
	m.BacktestDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordBacktestRMSE records a backtest's walk-forward RMSE
func (m *Metrics) RecordBacktestRMSE(model string, rmse float64) {
	m.BacktestRMSE.WithLabelValues(model).Observe(rmse)
}

// RecordExternalAPIRequest records an external API request
func (m *Metrics) RecordExternalAPIRequest(service, operation string) {
	m.ExternalAPIRequestsTotal.WithLabelValues(service, operation).Inc()
}

// RecordExternalAPIError records an external API error
func (m *Metrics) RecordExternalAPIError(service, operation, errorType string) {
	m.ExternalAPIErrorsTotal.WithLabelValues(service, operation, errorType).Inc()
}

// RecordExternalAPIDuration records the duration of an external API call
func (m *Metrics) RecordExternalAPIDuration(service, operation string, duration time.Duration) {
	m.ExternalAPIDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordDBQuery records a database query
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration) {
	m.DBQueryTotal.WithLabelValues(operation, table).Inc()
	m.DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordDBError records a database error
func (m *Metrics) RecordDBError(operation, table string) {
	m.DBErrorsTotal.WithLabelValues(operation, table).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, duration time.Duration, responseSize int) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// SetCircuitBreakerState sets the current state of a circuit breaker
func (m *Metrics) SetCircuitBreakerState(service string, state int) {
	m.CircuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(service string) {
	m.CircuitBreakerTrips.WithLabelValues(service).Inc()
}

// Timer is a helper for timing operations
type Timer struct {
	start   time.Time
	metrics *Metrics
}

// NewTimer creates a new timer
func (m *Metrics) NewTimer() *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: m,
	}
}

// ObservePrediction records the forecast duration and status
func (t *Timer) ObservePrediction(symbol, status string) {
	t.metrics.RecordPredictionDuration(symbol, status, time.Since(t.start))
}

// ObserveModel records one model run's duration
func (t *Timer) ObserveModel(model string) {
	t.metrics.RecordModelDuration(model, time.Since(t.start))
}

// ObserveBacktest records one backtest run's duration
func (t *Timer) ObserveBacktest(model string) {
	t.metrics.RecordBacktestDuration(model, time.Since(t.start))
}

// ObserveExternalAPI records the external API duration
func (t *Timer) ObserveExternalAPI(service, operation string) {
	t.metrics.RecordExternalAPIDuration(service, operation, time.Since(t.start))
}

// ObserveDB records the database query duration
func (t *Timer) ObserveDB(operation, table string) {
	t.metrics.RecordDBQuery(operation, table, time.Since(t.start))
}

// Duration returns the elapsed time
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
