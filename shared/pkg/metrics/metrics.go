package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of one service. Every Record
// method is safe on a nil receiver so components can run without metrics.
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Kafka metrics
	KafkaEventsPublished *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec

	// Storage metrics
	StorageOperations        *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec

	// Outbox metrics
	OutboxPending   prometheus.Gauge
	OutboxPublished *prometheus.CounterVec
	OutboxRetries   *prometheus.CounterVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec

	// Ledger metrics
	HoldsTotal        *prometheus.CounterVec
	HoldUnitsTotal    *prometheus.CounterVec
	VersionConflicts  prometheus.Counter
	ExpirySweepPurged prometheus.Counter
	ExpirySweepRuns   *prometheus.CounterVec

	// Saga metrics
	SagasTotal        *prometheus.CounterVec
	SagaDuration      *prometheus.HistogramVec
	SagaStepDuration  *prometheus.HistogramVec
	SagaCompensations *prometheus.CounterVec
	SagaFinalizes     *prometheus.CounterVec

	// Payment metrics
	PaymentsTotal *prometheus.CounterVec

	// Idempotency metrics
	IdempotentReplays prometheus.Counter
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "commerce",
	}
}

// New creates a Metrics instance backed by its own registry
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	ns := config.Namespace
	constLabels := prometheus.Labels{"service": config.ServiceName}

	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"service", "method", "path", "status"})

	m.HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"service", "method", "path"})

	m.HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Name:        "http_requests_in_flight",
		Help:        "Number of HTTP requests currently being processed",
		ConstLabels: constLabels,
	})

	m.KafkaEventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "kafka_events_published_total",
		Help:      "Total number of Kafka events published",
	}, []string{"service", "topic", "event_type", "status"})

	m.KafkaPublishDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "kafka_publish_duration_seconds",
		Help:      "Kafka publish duration in seconds",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"service", "topic"})

	m.StorageOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "storage_operations_total",
		Help:      "Total number of storage operations",
	}, []string{"service", "backend", "collection", "operation", "status"})

	m.StorageOperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "storage_operation_duration_seconds",
		Help:      "Storage operation duration in seconds",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"service", "backend", "collection", "operation"})

	m.OutboxPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Name:        "outbox_pending_events",
		Help:        "Unpublished events found by the last outbox poll",
		ConstLabels: constLabels,
	})

	m.OutboxPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "outbox_publish_total",
		Help:      "Outbox publish attempts by outcome",
	}, []string{"service", "event_type", "status"})

	m.OutboxRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "outbox_retries_total",
		Help:      "Outbox events scheduled for retry",
	}, []string{"service", "event_type"})

	m.CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"service", "name"})

	m.CircuitBreakerTrips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "circuit_breaker_trips_total",
		Help:      "Total number of circuit breaker trips",
	}, []string{"service", "name"})

	m.HoldsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "inventory_holds_total",
		Help:      "Hold lifecycle transitions (placed, rejected, released, finalized, expired)",
	}, []string{"service", "outcome"})

	m.HoldUnitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "inventory_hold_units_total",
		Help:      "Units moved through hold lifecycle transitions",
	}, []string{"service", "outcome"})

	m.VersionConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   ns,
		Name:        "inventory_version_conflicts_total",
		Help:        "Optimistic concurrency conflicts on item writes",
		ConstLabels: constLabels,
	})

	m.ExpirySweepPurged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   ns,
		Name:        "inventory_expiry_sweep_purged_total",
		Help:        "Expired holds purged by the background sweeper",
		ConstLabels: constLabels,
	})

	m.ExpirySweepRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "inventory_expiry_sweep_runs_total",
		Help:      "Background sweep passes by outcome",
	}, []string{"service", "status"})

	m.SagasTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "purchase_sagas_total",
		Help:      "Purchase sagas by terminal state and failed step",
	}, []string{"service", "state", "failed_step"})

	m.SagaDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "purchase_saga_duration_seconds",
		Help:      "End to end purchase saga duration",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"service", "state"})

	m.SagaStepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "purchase_saga_step_duration_seconds",
		Help:      "Duration of each remote saga step",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"service", "step", "status"})

	m.SagaCompensations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "purchase_saga_compensations_total",
		Help:      "Compensating releases issued by the saga",
	}, []string{"service", "status"})

	m.SagaFinalizes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "purchase_saga_finalizes_total",
		Help:      "Finalize rounds run for paid sagas",
	}, []string{"service", "status"})

	m.PaymentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "payments_total",
		Help:      "Payments by status",
	}, []string{"service", "status", "method"})

	m.IdempotentReplays = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   ns,
		Name:        "idempotent_replays_total",
		Help:        "Responses replayed for a repeated Idempotency-Key",
		ConstLabels: constLabels,
	})

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.KafkaEventsPublished,
		m.KafkaPublishDuration,
		m.StorageOperations,
		m.StorageOperationDuration,
		m.OutboxPending,
		m.OutboxPublished,
		m.OutboxRetries,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
		m.HoldsTotal,
		m.HoldUnitsTotal,
		m.VersionConflicts,
		m.ExpirySweepPurged,
		m.ExpirySweepRuns,
		m.SagasTotal,
		m.SagaDuration,
		m.SagaStepDuration,
		m.SagaCompensations,
		m.SagaFinalizes,
		m.PaymentsTotal,
		m.IdempotentReplays,
	)

	return m
}

// Handler returns an HTTP handler for metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments in-flight requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements in-flight requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Dec()
}

// RecordKafkaPublish records a Kafka publish event
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, statusLabel(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// RecordStorageOperation records a MongoDB or Postgres call
func (m *Metrics) RecordStorageOperation(backend, collection, operation string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.StorageOperations.WithLabelValues(m.serviceName, backend, collection, operation, statusLabel(success)).Inc()
	m.StorageOperationDuration.WithLabelValues(m.serviceName, backend, collection, operation).Observe(duration.Seconds())
}

// SetOutboxPending records how many events the last poll found
func (m *Metrics) SetOutboxPending(count int) {
	if m == nil {
		return
	}
	m.OutboxPending.Set(float64(count))
}

// RecordOutboxPublish records one outbox publish attempt
func (m *Metrics) RecordOutboxPublish(eventType string, success bool, _ time.Duration) {
	if m == nil {
		return
	}
	m.OutboxPublished.WithLabelValues(m.serviceName, eventType, statusLabel(success)).Inc()
}

// RecordOutboxRetry records an event scheduled for another attempt
func (m *Metrics) RecordOutboxRetry(eventType string) {
	if m == nil {
		return
	}
	m.OutboxRetries.WithLabelValues(m.serviceName, eventType).Inc()
}

// SetCircuitBreakerState sets the circuit breaker state
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	if m == nil {
		return
	}
	m.CircuitBreakerTrips.WithLabelValues(m.serviceName, name).Inc()
}

// RecordHold records a hold transition and the units it moved
func (m *Metrics) RecordHold(outcome string, units int) {
	if m == nil {
		return
	}
	m.HoldsTotal.WithLabelValues(m.serviceName, outcome).Inc()
	if units > 0 {
		m.HoldUnitsTotal.WithLabelValues(m.serviceName, outcome).Add(float64(units))
	}
}

// RecordVersionConflict records an optimistic concurrency conflict
func (m *Metrics) RecordVersionConflict() {
	if m == nil {
		return
	}
	m.VersionConflicts.Inc()
}

// RecordExpirySweep records one background sweep pass
func (m *Metrics) RecordExpirySweep(purged int, success bool) {
	if m == nil {
		return
	}
	m.ExpirySweepRuns.WithLabelValues(m.serviceName, statusLabel(success)).Inc()
	m.ExpirySweepPurged.Add(float64(purged))
}

// RecordSaga records a finished purchase saga
func (m *Metrics) RecordSaga(state, failedStep string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SagasTotal.WithLabelValues(m.serviceName, state, failedStep).Inc()
	m.SagaDuration.WithLabelValues(m.serviceName, state).Observe(duration.Seconds())
}

// RecordSagaStep records the duration and outcome of one saga step
func (m *Metrics) RecordSagaStep(step string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.SagaStepDuration.WithLabelValues(m.serviceName, step, statusLabel(success)).Observe(duration.Seconds())
}

// RecordCompensation records a compensating release
func (m *Metrics) RecordCompensation(success bool) {
	if m == nil {
		return
	}
	m.SagaCompensations.WithLabelValues(m.serviceName, statusLabel(success)).Inc()
}

// RecordSagaFinalize records one finalize round of a paid saga
func (m *Metrics) RecordSagaFinalize(success bool) {
	if m == nil {
		return
	}
	m.SagaFinalizes.WithLabelValues(m.serviceName, statusLabel(success)).Inc()
}

// RecordPayment records a processed payment
func (m *Metrics) RecordPayment(status, method string) {
	if m == nil {
		return
	}
	m.PaymentsTotal.WithLabelValues(m.serviceName, status, method).Inc()
}

// RecordIdempotentReplay records a replayed response
func (m *Metrics) RecordIdempotentReplay() {
	if m == nil {
		return
	}
	m.IdempotentReplays.Inc()
}
