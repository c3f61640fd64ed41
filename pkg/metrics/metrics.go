package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all cold-room service metrics
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Store metrics
	StoreOperations        *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec

	// Event delivery metrics
	KafkaEventsPublished  *prometheus.CounterVec
	KafkaPublishDuration  *prometheus.HistogramVec
	OutboxPending         prometheus.Gauge
	OutboxPublishDuration *prometheus.HistogramVec
	OutboxRetries         *prometheus.CounterVec

	// Business metrics
	BoxesLoaded          *prometheus.CounterVec
	PalletsAssembled     *prometheus.CounterVec
	PalletsDissolved     *prometheus.CounterVec
	RepackedBoxes        *prometheus.CounterVec
	ColdRoomTemperature  *prometheus.GaugeVec
	TemperatureExcursion *prometheus.CounterVec
	RecordDecodeFailures *prometheus.CounterVec
	GroupLockWait        *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
	Subsystem   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "wms",
		Subsystem:   "coldroom",
	}
}

// New creates a new Metrics instance backed by its own registry
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}
	ns, sub := config.Namespace, config.Subsystem

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total", Help: "Total number of HTTP requests"},
		[]string{"service", "method", "path", "action", "status"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method", "path", "action"},
	)
	m.HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Name:        "http_requests_in_flight",
		Help:        "Number of HTTP requests currently being processed",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})

	m.StoreOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "store_operations_total", Help: "Total number of store operations"},
		[]string{"service", "backend", "target", "operation", "status"},
	)
	m.StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "store_operation_duration_seconds",
			Help:      "Store operation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"service", "backend", "target", "operation"},
	)

	m.KafkaEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "kafka_events_published_total", Help: "Total number of Kafka events published"},
		[]string{"service", "topic", "event_type", "status"},
	)
	m.KafkaPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "kafka_publish_duration_seconds",
			Help:      "Kafka publish duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"service", "topic"},
	)
	m.OutboxPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Name:        "outbox_pending_events",
		Help:        "Unpublished events seen in the last outbox poll",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})
	m.OutboxPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "outbox_publish_duration_seconds",
			Help:      "Outbox event publish duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"service", "event_type", "status"},
	)
	m.OutboxRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "outbox_retries_total", Help: "Outbox publish retries"},
		[]string{"service", "event_type"},
	)

	m.BoxesLoaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Subsystem: sub, Name: "boxes_loaded_total", Help: "Box units loaded into cold rooms"},
		[]string{"service", "cold_room", "variety", "box_type"},
	)
	m.PalletsAssembled = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Subsystem: sub, Name: "pallets_assembled_total", Help: "Manual pallets assembled"},
		[]string{"service", "cold_room"},
	)
	m.PalletsDissolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Subsystem: sub, Name: "pallets_dissolved_total", Help: "Pallets dissolved back into loose boxes"},
		[]string{"service", "cold_room"},
	)
	m.RepackedBoxes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Subsystem: sub, Name: "repacked_boxes_total", Help: "Box units removed or returned by repacking"},
		[]string{"service", "cold_room", "direction"},
	)
	m.ColdRoomTemperature = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: ns, Subsystem: sub, Name: "temperature_celsius", Help: "Last recorded cold room temperature"},
		[]string{"service", "cold_room"},
	)
	m.TemperatureExcursion = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Subsystem: sub, Name: "temperature_excursions_total", Help: "Temperature readings outside the configured range"},
		[]string{"service", "cold_room"},
	)
	m.RecordDecodeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Subsystem: sub, Name: "record_decode_failures_total", Help: "Persisted JSON documents that failed to decode"},
		[]string{"service", "field"},
	)
	m.GroupLockWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "group_lock_wait_seconds",
			Help:      "Time spent acquiring group locks",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"service", "operation", "status"},
	)

	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: ns, Name: "circuit_breaker_state", Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)"},
		[]string{"service", "name"},
	)
	m.CircuitBreakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "circuit_breaker_trips_total", Help: "Total number of circuit breaker trips"},
		[]string{"service", "name"},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.StoreOperations,
		m.StoreOperationDuration,
		m.KafkaEventsPublished,
		m.KafkaPublishDuration,
		m.OutboxPending,
		m.OutboxPublishDuration,
		m.OutboxRetries,
		m.BoxesLoaded,
		m.PalletsAssembled,
		m.PalletsDissolved,
		m.RepackedBoxes,
		m.ColdRoomTemperature,
		m.TemperatureExcursion,
		m.RecordDecodeFailures,
		m.GroupLockWait,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
	)

	return m
}

// Handler returns an HTTP handler for metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
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
func (m *Metrics) RecordHTTPRequest(method, path, action string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, action, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path, action).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments in-flight requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements in-flight requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// RecordStoreOperation records a call against the backing store
func (m *Metrics) RecordStoreOperation(backend, target, operation string, success bool, duration time.Duration) {
	m.StoreOperations.WithLabelValues(m.serviceName, backend, target, operation, statusLabel(success)).Inc()
	m.StoreOperationDuration.WithLabelValues(m.serviceName, backend, target, operation).Observe(duration.Seconds())
}

// RecordKafkaPublish records a Kafka publish event
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, statusLabel(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// SetOutboxPending sets the number of unpublished outbox events
func (m *Metrics) SetOutboxPending(count int) {
	m.OutboxPending.Set(float64(count))
}

// RecordOutboxPublish records an outbox publish attempt
func (m *Metrics) RecordOutboxPublish(eventType string, success bool, duration time.Duration) {
	m.OutboxPublishDuration.WithLabelValues(m.serviceName, eventType, statusLabel(success)).Observe(duration.Seconds())
}

// RecordOutboxRetry records an outbox retry
func (m *Metrics) RecordOutboxRetry(eventType string) {
	m.OutboxRetries.WithLabelValues(m.serviceName, eventType).Inc()
}

// RecordBoxesLoaded records box units loaded into a cold room
func (m *Metrics) RecordBoxesLoaded(coldRoom, variety, boxType string, quantity int) {
	m.BoxesLoaded.WithLabelValues(m.serviceName, coldRoom, variety, boxType).Add(float64(quantity))
}

// RecordPalletAssembled records a manual pallet assembly
func (m *Metrics) RecordPalletAssembled(coldRoom string) {
	m.PalletsAssembled.WithLabelValues(m.serviceName, coldRoom).Inc()
}

// RecordPalletDissolved records a pallet dissolution
func (m *Metrics) RecordPalletDissolved(coldRoom string) {
	m.PalletsDissolved.WithLabelValues(m.serviceName, coldRoom).Inc()
}

// RecordRepackedBoxes records units removed or returned by a repacking
func (m *Metrics) RecordRepackedBoxes(coldRoom, direction string, quantity int) {
	m.RepackedBoxes.WithLabelValues(m.serviceName, coldRoom, direction).Add(float64(quantity))
}

// SetColdRoomTemperature sets the last temperature reading for a cold room
func (m *Metrics) SetColdRoomTemperature(coldRoom string, celsius float64) {
	m.ColdRoomTemperature.WithLabelValues(m.serviceName, coldRoom).Set(celsius)
}

// RecordTemperatureExcursion records an out-of-range temperature reading
func (m *Metrics) RecordTemperatureExcursion(coldRoom string) {
	m.TemperatureExcursion.WithLabelValues(m.serviceName, coldRoom).Inc()
}

// RecordDecodeFailure records a persisted JSON field that failed to decode
func (m *Metrics) RecordDecodeFailure(field string) {
	m.RecordDecodeFailures.WithLabelValues(m.serviceName, field).Inc()
}

// RecordGroupLockWait records how long an operation waited for its group locks
func (m *Metrics) RecordGroupLockWait(operation string, success bool, duration time.Duration) {
	m.GroupLockWait.WithLabelValues(m.serviceName, operation, statusLabel(success)).Observe(duration.Seconds())
}

// SetCircuitBreakerState sets the circuit breaker state
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	m.CircuitBreakerTrips.WithLabelValues(m.serviceName, name).Inc()
}
