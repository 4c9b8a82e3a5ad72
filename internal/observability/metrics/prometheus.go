// Package metrics provides Prometheus metrics for the dictation services.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Extraction sources
const (
	SourceAPI       = "api"
	SourceDictation = "dictation"
	SourceWorker    = "worker"
)

// Metrics holds all application metrics
type Metrics struct {
	ExtractionsTotal       *prometheus.CounterVec
	ExtractionsFailed      *prometheus.CounterVec
	ExtractionDuration     prometheus.Histogram
	RecordsPerExtraction   prometheus.Histogram
	RecordsExtracted       prometheus.Counter
	VocabularySize         prometheus.Gauge
	SuggestionRequests     *prometheus.CounterVec
	PrescriptionsCreated   prometheus.Counter
	PrescriptionsFinalized prometheus.Counter
	HTTPRequestDuration    *prometheus.HistogramVec
	KafkaMessagesProduced  prometheus.Counter
	KafkaMessagesConsumed  prometheus.Counter
	OutboxPending          prometheus.Gauge
	CircuitBreakerState    *prometheus.GaugeVec
}

// New creates all metrics and registers them with reg. A nil reg uses the
// default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		ExtractionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "extractions_total",
			Help: "Total extraction calls",
		}, []string{"source"}),
		ExtractionsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "extractions_failed_total",
			Help: "Extraction calls that returned an error",
		}, []string{"reason"}),
		ExtractionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "extraction_duration_seconds",
			Help:    "Time spent matching and extracting one transcript",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		RecordsPerExtraction: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "extraction_records",
			Help:    "Records returned per extraction",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		}),
		RecordsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extraction_records_total",
			Help: "Total prescription records extracted",
		}),
		VocabularySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "medicine_vocabulary_size",
			Help: "Medicines in the loaded vocabulary",
		}),
		SuggestionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "suggestion_requests_total",
			Help: "Medicine suggestion calls by outcome",
		}, []string{"outcome"}),
		PrescriptionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescriptions_created_total",
			Help: "Total prescriptions created",
		}),
		PrescriptionsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescriptions_finalized_total",
			Help: "Total prescriptions finalized",
		}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		KafkaMessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total Kafka messages produced",
		}),
		KafkaMessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Total Kafka messages consumed",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.ExtractionsTotal,
		m.ExtractionsFailed,
		m.ExtractionDuration,
		m.RecordsPerExtraction,
		m.RecordsExtracted,
		m.VocabularySize,
		m.SuggestionRequests,
		m.PrescriptionsCreated,
		m.PrescriptionsFinalized,
		m.HTTPRequestDuration,
		m.KafkaMessagesProduced,
		m.KafkaMessagesConsumed,
		m.OutboxPending,
		m.CircuitBreakerState,
	)

	return m
}

// ObserveExtraction records one finished extraction
func (m *Metrics) ObserveExtraction(source string, records int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ExtractionsTotal.WithLabelValues(source).Inc()
	m.ExtractionDuration.Observe(elapsed.Seconds())
	m.RecordsPerExtraction.Observe(float64(records))
	m.RecordsExtracted.Add(float64(records))
}

// ObserveExtractionError records a failed extraction
func (m *Metrics) ObserveExtractionError(source, reason string) {
	if m == nil {
		return
	}
	m.ExtractionsTotal.WithLabelValues(source).Inc()
	m.ExtractionsFailed.WithLabelValues(reason).Inc()
}

// ObserveRequest records one HTTP request
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// SetBreakerState exports a breaker state as 0, 1 or 2
func (m *Metrics) SetBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(state)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
