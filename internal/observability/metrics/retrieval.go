package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docuquery/retrieval-engine/internal/core/domain"
)

// RetrievalMetrics holds every collector on a private registry so tests can
// build as many instances as they need without collisions.
type RetrievalMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	retrievalTotal        *prometheus.CounterVec
	retrievalDuration     *prometheus.HistogramVec
	retrievedChunks       *prometheus.HistogramVec
	roundsFailedTotal     *prometheus.CounterVec
	hydeActivationsTotal  *prometheus.CounterVec
	fallbackTriggered     *prometheus.CounterVec
	fallbackImprovedTotal *prometheus.CounterVec
	noContextTotal        *prometheus.CounterVec
}

func NewRetrievalMetrics(service string) *RetrievalMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dqre",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dqre",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dqre",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	retrievalTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dqre",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total completed retrievals by chosen strategy.",
		},
		[]string{"service", "strategy"},
	)
	retrievalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dqre",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "End-to-end retrieval duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "strategy"},
	)
	retrievedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dqre",
			Subsystem: "retrieval",
			Name:      "retrieved_chunks",
			Help:      "Distribution of chunks returned per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	roundsFailedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dqre",
			Subsystem: "retrieval",
			Name:      "rounds_failed_total",
			Help:      "Total degraded multihop rounds.",
		},
		[]string{"service"},
	)
	hydeActivationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dqre",
			Subsystem: "hyde",
			Name:      "activations_total",
			Help:      "Total retrievals that ran hypothetical passage search.",
		},
		[]string{"service"},
	)
	fallbackTriggered := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dqre",
			Subsystem: "hyde",
			Name:      "fallback_triggered_total",
			Help:      "Total confidence fallbacks attempted.",
		},
		[]string{"service"},
	)
	fallbackImprovedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dqre",
			Subsystem: "hyde",
			Name:      "fallback_improved_total",
			Help:      "Total confidence fallbacks whose result was accepted.",
		},
		[]string{"service"},
	)
	noContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dqre",
			Subsystem: "retrieval",
			Name:      "no_context_total",
			Help:      "Total retrievals that returned zero chunks.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		retrievalTotal,
		retrievalDuration,
		retrievedChunks,
		roundsFailedTotal,
		hydeActivationsTotal,
		fallbackTriggered,
		fallbackImprovedTotal,
		noContextTotal,
	)

	return &RetrievalMetrics{
		registry:              registry,
		requestTotal:          requestTotal,
		requestDuration:       requestDuration,
		requestInFlight:       requestInFlight,
		retrievalTotal:        retrievalTotal,
		retrievalDuration:     retrievalDuration,
		retrievedChunks:       retrievedChunks,
		roundsFailedTotal:     roundsFailedTotal,
		hydeActivationsTotal:  hydeActivationsTotal,
		fallbackTriggered:     fallbackTriggered,
		fallbackImprovedTotal: fallbackImprovedTotal,
		noContextTotal:        noContextTotal,
	}
}

func (m *RetrievalMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *RetrievalMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// RecordRetrieval observes one completed retrieval.
func (m *RetrievalMetrics) RecordRetrieval(service string, result *domain.RetrievalResult, duration time.Duration) {
	strategy := string(result.Strategy)
	if strategy == "" {
		strategy = "unknown"
	}

	m.retrievalTotal.WithLabelValues(service, strategy).Inc()
	m.retrievalDuration.WithLabelValues(service, strategy).Observe(duration.Seconds())
	m.retrievedChunks.WithLabelValues(service).Observe(float64(len(result.Chunks)))

	if result.Stats.RoundsFailed > 0 {
		m.roundsFailedTotal.WithLabelValues(service).Add(float64(result.Stats.RoundsFailed))
	}
	if result.Hyde.Used {
		m.hydeActivationsTotal.WithLabelValues(service).Inc()
	}
	if result.Hyde.FallbackTriggered {
		m.fallbackTriggered.WithLabelValues(service).Inc()
	}
	if result.Hyde.FallbackAccepted {
		m.fallbackImprovedTotal.WithLabelValues(service).Inc()
	}
	if len(result.Chunks) == 0 {
		m.noContextTotal.WithLabelValues(service).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
