package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	retrievalHitTotal       *prometheus.CounterVec
	retrievalNoContextTotal *prometheus.CounterVec
	retrievedResults        *prometheus.HistogramVec
	agentRunsTotal          *prometheus.CounterVec
	agentIterations         *prometheus.HistogramVec
	agentSearches           *prometheus.HistogramVec
	agentToolCallsTotal     *prometheus.CounterVec
	sourceRejectionsTotal   *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pra",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pra",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pra",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	retrievalHitTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pra",
			Subsystem: "retrieval",
			Name:      "hit_total",
			Help:      "Total answers backed by at least one retrieved record.",
		},
		[]string{"service", "endpoint"},
	)
	retrievalNoContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pra",
			Subsystem: "retrieval",
			Name:      "no_context_total",
			Help:      "Total answers produced without retrieved records.",
		},
		[]string{"service", "endpoint"},
	)
	retrievedResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pra",
			Subsystem: "retrieval",
			Name:      "results",
			Help:      "Distribution of cited records per answer.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		},
		[]string{"service", "endpoint"},
	)
	agentRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pra",
			Subsystem: "agent",
			Name:      "runs_total",
			Help:      "Total completed agent runs by outcome.",
		},
		[]string{"service", "endpoint", "outcome"},
	)
	agentIterations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pra",
			Subsystem: "agent",
			Name:      "iterations",
			Help:      "Distribution of planner loop iterations per run.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
		[]string{"service", "endpoint"},
	)
	agentSearches := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pra",
			Subsystem: "agent",
			Name:      "searches",
			Help:      "Distribution of knowledge searches per run.",
			Buckets:   []float64{0, 1, 2},
		},
		[]string{"service", "endpoint"},
	)
	agentToolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pra",
			Subsystem: "agent",
			Name:      "tool_calls_total",
			Help:      "Total tool calls performed by the agent.",
		},
		[]string{"service", "tool", "status"},
	)
	sourceRejectionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pra",
			Subsystem: "sources",
			Name:      "rejections_total",
			Help:      "Total citations rejected by source validation.",
		},
		[]string{"service", "endpoint"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		retrievalHitTotal,
		retrievalNoContextTotal,
		retrievedResults,
		agentRunsTotal,
		agentIterations,
		agentSearches,
		agentToolCallsTotal,
		sourceRejectionsTotal,
	)

	return &HTTPServerMetrics{
		registry:                registry,
		requestTotal:            requestTotal,
		requestDuration:         requestDuration,
		requestInFlight:         requestInFlight,
		retrievalHitTotal:       retrievalHitTotal,
		retrievalNoContextTotal: retrievalNoContextTotal,
		retrievedResults:        retrievedResults,
		agentRunsTotal:          agentRunsTotal,
		agentIterations:         agentIterations,
		agentSearches:           agentSearches,
		agentToolCallsTotal:     agentToolCallsTotal,
		sourceRejectionsTotal:   sourceRejectionsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
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
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/knowledge/records/"):
		return "/v1/knowledge/records/{record_id}"
	default:
		return path
	}
}

// RecordAnswer observes one finished answer: how many records it cited and
// whether any retrieval backed it.
func (m *HTTPServerMetrics) RecordAnswer(service, endpoint string, sourceCount int) {
	m.retrievedResults.WithLabelValues(service, endpoint).Observe(float64(sourceCount))
	if sourceCount > 0 {
		m.retrievalHitTotal.WithLabelValues(service, endpoint).Inc()
		return
	}
	m.retrievalNoContextTotal.WithLabelValues(service, endpoint).Inc()
}

func (m *HTTPServerMetrics) RecordAgentRun(service, endpoint, outcome string, iterations, searches int) {
	if outcome == "" {
		outcome = "completed"
	}
	m.agentRunsTotal.WithLabelValues(service, endpoint, outcome).Inc()
	if iterations > 0 {
		m.agentIterations.WithLabelValues(service, endpoint).Observe(float64(iterations))
	}
	m.agentSearches.WithLabelValues(service, endpoint).Observe(float64(searches))
}

func (m *HTTPServerMetrics) RecordAgentToolCall(service, tool, status string) {
	if tool == "" {
		tool = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.agentToolCallsTotal.WithLabelValues(service, tool, status).Inc()
}

func (m *HTTPServerMetrics) RecordSourceRejections(service, endpoint string, rejected int) {
	if rejected <= 0 {
		return
	}
	m.sourceRejectionsTotal.WithLabelValues(service, endpoint).Add(float64(rejected))
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
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
