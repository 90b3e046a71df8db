package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics collects HTTP server and agent pipeline metrics on an
// isolated registry, so default Go collectors of embedding libraries never
// leak into the scrape.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	retrievedContexts *prometheus.HistogramVec
	subqueryFanout    *prometheus.HistogramVec
	noContextTotal    *prometheus.CounterVec
	toolCallsTotal    *prometheus.CounterVec
	guardrailTotal    *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tra",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tra",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tra",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	executionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tra",
			Subsystem: "agent",
			Name:      "executions_total",
			Help:      "Total completed agent executions by intent and strategy.",
		},
		[]string{"service", "intent", "strategy"},
	)
	executionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tra",
			Subsystem: "agent",
			Name:      "execution_duration_seconds",
			Help:      "Agent execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "intent"},
	)
	retrievedContexts := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tra",
			Subsystem: "agent",
			Name:      "retrieved_contexts",
			Help:      "Distribution of merged context snippets per execution.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 24},
		},
		[]string{"service"},
	)
	subqueryFanout := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tra",
			Subsystem: "agent",
			Name:      "subquery_fanout",
			Help:      "Distribution of sub-queries issued per execution.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
		[]string{"service"},
	)
	noContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tra",
			Subsystem: "agent",
			Name:      "no_context_total",
			Help:      "Total executions answered without any retrieved context.",
		},
		[]string{"service"},
	)
	toolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tra",
			Subsystem: "agent",
			Name:      "tool_calls_total",
			Help:      "Total dispatched tool calls by tool and status.",
		},
		[]string{"service", "tool", "status"},
	)
	guardrailTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tra",
			Subsystem: "agent",
			Name:      "guardrail_warnings_total",
			Help:      "Total executions that produced at least one guardrail warning.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		executionsTotal,
		executionDuration,
		retrievedContexts,
		subqueryFanout,
		noContextTotal,
		toolCallsTotal,
		guardrailTotal,
	)

	return &HTTPServerMetrics{
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		executionsTotal:   executionsTotal,
		executionDuration: executionDuration,
		retrievedContexts: retrievedContexts,
		subqueryFanout:    subqueryFanout,
		noContextTotal:    noContextTotal,
		toolCallsTotal:    toolCallsTotal,
		guardrailTotal:    guardrailTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := r.URL.Path
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

func (m *HTTPServerMetrics) RecordExecution(service, intent, strategy string, contextCount, subqueryCount int, duration time.Duration) {
	if intent == "" {
		intent = "unknown"
	}
	if strategy == "" {
		strategy = "unknown"
	}
	m.executionsTotal.WithLabelValues(service, intent, strategy).Inc()
	m.executionDuration.WithLabelValues(service, intent).Observe(duration.Seconds())
	m.retrievedContexts.WithLabelValues(service).Observe(float64(contextCount))
	if subqueryCount > 0 {
		m.subqueryFanout.WithLabelValues(service).Observe(float64(subqueryCount))
	}
	if contextCount == 0 {
		m.noContextTotal.WithLabelValues(service).Inc()
	}
}

func (m *HTTPServerMetrics) RecordToolCall(service, tool, status string) {
	if tool == "" {
		tool = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.toolCallsTotal.WithLabelValues(service, tool, status).Inc()
}

func (m *HTTPServerMetrics) RecordGuardrailWarnings(service string) {
	m.guardrailTotal.WithLabelValues(service).Inc()
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
