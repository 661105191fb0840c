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

	"github.com/avolkov/climate-rag/internal/core/domain"
)

// HTTPServerMetrics collects request-level metrics plus the query pipeline
// series: routing decisions, fusion sizes, web search outcomes and turn
// completions. It implements the dispatcher's TurnObserver contract.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	routeDecisionsTotal *prometheus.CounterVec
	fusionInputLists    *prometheus.HistogramVec
	fusionOutputDocs    *prometheus.HistogramVec
	webSearchTotal      *prometheus.CounterVec
	turnsTotal          *prometheus.CounterVec
	turnDuration        *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "crag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "crag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	routeDecisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crag",
			Subsystem: "query",
			Name:      "route_decisions_total",
			Help:      "Total routing decisions by datasource.",
		},
		[]string{"service", "datasource"},
	)
	fusionInputLists := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "crag",
			Subsystem: "query",
			Name:      "fusion_input_lists",
			Help:      "Distribution of ranked lists entering fusion per turn.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
		[]string{"service"},
	)
	fusionOutputDocs := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "crag",
			Subsystem: "query",
			Name:      "fusion_output_documents",
			Help:      "Distribution of distinct documents after fusion per turn.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
		},
		[]string{"service"},
	)
	webSearchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crag",
			Subsystem: "query",
			Name:      "web_search_total",
			Help:      "Total web search fallbacks by outcome.",
		},
		[]string{"service", "status"},
	)
	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crag",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Total completed conversation turns by status.",
		},
		[]string{"service", "status"},
	)
	turnDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "crag",
			Subsystem: "chat",
			Name:      "turn_duration_seconds",
			Help:      "End-to-end conversation turn duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		routeDecisionsTotal,
		fusionInputLists,
		fusionOutputDocs,
		webSearchTotal,
		turnsTotal,
		turnDuration,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		routeDecisionsTotal: routeDecisionsTotal,
		fusionInputLists:    fusionInputLists,
		fusionOutputDocs:    fusionOutputDocs,
		webSearchTotal:      webSearchTotal,
		turnsTotal:          turnsTotal,
		turnDuration:        turnDuration,
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
	if rest, ok := strings.CutPrefix(path, "/api/v1/chats/"); ok {
		switch {
		case strings.HasSuffix(rest, "/query"):
			return "/api/v1/chats/{chat_id}/query"
		case strings.HasSuffix(rest, "/messages"):
			return "/api/v1/chats/{chat_id}/messages"
		default:
			return "/api/v1/chats/{chat_id}"
		}
	}
	return path
}

// TurnObserver is the service-bound adapter handed to the dispatcher.
type TurnObserver struct {
	metrics *HTTPServerMetrics
	service string
}

func (m *HTTPServerMetrics) Observer(service string) *TurnObserver {
	return &TurnObserver{metrics: m, service: service}
}

func (o *TurnObserver) ObserveRoute(datasource domain.Datasource) {
	o.metrics.routeDecisionsTotal.WithLabelValues(o.service, string(datasource)).Inc()
}

func (o *TurnObserver) ObserveFusion(lists, fused int) {
	o.metrics.fusionInputLists.WithLabelValues(o.service).Observe(float64(lists))
	o.metrics.fusionOutputDocs.WithLabelValues(o.service).Observe(float64(fused))
}

func (o *TurnObserver) ObserveWebSearch(status string) {
	if status == "" {
		status = "unknown"
	}
	o.metrics.webSearchTotal.WithLabelValues(o.service, status).Inc()
}

func (m *HTTPServerMetrics) RecordTurn(service string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.turnsTotal.WithLabelValues(service, status).Inc()
	m.turnDuration.WithLabelValues(service).Observe(duration.Seconds())
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
