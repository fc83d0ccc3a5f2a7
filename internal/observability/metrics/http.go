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

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	searchRequestsTotal *prometheus.CounterVec
	searchGroundedTotal *prometheus.CounterVec
	searchDegradedTotal *prometheus.CounterVec
	searchCandidates    *prometheus.HistogramVec
	searchDuration      *prometheus.HistogramVec
	rerankRequestsTotal *prometheus.CounterVec

	snapshotSwapsTotal prometheus.Counter
	snapshotChunks     prometheus.Gauge
	snapshotBuildTimes prometheus.Histogram
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tb",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tb",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tb",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	searchRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tb",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total completed search requests by routing mode.",
		},
		[]string{"service", "mode"},
	)
	searchGroundedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tb",
			Subsystem: "search",
			Name:      "grounded_total",
			Help:      "Total search requests by grounding verdict.",
		},
		[]string{"service", "grounded"},
	)
	searchDegradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tb",
			Subsystem: "search",
			Name:      "degraded_signal_total",
			Help:      "Total requests that lost a retrieval signal to a dependency failure.",
		},
		[]string{"service", "signal"},
	)
	searchCandidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tb",
			Subsystem: "search",
			Name:      "result_candidates",
			Help:      "Distribution of returned candidates per search request.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 24, 50, 100},
		},
		[]string{"service", "mode"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tb",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "End-to-end retrieval pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "mode"},
	)
	rerankRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tb",
			Subsystem: "search",
			Name:      "rerank_requests_total",
			Help:      "Total rerank attempts by outcome.",
		},
		[]string{"service", "status"},
	)
	snapshotSwapsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "tb",
			Subsystem:   "sparse",
			Name:        "snapshot_swaps_total",
			Help:        "Total published sparse index snapshots.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	snapshotChunks := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "tb",
			Subsystem:   "sparse",
			Name:        "snapshot_chunks",
			Help:        "Chunk count of the currently published sparse snapshot.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	snapshotBuildTimes := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "tb",
			Subsystem:   "sparse",
			Name:        "snapshot_build_seconds",
			Help:        "Sparse index build duration in seconds.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			ConstLabels: prometheus.Labels{"service": service},
		},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		searchRequestsTotal,
		searchGroundedTotal,
		searchDegradedTotal,
		searchCandidates,
		searchDuration,
		rerankRequestsTotal,
		snapshotSwapsTotal,
		snapshotChunks,
		snapshotBuildTimes,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		searchRequestsTotal: searchRequestsTotal,
		searchGroundedTotal: searchGroundedTotal,
		searchDegradedTotal: searchDegradedTotal,
		searchCandidates:    searchCandidates,
		searchDuration:      searchDuration,
		rerankRequestsTotal: rerankRequestsTotal,
		snapshotSwapsTotal:  snapshotSwapsTotal,
		snapshotChunks:      snapshotChunks,
		snapshotBuildTimes:  snapshotBuildTimes,
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

func (m *HTTPServerMetrics) RecordSearch(service, mode string, grounded bool, candidates int, duration time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	m.searchRequestsTotal.WithLabelValues(service, mode).Inc()
	m.searchGroundedTotal.WithLabelValues(service, strconv.FormatBool(grounded)).Inc()
	m.searchCandidates.WithLabelValues(service, mode).Observe(float64(candidates))
	m.searchDuration.WithLabelValues(service, mode).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordDegradedSignal(service, signal string) {
	if signal == "" {
		signal = "unknown"
	}
	m.searchDegradedTotal.WithLabelValues(service, signal).Inc()
}

func (m *HTTPServerMetrics) RecordRerank(service string, ok bool) {
	status := "success"
	if !ok {
		status = "degraded"
	}
	m.rerankRequestsTotal.WithLabelValues(service, status).Inc()
}

func (m *HTTPServerMetrics) RecordSnapshotSwap(chunks int, buildTime time.Duration) {
	m.snapshotSwapsTotal.Inc()
	m.snapshotChunks.Set(float64(chunks))
	m.snapshotBuildTimes.Observe(buildTime.Seconds())
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
