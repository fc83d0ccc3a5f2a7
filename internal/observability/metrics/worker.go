package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	importTotal    *prometheus.CounterVec
	importDuration *prometheus.HistogramVec
	importInFlight prometheus.Gauge
	importedChunks *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	importTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tb",
			Subsystem: "worker",
			Name:      "document_import_total",
			Help:      "Total imported tender documents by status.",
		},
		[]string{"service", "status"},
	)
	importDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tb",
			Subsystem: "worker",
			Name:      "document_import_duration_seconds",
			Help:      "Per-document import duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	importInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tb",
			Subsystem: "worker",
			Name:      "document_import_in_flight",
			Help:      "Number of documents currently being imported.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	importedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tb",
			Subsystem: "worker",
			Name:      "document_chunks",
			Help:      "Distribution of chunks produced per imported document.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 250, 500},
		},
		[]string{"service"},
	)

	registry.MustRegister(importTotal, importDuration, importInFlight, importedChunks)

	return &WorkerMetrics{
		registry:       registry,
		importTotal:    importTotal,
		importDuration: importDuration,
		importInFlight: importInFlight,
		importedChunks: importedChunks,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.importInFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(service string, chunks int, duration time.Duration, err error) {
	m.importInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.importTotal.WithLabelValues(service, status).Inc()
	m.importDuration.WithLabelValues(service, status).Observe(duration.Seconds())
	if err == nil {
		m.importedChunks.WithLabelValues(service).Observe(float64(chunks))
	}
}
