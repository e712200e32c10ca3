// Package metrics provides the Prometheus collectors docket exports.
//
// Collectors are registered on an explicit registry instead of the global
// default, so tests and multiple Systems in one process do not collide.
// Every recording method is safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docket"

// Metrics holds every docket collector.
type Metrics struct {
	registry *prometheus.Registry

	JobsTotal          *prometheus.CounterVec
	JobDuration        *prometheus.HistogramVec
	JobsAbandoned      *prometheus.CounterVec
	ChunksWritten      prometheus.Counter
	DedupHits          prometheus.Counter
	ChunksDeleted      prometheus.Counter
	RetrievalsTotal    *prometheus.CounterVec
	SummarizerTimeouts prometheus.Counter
	HTTPRequestsTotal  *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		JobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "processed_total",
				Help:      "Total number of processed jobs",
			},
			[]string{"kind", "outcome"},
		),

		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "duration_seconds",
				Help:      "Job handler duration in seconds",
				Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"kind"},
		),

		JobsAbandoned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "abandoned_total",
				Help:      "Jobs dropped after exceeding their delivery attempts",
			},
			[]string{"kind"},
		),

		ChunksWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "chunks_written_total",
			Help:      "Chunks written to the document index",
		}),

		DedupHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "dedup_hits_total",
			Help:      "Chunk writes skipped because the content hash was unchanged",
		}),

		ChunksDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "chunks_deleted_total",
			Help:      "Chunks removed from the document index",
		}),

		RetrievalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "queries_total",
				Help:      "Retrieval queries by answer class",
			},
			[]string{"class"},
		),

		SummarizerTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "summarizer_timeouts_total",
			Help:      "Summaries abandoned because the summarizer ran out of time",
		}),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),

		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// JobDone records a finished job.
func (m *Metrics) JobDone(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(kind, outcome).Inc()
	m.JobDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// JobAbandoned records a job dropped after too many deliveries.
func (m *Metrics) JobAbandoned(kind string) {
	if m == nil {
		return
	}
	m.JobsAbandoned.WithLabelValues(kind).Inc()
}

// ChunkWritten records one index write; created is false for a dedup hit.
func (m *Metrics) ChunkWritten(created bool) {
	if m == nil {
		return
	}
	if created {
		m.ChunksWritten.Inc()
	} else {
		m.DedupHits.Inc()
	}
}

// ChunksRemoved records n deleted chunks.
func (m *Metrics) ChunksRemoved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ChunksDeleted.Add(float64(n))
}

// Retrieval records the answer class of one query.
func (m *Metrics) Retrieval(class string) {
	if m == nil {
		return
	}
	m.RetrievalsTotal.WithLabelValues(class).Inc()
}

// SummarizerTimeout records a summarizer call that exceeded its deadline.
func (m *Metrics) SummarizerTimeout() {
	if m == nil {
		return
	}
	m.SummarizerTimeouts.Inc()
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
