// Package metrics exposes Prometheus collectors for the job pipeline and the
// HTTP surface. Collectors live on a private registry so several instances
// can coexist in one process (tests, embedded servers).
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the service records. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	jobsSubmitted *prometheus.CounterVec
	jobsFinished  *prometheus.CounterVec
	jobsInFlight  *prometheus.GaugeVec
	units         *prometheus.CounterVec
	selections    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lecturelab_jobs_submitted_total",
				Help: "Jobs accepted by kind",
			},
			[]string{"kind"},
		),
		jobsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lecturelab_jobs_finished_total",
				Help: "Jobs that reached a terminal status by kind and status",
			},
			[]string{"kind", "status"},
		),
		jobsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lecturelab_jobs_in_flight",
				Help: "Jobs currently owned by a pipeline goroutine",
			},
			[]string{"kind"},
		),
		units: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lecturelab_units_processed_total",
				Help: "Units processed by kind and outcome (ok, failed)",
			},
			[]string{"kind", "outcome"},
		),
		selections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lecturelab_backend_selections_total",
				Help: "Backend selection outcomes by capability and backend",
			},
			[]string{"capability", "backend", "outcome"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lecturelab_stage_duration_seconds",
				Help:    "Time spent in each pipeline stage",
				Buckets: prometheus.ExponentialBuckets(0.05, 4, 9),
			},
			[]string{"kind", "stage"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lecturelab_http_requests_total",
				Help: "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lecturelab_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(
		m.jobsSubmitted,
		m.jobsFinished,
		m.jobsInFlight,
		m.units,
		m.selections,
		m.stageDuration,
		m.httpRequests,
		m.httpLatency,
	)
	return m
}

// Registry returns the private registry backing these collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) JobSubmitted(kind string) {
	if m == nil {
		return
	}
	m.jobsSubmitted.WithLabelValues(kind).Inc()
	m.jobsInFlight.WithLabelValues(kind).Inc()
}

func (m *Metrics) JobFinished(kind, status string) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(kind, status).Inc()
	m.jobsInFlight.WithLabelValues(kind).Dec()
}

func (m *Metrics) UnitProcessed(kind string, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	m.units.WithLabelValues(kind, outcome).Inc()
}

// BackendSelected records a selection result. backend is empty when every
// candidate failed its probe.
func (m *Metrics) BackendSelected(capability, backend string, err error) {
	if m == nil {
		return
	}
	outcome := "selected"
	if err != nil {
		outcome = "exhausted"
		backend = "none"
	}
	m.selections.WithLabelValues(capability, backend, outcome).Inc()
}

func (m *Metrics) ObserveStage(kind, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(kind, stage).Observe(d.Seconds())
}

// Handler serves the Prometheus exposition format for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware counts requests by chi route pattern so path parameters do not
// explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.httpRequests.WithLabelValues(r.Method, route, fmt.Sprintf("%d", rw.status)).Inc()
		m.httpLatency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
