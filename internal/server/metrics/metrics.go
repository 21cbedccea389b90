package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "snapshare"

// Retrieval outcomes.
const (
	OutcomeServed   = "served"
	OutcomeNotFound = "not_found"
	OutcomeMaxViews = "max_views"
	OutcomeError    = "error"

	resultSuccess = "success"
	resultFailure = "failure"
)

// Metrics owns a private Prometheus registry and the collectors recorded by
// the service, the reaper and the HTTP layer. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	sharesCreated *prometheus.CounterVec
	retrievals    *prometheus.CounterVec
	reaperRuns    *prometheus.CounterVec
	reaperDeleted prometheus.Counter
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New creates a registry with all collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sharesCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "shares_created_total",
				Help:      "Total number of shares created, by payload kind",
			},
			[]string{"kind"},
		),
		retrievals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrievals_total",
				Help:      "Total number of share retrievals, by outcome",
			},
			[]string{"outcome"},
		),
		reaperRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reaper",
				Name:      "runs_total",
				Help:      "Total number of expiry sweeps, by result",
			},
			[]string{"result"},
		),
		reaperDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reaper",
				Name:      "deleted_total",
				Help:      "Total number of expired shares deleted by the reaper",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(
		m.sharesCreated,
		m.retrievals,
		m.reaperRuns,
		m.reaperDeleted,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ShareCreated(isFile bool) {
	if m == nil {
		return
	}
	kind := "text"
	if isFile {
		kind = "file"
	}
	m.sharesCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) Retrieval(outcome string) {
	if m == nil {
		return
	}
	m.retrievals.WithLabelValues(outcome).Inc()
}

// ReaperRun records one sweep. deleted is ignored when err is non-nil.
func (m *Metrics) ReaperRun(deleted int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.reaperRuns.WithLabelValues(resultFailure).Inc()
		return
	}
	m.reaperRuns.WithLabelValues(resultSuccess).Inc()
	m.reaperDeleted.Add(float64(deleted))
}

func (m *Metrics) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
