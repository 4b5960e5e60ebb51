// Package metrics holds the Prometheus collectors shared by the server and
// the report worker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. Each instance owns its registry so tests
// can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	ReportRenders *prometheus.CounterVec
	RenderSeconds prometheus.Histogram
	LoaderLookups *prometheus.CounterVec
	RemoteCalls   *prometheus.CounterVec
	JobsPublished *prometheus.CounterVec
	JobsHandled   *prometheus.CounterVec
	Rejected      *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tani",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tani",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		ReportRenders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tani",
			Name:      "report_renders_total",
			Help:      "PDF report renders by outcome.",
		}, []string{"outcome"}),
		RenderSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tani",
			Name:      "report_render_seconds",
			Help:      "Time spent turning report HTML into a PDF.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		LoaderLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tani",
			Name:      "loader_lookups_total",
			Help:      "List loader lookups by resource and result (hit, miss, shared, stale).",
		}, []string{"resource", "result"}),
		RemoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tani",
			Name:      "remote_calls_total",
			Help:      "Backend calls by kind (auth, rest, functions) and outcome.",
		}, []string{"kind", "outcome"}),
		JobsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tani",
			Name:      "report_jobs_published_total",
			Help:      "Report jobs published to the broker by outcome.",
		}, []string{"outcome"}),
		JobsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tani",
			Name:      "report_jobs_handled_total",
			Help:      "Report jobs consumed by the worker by outcome.",
		}, []string{"outcome"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tani",
			Name:      "http_rejected_total",
			Help:      "Requests refused or flagged by the middleware, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests, m.HTTPDuration,
		m.ReportRenders, m.RenderSeconds,
		m.LoaderLookups, m.RemoteCalls,
		m.JobsPublished, m.JobsHandled,
		m.Rejected,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(route, method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveRender records a PDF render attempt.
func (m *Metrics) ObserveRender(err error, d time.Duration) {
	if m == nil {
		return
	}
	m.ReportRenders.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		m.RenderSeconds.Observe(d.Seconds())
	}
}

// ObserveLookup records a loader cache result.
func (m *Metrics) ObserveLookup(resource, result string) {
	if m == nil {
		return
	}
	m.LoaderLookups.WithLabelValues(resource, result).Inc()
}

// ObserveRemote records a backend call.
func (m *Metrics) ObserveRemote(kind string, err error) {
	if m == nil {
		return
	}
	m.RemoteCalls.WithLabelValues(kind, outcome(err)).Inc()
}

// ObservePublish records a broker publish.
func (m *Metrics) ObservePublish(err error) {
	if m == nil {
		return
	}
	m.JobsPublished.WithLabelValues(outcome(err)).Inc()
}

// ObserveJob records a consumed job.
func (m *Metrics) ObserveJob(err error) {
	if m == nil {
		return
	}
	m.JobsHandled.WithLabelValues(outcome(err)).Inc()
}

// ObserveRejected records a request refused (rate_limited) or flagged
// (suspicious) by the middleware.
func (m *Metrics) ObserveRejected(reason string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(reason).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
