// Package metrics holds the Prometheus collectors shared by the tracker, the
// enrichment adapter and the HTTP layer. Collectors live on a private registry
// so tests can build as many as they like.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the set of bugtracker collectors
type Metrics struct {
	registry *prometheus.Registry

	BugReports         *prometheus.CounterVec
	EnrichmentFailures *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
	Notifications      *prometheus.CounterVec
}

// New registers all collectors, plus Go runtime and process collectors, on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		BugReports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bug_reports_total",
			Help: "Bug reports by outcome (created, merged_category, merged_similar, already_resolved, rejected)",
		}, []string{"outcome"}),
		EnrichmentFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "enrichment_failures_total",
			Help: "AI enrichment calls that fell back to defaults, by field",
		}, []string{"field"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route pattern and status code",
		}, []string{"route", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
		}, []string{"route"}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "resolution_notices_total",
			Help: "Resolution notices by result (sent, failed)",
		}, []string{"result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Report counts a bug report outcome. Safe on a nil receiver.
func (m *Metrics) Report(outcome string) {
	if m == nil {
		return
	}
	m.BugReports.WithLabelValues(outcome).Inc()
}

// EnrichmentFailure counts a degraded enrichment field. Safe on a nil receiver.
func (m *Metrics) EnrichmentFailure(field string) {
	if m == nil {
		return
	}
	m.EnrichmentFailures.WithLabelValues(field).Inc()
}

// Notification counts a resolution notice result. Safe on a nil receiver.
func (m *Metrics) Notification(result string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(result).Inc()
}
