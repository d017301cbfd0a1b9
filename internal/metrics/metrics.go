// Package metrics exposes gateway counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for one registry. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry       *prometheus.Registry
	securityEvents *prometheus.CounterVec
	gateOutcomes   *prometheus.CounterVec
	summarySources *prometheus.CounterVec
	githubRequests *prometheus.CounterVec
}

// New registers the gateway collectors on a fresh registry.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		securityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_events_total",
			Help:      "Security audit events by type.",
		}, []string{"type"}),
		gateOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Request gate decisions by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		summarySources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readme_summaries_total",
			Help:      "README summaries by the provider that produced them.",
		}, []string{"source"}),
		githubRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "github_requests_total",
			Help:      "Outbound GitHub API requests by endpoint and status class.",
		}, []string{"endpoint", "status"}),
	}
	reg.MustRegister(
		m.securityEvents,
		m.gateOutcomes,
		m.summarySources,
		m.githubRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) RecordSecurityEvent(eventType string) {
	if m == nil {
		return
	}
	m.securityEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) RecordGateOutcome(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.gateOutcomes.WithLabelValues(endpoint, outcome).Inc()
}

func (m *Metrics) RecordSummarySource(source string) {
	if m == nil {
		return
	}
	m.summarySources.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordGitHubRequest(endpoint, status string) {
	if m == nil {
		return
	}
	m.githubRequests.WithLabelValues(endpoint, status).Inc()
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
