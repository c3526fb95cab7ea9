// Package metrics provides Prometheus collectors for search and chat operations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns a private registry so several recorders can coexist in tests.
type Recorder struct {
	registry *prometheus.Registry

	searchAttempts *prometheus.CounterVec
	searchResults  *prometheus.CounterVec
	searchBackoff  prometheus.Histogram
	chatRequests   *prometheus.CounterVec
	chatDuration   *prometheus.HistogramVec
	specLoadErrors prometheus.Counter
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		searchAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bizplan_search_attempts_total",
				Help: "Search provider calls by provider and status",
			},
			[]string{"provider", "status"},
		),
		searchResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bizplan_search_outcomes_total",
				Help: "Search tool outcomes (ok, no_results, filtered, exhausted)",
			},
			[]string{"outcome"},
		),
		searchBackoff: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bizplan_search_backoff_seconds",
				Help:    "Waits applied between search retries",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 60},
			},
		),
		chatRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bizplan_chat_requests_total",
				Help: "Chat requests by agent and status",
			},
			[]string{"agent", "status"},
		),
		chatDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bizplan_chat_duration_seconds",
				Help:    "Time from agent creation to final message",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"agent"},
		),
		specLoadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bizplan_agent_spec_errors_total",
				Help: "Agent specification files skipped because they failed to parse",
			},
		),
	}
}

// ObserveSearchAttempt counts one provider call.
func (r *Recorder) ObserveSearchAttempt(provider string, err error) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.searchAttempts.WithLabelValues(provider, status).Inc()
}

// ObserveSearchOutcome counts how a search call resolved.
func (r *Recorder) ObserveSearchOutcome(outcome string) {
	if r == nil {
		return
	}
	r.searchResults.WithLabelValues(outcome).Inc()
}

// ObserveBackoff records a retry wait.
func (r *Recorder) ObserveBackoff(d time.Duration) {
	if r == nil {
		return
	}
	r.searchBackoff.Observe(d.Seconds())
}

// ObserveChat records a finished chat request.
func (r *Recorder) ObserveChat(agent string, err error, d time.Duration) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.chatRequests.WithLabelValues(agent, status).Inc()
	r.chatDuration.WithLabelValues(agent).Observe(d.Seconds())
}

// IncSpecLoadError counts a skipped agent specification file.
func (r *Recorder) IncSpecLoadError() {
	if r == nil {
		return
	}
	r.specLoadErrors.Inc()
}

// Registry exposes the underlying registry for tests and custom exposition.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
