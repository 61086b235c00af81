// Package metrics exposes interview and reasoning counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "interview"

// Metrics holds the collectors for one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	turns            *prometheus.CounterVec
	fallbacks        *prometheus.CounterVec
	completions      prometheus.Counter
	reasoningCalls   *prometheus.CounterVec
	reasoningLatency *prometheus.HistogramVec
	reasoningTokens  *prometheus.CounterVec
	sessions         *prometheus.GaugeVec
}

// New creates a registry with process collectors and the interview metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Participant turns processed, by reply mode.",
		}, []string{"mode"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Turns that degraded to a fallback, by stage.",
		}, []string{"stage"}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Sessions that reached completion.",
		}),
		reasoningCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reasoning_calls_total",
			Help:      "Reasoning service calls, by provider, purpose and outcome.",
		}, []string{"provider", "purpose", "outcome"}),
		reasoningLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reasoning_call_seconds",
			Help:      "Reasoning service call latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"provider", "purpose"}),
		reasoningTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reasoning_tokens_total",
			Help:      "Tokens consumed by reasoning calls, by provider and direction.",
		}, []string{"provider", "direction"}),
		sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Sessions in the store, by status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.turns,
		m.fallbacks,
		m.completions,
		m.reasoningCalls,
		m.reasoningLatency,
		m.reasoningTokens,
		m.sessions,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveTurn counts a processed turn.
func (m *Metrics) ObserveTurn(mode string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(mode).Inc()
}

// ObserveFallback counts a degraded stage.
func (m *Metrics) ObserveFallback(stage string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(stage).Inc()
}

// ObserveCompletion counts a session reaching completion.
func (m *Metrics) ObserveCompletion() {
	if m == nil {
		return
	}
	m.completions.Inc()
}

// ObserveReasoningCall records the outcome and latency of one call.
func (m *Metrics) ObserveReasoningCall(provider, purpose string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.reasoningCalls.WithLabelValues(provider, purpose, outcome).Inc()
	m.reasoningLatency.WithLabelValues(provider, purpose).Observe(elapsed.Seconds())
}

// AddTokens records token usage for a provider.
func (m *Metrics) AddTokens(provider string, input, output int64) {
	if m == nil {
		return
	}
	m.reasoningTokens.WithLabelValues(provider, "input").Add(float64(input))
	m.reasoningTokens.WithLabelValues(provider, "output").Add(float64(output))
}

// SetSessions publishes session counts by status.
func (m *Metrics) SetSessions(active, complete int) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues("active").Set(float64(active))
	m.sessions.WithLabelValues("complete").Set(float64(complete))
}
