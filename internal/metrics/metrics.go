// Package metrics exposes the assistant's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/MimeLyc/carshop-agent/internal/guardrail"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "carshop"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	toolCalls   *prometheus.CounterVec
	toolLatency *prometheus.HistogramVec
	llmCalls    *prometheus.CounterVec
	llmLatency  prometheus.Histogram
	redactions  *prometheus.CounterVec
	turns       *prometheus.CounterVec
	bookings    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool executions by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Tool execution latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Model calls by outcome.",
		}, []string{"outcome"}),
		llmLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_duration_seconds",
			Help:      "Model call latency, including streamed responses.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}),
		redactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guardrail_redactions_total",
			Help:      "Values removed by the guardrail filter.",
		}, []string{"direction", "category"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Assistant turns by mode and outcome.",
		}, []string{"mode", "outcome"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "test_drive_bookings_total",
			Help:      "Test-drive scheduling attempts by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.toolCalls, m.toolLatency, m.llmCalls, m.llmLatency, m.redactions, m.turns, m.bookings,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveTool matches tools.Observer.
func (m *Metrics) ObserveTool(name string, elapsed time.Duration, isError bool) {
	m.toolCalls.WithLabelValues(name, outcome(isError)).Inc()
	m.toolLatency.WithLabelValues(name).Observe(elapsed.Seconds())
}

// ObserveLLM matches agent.LLMObserver.
func (m *Metrics) ObserveLLM(elapsed time.Duration, err error) {
	m.llmCalls.WithLabelValues(outcome(err != nil)).Inc()
	m.llmLatency.Observe(elapsed.Seconds())
}

// ObserveRedaction matches guardrail.Reporter.
func (m *Metrics) ObserveRedaction(dir guardrail.Direction, f guardrail.Finding) {
	m.redactions.WithLabelValues(string(dir), string(f.Category)).Add(float64(f.Count))
}

func (m *Metrics) ObserveTurn(mode string, degraded bool) {
	result := "ok"
	if degraded {
		result = "degraded"
	}
	m.turns.WithLabelValues(mode, result).Inc()
}

func (m *Metrics) ObserveBooking(success bool) {
	m.bookings.WithLabelValues(outcome(!success)).Inc()
}

// WatchQueue exports a gauge read from fn on every scrape.
func (m *Metrics) WatchQueue(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

func outcome(failed bool) string {
	if failed {
		return "error"
	}
	return "success"
}
