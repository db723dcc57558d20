package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus holds the exported instruments on a private registry.
type Prometheus struct {
	registry  *prometheus.Registry
	duration  *prometheus.HistogramVec
	errors    *prometheus.CounterVec
	tokens    *prometheus.CounterVec
	sessions  prometheus.Gauge
	toolCalls *prometheus.CounterVec
}

// NewPrometheus registers the diveroast instruments plus Go runtime collectors.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "diveroast_operation_duration_seconds",
			Help:    "Duration of operations by name",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "diveroast_operation_errors_total",
			Help: "Failed operations by name and error kind",
		}, []string{"op", "kind"}),
		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "diveroast_llm_tokens_total",
			Help: "Model tokens by direction",
		}, []string{"type"}),
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "diveroast_sessions_active",
			Help: "Live analysis sessions",
		}),
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "diveroast_tool_calls_total",
			Help: "Tool invocations by tool and outcome",
		}, []string{"tool", "status"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// SetSessions reports the live session count.
func (p *Prometheus) SetSessions(n int) {
	if p == nil {
		return
	}
	p.sessions.Set(float64(n))
}

// IncToolCall counts one tool invocation.
func (p *Prometheus) IncToolCall(tool, status string) {
	if p == nil {
		return
	}
	p.toolCalls.WithLabelValues(tool, status).Inc()
}

func (p *Prometheus) observe(op string, d time.Duration) {
	if p == nil {
		return
	}
	p.duration.WithLabelValues(op).Observe(d.Seconds())
}

func (p *Prometheus) observeError(op, kind string) {
	if p == nil {
		return
	}
	p.errors.WithLabelValues(op, kind).Inc()
}

func (p *Prometheus) observeTokens(in, out int64) {
	if p == nil {
		return
	}
	p.tokens.WithLabelValues("input").Add(float64(in))
	p.tokens.WithLabelValues("output").Add(float64(out))
}
