package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts tool calls and outbound API requests.
type Metrics struct {
	registry       *prometheus.Registry
	toolCalls      *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec
	remoteRequests *prometheus.CounterVec
	remoteDuration *prometheus.HistogramVec
	sessions       prometheus.Gauge
}

// NewMetrics registers the server's collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aitable_mcp_tool_calls_total",
			Help: "Tool calls by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aitable_mcp_tool_call_duration_seconds",
			Help:    "Tool call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		remoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aitable_mcp_remote_requests_total",
			Help: "Requests sent to the AITable API by method and status code.",
		}, []string{"method", "status"}),
		remoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aitable_mcp_remote_request_duration_seconds",
			Help:    "AITable API request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aitable_mcp_sessions",
			Help: "Open MCP sessions.",
		}),
	}
	m.registry.MustRegister(m.toolCalls, m.toolDuration, m.remoteRequests, m.remoteDuration, m.sessions)
	return m
}

// ObserveTool records one finished tool call.
func (m *Metrics) ObserveTool(tool string, isError bool, elapsed time.Duration) {
	outcome := "success"
	if isError {
		outcome = "error"
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// ObserveRemote records one outbound request. Status 0 means the request
// never got a response.
func (m *Metrics) ObserveRemote(method, _ string, status int, elapsed time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.remoteRequests.WithLabelValues(method, code).Inc()
	m.remoteDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// SetSessions records the number of open MCP sessions.
func (m *Metrics) SetSessions(n int) { m.sessions.Set(float64(n)) }

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
