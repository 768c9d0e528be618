package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every Prometheus collector mcpvault exposes. One Registry
// is created per vaultd process and scraped over HTTP via Handler.
type Registry struct {
	reg *prometheus.Registry

	ToolCallsTotal  *prometheus.CounterVec
	ToolCallLatency *prometheus.HistogramVec
	WalletState     prometheus.Gauge
	SessionsActive  prometheus.Gauge
	SSESubscribers  prometheus.Gauge

	// Per-integration circuit breaker and health metrics, labeled rather
	// than collector-per-integration since the integration set is only
	// known at runtime.
	CircuitState  *prometheus.GaugeVec // 0=closed, 1=open, 2=half-open
	CircuitTrips  *prometheus.CounterVec
	IntegrationUp *prometheus.GaugeVec
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpvault_tool_calls_total",
			Help: "Total tools/call invocations handled",
		}, []string{"integration", "tool", "status"}),
		ToolCallLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcpvault_tool_call_latency_ms",
			Help:    "tools/call latency in milliseconds, from dispatch to response",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		}, []string{"integration", "tool"}),
		WalletState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcpvault_wallet_state",
			Help: "Wallet lifecycle state (0=loading, 1=not_initialised, 2=locked, 3=unlocked)",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcpvault_sessions_active",
			Help: "Number of resumable sessions currently held by the session manager",
		}),
		SSESubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcpvault_sse_subscribers",
			Help: "Number of connected Server-Sent-Events subscribers on the HTTP transport",
		}),
		CircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mcpvault_circuit_state",
			Help: "Circuit breaker state per integration (0=closed, 1=open, 2=half-open)",
		}, []string{"integration"}),
		CircuitTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpvault_circuit_trips_total",
			Help: "Total times an integration's circuit breaker tripped open",
		}, []string{"integration"}),
		IntegrationUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mcpvault_integration_up",
			Help: "Whether an integration's health tracker considers it available (1=up, 0=down)",
		}, []string{"integration"}),
	}
	reg.MustRegister(
		m.ToolCallsTotal, m.ToolCallLatency, m.WalletState, m.SessionsActive,
		m.SSESubscribers, m.CircuitState, m.CircuitTrips, m.IntegrationUp,
	)
	return m
}

func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
