package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNew(t *testing.T) {
	r := New()
	if r == nil {
		t.Fatal("expected non-nil Registry")
	}
	if r.reg == nil {
		t.Fatal("expected non-nil prometheus registry")
	}
	if r.ToolCallsTotal == nil {
		t.Fatal("expected non-nil ToolCallsTotal counter")
	}
	if r.ToolCallLatency == nil {
		t.Fatal("expected non-nil ToolCallLatency histogram")
	}
	if r.CircuitState == nil {
		t.Fatal("expected non-nil CircuitState gauge")
	}
}

func TestHandlerNonNil(t *testing.T) {
	r := New()
	h := r.Handler()
	if h == nil {
		t.Fatal("expected non-nil http.Handler from Handler()")
	}
}

func TestMetricsCanBeCollected(t *testing.T) {
	r := New()

	// Record values across the label set to ensure it doesn't panic.
	r.ToolCallsTotal.WithLabelValues("github", "github_list_issues", "ok").Inc()
	r.ToolCallLatency.WithLabelValues("github", "github_list_issues").Observe(150.0)
	r.CircuitState.WithLabelValues("github").Set(0)
	r.IntegrationUp.WithLabelValues("github").Set(1)

	// Gather metrics from the registry; this exercises the full collection path.
	mfs, err := r.reg.Gather()
	if err != nil {
		t.Fatalf("unexpected error gathering metrics: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatal("expected at least one metric family after recording values")
	}

	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}

	want := []string{
		"mcpvault_tool_calls_total",
		"mcpvault_tool_call_latency_ms",
		"mcpvault_circuit_state",
		"mcpvault_integration_up",
	}
	for _, name := range want {
		if !names[name] {
			t.Errorf("expected metric %q in gathered metrics", name)
		}
	}
}

func TestMultipleRegistriesAreIndependent(t *testing.T) {
	r1 := New()
	r2 := New()

	r1.ToolCallsTotal.WithLabelValues("github", "github_list_issues", "ok").Inc()

	// r2 should have zero metrics gathered (no observations made).
	mfs, err := r2.reg.Gather()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil && m.GetCounter().GetValue() > 0 {
				t.Error("r2 should not have any non-zero counters")
			}
		}
	}
	_ = r1
}

func TestRegisteredMetricDescriptions(t *testing.T) {
	r := New()

	// Describe should emit descriptors for all registered metrics.
	ch := make(chan *prometheus.Desc, 10)
	go func() {
		r.ToolCallsTotal.Describe(ch)
		r.ToolCallLatency.Describe(ch)
		r.CircuitState.Describe(ch)
		close(ch)
	}()

	count := 0
	for range ch {
		count++
	}
	if count != 3 {
		t.Errorf("expected 3 metric descriptors, got %d", count)
	}
}

func TestWalletStateAndSessionGauges(t *testing.T) {
	r := New()
	r.WalletState.Set(3) // unlocked
	r.SessionsActive.Set(1)
	r.SSESubscribers.Set(2)

	mfs, err := r.reg.Gather()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	names := make(map[string]float64)
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			if g := m.GetGauge(); g != nil {
				names[mf.GetName()] = g.GetValue()
			}
		}
	}
	if names["mcpvault_wallet_state"] != 3 {
		t.Errorf("mcpvault_wallet_state = %v, want 3", names["mcpvault_wallet_state"])
	}
	if names["mcpvault_sessions_active"] != 1 {
		t.Errorf("mcpvault_sessions_active = %v, want 1", names["mcpvault_sessions_active"])
	}
}
