// Package health tracks per-integration upstream reachability from the
// dispatcher's recorded outcomes, publishing state changes on the event bus
// and to an update callback — see SPEC_FULL.md §4.6a.
package health

import (
	"sync"
	"time"

	"github.com/mcpvault/mcpvault/internal/events"
)

// State represents the health state of an integration's upstream API.
type State string

const (
	StateHealthy  State = "healthy"
	StateDegraded State = "degraded"
	StateDown     State = "down"
)

// Stats captures runtime health metrics for a single integration.
type Stats struct {
	IntegrationKey string    `json:"integration_key"`
	State          State     `json:"state"`
	TotalRequests  int64     `json:"total_requests"`
	TotalErrors    int64     `json:"total_errors"`
	ConsecErrors   int       `json:"consec_errors"`
	AvgLatencyMs   float64   `json:"avg_latency_ms"`
	LastError      string    `json:"last_error,omitempty"`
	LastErrorTime  time.Time `json:"last_error_time,omitempty"`
	LastSuccessAt  time.Time `json:"last_success_at,omitempty"`
	CooldownUntil  time.Time `json:"cooldown_until,omitempty"`
}

// TrackerConfig configures the health tracker thresholds.
type TrackerConfig struct {
	// ConsecErrorsForDegraded: how many consecutive failures before degraded state.
	ConsecErrorsForDegraded int
	// ConsecErrorsForDown: how many consecutive failures before down state.
	ConsecErrorsForDown int
	// CooldownDuration: how long to keep an integration in down state.
	CooldownDuration time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() TrackerConfig {
	return TrackerConfig{
		ConsecErrorsForDegraded: 2,
		ConsecErrorsForDown:     5,
		CooldownDuration:        30 * time.Second,
	}
}

// Tracker tracks runtime health of all integrations.
type Tracker struct {
	cfg      TrackerConfig
	EventBus *events.Bus
	onUpdate func(integrationKey string, state State)

	mu    sync.RWMutex
	stats map[string]*Stats
}

// TrackerOption configures optional Tracker behaviour.
type TrackerOption func(*Tracker)

// WithEventBus attaches an event bus to the tracker so that health state
// transitions are published as EventHealthChange events.
func WithEventBus(bus *events.Bus) TrackerOption {
	return func(t *Tracker) {
		t.EventBus = bus
	}
}

// WithOnUpdate registers a callback invoked on every RecordSuccess/RecordFailure
// call (not just state transitions). Use this to keep external gauges current.
func WithOnUpdate(fn func(integrationKey string, state State)) TrackerOption {
	return func(t *Tracker) {
		t.onUpdate = fn
	}
}

// NewTracker creates a health tracker with the given config.
func NewTracker(cfg TrackerConfig, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		cfg:   cfg,
		stats: make(map[string]*Stats),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordSuccess records a successful call to an integration's upstream.
func (t *Tracker) RecordSuccess(integrationKey string, latencyMs float64) {
	t.mu.Lock()

	s := t.getOrCreate(integrationKey)
	oldState := s.State

	s.TotalRequests++
	s.ConsecErrors = 0
	s.LastSuccessAt = time.Now()
	s.State = StateHealthy
	s.CooldownUntil = time.Time{}

	if s.TotalRequests == 1 {
		s.AvgLatencyMs = latencyMs
	} else {
		s.AvgLatencyMs = s.AvgLatencyMs*0.9 + latencyMs*0.1
	}

	newState := s.State
	t.mu.Unlock()

	if t.onUpdate != nil {
		t.onUpdate(integrationKey, newState)
	}
	if oldState != newState && t.EventBus != nil {
		t.EventBus.Publish(events.Event{
			Type:           events.EventHealthChange,
			IntegrationKey: integrationKey,
			OldState:       string(oldState),
			NewState:       string(newState),
		})
	}
}

// RecordFailure records a failed call to an integration's upstream.
func (t *Tracker) RecordFailure(integrationKey string, errMsg string) {
	t.mu.Lock()

	s := t.getOrCreate(integrationKey)
	oldState := s.State

	s.TotalRequests++
	s.TotalErrors++
	s.ConsecErrors++
	s.LastError = errMsg
	s.LastErrorTime = time.Now()

	if s.ConsecErrors >= t.cfg.ConsecErrorsForDown {
		s.State = StateDown
		s.CooldownUntil = time.Now().Add(t.cfg.CooldownDuration)
	} else if s.ConsecErrors >= t.cfg.ConsecErrorsForDegraded {
		s.State = StateDegraded
	}

	newState := s.State
	t.mu.Unlock()

	if t.onUpdate != nil {
		t.onUpdate(integrationKey, newState)
	}
	if oldState != newState && t.EventBus != nil {
		t.EventBus.Publish(events.Event{
			Type:           events.EventHealthChange,
			IntegrationKey: integrationKey,
			OldState:       string(oldState),
			NewState:       string(newState),
			ErrorMsg:       errMsg,
		})
	}
}

// IsAvailable returns whether an integration should receive requests.
func (t *Tracker) IsAvailable(integrationKey string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.stats[integrationKey]
	if !ok {
		return true // unknown integration is assumed available
	}
	if s.State == StateDown && time.Now().Before(s.CooldownUntil) {
		return false
	}
	return true
}

// GetStats returns a copy of the health stats for an integration.
func (t *Tracker) GetStats(integrationKey string) *Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.stats[integrationKey]
	if !ok {
		return &Stats{IntegrationKey: integrationKey, State: StateHealthy}
	}
	cp := *s
	return &cp
}

// AllStats returns a copy of health stats for all known integrations.
func (t *Tracker) AllStats() []Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]Stats, 0, len(t.stats))
	for _, s := range t.stats {
		result = append(result, *s)
	}
	return result
}

func (t *Tracker) getOrCreate(integrationKey string) *Stats {
	s, ok := t.stats[integrationKey]
	if !ok {
		s = &Stats{IntegrationKey: integrationKey, State: StateHealthy}
		t.stats[integrationKey] = s
	}
	return s
}
