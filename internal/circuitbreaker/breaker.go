// Package circuitbreaker implements a thread-safe circuit breaker guarding
// the HTTP dispatcher's outbound calls to one integration's upstream API.
// When an upstream becomes chronically unreachable, the breaker trips after
// a configurable number of consecutive failures and fails calls fast for a
// cooldown period before probing again — call-reliability engineering, not
// the outbound rate-limiting the core's Non-goals exclude.
package circuitbreaker

import (
	"sync"
	"time"
)

// State is the current state of the circuit breaker.
type State int

const (
	// Closed is the normal operating state: calls are dispatched to the
	// upstream.
	Closed State = iota
	// Open means the circuit has tripped: calls fail fast without
	// reaching the upstream.
	Open
	// HalfOpen allows a single probe call through to test recovery.
	HalfOpen
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	defaultThreshold = 3
	defaultCooldown  = 30 * time.Second
)

// Breaker is a goroutine-safe circuit breaker tracking consecutive upstream
// failures for one integration and transitioning between Closed, Open, and
// HalfOpen.
type Breaker struct {
	mu               sync.Mutex
	state            State
	failureCount     int
	failureThreshold int
	cooldown         time.Duration
	lastTripped      time.Time
	onStateChange    func(from, to State)

	nowFunc func() time.Time // overridden in tests
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithThreshold sets the number of consecutive failures required to trip
// the breaker from Closed to Open. The default is 3.
func WithThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithCooldown sets how long the breaker stays Open before transitioning to
// HalfOpen. The default is 30 seconds.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithOnStateChange registers a callback that fires on every state
// transition. It runs while the breaker's mutex is held, so it must not
// call back into the breaker.
func WithOnStateChange(fn func(from, to State)) Option {
	return func(b *Breaker) {
		b.onStateChange = fn
	}
}

// New creates a Breaker in the Closed state with the given options.
func New(opts ...Option) *Breaker {
	b := &Breaker{
		state:            Closed,
		failureThreshold: defaultThreshold,
		cooldown:         defaultCooldown,
		nowFunc:          time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Allow reports whether the next call should reach the upstream. Closed
// always allows; Open rejects until the cooldown elapses, at which point it
// moves to HalfOpen and allows exactly one probe; HalfOpen rejects any
// further call until that probe resolves.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.nowFunc().After(b.lastTripped.Add(b.cooldown)) {
			b.setState(HalfOpen)
			return true
		}
		return false
	case HalfOpen:
		return false
	default:
		return false
	}
}

// RecordSuccess records a successful upstream call. A HalfOpen probe that
// succeeds closes the breaker; in Closed state it resets the consecutive
// failure counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	if b.state == HalfOpen {
		b.setState(Closed)
	}
}

// RecordFailure records an upstream failure. In Closed state it increments
// the consecutive failure counter and trips the breaker at threshold; a
// failed HalfOpen probe immediately reopens it.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++

	switch b.state {
	case Closed:
		if b.failureCount >= b.failureThreshold {
			b.setState(Open)
			b.lastTripped = b.nowFunc()
		}
	case HalfOpen:
		b.setState(Open)
		b.lastTripped = b.nowFunc()
	}
}

// CurrentState returns the current breaker state. Note: in Open state this
// does not check the cooldown timer; use Allow for that.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) setState(to State) {
	from := b.state
	b.state = to
	if b.onStateChange != nil && from != to {
		b.onStateChange(from, to)
	}
}
