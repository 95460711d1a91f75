package relay

import (
	"context"
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed allows probes through normally.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects probes immediately.
	CircuitOpen
	// CircuitHalfOpen lets a trial probe through after the open timeout.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig holds configuration for a circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that open the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that close it again.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before a trial probe.
	Timeout time.Duration
	// OnStateChange is called asynchronously when the state changes.
	OnStateChange func(key string, from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the configuration defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker guards probes against one upstream host.
type CircuitBreaker struct {
	key    string
	config CircuitBreakerConfig
	now    func() time.Time

	mu              sync.Mutex
	state           CircuitState
	failures        int
	successes       int
	lastFailureTime time.Time
	lastStateChange time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(key string, config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{
		key:             key,
		config:          config,
		now:             time.Now,
		state:           CircuitClosed,
		lastStateChange: time.Now(),
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

// currentState promotes open to half-open once the timeout has passed.
// Must be called with mu held.
func (cb *CircuitBreaker) currentState() CircuitState {
	if cb.state == CircuitOpen && cb.now().Sub(cb.lastFailureTime) >= cb.config.Timeout {
		cb.transitionTo(CircuitHalfOpen)
	}
	return cb.state
}

// Allow checks if a probe is allowed through.
func (cb *CircuitBreaker) Allow() bool {
	return cb.State() != CircuitOpen
}

// Execute runs fn through the circuit breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}

	err := fn(ctx)
	switch {
	case err == nil:
		cb.RecordSuccess()
	case ctx.Err() != nil:
		// Caller gave up; says nothing about the upstream.
	default:
		cb.RecordFailure()
	}
	return err
}

// RecordSuccess records a successful probe.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentState() {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	case CircuitOpen:
	}
}

// RecordFailure records a failed probe.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state := cb.currentState()
	cb.lastFailureTime = cb.now()

	switch state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	case CircuitOpen:
	}
}

// transitionTo changes the circuit state. Must be called with mu held.
func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	if cb.state == newState {
		return
	}

	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = cb.now()
	cb.failures = 0
	cb.successes = 0

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(cb.key, oldState, newState)
	}
}

// Stats returns current circuit breaker statistics.
func (cb *CircuitBreaker) Stats() CircuitStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitStats{
		State:           cb.currentState().String(),
		Failures:        cb.failures,
		LastFailureTime: cb.lastFailureTime,
		LastStateChange: cb.lastStateChange,
	}
}

// CircuitStats holds circuit breaker statistics.
type CircuitStats struct {
	State           string    `json:"state"`
	Failures        int       `json:"failures"`
	LastFailureTime time.Time `json:"last_failure_time,omitzero"`
	LastStateChange time.Time `json:"last_state_change"`
}

// CircuitBreakerRegistry holds one breaker per upstream host.
type CircuitBreakerRegistry struct {
	config CircuitBreakerConfig
	mu     sync.RWMutex
	cbs    map[string]*CircuitBreaker
}

// NewCircuitBreakerRegistry creates a new registry.
func NewCircuitBreakerRegistry(config CircuitBreakerConfig) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		config: config,
		cbs:    make(map[string]*CircuitBreaker),
	}
}

// Get returns or creates the breaker for key.
func (r *CircuitBreakerRegistry) Get(key string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.cbs[key]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if cb, ok := r.cbs[key]; ok {
		return cb
	}
	cb = NewCircuitBreaker(key, r.config)
	r.cbs[key] = cb
	return cb
}

// AllStats returns statistics for every known host.
func (r *CircuitBreakerRegistry) AllStats() map[string]CircuitStats {
	r.mu.RLock()
	cbs := make(map[string]*CircuitBreaker, len(r.cbs))
	for k, cb := range r.cbs {
		cbs[k] = cb
	}
	r.mu.RUnlock()

	stats := make(map[string]CircuitStats, len(cbs))
	for key, cb := range cbs {
		stats[key] = cb.Stats()
	}
	return stats
}
