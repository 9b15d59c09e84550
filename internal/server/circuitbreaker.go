// circuitbreaker.go - Circuit breaker around external dependencies.
//
// The scanner and content store sit on the network; when one of them
// goes down, requests should fail fast instead of stacking up behind
// timeouts.
package server

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState int

const (
	// StateClosed: requests flow normally
	StateClosed CircuitState = iota
	// StateOpen: requests fail fast
	StateOpen
	// StateHalfOpen: probing whether the dependency recovered
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker trips after maxFailures consecutive failures and
// allows a single probe call once the cooldown elapses.
type CircuitBreaker struct {
	mu sync.Mutex

	name        string
	maxFailures int
	cooldown    time.Duration

	state       CircuitState
	failures    int
	openedAt    time.Time
	probeActive bool
}

// NewCircuitBreaker creates a breaker named for logging.
func NewCircuitBreaker(name string, maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:        name,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		state:       StateClosed,
	}
}

// Execute runs fn under breaker protection.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}
	err := fn()
	cb.afterCall(err)
	return err
}

// State reports the current state, for health output.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(cb.openedAt) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probeActive = true
		return nil
	case StateHalfOpen:
		if cb.probeActive {
			return ErrCircuitOpen
		}
		cb.probeActive = true
		return nil
	}
	return nil
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probeActive = false

	if err == nil {
		if cb.state != StateClosed {
			Info("circuit_closed", map[string]any{"breaker": cb.name})
		}
		cb.state = StateClosed
		cb.failures = 0
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		if cb.state != StateOpen {
			Warn("circuit_opened", map[string]any{
				"breaker":  cb.name,
				"failures": cb.failures,
			})
		}
		cb.state = StateOpen
		cb.openedAt = time.Now()
	}
}
