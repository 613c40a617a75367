package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	llmerrors "github.com/blueberrycongee/wxai/pkg/errors"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState int

const (
	// StateClosed allows requests to pass through normally.
	StateClosed CircuitState = iota
	// StateOpen blocks all requests.
	StateOpen
	// StateHalfOpen allows limited requests to test recovery.
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

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig contains configuration for a circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes needed to close.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration
	// HalfOpenMaxRequests is the number of probes allowed while half-open.
	HalfOpenMaxRequests int
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 3,
	}
}

// CircuitBreaker stops calling a service that keeps failing with server-side
// errors. Client errors (bad request, auth) never trip it.
type CircuitBreaker struct {
	mu              sync.Mutex
	name            string
	state           CircuitState
	failureCount    int
	successCount    int
	halfOpenCount   int
	lastFailureTime time.Time
	config          CircuitBreakerConfig
	onStateChange   func(name string, from, to CircuitState)
	now             func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given config.
// Zero fields take their defaults.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = def.HalfOpenMaxRequests
	}
	return &CircuitBreaker{
		name:   name,
		state:  StateClosed,
		config: cfg,
		now:    time.Now,
	}
}

// OnStateChange sets a callback for state transitions. The callback runs
// synchronously after the breaker's lock is released.
func (cb *CircuitBreaker) OnStateChange(fn func(name string, from, to CircuitState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Allow returns ErrCircuitOpen when the request must not be sent.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	var notify func()
	defer func() {
		cb.mu.Unlock()
		if notify != nil {
			notify()
		}
	}()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) >= cb.config.Timeout {
			notify = cb.transitionTo(StateHalfOpen)
			cb.halfOpenCount = 1
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenCount < cb.config.HalfOpenMaxRequests {
			cb.halfOpenCount++
			return nil
		}
		return ErrCircuitOpen
	default:
		return ErrCircuitOpen
	}
}

// Record feeds the outcome of a request into the breaker. Outcomes that say
// nothing about service health are ignored.
func (cb *CircuitBreaker) Record(err error) {
	switch {
	case err == nil:
		cb.recordSuccess()
	case countsAsFailure(err):
		cb.recordFailure()
	}
}

// countsAsFailure reports whether err reflects service health. Caller
// cancellation and non-retryable API errors do not.
func countsAsFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *llmerrors.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	return true
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	var notify func()
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			notify = cb.transitionTo(StateClosed)
			cb.failureCount = 0
			cb.successCount = 0
		}
	}
	cb.mu.Unlock()
	if notify != nil {
		notify()
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	var notify func()
	cb.lastFailureTime = cb.now()
	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			notify = cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		notify = cb.transitionTo(StateOpen)
		cb.successCount = 0
	}
	cb.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the circuit breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Reset resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	notify := cb.transitionTo(StateClosed)
	cb.failureCount = 0
	cb.successCount = 0
	cb.halfOpenCount = 0
	cb.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// transitionTo must be called with the lock held. It returns the callback
// to run once the lock is released, or nil.
func (cb *CircuitBreaker) transitionTo(newState CircuitState) func() {
	if cb.state == newState {
		return nil
	}
	oldState := cb.state
	cb.state = newState
	if cb.onStateChange == nil {
		return nil
	}
	fn, name := cb.onStateChange, cb.name
	return func() { fn(name, oldState, newState) }
}
