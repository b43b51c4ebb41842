package reliability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the current state of the circuit breaker
type CircuitState int

const (
	// StateClosed - Normal operation, requests pass through
	StateClosed CircuitState = iota
	// StateOpen - Circuit is open, requests fail fast
	StateOpen
	// StateHalfOpen - Testing state, limited requests allowed
	StateHalfOpen
)

// String returns the string representation of the circuit state
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening the circuit
	FailureThreshold int
	// SuccessThreshold is the number of successes needed to close the circuit in half-open state
	SuccessThreshold int
	// Timeout is how long the circuit stays open before transitioning to half-open
	Timeout time.Duration
	// ShouldTrip decides whether an error counts as a failure
	ShouldTrip func(error) bool
	// OnStateChange is called when the circuit state changes
	OnStateChange func(name string, from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns a default configuration
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Timeout:          30 * time.Second,
		ShouldTrip: func(err error) bool {
			return err != nil
		},
	}
}

// CircuitBreaker stops calling a failing dependency for a while.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	now    func() time.Time

	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	successCount    int
	halfOpenBusy    bool
	lastFailureTime time.Time
	nextAttemptTime time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = def.SuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.ShouldTrip == nil {
		config.ShouldTrip = def.ShouldTrip
	}
	return &CircuitBreaker{
		name:   name,
		config: config,
		now:    time.Now,
		state:  StateClosed,
	}
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	trial, err := cb.beforeRequest()
	if err != nil {
		return err
	}
	err = fn(ctx)
	cb.recordResult(err, trial)
	return err
}

// beforeRequest admits a request. In half-open state only one trial runs
// at a time.
func (cb *CircuitBreaker) beforeRequest() (trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentState() {
	case StateOpen:
		return false, NewCircuitOpenError(cb.name, cb.nextAttemptTime)
	case StateHalfOpen:
		if cb.halfOpenBusy {
			return false, NewCircuitOpenError(cb.name, cb.nextAttemptTime)
		}
		cb.halfOpenBusy = true
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) recordResult(err error, trial bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if trial {
		cb.halfOpenBusy = false
	}
	now := cb.now()
	if err != nil && cb.config.ShouldTrip(err) {
		cb.failureCount++
		cb.lastFailureTime = now
		if cb.state == StateHalfOpen || cb.failureCount >= cb.config.FailureThreshold {
			cb.setState(StateOpen, now)
		}
		return
	}

	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.setState(StateClosed, now)
		}
	case StateClosed:
		cb.failureCount = 0
	}
}

func (cb *CircuitBreaker) setState(state CircuitState, now time.Time) {
	prev := cb.state
	if prev == state {
		return
	}
	cb.state = state

	switch state {
	case StateClosed:
		cb.failureCount = 0
		cb.successCount = 0
		cb.nextAttemptTime = time.Time{}
	case StateOpen:
		cb.nextAttemptTime = now.Add(cb.config.Timeout)
		cb.successCount = 0
	case StateHalfOpen:
		cb.successCount = 0
		cb.halfOpenBusy = false
	}

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, prev, state)
	}
}

// currentState moves an open circuit to half-open once its timeout passed.
// The caller holds the lock.
func (cb *CircuitBreaker) currentState() CircuitState {
	now := cb.now()
	if cb.state == StateOpen && !now.Before(cb.nextAttemptTime) {
		cb.setState(StateHalfOpen, now)
	}
	return cb.state
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

// Stats returns statistics about the circuit breaker
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerStats{
		Name:            cb.name,
		State:           cb.state,
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		LastFailureTime: cb.lastFailureTime,
		NextAttemptTime: cb.nextAttemptTime,
	}
}

// CircuitBreakerStats contains statistics about a circuit breaker
type CircuitBreakerStats struct {
	Name            string
	State           CircuitState
	FailureCount    int
	SuccessCount    int
	LastFailureTime time.Time
	NextAttemptTime time.Time
}

// CircuitOpenError is returned when the circuit breaker is open
type CircuitOpenError struct {
	CircuitName     string
	NextAttemptTime time.Time
}

// NewCircuitOpenError creates a new circuit open error
func NewCircuitOpenError(circuitName string, nextAttemptTime time.Time) *CircuitOpenError {
	return &CircuitOpenError{
		CircuitName:     circuitName,
		NextAttemptTime: nextAttemptTime,
	}
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is open, next attempt allowed at %s",
		e.CircuitName, e.NextAttemptTime.Format(time.RFC3339))
}

// IsCircuitOpenError checks if an error is a circuit open error
func IsCircuitOpenError(err error) bool {
	var circuitErr *CircuitOpenError
	return errors.As(err, &circuitErr)
}
