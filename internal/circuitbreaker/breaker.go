// Package circuitbreaker protects rate-limited or failing data sources by
// skipping them after repeated consecutive failures.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the current state of the circuit breaker
type State int

// Circuit breaker states
const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Tripped, calls are skipped
	StateHalfOpen              // Probing whether the source has recovered
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrOpen is returned by Allow while the circuit is open.
var ErrOpen = errors.New("circuit breaker open")

// CircuitBreaker trips after a run of consecutive failures and lets a trial
// through once the reset delay has elapsed.
type CircuitBreaker struct {
	name string

	// Consecutive failures that trip the circuit
	failureThreshold int

	// Duration before a half-open trial request is allowed
	resetDelay time.Duration

	// Successful trial requests required to close the circuit again
	successThreshold int

	mu           sync.Mutex
	state        State
	failures     int
	successCount int
	lastTrip     time.Time

	onTripCallback func(name, reason string)
	now            func() time.Time
}

// New creates a breaker for the named source. A threshold below one disables tripping.
func New(name string, failureThreshold int) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		resetDelay:       30 * time.Second,
		successThreshold: 1,
		state:            StateClosed,
		now:              time.Now,
	}
}

// WithResetDelay sets a custom reset delay and returns the circuit breaker
func (cb *CircuitBreaker) WithResetDelay(delay time.Duration) *CircuitBreaker {
	cb.resetDelay = delay
	return cb
}

// WithSuccessThreshold sets the number of successful trial requests needed to close the circuit
func (cb *CircuitBreaker) WithSuccessThreshold(threshold int) *CircuitBreaker {
	cb.successThreshold = threshold
	return cb
}

// WithTripCallback sets a callback function that is called when the circuit trips
func (cb *CircuitBreaker) WithTripCallback(callback func(name, reason string)) *CircuitBreaker {
	cb.onTripCallback = callback
	return cb
}

// Allow reports whether a call may proceed. While open it returns ErrOpen
// until the reset delay has passed, then moves to half-open.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	if cb.now().Sub(cb.lastTrip) < cb.resetDelay {
		return fmt.Errorf("%s: %w", cb.name, ErrOpen)
	}
	cb.state = StateHalfOpen
	cb.successCount = 0
	logrus.WithField("source", cb.name).Info("Circuit breaker half-open: probing source")
	return nil
}

// RecordSuccess resets the failure run and closes a half-open circuit once
// enough trial requests have succeeded.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = StateClosed
			cb.successCount = 0
			logrus.WithField("source", cb.name).Info("Circuit breaker closed: source recovered")
		}
	}
}

// RecordFailure counts a failed call and trips the circuit when the
// threshold is reached. A failed half-open trial trips immediately.
func (cb *CircuitBreaker) RecordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.failureThreshold < 1 {
		return
	}
	cb.failures++
	switch {
	case cb.state == StateHalfOpen:
		cb.trip(fmt.Sprintf("trial request failed: %v", err))
	case cb.state == StateClosed && cb.failures >= cb.failureThreshold:
		cb.trip(fmt.Sprintf("%d consecutive failures, last: %v", cb.failures, err))
	}
}

// Name returns the breaker's label
func (cb *CircuitBreaker) Name() string { return cb.name }

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forcibly resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.successCount = 0
	logrus.WithField("source", cb.name).Info("Circuit breaker manually reset to closed state")
}

// trip sets the circuit breaker to open state with the current time
func (cb *CircuitBreaker) trip(reason string) {
	cb.state = StateOpen
	cb.lastTrip = cb.now()
	cb.failures = 0
	logrus.WithFields(logrus.Fields{
		"source": cb.name,
		"reason": reason,
	}).Warn("Circuit breaker tripped")

	if cb.onTripCallback != nil {
		go cb.onTripCallback(cb.name, reason)
	}
}
