package assistant

import (
	"log"
	"sync"
	"time"
)

// CircuitBreaker stops calling the AI service after repeated failures
type CircuitBreaker struct {
	failureThreshold int
	resetTimeout     time.Duration

	consecutiveFailures int
	totalFailures       int
	totalRequests       int
	isOpen              bool
	halfOpen            bool
	lastFailureTime     time.Time
	trialStarted        time.Time

	now   func() time.Time
	mutex sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	if resetTimeout <= 0 {
		resetTimeout = time.Minute
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
	}
}

// RecordSuccess records a successful call and closes the circuit
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.totalRequests++
	cb.consecutiveFailures = 0
	cb.isOpen = false
	cb.halfOpen = false
}

// RecordFailure records a failed call
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.totalRequests++
	cb.totalFailures++
	cb.consecutiveFailures++
	cb.lastFailureTime = cb.now()

	if cb.halfOpen {
		cb.halfOpen = false
		log.Printf("Assistant: trial call failed, circuit breaker open for another %v", cb.resetTimeout)
		return
	}
	if !cb.isOpen && cb.consecutiveFailures >= cb.failureThreshold {
		cb.isOpen = true
		log.Printf("Assistant: circuit breaker open after %d consecutive failures, retry after %v",
			cb.consecutiveFailures, cb.resetTimeout)
	}
}

// CanProceed checks if calls are allowed. After the reset timeout exactly one
// trial call is let through; others are refused until it reports back. A
// trial that never reports is replaced after another reset timeout.
func (cb *CircuitBreaker) CanProceed() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if !cb.isOpen {
		return true
	}

	now := cb.now()
	if cb.halfOpen {
		if now.Sub(cb.trialStarted) <= cb.resetTimeout {
			return false
		}
	} else if now.Sub(cb.lastFailureTime) <= cb.resetTimeout {
		return false
	}

	log.Printf("Assistant: circuit breaker half-open after %v", cb.resetTimeout)
	cb.halfOpen = true
	cb.trialStarted = now
	return true
}

// GetStatus returns current circuit breaker status
func (cb *CircuitBreaker) GetStatus() (isOpen bool, failures int, total int) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.isOpen, cb.totalFailures, cb.totalRequests
}
