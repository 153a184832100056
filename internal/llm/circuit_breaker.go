package llm

import (
	"fmt"
	"sync"
	"time"

	"github.com/skilllite/skilllite/internal/slogx"
)

// CircuitState is the breaker's current state.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
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

// CircuitBreakerConfig tunes the breaker.
type CircuitBreakerConfig struct {
	MaxFailures  uint32
	ResetTimeout time.Duration
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{MaxFailures: 5, ResetTimeout: 30 * time.Second}
}

// CircuitBreaker gates retries around transport failures that are NOT
// context-overflow (spec.md §7: "LLM transport failure (non-context)
// propagates"). Context-overflow errors bypass the breaker entirely —
// they're a control-loop signal, not a provider outage symptom.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu              sync.Mutex
	state           CircuitState
	failureCount    uint32
	lastFailureTime time.Time
}

func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{config: config, state: CircuitClosed}
}

func DefaultCircuitBreaker() *CircuitBreaker {
	return NewCircuitBreaker(DefaultCircuitBreakerConfig())
}

func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failureCount = 0
	cb.lastFailureTime = time.Time{}
}

// Call executes fn unless the circuit is open. Context-overflow errors
// from fn pass through without counting as a breaker failure.
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()
	if cb.state == CircuitOpen {
		if time.Since(cb.lastFailureTime) >= cb.config.ResetTimeout {
			cb.state = CircuitHalfOpen
			cb.failureCount = 0
		} else {
			cb.mu.Unlock()
			return fmt.Errorf("circuit breaker open (last failure %v ago)", time.Since(cb.lastFailureTime))
		}
	}
	cb.mu.Unlock()

	err := fn()
	if err != nil && IsContextOverflow(err) {
		return err
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.recordFailure()
		return err
	}
	cb.recordSuccess()
	return nil
}

func (cb *CircuitBreaker) recordFailure() {
	cb.failureCount++
	cb.lastFailureTime = time.Now()
	logger := slogx.For(slogx.CategoryLLM)

	switch cb.state {
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		logger.Warn("circuit breaker reopened after failed probe")
	case CircuitClosed:
		if cb.failureCount >= cb.config.MaxFailures {
			cb.state = CircuitOpen
			logger.Warn("circuit breaker opened", "consecutive_failures", cb.failureCount)
		}
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	switch cb.state {
	case CircuitHalfOpen:
		cb.state = CircuitClosed
		cb.failureCount = 0
		cb.lastFailureTime = time.Time{}
	case CircuitClosed:
		cb.failureCount = 0
	}
}

func (cb *CircuitBreaker) FailureCount() uint32 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}
