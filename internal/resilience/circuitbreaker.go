// Package resilience guards upstream calls with a circuit breaker.
package resilience

import (
	"sync"
	"time"

	apperrors "pattern-scanner/internal/errors"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit. Zero disables the breaker.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before a probe request is let through.
	Cooldown time.Duration
	// Counts decides which errors count as failures. Nil counts every error.
	Counts func(error) bool

	Now func() time.Time
}

// Breaker fails calls fast once an upstream has failed repeatedly.
type Breaker struct {
	name   string
	config BreakerConfig

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool

	rejected int64
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, config BreakerConfig) *Breaker {
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Breaker{name: name, config: config, state: CircuitClosed}
}

// Do runs fn unless the circuit is open, and records its outcome.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}
	v, err := fn()
	b.record(err)
	return v, err
}

func (b *Breaker) allow() error {
	if b == nil || b.config.FailureThreshold <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if b.config.Now().Sub(b.openedAt) < b.config.Cooldown {
			b.rejected++
			return apperrors.Wrapf(apperrors.ErrCircuitOpen, "%s", b.name)
		}
		b.state = CircuitHalfOpen
		b.probing = true
		return nil
	case CircuitHalfOpen:
		// One probe at a time
		if b.probing {
			b.rejected++
			return apperrors.Wrapf(apperrors.ErrCircuitOpen, "%s", b.name)
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	if b == nil || b.config.FailureThreshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := err != nil && (b.config.Counts == nil || b.config.Counts(err))
	if b.state == CircuitHalfOpen {
		b.probing = false
		if failed {
			b.trip()
		} else {
			b.state = CircuitClosed
			b.failures = 0
		}
		return
	}

	if !failed {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.config.FailureThreshold {
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.state = CircuitOpen
	b.openedAt = b.config.Now()
	b.failures = 0
}

// State returns the current circuit state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Rejected returns how many calls were refused while open.
func (b *Breaker) Rejected() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rejected
}
