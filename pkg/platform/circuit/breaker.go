// Package circuit implements a minimal failure-threshold circuit breaker used
// to protect calls to external collaborators (the policy engine, the rate
// limiter's backing store) from sustained outages.
package circuit

import "sync"

// State is the breaker's current disposition.
type State int

const (
	StateClosed State = iota
	StateOpen
)

// Change reports whether a RecordFailure/RecordSuccess call caused a state
// transition, so callers can log/alert on the transition itself rather than
// on every call.
type Change struct {
	Opened bool
	Closed bool
}

// Breaker tracks consecutive failures and successes to decide whether calls
// should be attempted against the primary dependency or shed to a fallback.
type Breaker struct {
	mu sync.Mutex

	name string
	state State

	failureThreshold int
	successThreshold int

	failureCount int
	successCount int
}

// Option configures a Breaker at construction time.
type Option func(*Breaker)

// WithFailureThreshold sets the number of consecutive failures required to
// open the circuit. Default 5.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) { b.failureThreshold = n }
}

// WithSuccessThreshold sets the number of consecutive successes required to
// close an open circuit. Default 1.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) { b.successThreshold = n }
}

// New constructs a Breaker in the closed state.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		state:            StateClosed,
		failureThreshold: 5,
		successThreshold: 1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the breaker's identifying name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsOpen reports whether the circuit is currently open (callers should use
// the fallback path).
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateOpen
}

// RecordFailure registers a failed call. It returns useFallback=true when
// the caller should treat the dependency as unavailable for this call
// (either it was already open, or this failure just opened it).
func (b *Breaker) RecordFailure() (useFallback bool, change Change) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successCount = 0

	if b.state == StateOpen {
		return true, Change{}
	}

	b.failureCount++
	if b.failureCount >= b.failureThreshold {
		b.state = StateOpen
		b.failureCount = 0
		return true, Change{Opened: true}
	}
	return false, Change{}
}

// RecordSuccess registers a successful call. It returns usePrimary=true once
// the circuit has closed (either it was already closed, or this success just
// closed it).
func (b *Breaker) RecordSuccess() (usePrimary bool, change Change) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0

	if b.state == StateClosed {
		return true, Change{}
	}

	b.successCount++
	if b.successCount >= b.successThreshold {
		b.state = StateClosed
		b.successCount = 0
		return true, Change{Closed: true}
	}
	return false, Change{}
}

// Reset forces the breaker back to closed with all counters cleared.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
}
