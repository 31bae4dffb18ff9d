package resilient

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker's position.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	default:
		return "open"
	}
}

// Breaker stops sending calls to a failing endpoint for a cooldown period
// instead of retrying indefinitely. It is owned by exactly one Caller and
// reported to once per logical call, not once per retry attempt.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	openFor   time.Duration
	now       func() time.Time

	state    BreakerState
	failures int
	openedAt time.Time
	trialing bool

	onState func(BreakerState)
}

// NewBreaker creates a closed breaker. now supplies the current time so
// tests can drive it with a fake clock.
func NewBreaker(threshold int, openFor time.Duration, now func() time.Time) *Breaker {
	return &Breaker{threshold: threshold, openFor: openFor, now: now}
}

// OnStateChange registers a hook invoked (under the breaker lock) whenever
// the state moves. Used to mirror the state into metrics.
func (b *Breaker) OnStateChange(fn func(BreakerState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onState = fn
}

// Allow reports whether a call may proceed. While open it fails fast with
// ErrBreakerOpen until the cooldown elapses; then exactly one trial call is
// let through, and concurrent callers keep failing fast until the trial
// resolves.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.openFor {
			return ErrBreakerOpen
		}
		b.setState(StateHalfOpen)
		b.trialing = true
		return nil
	default: // StateHalfOpen
		if b.trialing {
			return ErrBreakerOpen
		}
		b.trialing = true
		return nil
	}
}

// Success records a successful logical call, closing the breaker and
// resetting the failure count.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.trialing = false
	if b.state != StateClosed {
		b.setState(StateClosed)
	}
}

// Failure records a failed logical call. A half-open trial failure reopens
// immediately; otherwise the breaker opens once the consecutive-failure
// threshold is reached.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == StateHalfOpen {
		b.trialing = false
		b.openedAt = b.now()
		b.setState(StateOpen)
		return
	}
	if b.failures >= b.threshold {
		b.openedAt = b.now()
		b.setState(StateOpen)
	}
}

// State returns the current position.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) setState(s BreakerState) {
	b.state = s
	if b.onState != nil {
		b.onState(s)
	}
}
