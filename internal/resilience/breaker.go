// Package resilience provides a generic circuit breaker guarding
// failure-prone dependencies (OLAP, OLTP) behind a type-erased wrapper.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
type State int

// Circuit breaker states.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns a human-readable state name, also used as the metrics
// transition label.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by Call when the breaker is Open. Callers map
// it to a degradation path; no other internal state leaks out.
var ErrCircuitOpen = errors.New("circuit open")

// Recorder receives state-transition notifications for metrics. Breaker
// works with a nil Recorder (no-op).
type Recorder interface {
	RecordState(dep string, state State)
	RecordTransition(dep string, to State)
}

// Breaker is a per-dependency three-state guard using consecutive
// failure/success counters (not ratio-based), per spec: F consecutive
// failures opens, S consecutive HalfOpen successes closes.
type Breaker struct {
	name          string
	failureThresh int
	successThresh int
	openTimeout   time.Duration
	recorder      Recorder

	mu              sync.Mutex
	state           State
	consecutiveFail int
	consecutiveOK   int
	openedAt        time.Time
}

// NewBreaker constructs a Breaker for a dependency name ("olap", "oltp").
func NewBreaker(name string, failureThresh, successThresh int, openTimeout time.Duration, recorder Recorder) *Breaker {
	if failureThresh <= 0 {
		failureThresh = 3
	}
	if successThresh <= 0 {
		successThresh = 3
	}
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	return &Breaker{
		name:          name,
		failureThresh: failureThresh,
		successThresh: successThresh,
		openTimeout:   openTimeout,
		recorder:      recorder,
		state:         StateClosed,
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// admit decides, under lock, whether a call may proceed, transitioning
// Open -> HalfOpen when the probe timeout has elapsed.
func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && time.Since(b.openedAt) >= b.openTimeout {
		b.transition(StateHalfOpen)
	}
	return b.state != StateOpen
}

// recordResult updates state under lock after a call completes.
func (b *Breaker) recordResult(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.consecutiveOK = 0
		switch b.state {
		case StateClosed:
			b.consecutiveFail++
			if b.consecutiveFail >= b.failureThresh {
				b.openedAt = time.Now()
				b.transition(StateOpen)
			}
		case StateHalfOpen:
			b.openedAt = time.Now()
			b.transition(StateOpen)
		}
		return
	}

	b.consecutiveFail = 0
	if b.state == StateHalfOpen {
		b.consecutiveOK++
		if b.consecutiveOK >= b.successThresh {
			b.transition(StateClosed)
		}
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	b.state = to
	if to == StateClosed || to == StateOpen {
		b.consecutiveOK = 0
		b.consecutiveFail = 0
	}
	if b.recorder != nil {
		b.recorder.RecordTransition(b.name, to)
		b.recorder.RecordState(b.name, to)
	}
}

// Call invokes fn under circuit breaker protection. If the breaker is Open,
// fn is never invoked and ErrCircuitOpen is returned.
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if !b.admit() {
		return zero, fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
	}
	v, err := fn(ctx)
	b.recordResult(err)
	return v, err
}
