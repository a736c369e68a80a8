package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the lower-case state name.
func (s State) String() string {
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

// ErrOpen is returned without calling the guarded function while the
// breaker rejects traffic.
var ErrOpen = errors.New("circuit breaker is open")

type Config struct {
	FailureThreshold    int           // consecutive failures that open the breaker
	SuccessThreshold    int           // half-open successes that close it again
	Timeout             time.Duration // open duration before probing
	MaxRequestsHalfOpen int
	// IsFailure decides whether an error counts against the breaker.
	// Defaults to every non-nil error.
	IsFailure func(error) bool
}

// DefaultConfig returns the breaker thresholds used by the stores.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		MaxRequestsHalfOpen: 3,
	}
}

type CircuitBreaker struct {
	name   string
	config Config

	mu               sync.Mutex
	state            State
	failures         int
	successes        int
	halfOpenInFlight int
	changedAt        time.Time
	lastFailure      time.Time

	onStateChange func(name string, from, to State)
	now           func() time.Time
}

// New creates a closed circuit breaker.
func New(name string, config Config) *CircuitBreaker {
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}
	return &CircuitBreaker{
		name:      name,
		config:    config,
		changedAt: time.Now(),
		now:       time.Now,
	}
}

// OnStateChange registers a callback invoked synchronously after each
// transition, outside the breaker's lock.
func (cb *CircuitBreaker) OnStateChange(fn func(name string, from, to State)) {
	cb.mu.Lock()
	cb.onStateChange = fn
	cb.mu.Unlock()
}

// Name returns the breaker name used in logs and metrics.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn through the breaker. Errors from fn are returned
// unwrapped so callers can still match domain sentinels.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Do is Execute for functions with a result.
func Do[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := cb.before(); err != nil {
		return zero, err
	}
	res, err := fn(ctx)
	cb.after(err)
	return res, err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	var from, to State
	changed := false

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.changedAt) < cb.config.Timeout {
			cb.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrOpen, cb.name)
		}
		from, to, changed = cb.transition(StateHalfOpen)
		cb.halfOpenInFlight++
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.config.MaxRequestsHalfOpen {
			cb.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrOpen, cb.name)
		}
		cb.halfOpenInFlight++
	}
	hook := cb.onStateChange
	cb.mu.Unlock()

	if changed && hook != nil {
		hook(cb.name, from, to)
	}
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	var from, to State
	changed := false

	if cb.state == StateHalfOpen && cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}

	if err != nil && cb.config.IsFailure(err) {
		cb.failures++
		cb.successes = 0
		cb.lastFailure = cb.now()
		switch {
		case cb.state == StateHalfOpen:
			from, to, changed = cb.transition(StateOpen)
		case cb.state == StateClosed && cb.failures >= cb.config.FailureThreshold:
			from, to, changed = cb.transition(StateOpen)
		}
	} else {
		cb.failures = 0
		cb.successes++
		if cb.state == StateHalfOpen && cb.successes >= cb.config.SuccessThreshold {
			from, to, changed = cb.transition(StateClosed)
		}
	}
	hook := cb.onStateChange
	cb.mu.Unlock()

	if changed && hook != nil {
		hook(cb.name, from, to)
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to State) (State, State, bool) {
	from := cb.state
	if from == to {
		return from, to, false
	}
	cb.state = to
	cb.changedAt = cb.now()
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenInFlight = 0
	return from, to, true
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

type Stats struct {
	State           State
	Failures        int
	Successes       int
	LastFailureTime time.Time
	StateChangeTime time.Time
}

// Stats returns a snapshot of the counters.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		State:           cb.state,
		Failures:        cb.failures,
		Successes:       cb.successes,
		LastFailureTime: cb.lastFailure,
		StateChangeTime: cb.changedAt,
	}
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from, to, changed := cb.transition(StateClosed)
	hook := cb.onStateChange
	cb.mu.Unlock()
	if changed && hook != nil {
		hook(cb.name, from, to)
	}
}
