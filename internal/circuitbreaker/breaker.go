// Package circuitbreaker stops dispatching to a venue that keeps failing at the
// transport level. Venue rejections and quota refusals are not failures here.
package circuitbreaker

import (
	"sync"
	"sync/atomic"
	"time"

	"turnstile/internal/clock"
)

type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
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

type Config struct {
	FailThreshold    int           `json:"fail_threshold" validate:"min=1"`
	SuccessThreshold int           `json:"success_threshold" validate:"min=1"`
	Timeout          time.Duration `json:"timeout" validate:"min=1ms"`
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock sets the time source used for the open timeout.
func WithClock(c clock.Clock) Option {
	return func(b *Breaker) {
		b.clock = c
	}
}

// Breaker is a consecutive-failure circuit breaker. It is safe for concurrent use.
type Breaker struct {
	mu               sync.Mutex
	state            State
	failures         int
	successes        int
	openedAt         time.Time
	failThreshold    int
	successThreshold int
	timeout          time.Duration
	clock            clock.Clock
	metrics          metrics
}

type metrics struct {
	allowed      atomic.Int64
	rejected     atomic.Int64
	successes    atomic.Int64
	failures     atomic.Int64
	stateChanges atomic.Int32
}

func New(config Config, opts ...Option) *Breaker {
	b := &Breaker{
		failThreshold:    max(config.FailThreshold, 1),
		successThreshold: max(config.SuccessThreshold, 1),
		timeout:          config.Timeout,
		clock:            clock.New(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether a request may go out. An open breaker moves to
// half-open once the timeout has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && !b.clock.Now().Before(b.openedAt.Add(b.timeout)) {
		b.transitionTo(StateHalfOpen)
	}
	if b.state == StateOpen {
		b.metrics.rejected.Add(1)
		return false
	}
	b.metrics.allowed.Add(1)
	return true
}

// RetryAfter is how long until an open breaker lets a probe through.
func (b *Breaker) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return 0
	}
	return max(b.openedAt.Add(b.timeout).Sub(b.clock.Now()), 0)
}

// Record reports the result of an allowed request.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.metrics.successes.Add(1)
	} else {
		b.metrics.failures.Add(1)
	}

	switch b.state {
	case StateClosed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.failThreshold {
			b.open()
		}
	case StateHalfOpen:
		if !success {
			b.open()
			return
		}
		b.successes++
		if b.successes >= b.successThreshold {
			b.transitionTo(StateClosed)
		}
	case StateOpen:
		// late result of a request allowed before the breaker opened
	}
}

func (b *Breaker) open() {
	b.openedAt = b.clock.Now()
	b.transitionTo(StateOpen)
}

func (b *Breaker) transitionTo(s State) {
	if b.state == s {
		return
	}
	b.state = s
	b.failures = 0
	b.successes = 0
	b.metrics.stateChanges.Add(1)
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(StateClosed)
}

func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) Successes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.successes
}

func (b *Breaker) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		Allowed:      b.metrics.allowed.Load(),
		Rejected:     b.metrics.rejected.Load(),
		Successes:    b.metrics.successes.Load(),
		Failures:     b.metrics.failures.Load(),
		StateChanges: b.metrics.stateChanges.Load(),
		CurrentState: b.State().String(),
	}
}

type MetricsSnapshot struct {
	Allowed      int64
	Rejected     int64
	Successes    int64
	Failures     int64
	StateChanges int32
	CurrentState string
}
