package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"turnstile/internal/clock"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newBreaker(fail, success int, timeout time.Duration) (*Breaker, *clock.Manual) {
	clk := clock.NewManual(start)
	return New(Config{FailThreshold: fail, SuccessThreshold: success, Timeout: timeout}, WithClock(clk)), clk
}

func TestState_String(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  string
	}{
		{"closed", StateClosed, "CLOSED"},
		{"open", StateOpen, "OPEN"},
		{"half_open", StateHalfOpen, "HALF_OPEN"},
		{"unknown", State(9), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}

func TestBreaker_New(t *testing.T) {
	breaker := New(Config{FailThreshold: 5, SuccessThreshold: 2, Timeout: 30 * time.Second})

	assert.NotNil(t, breaker)
	assert.Equal(t, StateClosed, breaker.State())
	assert.True(t, breaker.Allow())
}

func TestBreaker_TransitionToOpen(t *testing.T) {
	breaker, _ := newBreaker(3, 2, time.Second)

	breaker.Record(false)
	breaker.Record(false)
	assert.Equal(t, StateClosed, breaker.State())

	breaker.Record(false)
	assert.Equal(t, StateOpen, breaker.State())
	assert.False(t, breaker.Allow())
	assert.Equal(t, time.Second, breaker.RetryAfter())
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	breaker, clk := newBreaker(2, 2, 10*time.Second)
	breaker.Record(false)
	breaker.Record(false)

	clk.Advance(9 * time.Second)
	assert.False(t, breaker.Allow())
	assert.Equal(t, time.Second, breaker.RetryAfter())

	clk.Advance(time.Second)
	assert.True(t, breaker.Allow())
	assert.Equal(t, StateHalfOpen, breaker.State())
	assert.Zero(t, breaker.RetryAfter())
}

func TestBreaker_HalfOpenToClosed(t *testing.T) {
	breaker, clk := newBreaker(2, 2, time.Second)
	breaker.Record(false)
	breaker.Record(false)
	clk.Advance(time.Second)
	assert.True(t, breaker.Allow())

	breaker.Record(true)
	assert.Equal(t, StateHalfOpen, breaker.State())

	breaker.Record(true)
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	breaker, clk := newBreaker(2, 2, time.Second)
	breaker.Record(false)
	breaker.Record(false)
	clk.Advance(time.Second)
	assert.True(t, breaker.Allow())

	breaker.Record(false)
	assert.Equal(t, StateOpen, breaker.State())
	assert.False(t, breaker.Allow())
}

func TestBreaker_LateResultWhileOpenIsIgnored(t *testing.T) {
	breaker, _ := newBreaker(1, 1, time.Second)
	breaker.Record(false)
	breaker.Record(true)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreaker_Reset(t *testing.T) {
	breaker, _ := newBreaker(2, 2, time.Second)
	breaker.Record(false)
	breaker.Record(false)

	breaker.Reset()

	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, 0, breaker.Failures())
	assert.Equal(t, 0, breaker.Successes())
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	breaker, _ := newBreaker(5, 2, time.Second)

	breaker.Record(false)
	breaker.Record(false)
	breaker.Record(false)
	assert.Equal(t, 3, breaker.Failures())

	breaker.Record(true)
	assert.Equal(t, 0, breaker.Failures())
}

func TestBreaker_Metrics(t *testing.T) {
	breaker, _ := newBreaker(1, 1, time.Second)

	assert.True(t, breaker.Allow())
	breaker.Record(false)
	assert.False(t, breaker.Allow())

	m := breaker.Metrics()
	assert.Equal(t, int64(1), m.Allowed)
	assert.Equal(t, int64(1), m.Rejected)
	assert.Equal(t, int64(1), m.Failures)
	assert.Equal(t, int32(1), m.StateChanges)
	assert.Equal(t, "OPEN", m.CurrentState)
}
