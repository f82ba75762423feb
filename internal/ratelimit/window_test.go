package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnstile/internal/clock"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newWindow(t *testing.T, clk clock.Clock, capacity int64, d time.Duration, s Strategy) *Window {
	t.Helper()
	w, err := NewWindow(WindowConfig{ID: "w", Capacity: capacity, Duration: d, Strategy: s}, clk)
	require.NoError(t, err)
	return w
}

func TestNewWindow_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  WindowConfig
	}{
		{"missing_id", WindowConfig{Capacity: 1, Duration: time.Second}},
		{"zero_capacity", WindowConfig{ID: "w", Duration: time.Second}},
		{"zero_duration", WindowConfig{ID: "w", Capacity: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWindow(tt.cfg, nil)
			assert.Error(t, err)
		})
	}
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyFixed, s)

	s, err = ParseStrategy("Sliding")
	require.NoError(t, err)
	assert.Equal(t, StrategySliding, s)
	assert.Equal(t, "sliding", s.String())

	_, err = ParseStrategy("leaky")
	assert.Error(t, err)
}

func TestWindow_FixedConsumeAndReset(t *testing.T) {
	clk := clock.NewManual(epoch)
	w := newWindow(t, clk, 10, time.Minute, StrategyFixed)

	assert.True(t, w.TryConsume(6))
	assert.True(t, w.TryConsume(4))
	assert.False(t, w.TryConsume(1))
	assert.Equal(t, int64(10), w.Status().Used)

	clk.Advance(20 * time.Second)
	assert.Equal(t, 40*time.Second, w.TimeUntilAvailable(1))
	assert.Equal(t, time.Duration(0), w.TimeUntilAvailable(0))

	clk.Advance(40 * time.Second)
	assert.Equal(t, time.Duration(0), w.TimeUntilAvailable(10))
	assert.True(t, w.TryConsume(10))
	st := w.Status()
	assert.Equal(t, int64(10), st.Used)
	assert.Equal(t, time.Minute, st.ResetsIn)
}

func TestWindow_CapacityBoundary(t *testing.T) {
	w := newWindow(t, clock.NewManual(epoch), 1200, time.Minute, StrategyFixed)

	require.True(t, w.TryConsume(1199))
	assert.True(t, w.TryConsume(1), "the 1200th unit fits")
	assert.False(t, w.TryConsume(1), "the 1201st unit does not")
	assert.Equal(t, int64(0), w.Status().Remaining())
}

func TestWindow_Sliding(t *testing.T) {
	clk := clock.NewManual(epoch)
	w := newWindow(t, clk, 10, time.Minute, StrategySliding)

	require.True(t, w.TryConsume(5))
	clk.Advance(30 * time.Second)
	require.True(t, w.TryConsume(5))

	clk.Advance(10 * time.Second)
	assert.False(t, w.TryConsume(3))
	// The oldest 5 units leave the window 60s after they were taken.
	assert.Equal(t, 20*time.Second, w.TimeUntilAvailable(3))
	assert.Equal(t, 50*time.Second, w.TimeUntilAvailable(8))

	clk.Advance(20 * time.Second)
	assert.Equal(t, int64(5), w.Status().Used)
	assert.True(t, w.TryConsume(5))
	assert.False(t, w.TryConsume(1))
}

func TestWindow_ReconcileFixed(t *testing.T) {
	clk := clock.NewManual(epoch)
	w := newWindow(t, clk, 1200, time.Minute, StrategyFixed)
	require.True(t, w.TryConsume(10))

	resetAt := epoch.Add(15 * time.Second)
	w.Reconcile(900, resetAt)
	first := w.Status()
	assert.Equal(t, int64(900), first.Used)
	assert.Equal(t, 15*time.Second, first.ResetsIn)

	w.Reconcile(900, resetAt)
	assert.Equal(t, first, w.Status(), "reconcile is idempotent")

	clk.Advance(15 * time.Second)
	assert.Equal(t, int64(0), w.Status().Used)
}

func TestWindow_ReconcileSliding(t *testing.T) {
	clk := clock.NewManual(epoch)
	w := newWindow(t, clk, 100, 10*time.Second, StrategySliding)
	require.True(t, w.TryConsume(3))

	w.Reconcile(42, time.Time{})
	assert.Equal(t, int64(42), w.Status().Used)
	w.Reconcile(42, time.Time{})
	assert.Equal(t, int64(42), w.Status().Used)

	w.Reconcile(0, time.Time{})
	assert.Equal(t, int64(0), w.Status().Used)
	assert.Equal(t, time.Duration(0), w.Status().ResetsIn)
}

func TestWindow_ReconcileSlidingResetAt(t *testing.T) {
	clk := clock.NewManual(epoch)
	w := newWindow(t, clk, 10, 10*time.Second, StrategySliding)

	resetAt := epoch.Add(4 * time.Second)
	w.Reconcile(10, resetAt)
	first := w.Status()
	assert.Equal(t, int64(10), first.Used)
	assert.Equal(t, 4*time.Second, first.ResetsIn)
	assert.Equal(t, 4*time.Second, w.TimeUntilAvailable(1))

	w.Reconcile(10, resetAt)
	assert.Equal(t, first, w.Status(), "reconcile is idempotent")

	clk.Advance(4 * time.Second)
	assert.Equal(t, int64(0), w.Status().Used)
	assert.True(t, w.TryConsume(1))

	w.Reconcile(5, clk.Now().Add(time.Hour))
	assert.Equal(t, 10*time.Second, w.Status().ResetsIn, "a reset beyond the window length is capped at a full window")

	w.Reconcile(5, clk.Now().Add(-time.Second))
	assert.Equal(t, int64(0), w.Status().Used, "a reset in the past means the count already expired")
}

func TestWindow_ReconcileNegativeClamped(t *testing.T) {
	w := newWindow(t, clock.NewManual(epoch), 10, time.Second, StrategyFixed)
	w.Reconcile(-5, time.Time{})
	assert.Equal(t, int64(0), w.Status().Used)
}
