package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManual_Advance(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManual(start)

	assert.Equal(t, start, c.Now())
	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestManual_After(t *testing.T) {
	c := NewManual(time.Unix(0, 0))

	ch := c.After(5 * time.Second)
	assert.Equal(t, 1, c.Waiters())

	c.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired early")
	default:
	}

	c.Advance(time.Second)
	select {
	case got := <-ch:
		assert.Equal(t, time.Unix(5, 0), got)
	default:
		t.Fatal("did not fire")
	}
	assert.Zero(t, c.Waiters())
}

func TestManual_AfterNonPositive(t *testing.T) {
	c := NewManual(time.Unix(0, 0))

	select {
	case <-c.After(0):
	default:
		t.Fatal("zero duration should fire immediately")
	}
	assert.Zero(t, c.Waiters())
}

func TestRealClock(t *testing.T) {
	c := New()
	before := time.Now()
	assert.False(t, c.Now().Before(before))

	select {
	case <-c.After(time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("real clock After did not fire")
	}
}
