package ratelimit

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"turnstile/internal/clock"
)

// Strategy selects how a window forgets old consumption.
type Strategy int

const (
	// StrategyFixed resets usage to zero when the window period elapses.
	StrategyFixed Strategy = iota
	// StrategySliding counts only consumption recorded within the last period.
	StrategySliding
)

func (s Strategy) String() string {
	if s == StrategySliding {
		return "sliding"
	}
	return "fixed"
}

// ParseStrategy accepts "fixed", "sliding" or the empty string (fixed).
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fixed":
		return StrategyFixed, nil
	case "sliding":
		return StrategySliding, nil
	}
	return StrategyFixed, fmt.Errorf("unknown window strategy %q", s)
}

// WindowConfig describes one venue quota window.
type WindowConfig struct {
	ID       string
	Capacity int64
	Duration time.Duration
	Strategy Strategy
}

func (c WindowConfig) validate() error {
	switch {
	case c.ID == "":
		return fmt.Errorf("window id is required")
	case c.Capacity <= 0:
		return fmt.Errorf("window %s: capacity must be positive", c.ID)
	case c.Duration <= 0:
		return fmt.Errorf("window %s: duration must be positive", c.ID)
	}
	return nil
}

// WindowStatus is a point-in-time view of a window.
type WindowStatus struct {
	ID       string        `json:"id"`
	Strategy Strategy      `json:"strategy"`
	Capacity int64         `json:"capacity"`
	Used     int64         `json:"used"`
	Duration time.Duration `json:"duration"`
	// ResetsIn is the time until usage next decreases, zero when empty.
	ResetsIn time.Duration `json:"resets_in"`
}

// Remaining returns the units still available.
func (s WindowStatus) Remaining() int64 {
	if s.Used >= s.Capacity {
		return 0
	}
	return s.Capacity - s.Used
}

// Window is a counter of units consumed against one venue quota.
// Usage never exceeds capacity through TryConsume. All methods are safe for concurrent use.
type Window struct {
	mu       sync.Mutex
	id       string
	capacity int64
	duration time.Duration
	strategy Strategy
	clock    clock.Clock

	// fixed
	used  int64
	start time.Time
	epoch uint64

	// sliding
	entries []entry
	seq     uint64
}

type entry struct {
	at    time.Time
	units int64
	seq   uint64
}

// claim identifies units consumed by one reservation so they can be refunded.
type claim struct {
	units int64
	epoch uint64
	seq   uint64
}

// NewWindow creates an empty window whose current period starts now.
func NewWindow(cfg WindowConfig, clk clock.Clock) (*Window, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Window{
		id:       cfg.ID,
		capacity: cfg.Capacity,
		duration: cfg.Duration,
		strategy: cfg.Strategy,
		clock:    clk,
		start:    clk.Now(),
	}, nil
}

func (w *Window) ID() string {
	return w.id
}

func (w *Window) Capacity() int64 {
	return w.capacity
}

func (w *Window) Duration() time.Duration {
	return w.duration
}

// TryConsume takes units from the window if they fit, returning false otherwise.
func (w *Window) TryConsume(units int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	w.advance(now)
	if !w.fits(units) {
		return false
	}
	w.consume(now, units)
	return true
}

// TimeUntilAvailable returns how long until units would fit, zero if they fit now.
func (w *Window) TimeUntilAvailable(units int64) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	w.advance(now)
	return w.wait(now, units)
}

// Reconcile overwrites local usage with the venue's authoritative count.
// A non-zero resetAt moves the fixed period boundary, or dates the sliding entry so
// it expires at resetAt, capped at one window length. Calling it twice with the
// same values leaves the window unchanged.
func (w *Window) Reconcile(observed int64, resetAt time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reconcile(w.clock.Now(), observed, resetAt)
}

// Status returns the current usage of the window.
func (w *Window) Status() WindowStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	w.advance(now)
	return w.status(now)
}

// The methods below require w.mu to be held.

func (w *Window) advance(now time.Time) {
	if w.strategy == StrategySliding {
		n := 0
		for _, e := range w.entries {
			if now.Sub(e.at) < w.duration {
				w.entries[n] = e
				n++
			}
		}
		clear(w.entries[n:])
		w.entries = w.entries[:n]
		return
	}
	if !now.Before(w.start.Add(w.duration)) {
		w.used = 0
		w.start = now
		w.epoch++
	}
}

func (w *Window) usage() int64 {
	if w.strategy == StrategyFixed {
		return w.used
	}
	var sum int64
	for _, e := range w.entries {
		sum += e.units
	}
	return sum
}

func (w *Window) fits(units int64) bool {
	return w.usage()+units <= w.capacity
}

func (w *Window) consume(now time.Time, units int64) claim {
	if w.strategy == StrategyFixed {
		w.used += units
		return claim{units: units, epoch: w.epoch}
	}
	w.seq++
	w.entries = append(w.entries, entry{at: now, units: units, seq: w.seq})
	return claim{units: units, seq: w.seq}
}

// release refunds a claim only if it still belongs to the current period.
func (w *Window) release(c claim) bool {
	if w.strategy == StrategyFixed {
		if c.epoch != w.epoch {
			return false
		}
		w.used -= c.units
		if w.used < 0 {
			w.used = 0
		}
		return true
	}
	for i, e := range w.entries {
		if e.seq == c.seq {
			w.entries = append(w.entries[:i], w.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (w *Window) wait(now time.Time, units int64) time.Duration {
	used := w.usage()
	if used+units <= w.capacity {
		return 0
	}
	if w.strategy == StrategyFixed {
		return positive(w.start.Add(w.duration).Sub(now))
	}
	need := used + units - w.capacity
	var freed int64
	for _, e := range w.entries {
		freed += e.units
		if freed >= need {
			return positive(e.at.Add(w.duration).Sub(now))
		}
	}
	return w.duration
}

func (w *Window) reconcile(now time.Time, observed int64, resetAt time.Time) {
	if observed < 0 {
		observed = 0
	}
	w.advance(now)
	if w.strategy == StrategySliding {
		clear(w.entries)
		w.entries = w.entries[:0]
		if observed > 0 {
			// The observed units expire when the venue says its window resets.
			at := now
			if !resetAt.IsZero() && resetAt.Add(-w.duration).Before(now) {
				at = resetAt.Add(-w.duration)
			}
			w.seq++
			w.entries = append(w.entries, entry{at: at, units: observed, seq: w.seq})
			w.advance(now)
		}
		return
	}
	w.used = observed
	if !resetAt.IsZero() {
		w.start = resetAt.Add(-w.duration)
	}
	// Outstanding claims predate the venue's count and must not be refunded into it.
	w.epoch++
}

func (w *Window) status(now time.Time) WindowStatus {
	st := WindowStatus{
		ID:       w.id,
		Strategy: w.strategy,
		Capacity: w.capacity,
		Used:     w.usage(),
		Duration: w.duration,
	}
	if w.strategy == StrategyFixed {
		if w.used > 0 {
			st.ResetsIn = positive(w.start.Add(w.duration).Sub(now))
		}
	} else if len(w.entries) > 0 {
		st.ResetsIn = positive(w.entries[0].at.Add(w.duration).Sub(now))
	}
	return st
}

func positive(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
