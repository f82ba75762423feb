package ratelimit

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"turnstile/internal/clock"
	"turnstile/pkg/core"
)

// Limiter holds every quota window of one venue session and reserves capacity
// for endpoint costs atomically across them.
type Limiter struct {
	clock   clock.Clock
	windows []*Window
	index   map[string]int
	metrics *Metrics

	backoffMu    sync.Mutex
	backoffUntil time.Time
}

// Metrics tracks statistics about limiter usage.
type Metrics struct {
	totalReservations    atomic.Int64
	grantedReservations  atomic.Int64
	refusedReservations  atomic.Int64
	releasedReservations atomic.Int64
	reconciliations      atomic.Int64
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the time source for the limiter and its windows.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) {
		l.clock = c
	}
}

// New creates a Limiter over the given windows. Capacities are scaled by margin when
// it is in (0,1); a scaled capacity never drops below one unit.
func New(configs []WindowConfig, margin float64, opts ...Option) (*Limiter, error) {
	l := &Limiter{
		clock:   clock.New(),
		index:   make(map[string]int, len(configs)),
		metrics: &Metrics{},
	}
	for _, opt := range opts {
		opt(l)
	}

	sorted := make([]WindowConfig, len(configs))
	copy(sorted, configs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, cfg := range sorted {
		if _, dup := l.index[cfg.ID]; dup {
			return nil, fmt.Errorf("duplicate window %q", cfg.ID)
		}
		if margin > 0 && margin < 1 {
			cfg.Capacity = max(int64(math.Floor(float64(cfg.Capacity)*margin)), 1)
		}
		w, err := NewWindow(cfg, l.clock)
		if err != nil {
			return nil, err
		}
		l.index[cfg.ID] = len(l.windows)
		l.windows = append(l.windows, w)
	}
	return l, nil
}

// Window returns the window with the given id.
func (l *Limiter) Window(id string) (*Window, bool) {
	i, ok := l.index[id]
	if !ok {
		return nil, false
	}
	return l.windows[i], true
}

// Validate checks that every charge of cost names a known window and fits its capacity.
func (l *Limiter) Validate(cost core.EndpointCost) error {
	for _, ch := range cost.Charges {
		w, ok := l.Window(ch.Window)
		if !ok {
			return fmt.Errorf("endpoint %s: unknown window %q", cost.Endpoint, ch.Window)
		}
		if cost.Units(ch.Window) > w.capacity {
			return fmt.Errorf("endpoint %s: %w: %d units on %s (capacity %d)",
				cost.Endpoint, core.ErrCostExceedsCapacity, cost.Units(ch.Window), ch.Window, w.capacity)
		}
	}
	return nil
}

// Reservation is capacity taken from one or more windows for a single call.
type Reservation struct {
	limiter  *Limiter
	endpoint string
	held     []held
	released atomic.Bool
}

type held struct {
	window *Window
	claim  claim
}

// Endpoint returns the endpoint the reservation was made for.
func (r *Reservation) Endpoint() string {
	return r.endpoint
}

// Release refunds the reserved units into windows whose period has not rolled over.
// It is a no-op after the first call.
func (r *Reservation) Release() {
	if r == nil || !r.released.CompareAndSwap(false, true) {
		return
	}
	for _, h := range r.held {
		h.window.mu.Lock()
		h.window.release(h.claim)
		h.window.mu.Unlock()
	}
	r.limiter.metrics.releasedReservations.Add(1)
}

// WouldExceedError reports a refused reservation.
type WouldExceedError struct {
	Endpoint string
	// Windows lists the windows that could not take the charge.
	Windows []string
	// RetryAfter is the longest wait among those windows.
	RetryAfter time.Duration
}

func (e *WouldExceedError) Error() string {
	return fmt.Sprintf("endpoint %s would exceed quota on %s, retry after %s",
		e.Endpoint, strings.Join(e.Windows, ","), e.RetryAfter)
}

func (e *WouldExceedError) Unwrap() error {
	return core.ErrWouldExceedQuota
}

// BackoffWindow is reported in WouldExceedError.Windows while a venue backoff is active.
const BackoffWindow = "venue_backoff"

// TryReserve takes every charge of cost or none of them. The windows involved are
// locked in a fixed order so concurrent reservations cannot deadlock or observe a
// partially applied charge.
func (l *Limiter) TryReserve(cost core.EndpointCost) (*Reservation, error) {
	l.metrics.totalReservations.Add(1)

	now := l.clock.Now()
	if until := l.backoff(); now.Before(until) {
		l.metrics.refusedReservations.Add(1)
		return nil, &WouldExceedError{Endpoint: cost.Endpoint, Windows: []string{BackoffWindow}, RetryAfter: until.Sub(now)}
	}

	charges, err := l.resolve(cost)
	if err != nil {
		l.metrics.refusedReservations.Add(1)
		return nil, err
	}

	for _, c := range charges {
		c.window.mu.Lock()
	}
	defer func() {
		for i := len(charges) - 1; i >= 0; i-- {
			charges[i].window.mu.Unlock()
		}
	}()

	now = l.clock.Now()
	var refused *WouldExceedError
	for _, c := range charges {
		c.window.advance(now)
		if c.window.fits(c.units) {
			continue
		}
		if refused == nil {
			refused = &WouldExceedError{Endpoint: cost.Endpoint}
		}
		refused.Windows = append(refused.Windows, c.window.id)
		refused.RetryAfter = max(refused.RetryAfter, c.window.wait(now, c.units))
	}
	if refused != nil {
		l.metrics.refusedReservations.Add(1)
		return nil, refused
	}

	res := &Reservation{limiter: l, endpoint: cost.Endpoint, held: make([]held, 0, len(charges))}
	for _, c := range charges {
		res.held = append(res.held, held{window: c.window, claim: c.window.consume(now, c.units)})
	}
	l.metrics.grantedReservations.Add(1)
	return res, nil
}

// TimeUntilAvailable returns how long until cost would fit every window, including
// any venue backoff.
func (l *Limiter) TimeUntilAvailable(cost core.EndpointCost) (time.Duration, error) {
	charges, err := l.resolve(cost)
	if err != nil {
		return 0, err
	}
	now := l.clock.Now()
	var wait time.Duration
	if until := l.backoff(); now.Before(until) {
		wait = until.Sub(now)
	}
	for _, c := range charges {
		c.window.mu.Lock()
		c.window.advance(now)
		wait = max(wait, c.window.wait(now, c.units))
		c.window.mu.Unlock()
	}
	return wait, nil
}

// RecordObserved reconciles windows with usage reported by the venue. Observations
// for unknown windows are ignored.
func (l *Limiter) RecordObserved(observations []core.Observation) {
	for _, obs := range observations {
		w, ok := l.Window(obs.Window)
		if !ok {
			continue
		}
		w.Reconcile(obs.Used, obs.ResetAt)
		l.metrics.reconciliations.Add(1)
	}
}

// Backoff refuses every reservation until the given time. Earlier deadlines than
// the current one are ignored.
func (l *Limiter) Backoff(until time.Time) {
	l.backoffMu.Lock()
	defer l.backoffMu.Unlock()
	if until.After(l.backoffUntil) {
		l.backoffUntil = until
	}
}

func (l *Limiter) backoff() time.Time {
	l.backoffMu.Lock()
	defer l.backoffMu.Unlock()
	return l.backoffUntil
}

// ShortestReset returns the time until the shortest-duration window charged by cost
// next frees capacity, or its full duration when it is empty. It is the fallback
// retry hint for venue rate limit responses without Retry-After.
func (l *Limiter) ShortestReset(cost core.EndpointCost) time.Duration {
	var shortest *Window
	for _, ch := range cost.Charges {
		w, ok := l.Window(ch.Window)
		if !ok {
			continue
		}
		if shortest == nil || w.duration < shortest.duration {
			shortest = w
		}
	}
	if shortest == nil {
		return 0
	}
	st := shortest.Status()
	if st.ResetsIn > 0 {
		return st.ResetsIn
	}
	return st.Duration
}

// Snapshot returns the status of every window, taken under all window locks so the
// result is a consistent point in time.
func (l *Limiter) Snapshot() []WindowStatus {
	for _, w := range l.windows {
		w.mu.Lock()
	}
	now := l.clock.Now()
	out := make([]WindowStatus, 0, len(l.windows))
	for _, w := range l.windows {
		w.advance(now)
		out = append(out, w.status(now))
	}
	for i := len(l.windows) - 1; i >= 0; i-- {
		l.windows[i].mu.Unlock()
	}
	return out
}

type charge struct {
	window *Window
	units  int64
}

// resolve merges charges per window and orders them by window index.
func (l *Limiter) resolve(cost core.EndpointCost) ([]charge, error) {
	byIndex := make(map[int]int64, len(cost.Charges))
	for _, ch := range cost.Charges {
		i, ok := l.index[ch.Window]
		if !ok {
			return nil, fmt.Errorf("endpoint %s: unknown window %q", cost.Endpoint, ch.Window)
		}
		byIndex[i] += ch.Units
	}
	out := make([]charge, 0, len(byIndex))
	for i, units := range byIndex {
		out = append(out, charge{window: l.windows[i], units: units})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].window.id < out[b].window.id })
	return out, nil
}

// Metrics returns a snapshot of the current limiter statistics.
func (l *Limiter) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		TotalReservations:    l.metrics.totalReservations.Load(),
		GrantedReservations:  l.metrics.grantedReservations.Load(),
		RefusedReservations:  l.metrics.refusedReservations.Load(),
		ReleasedReservations: l.metrics.releasedReservations.Load(),
		Reconciliations:      l.metrics.reconciliations.Load(),
		WindowCount:          len(l.windows),
	}
}

// MetricsSnapshot is a point-in-time capture of limiter statistics.
type MetricsSnapshot struct {
	// TotalReservations is the number of TryReserve calls.
	TotalReservations int64
	// GrantedReservations is the number of reservations that took capacity.
	GrantedReservations int64
	// RefusedReservations is the number of reservations that did not fit.
	RefusedReservations int64
	// ReleasedReservations is the number of reservations returned unused.
	ReleasedReservations int64
	// Reconciliations is the number of window updates from venue usage reports.
	Reconciliations int64
	// WindowCount is the number of windows managed.
	WindowCount int
}
