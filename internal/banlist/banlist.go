// Package banlist records venue IP bans so every caller sharing a venue scope
// stops sending until the ban has passed.
package banlist

import (
	"context"
	"sync"
	"time"

	"turnstile/internal/clock"
)

// Store holds ban deadlines per scope. A scope is usually the venue name, or
// venue plus egress IP when several addresses are in use.
type Store interface {
	// Ban records a ban until the given instant. An existing later ban is kept.
	Ban(ctx context.Context, scope string, until time.Time) error
	// BannedUntil returns the ban deadline, or the zero time when not banned.
	BannedUntil(ctx context.Context, scope string) (time.Time, error)
	// Lift removes a ban early.
	Lift(ctx context.Context, scope string) error
	Close() error
}

// Memory is a process-local Store.
type Memory struct {
	mu    sync.Mutex
	bans  map[string]time.Time
	clock clock.Clock
}

// NewMemory creates an empty Memory store. A nil clock uses wall time.
func NewMemory(clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.New()
	}
	return &Memory{bans: make(map[string]time.Time), clock: clk}
}

func (m *Memory) Ban(_ context.Context, scope string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if until.After(m.bans[scope]) {
		m.bans[scope] = until
	}
	return nil
}

func (m *Memory) BannedUntil(_ context.Context, scope string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.bans[scope]
	if !ok {
		return time.Time{}, nil
	}
	if !until.After(m.clock.Now()) {
		delete(m.bans, scope)
		return time.Time{}, nil
	}
	return until, nil
}

func (m *Memory) Lift(_ context.Context, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bans, scope)
	return nil
}

func (m *Memory) Close() error {
	return nil
}

var _ Store = (*Memory)(nil)
