package exchange

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"turnstile/pkg/core"
	"turnstile/pkg/session"
)

// statusConcurrency bounds the snapshots taken at once by Status.
const statusConcurrency = 8

// Container is a thread-safe registry of venue sessions.
type Container struct {
	mu        sync.RWMutex
	exchanges map[string]Exchange
}

// NewContainer creates and returns a new empty container.
func NewContainer() *Container {
	return &Container{
		exchanges: make(map[string]Exchange),
	}
}

// Register adds a session under name, replacing any previous one.
// The replaced session is not closed.
func (c *Container) Register(name string, ex Exchange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exchanges[name] = ex
}

// Get retrieves a session by name.
func (c *Container) Get(name string) (Exchange, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ex, exists := c.exchanges[name]
	if !exists {
		return nil, fmt.Errorf("exchange %q not found", name)
	}
	return ex, nil
}

// Call dispatches endpointID on the named session.
func (c *Container) Call(ctx context.Context, name, endpointID string, params core.Params) (*core.Outcome, error) {
	ex, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	return ex.Call(ctx, endpointID, params)
}

// Names returns the registered names in order.
func (c *Container) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.exchanges))
	for name := range c.exchanges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister removes a session from the container and returns it, or nil.
// The caller owns the returned session.
func (c *Container) Unregister(name string) Exchange {
	c.mu.Lock()
	defer c.mu.Unlock()
	ex := c.exchanges[name]
	delete(c.exchanges, name)
	return ex
}

// Exists checks whether a session with the given name is registered.
func (c *Container) Exists(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.exchanges[name]
	return exists
}

// Status snapshots every registered session concurrently. Sessions whose
// snapshot fails are still reported with what could be read, and the errors
// are joined.
func (c *Container) Status(ctx context.Context) (map[string]*session.Snapshot, error) {
	c.mu.RLock()
	exchanges := make(map[string]Exchange, len(c.exchanges))
	for name, ex := range c.exchanges {
		exchanges[name] = ex
	}
	c.mu.RUnlock()

	var (
		mu   sync.Mutex
		out  = make(map[string]*session.Snapshot, len(exchanges))
		errs []error
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(statusConcurrency)
	for name, ex := range exchanges {
		g.Go(func() error {
			snap, err := ex.Snapshot(ctx)
			mu.Lock()
			defer mu.Unlock()
			if snap != nil {
				out[name] = snap
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return out, errors.Join(errs...)
}

// Close closes and removes every session.
func (c *Container) Close() error {
	c.mu.Lock()
	exchanges := c.exchanges
	c.exchanges = make(map[string]Exchange)
	c.mu.Unlock()

	var errs []error
	for name, ex := range exchanges {
		if err := ex.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
