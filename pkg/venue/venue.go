// Package venue holds the declarative description of each supported exchange:
// its catalog of windows and endpoint costs, its signing scheme, and how to read
// its error codes and usage headers. Venue packages register themselves on import.
package venue

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"turnstile/internal/clock"
	"turnstile/pkg/catalog"
	"turnstile/pkg/core"
	"turnstile/pkg/signing"
)

// Profile is everything the dispatcher needs to know about one exchange.
type Profile struct {
	Name        string
	Catalog     *catalog.Catalog
	Signer      core.Signer
	Interpreter core.Interpreter
}

// Options are shared by every venue constructor.
type Options struct {
	Clock      clock.Clock
	RecvWindow time.Duration
	// Catalog replaces the embedded catalog when set.
	Catalog *catalog.Catalog
}

// Option configures a venue constructor.
type Option func(*Options)

// WithClock sets the clock used for signing timestamps and ban expiry parsing.
func WithClock(c clock.Clock) Option {
	return func(o *Options) {
		o.Clock = c
	}
}

// WithRecvWindow sets the receive window sent with signed requests.
func WithRecvWindow(d time.Duration) Option {
	return func(o *Options) {
		o.RecvWindow = d
	}
}

// WithCatalog replaces the venue's embedded catalog, e.g. one read with catalog.Load.
func WithCatalog(c *catalog.Catalog) Option {
	return func(o *Options) {
		o.Catalog = c
	}
}

// CatalogOr returns the override catalog, or def when none was given.
func (o Options) CatalogOr(def *catalog.Catalog) *catalog.Catalog {
	if o.Catalog != nil {
		return o.Catalog
	}
	return def
}

// Apply resolves options with defaults.
func Apply(opts ...Option) Options {
	o := Options{Clock: clock.New(), RecvWindow: signing.DefaultRecvWindow}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// SigningOptions converts venue options for the signing package.
func (o Options) SigningOptions() []signing.Option {
	return []signing.Option{signing.WithClock(o.Clock), signing.WithRecvWindow(o.RecvWindow)}
}

// Constructor builds a fresh Profile.
type Constructor func(opts ...Option) *Profile

var (
	mu           sync.RWMutex
	constructors = make(map[string]Constructor)
)

// Register makes a venue available by name. It panics on duplicates.
func Register(name string, c Constructor) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := constructors[name]; dup {
		panic(fmt.Sprintf("venue %q registered twice", name))
	}
	constructors[name] = c
}

// New builds the profile of a registered venue.
func New(name string, opts ...Option) (*Profile, error) {
	mu.RLock()
	c, ok := constructors[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("venue %q not registered", name)
	}
	return c(opts...), nil
}

// Names returns the registered venue names in order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
