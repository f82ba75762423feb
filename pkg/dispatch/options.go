package dispatch

import (
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"turnstile/internal/banlist"
	"turnstile/internal/circuitbreaker"
	"turnstile/internal/clock"
	"turnstile/internal/metrics"
	"turnstile/pkg/core"
)

// DefaultBanDuration applies when a venue bans without saying for how long.
const DefaultBanDuration = 2 * time.Minute

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for dispatch events.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithCredentials sets the capability used to sign private endpoints.
func WithCredentials(creds core.Credentials) Option {
	return func(d *Dispatcher) {
		d.creds = creds
	}
}

// WithBaseURL overrides the catalog's base URL.
func WithBaseURL(url string) Option {
	return func(d *Dispatcher) {
		d.baseURL = url
	}
}

// WithMaxWait lets Send wait up to d for local quota instead of failing fast.
func WithMaxWait(d time.Duration) Option {
	return func(dp *Dispatcher) {
		dp.maxWait = d
	}
}

// WithDefaultBanDuration sets the ban length used when the venue gives none.
func WithDefaultBanDuration(d time.Duration) Option {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.defaultBan = d
		}
	}
}

// WithBanList shares ban state with other dispatchers for the same venue.
func WithBanList(store banlist.Store) Option {
	return func(d *Dispatcher) {
		d.bans = store
	}
}

// WithBreaker short-circuits dispatch while the breaker is open.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(d *Dispatcher) {
		d.breaker = b
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		d.tracer = t
	}
}

func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) {
		d.clock = c
	}
}
