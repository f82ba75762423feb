package session

import (
	"github.com/rs/zerolog"

	"turnstile/internal/banlist"
	"turnstile/internal/clock"
	"turnstile/internal/metrics"
	"turnstile/pkg/core"
	"turnstile/pkg/venue"
)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. The level is still taken from the config.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithTransport replaces the default HTTP transport. The session does not close it.
func WithTransport(t core.Transport) Option {
	return func(s *Session) {
		s.transport = t
	}
}

// WithCredentials overrides the credentials built from the config.
func WithCredentials(creds core.Credentials) Option {
	return func(s *Session) {
		s.creds = creds
	}
}

// WithBanList shares a ban registry between sessions. The session does not close it.
func WithBanList(store banlist.Store) Option {
	return func(s *Session) {
		s.bans = store
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}

// WithProfile uses profile instead of looking the exchange up in the venue registry.
func WithProfile(profile *venue.Profile) Option {
	return func(s *Session) {
		s.profile = profile
	}
}
