package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"turnstile/internal/banlist"
	"turnstile/internal/circuitbreaker"
	"turnstile/internal/clock"
	"turnstile/internal/keyring"
	"turnstile/internal/metrics"
	"turnstile/internal/ratelimit"
	"turnstile/internal/transport"
	"turnstile/pkg/catalog"
	"turnstile/pkg/core"
	"turnstile/pkg/dispatch"
	"turnstile/pkg/venue"
)

// State represents the lifecycle state of a Session.
type State int

const (
	// StateNew indicates a session that has not made a call yet.
	StateNew State = iota
	// StateActive indicates a session that has made at least one call.
	StateActive
	// StateClosed indicates a session that has been shut down and can no longer be used.
	StateClosed
)

// String returns the string representation of the State.
func (s State) String() string {
	return [...]string{"NEW", "ACTIVE", "CLOSED"}[s]
}

// Session is one venue session: one limiter, one credential set and one dispatcher
// shared by every caller. On top of the dispatcher it adds a response cache for
// cacheable public endpoints and a caller-side retry policy.
// Sessions are safe for concurrent use.
type Session struct {
	mu         sync.RWMutex
	config     *core.Config
	profile    *venue.Profile
	limiter    *ratelimit.Limiter
	dispatcher *dispatch.Dispatcher
	transport  core.Transport
	breaker    *circuitbreaker.Breaker
	creds      core.Credentials
	keys       *keyring.KeyRing
	bans       banlist.Store
	metrics    *metrics.Metrics
	cache      *Cache
	retries    *rate.Limiter
	logger     zerolog.Logger
	clock      clock.Clock

	ownTransport bool
	ownBans      bool

	state     State
	createdAt time.Time
	lastUsed  time.Time
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	Exchange     string                    `json:"exchange"`
	State        string                    `json:"state"`
	Windows      []ratelimit.WindowStatus  `json:"windows"`
	Limiter      ratelimit.MetricsSnapshot `json:"limiter"`
	Breaker      string                    `json:"breaker,omitempty"`
	BannedUntil  time.Time                 `json:"banned_until,omitempty"`
	Keys         []keyring.KeyStatus       `json:"keys,omitempty"`
	CacheEntries int                       `json:"cache_entries"`
	CreatedAt    time.Time                 `json:"created_at"`
	LastUsed     time.Time                 `json:"last_used"`
}

// New creates a Session for config.Exchange.
// The configuration is validated before the session is created.
func New(config *core.Config, opts ...Option) (*Session, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	s := &Session{
		config: config,
		logger: zerolog.Nop(),
		clock:  clock.New(),
		state:  StateNew,
	}
	for _, opt := range opts {
		opt(s)
	}

	if config.LogLevel != "" {
		level, err := zerolog.ParseLevel(config.LogLevel)
		if err != nil {
			level = zerolog.InfoLevel
		}
		s.logger = s.logger.Level(level)
	}
	s.logger = s.logger.With().Str("exchange", config.Exchange).Logger()

	if s.profile == nil {
		vopts := []venue.Option{venue.WithClock(s.clock)}
		if config.CatalogPath != "" {
			cat, err := catalog.Load(config.CatalogPath)
			if err != nil {
				return nil, err
			}
			if cat.Venue() != config.Exchange {
				return nil, fmt.Errorf("catalog %s describes %q, not %q", config.CatalogPath, cat.Venue(), config.Exchange)
			}
			vopts = append(vopts, venue.WithCatalog(cat))
		}
		profile, err := venue.New(config.Exchange, vopts...)
		if err != nil {
			return nil, err
		}
		s.profile = profile
	}

	limiter, err := s.profile.Catalog.NewLimiter(config.SafetyMargin, ratelimit.WithClock(s.clock))
	if err != nil {
		return nil, fmt.Errorf("build limiter: %w", err)
	}
	s.limiter = limiter

	if s.transport == nil {
		client, err := transport.NewClient(&transport.Config{
			Timeout:   config.Timeout,
			UserAgent: "turnstile",
		}, transport.WithLogger(s.logger))
		if err != nil {
			return nil, err
		}
		s.transport = client
		s.ownTransport = true
	}

	if err := s.setupCredentials(); err != nil {
		return nil, err
	}

	if s.bans == nil {
		if err := s.setupBans(); err != nil {
			return nil, err
		}
	}

	if config.CircuitBreakerEnabled {
		s.breaker = circuitbreaker.New(circuitbreaker.Config{
			FailThreshold:    config.CircuitBreakerFailThreshold,
			SuccessThreshold: config.CircuitBreakerSuccessThreshold,
			Timeout:          config.CircuitBreakerTimeout,
		}, circuitbreaker.WithClock(s.clock))
	}

	if config.CacheEnabled {
		s.cache = NewCache(config.CacheTTL, s.clock)
	}

	s.retries = rate.NewLimiter(rate.Every(max(config.RetryWaitMin, time.Millisecond)), max(1, config.MaxRetries))

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = s.profile.Catalog.BaseURL(config.Sandbox)
	}

	dopts := []dispatch.Option{
		dispatch.WithLogger(s.logger),
		dispatch.WithBaseURL(baseURL),
		dispatch.WithMaxWait(config.MaxWait),
		dispatch.WithDefaultBanDuration(config.DefaultBanDuration),
		dispatch.WithBanList(s.bans),
		dispatch.WithMetrics(s.metrics),
		dispatch.WithClock(s.clock),
	}
	if s.creds != nil {
		dopts = append(dopts, dispatch.WithCredentials(s.creds))
	}
	if s.breaker != nil {
		dopts = append(dopts, dispatch.WithBreaker(s.breaker))
	}

	d, err := dispatch.New(s.profile, s.limiter, s.transport, dopts...)
	if err != nil {
		return nil, err
	}
	s.dispatcher = d

	now := s.clock.Now()
	s.createdAt = now
	s.lastUsed = now
	return s, nil
}

func (s *Session) setupCredentials() error {
	if s.creds != nil {
		return nil
	}
	keys := s.config.AllCredentials()
	if len(keys) == 0 {
		return nil
	}
	strategy, err := keyring.ParseStrategy(s.config.KeyRotation)
	if err != nil {
		return err
	}
	if len(keys) == 1 && strategy == keyring.RotationNone {
		s.creds = keys[0].Capability()
		return nil
	}
	s.keys = keyring.NewKeyRing(keys, strategy,
		keyring.WithLogger(s.logger),
		keyring.WithClock(s.clock))
	s.creds = s.keys
	return nil
}

func (s *Session) setupBans() error {
	if s.config.RedisURL == "" {
		s.bans = banlist.NewMemory(s.clock)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()
	store, err := banlist.OpenRedis(ctx, s.config.RedisURL)
	if err != nil {
		return fmt.Errorf("ban registry: %w", err)
	}
	s.bans = store
	s.ownBans = true
	return nil
}

// Call dispatches endpointID with params.
//
// Successful outcomes of cacheable public endpoints are served from the cache
// until their TTL passes. Failed outcomes are retried with exponential backoff
// when they are safe to repeat; every retry is a new dispatch charged against the
// limiter again. The returned outcome is the last one observed.
func (s *Session) Call(ctx context.Context, endpointID string, params core.Params) (*core.Outcome, error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil, core.ErrClientClosed
	}
	s.state = StateActive
	s.lastUsed = s.clock.Now()
	s.mu.Unlock()

	ep, ok := s.profile.Catalog.Endpoint(endpointID)
	if !ok {
		return s.dispatcher.Send(ctx, endpointID, params)
	}

	var key string
	cacheable := s.cache != nil && ep.Cacheable && !ep.Private
	if cacheable {
		key = cacheKey(endpointID, params)
		if out, ok := s.cache.Get(key); ok {
			s.logger.Debug().Str("endpoint", endpointID).Msg("cache hit")
			return out, nil
		}
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = max(s.config.RetryWaitMin, time.Millisecond)
	exp.MaxInterval = max(s.config.RetryWaitMax, exp.InitialInterval)
	exp.MaxElapsedTime = 0
	policy := &retryPolicy{BackOff: backoff.WithMaxRetries(exp, uint64(s.config.MaxRetries))}

	attempt := 0
	operation := func() (*core.Outcome, error) {
		if attempt > 0 {
			if err := s.waitRetryBudget(ctx); err != nil {
				return nil, backoff.Permanent(err)
			}
		}
		attempt++

		out, err := s.dispatcher.Send(ctx, endpointID, params)
		if err == nil {
			return out, nil
		}
		delay, retry := retryDelay(ep, out, s.config.MaxWait)
		if !retry {
			return out, backoff.Permanent(err)
		}
		policy.floor = delay
		return out, err
	}
	notify := func(err error, next time.Duration) {
		s.logger.Warn().
			Err(err).
			Str("endpoint", endpointID).
			Int("attempt", attempt).
			Dur("retry_in", next).
			Msg("retrying call")
	}

	out, err := backoff.RetryNotifyWithTimerAndData(operation, backoff.WithContext(policy, ctx), notify, &clockTimer{clock: s.clock})
	if err != nil {
		return out, err
	}
	if cacheable && out.OK() {
		s.cache.Set(key, out, ep.CacheTTL)
	}
	return out, nil
}

// waitRetryBudget takes one token from the retry budget, waiting on the session
// clock when the budget is spent.
func (s *Session) waitRetryBudget(ctx context.Context) error {
	now := s.clock.Now()
	r := s.retries.ReserveN(now, 1)
	if !r.OK() {
		return errors.New("retry budget exhausted")
	}
	d := r.DelayFrom(now)
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		r.CancelAt(s.clock.Now())
		return ctx.Err()
	case <-s.clock.After(d):
		return nil
	}
}

// Snapshot reports window usage, limiter counters, breaker state, any active ban
// and key status.
func (s *Session) Snapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	snap := &Snapshot{
		Exchange:  s.profile.Name,
		State:     s.state.String(),
		CreatedAt: s.createdAt,
		LastUsed:  s.lastUsed,
	}
	s.mu.RUnlock()

	snap.Windows = s.dispatcher.Snapshot()
	snap.Limiter = s.limiter.Metrics()
	if s.breaker != nil {
		snap.Breaker = s.breaker.State().String()
	}
	if s.keys != nil {
		snap.Keys = s.keys.Status()
	}
	if s.cache != nil {
		snap.CacheEntries = s.cache.Len()
	}

	until, err := s.bans.BannedUntil(ctx, s.profile.Name)
	if err != nil {
		return snap, fmt.Errorf("%s ban status: %w", s.profile.Name, err)
	}
	snap.BannedUntil = until
	return snap, nil
}

// Close shuts the session down. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed

	var errs []error
	errs = append(errs, s.dispatcher.Close())
	if s.cache != nil {
		s.cache.Clear()
	}
	if s.ownTransport {
		if c, ok := s.transport.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	if s.ownBans {
		errs = append(errs, s.bans.Close())
	}
	return errors.Join(errs...)
}

// State returns the current lifecycle state of the session.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Config returns the session's configuration.
func (s *Session) Config() *core.Config {
	return s.config
}

// Profile returns the venue profile the session dispatches with.
func (s *Session) Profile() *venue.Profile {
	return s.profile
}

// Keys returns the key ring when the session rotates between several keys.
func (s *Session) Keys() (*keyring.KeyRing, bool) {
	return s.keys, s.keys != nil
}

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// LastUsed returns when the session last handled a call.
func (s *Session) LastUsed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUsed
}

// ClearCache removes all cached responses.
func (s *Session) ClearCache() {
	if s.cache != nil {
		s.cache.Clear()
	}
}
