// Package dispatch sends catalog endpoints to a venue under its rate limits.
//
// A call moves through classifying, reserving, signing (private endpoints only),
// in flight and interpreting, and always ends in exactly one core.Outcome. Quota
// is committed before the network call and no limiter state is held across it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"turnstile/internal/banlist"
	"turnstile/internal/circuitbreaker"
	"turnstile/internal/clock"
	"turnstile/internal/keyring"
	"turnstile/internal/metrics"
	"turnstile/internal/ratelimit"
	"turnstile/pkg/catalog"
	"turnstile/pkg/core"
	"turnstile/pkg/venue"
)

// Dispatcher is safe for concurrent use by many callers sharing one limiter.
type Dispatcher struct {
	profile   *venue.Profile
	limiter   *ratelimit.Limiter
	transport core.Transport

	creds      core.Credentials
	baseURL    string
	maxWait    time.Duration
	defaultBan time.Duration
	bans       banlist.Store
	breaker    *circuitbreaker.Breaker
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	clock      clock.Clock
	logger     zerolog.Logger

	refusalLog rate.Sometimes
	closed     atomic.Bool
}

// New creates a dispatcher for one venue session. The limiter must be built from
// the profile's catalog.
func New(profile *venue.Profile, limiter *ratelimit.Limiter, transport core.Transport, opts ...Option) (*Dispatcher, error) {
	switch {
	case profile == nil || profile.Catalog == nil:
		return nil, errors.New("dispatch: profile with catalog is required")
	case limiter == nil:
		return nil, errors.New("dispatch: limiter is required")
	case transport == nil:
		return nil, errors.New("dispatch: transport is required")
	}

	d := &Dispatcher{
		profile:    profile,
		limiter:    limiter,
		transport:  transport,
		baseURL:    profile.Catalog.BaseURL(false),
		defaultBan: DefaultBanDuration,
		clock:      clock.New(),
		logger:     zerolog.Nop(),
		refusalLog: rate.Sometimes{Interval: time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.bans == nil {
		d.bans = banlist.NewMemory(d.clock)
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer("turnstile/dispatch")
	}
	return d, nil
}

// Send dispatches one call to endpointID.
//
// The outcome is nil only when the call never became a dispatch: an unknown
// endpoint, params that cannot be encoded, a closed dispatcher, or a context
// cancelled before the request went out. In every other case the outcome is
// returned and err is outcome.AsError().
func (d *Dispatcher) Send(ctx context.Context, endpointID string, params core.Params) (*core.Outcome, error) {
	if d.closed.Load() {
		return nil, core.ErrClientClosed
	}

	started := d.clock.Now()
	callID := uuid.NewString()
	log := d.logger.With().
		Str("call_id", callID).
		Str("venue", d.profile.Name).
		Str("endpoint", endpointID).
		Logger()

	ctx, span := d.tracer.Start(ctx, "dispatch.Send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("turnstile.venue", d.profile.Name),
			attribute.String("turnstile.endpoint", endpointID),
			attribute.String("turnstile.call_id", callID),
		))
	defer span.End()

	ep, ok := d.profile.Catalog.Endpoint(endpointID)
	if !ok {
		err := core.NewExchangeError(d.profile.Name, core.ErrorTypeUnknownEndpoint, 0,
			fmt.Sprintf("endpoint %q is not in the %s catalog", endpointID, d.profile.Name)).
			WithCode(core.ErrCodeUnknownEndpoint).
			WithEndpoint(endpointID)
		log.Error().Err(err).Msg("unknown endpoint")
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown endpoint")
		return nil, err
	}

	req, err := buildRequest(ep, params)
	if err != nil {
		log.Error().Err(err).Msg("build request")
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		return nil, err
	}

	out, err := d.dispatch(ctx, log, ep, req)
	if err != nil {
		log.Debug().Err(err).Msg("dispatch abandoned")
		span.RecordError(err)
		span.SetStatus(codes.Error, "abandoned")
		return nil, err
	}

	out.Exchange = d.profile.Name
	out.Endpoint = endpointID
	d.finish(log, span, out, d.clock.Now().Sub(started))
	return out, out.AsError()
}

func (d *Dispatcher) dispatch(ctx context.Context, log zerolog.Logger, ep *catalog.Endpoint, req *core.Request) (*core.Outcome, error) {
	cost := ep.Cost()

	if out := d.checkBan(ctx, log); out != nil {
		return out, nil
	}

	if d.breaker != nil && !d.breaker.Allow() {
		return &core.Outcome{
			Kind:       core.OutcomeTransportFailure,
			Local:      true,
			RetryAfter: d.breaker.RetryAfter(),
			Reason:     "circuit breaker open",
			Err:        core.ErrCircuitBreakerOpen,
		}, nil
	}

	res, out, err := d.reserve(ctx, log, cost)
	if err != nil || out != nil {
		return out, err
	}

	var art *core.AuthArtifacts
	var keyID string
	if ep.Private {
		if d.creds == nil {
			res.Release()
			return &core.Outcome{Kind: core.OutcomeAuthFailed, Reason: "no credentials configured", Err: core.ErrNoCredentials}, nil
		}
		keyID = d.creds.KeyID()
		art, err = d.profile.Signer.Sign(req.Clone(), d.creds)
		if err != nil {
			res.Release()
			log.Warn().Err(err).Str("key", keyID).Msg("signing failed")
			return &core.Outcome{Kind: core.OutcomeAuthFailed, Reason: "signing failed: " + err.Error(), Err: err}, nil
		}
	}

	if err := ctx.Err(); err != nil {
		res.Release()
		return nil, err
	}

	wire := d.wireRequest(req, art)
	log.Debug().Str("method", wire.Method).Str("path", req.Path).Msg("in flight")
	resp, sendErr := d.transport.Send(ctx, wire)

	var signal core.Signal
	var usage []core.Observation
	if resp != nil {
		signal = d.profile.Interpreter.Inspect(resp)
		usage = d.profile.Interpreter.Observe(cost, resp)
		d.limiter.RecordObserved(usage)
	}

	out = classify(d.clock.Now(), resp, sendErr, signal, d.limiter.ShortestReset(cost), d.defaultBan)
	out.Usage = usage

	if d.breaker != nil {
		d.breaker.Record(out.Kind != core.OutcomeTransportFailure)
	}
	d.react(ctx, log, out, keyID)
	return out, nil
}

// checkBan refuses locally while a ban for this venue is in effect.
func (d *Dispatcher) checkBan(ctx context.Context, log zerolog.Logger) *core.Outcome {
	until, err := d.bans.BannedUntil(ctx, d.profile.Name)
	if err != nil {
		log.Warn().Err(err).Msg("ban lookup failed")
		return nil
	}
	now := d.clock.Now()
	if until.IsZero() || !until.After(now) {
		return nil
	}
	return &core.Outcome{
		Kind:       core.OutcomeBanned,
		Local:      true,
		RetryAfter: until.Sub(now),
		Reason:     "venue ban in effect",
		Message:    "banned until " + until.UTC().Format(time.RFC3339),
	}
}

// reserve takes quota for cost, waiting up to maxWait when configured. A nil
// reservation with a nil error means out holds a local refusal.
func (d *Dispatcher) reserve(ctx context.Context, log zerolog.Logger, cost core.EndpointCost) (*ratelimit.Reservation, *core.Outcome, error) {
	deadline := d.clock.Now().Add(d.maxWait)
	for {
		res, err := d.limiter.TryReserve(cost)
		d.metrics.ObserveReservation(d.profile.Name, err == nil)
		if err == nil {
			return res, nil, nil
		}

		var refused *ratelimit.WouldExceedError
		if !errors.As(err, &refused) {
			return nil, &core.Outcome{Kind: core.OutcomeRateLimited, Local: true, Reason: err.Error(), Err: err}, nil
		}

		wait := max(refused.RetryAfter, time.Millisecond)
		if d.maxWait <= 0 || d.clock.Now().Add(wait).After(deadline) {
			d.refusalLog.Do(func() {
				log.Warn().
					Strs("windows", refused.Windows).
					Dur("retry_after", refused.RetryAfter).
					Msg("quota exhausted, refusing locally")
			})
			return nil, &core.Outcome{
				Kind:       core.OutcomeRateLimited,
				Local:      true,
				RetryAfter: refused.RetryAfter,
				Reason:     refused.Error(),
				Err:        err,
			}, nil
		}

		log.Debug().Dur("wait", wait).Strs("windows", refused.Windows).Msg("waiting for quota")
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-d.clock.After(wait):
		}
	}
}

// react applies what the venue told us to shared state.
func (d *Dispatcher) react(ctx context.Context, log zerolog.Logger, out *core.Outcome, keyID string) {
	now := d.clock.Now()
	switch out.Kind {
	case core.OutcomeBanned:
		until := now.Add(out.RetryAfter)
		d.limiter.Backoff(until)
		if err := d.bans.Ban(context.WithoutCancel(ctx), d.profile.Name, until); err != nil {
			log.Error().Err(err).Msg("record ban")
		}
		d.metrics.IncBans(d.profile.Name)
		log.Error().
			Int("status", out.StatusCode).
			Str("code", out.Code).
			Dur("retry_after", out.RetryAfter).
			Time("until", until).
			Msg("venue ban, halting all traffic")
	case core.OutcomeRateLimited:
		d.limiter.Backoff(now.Add(out.RetryAfter))
		d.reportKey(keyID)
		log.Warn().
			Int("status", out.StatusCode).
			Str("code", out.Code).
			Dur("retry_after", out.RetryAfter).
			Msg("venue rate limited")
	case core.OutcomeAuthFailed:
		d.reportKey(keyID)
		log.Warn().
			Int("status", out.StatusCode).
			Str("code", out.Code).
			Str("message", out.Message).
			Str("key", keyID).
			Msg("venue rejected credentials")
	}
}

func (d *Dispatcher) reportKey(keyID string) {
	if keyID == "" {
		return
	}
	if r, ok := d.creds.(keyring.FailureReporter); ok {
		r.ReportFailure(keyID)
	}
}

func (d *Dispatcher) finish(log zerolog.Logger, span trace.Span, out *core.Outcome, elapsed time.Duration) {
	kind := out.Kind.String()
	d.metrics.ObserveOutcome(d.profile.Name, out.Endpoint, kind, elapsed)
	d.metrics.SetWindows(d.profile.Name, d.limiter.Snapshot())

	span.SetAttributes(
		attribute.String("turnstile.outcome", kind),
		attribute.Bool("turnstile.local", out.Local),
	)
	if out.StatusCode != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", out.StatusCode))
	}
	if !out.OK() {
		span.SetStatus(codes.Error, kind)
	}

	log.Debug().
		Str("outcome", kind).
		Int("status", out.StatusCode).
		Bool("local", out.Local).
		Bool("status_unknown", out.StatusUnknown).
		Dur("elapsed", elapsed).
		Msg("dispatch done")
}

func buildRequest(ep *catalog.Endpoint, params core.Params) (*core.Request, error) {
	req := core.NewRequest(ep.Method, ep.Path).SetRequireAuth(ep.Private)
	req.Endpoint = ep.ID
	if len(params) == 0 {
		return req, nil
	}
	if ep.Encoding == catalog.EncodingJSON {
		body, err := sonic.ConfigStd.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode params for %s: %w", ep.ID, err)
		}
		req.SetBody(body).SetHeader("Content-Type", "application/json")
		return req, nil
	}
	return req.SetQueryParams(params), nil
}

func (d *Dispatcher) wireRequest(req *core.Request, art *core.AuthArtifacts) *core.WireRequest {
	query := req.QueryString()
	headers := maps.Clone(req.Headers)
	if art != nil {
		if art.Query != "" {
			query = art.Query
		}
		if headers == nil {
			headers = make(map[string]string, len(art.Headers))
		}
		maps.Copy(headers, art.Headers)
	}
	url := d.baseURL + req.Path
	if query != "" {
		url += "?" + query
	}
	return &core.WireRequest{Method: req.Method, URL: url, Headers: headers, Body: req.Body}
}

// Snapshot reports every window of the venue's limiter.
func (d *Dispatcher) Snapshot() []ratelimit.WindowStatus {
	return d.limiter.Snapshot()
}

// Profile returns the venue the dispatcher serves.
func (d *Dispatcher) Profile() *venue.Profile {
	return d.profile
}

// Close rejects further sends. Calls already in flight complete normally.
func (d *Dispatcher) Close() error {
	d.closed.Store(true)
	return nil
}
