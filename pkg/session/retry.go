package session

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"turnstile/internal/clock"
	"turnstile/pkg/catalog"
	"turnstile/pkg/core"
)

// retryPolicy is an exponential backoff whose next interval can be raised to the
// Retry-After of the last outcome.
type retryPolicy struct {
	backoff.BackOff
	floor time.Duration
}

func (p *retryPolicy) NextBackOff() time.Duration {
	next := p.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if p.floor > next {
		next = p.floor
	}
	p.floor = 0
	return next
}

// retryDelay decides whether an outcome may be retried by the caller and the
// minimum delay before the next attempt.
//
// Transport failures are retried only on idempotent endpoints, since the venue
// may already have applied the call. Venue rate limits are retried when their
// Retry-After fits inside maxWait. Local refusals already waited in the dispatcher.
func retryDelay(ep *catalog.Endpoint, out *core.Outcome, maxWait time.Duration) (time.Duration, bool) {
	if out == nil || out.Local {
		return 0, false
	}
	switch out.Kind {
	case core.OutcomeTransportFailure:
		return 0, ep.Idempotent
	case core.OutcomeRateLimited:
		if maxWait > 0 && out.RetryAfter <= maxWait {
			return out.RetryAfter, true
		}
	}
	return 0, false
}

// clockTimer drives backoff waits from the session clock.
type clockTimer struct {
	clock clock.Clock
	c     <-chan time.Time
}

func (t *clockTimer) Start(d time.Duration) {
	t.c = t.clock.After(d)
}

func (t *clockTimer) Stop() {}

func (t *clockTimer) C() <-chan time.Time {
	return t.c
}
