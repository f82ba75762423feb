package core

import (
	"errors"
	"net/http"
	"time"
)

// OutcomeKind is the terminal classification of one call.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRateLimited
	OutcomeBanned
	OutcomeAuthFailed
	OutcomeRejected
	OutcomeTransportFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeBanned:
		return "banned"
	case OutcomeAuthFailed:
		return "auth_failed"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// Outcome is the result of one dispatched call. Every call that reaches the
// dispatcher with a known endpoint ends in exactly one Outcome.
type Outcome struct {
	Kind     OutcomeKind
	Exchange string
	Endpoint string

	// StatusCode, Headers and Body are set when a response was received.
	StatusCode int
	Headers    http.Header
	Body       []byte

	// Usage is what the venue reported about its windows.
	Usage []Observation

	// RetryAfter is set for RateLimited and Banned.
	RetryAfter time.Duration
	// Local marks an outcome decided before any network call: a limiter refusal,
	// an active ban or an open circuit breaker.
	Local bool

	// Code and Message carry the venue error for Rejected, AuthFailed and venue-signalled outcomes.
	Code    string
	Message string

	// Reason describes TransportFailure and local AuthFailed outcomes.
	Reason string
	// StatusUnknown marks transport failures after which the venue may have applied the call.
	StatusUnknown bool

	// Err is the underlying cause, if any.
	Err error
}

// OK reports whether the call succeeded.
func (o *Outcome) OK() bool {
	return o != nil && o.Kind == OutcomeSuccess
}

// AsError converts a non-success outcome into an *ExchangeError, nil on success.
func (o *Outcome) AsError() error {
	if o == nil || o.Kind == OutcomeSuccess {
		return nil
	}
	var e *ExchangeError
	switch o.Kind {
	case OutcomeRateLimited:
		if o.Local {
			e = NewExchangeError(o.Exchange, ErrorTypeWouldExceedQuota, 0, o.message("would exceed quota")).
				WithCode(ErrCodeWouldExceedQuota)
		} else {
			e = NewExchangeErrorWithCode(o.Exchange, ErrorTypeRateLimit, o.StatusCode, o.codeOr(ErrCodeRateLimit), o.message("rate limited"))
		}
		e.RetryAfter = o.RetryAfter
	case OutcomeBanned:
		e = NewExchangeErrorWithCode(o.Exchange, ErrorTypeBanned, o.StatusCode, o.codeOr(ErrCodeIPBanned), o.message("banned"))
		e.RetryAfter = o.RetryAfter
	case OutcomeAuthFailed:
		if o.StatusCode == 0 && o.Code == "" {
			e = NewExchangeError(o.Exchange, ErrorTypeSigningFailed, 0, o.message("signing failed")).
				WithCode(ErrCodeSigningFailed)
		} else {
			e = NewExchangeErrorWithCode(o.Exchange, ErrorTypeAuthentication, o.StatusCode, o.codeOr(ErrCodeAuth), o.message("authentication failed"))
		}
	case OutcomeRejected:
		e = NewExchangeErrorWithCode(o.Exchange, ErrorTypeRejected, o.StatusCode, o.Code, o.message("rejected"))
	default:
		code := ErrCodeNetwork
		switch {
		case errors.Is(o.Err, ErrCircuitBreakerOpen):
			code = ErrCodeCircuitBreaker
		case o.StatusCode >= 500:
			code = ErrCodeServerError
		}
		e = NewExchangeError(o.Exchange, ErrorTypeTransport, o.StatusCode, o.message("transport failure")).WithCode(code)
		e.StatusUnknown = o.StatusUnknown
	}
	e.Endpoint = o.Endpoint
	if o.Err != nil {
		e.err = o.Err
	}
	return e
}

func (o *Outcome) message(fallback string) string {
	switch {
	case o.Message != "":
		return o.Message
	case o.Reason != "":
		return o.Reason
	default:
		return fallback
	}
}

func (o *Outcome) codeOr(fallback ErrorCode) string {
	if o.Code != "" {
		return o.Code
	}
	return string(fallback)
}
