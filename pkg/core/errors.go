package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of a dispatch failure.
type ErrorType int

// Error type constants categorize errors for proper handling and retry logic.
const (
	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeUnknownEndpoint indicates the endpoint was never registered in the catalog.
	ErrorTypeUnknownEndpoint
	// ErrorTypeWouldExceedQuota indicates the local limiter refused the reservation.
	ErrorTypeWouldExceedQuota
	// ErrorTypeSigningFailed indicates the request could not be signed.
	ErrorTypeSigningFailed
	// ErrorTypeTransport indicates a connection, timeout or 5xx failure.
	ErrorTypeTransport
	// ErrorTypeRateLimit indicates the exchange rejected the call for exceeding its limits.
	ErrorTypeRateLimit
	// ErrorTypeBanned indicates the exchange banned this IP or key for a period.
	ErrorTypeBanned
	// ErrorTypeAuthentication indicates invalid credentials or a rejected signature.
	ErrorTypeAuthentication
	// ErrorTypeRejected indicates a business rejection carrying an exchange error code.
	ErrorTypeRejected
)

// String returns the string representation of the error type.
func (t ErrorType) String() string {
	if t < 0 || int(t) >= len(errorTypeNames) {
		return "UNKNOWN"
	}
	return errorTypeNames[t]
}

var errorTypeNames = [...]string{
	"UNKNOWN",
	"UNKNOWN_ENDPOINT",
	"WOULD_EXCEED_QUOTA",
	"SIGNING_FAILED",
	"TRANSPORT",
	"RATE_LIMIT",
	"BANNED",
	"AUTHENTICATION",
	"REJECTED",
}

// Sentinel errors for common error conditions.
var (
	// ErrUnknownEndpoint is returned when an endpoint id is not in the catalog.
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	// ErrWouldExceedQuota is returned when a reservation does not fit the local windows.
	ErrWouldExceedQuota = errors.New("would exceed quota")
	// ErrCostExceedsCapacity is returned when an endpoint costs more than a window can ever hold.
	ErrCostExceedsCapacity = errors.New("cost exceeds window capacity")
	// ErrSigningFailed is returned when the signer cannot produce auth artifacts.
	ErrSigningFailed = errors.New("signing failed")
	// ErrBanned is returned while the exchange ban for this session is in effect.
	ErrBanned = errors.New("banned by exchange")
	// ErrCircuitBreakerOpen is returned when circuit breaker is open.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
	// ErrNoCredentials is returned when a private endpoint is called without credentials.
	ErrNoCredentials = errors.New("no credentials configured")
	// ErrNoAPIKey is returned when every key in a key ring is disabled.
	ErrNoAPIKey = errors.New("no available API key")
	// ErrClientClosed is returned when attempting to use a closed dispatcher or session.
	ErrClientClosed = errors.New("client is closed")
)

// ExchangeError represents a structured dispatch failure.
// Every non-success outcome converts to one so callers can use errors.As uniformly.
type ExchangeError struct {
	// Type categorizes the error for programmatic handling.
	Type ErrorType `json:"type"`
	// StatusCode is the HTTP status code from the response, zero when no response arrived.
	StatusCode int `json:"status_code"`
	// Code is the exchange-specific error code.
	Code string `json:"code"`
	// Message is the human-readable error description.
	Message string `json:"message"`
	// Exchange identifies which exchange the call was sent to.
	Exchange string `json:"exchange"`
	// Endpoint is the catalog id of the call.
	Endpoint string `json:"endpoint,omitempty"`
	// RetryAfter is the minimum time the caller must wait before trying again.
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	// StatusUnknown marks failures where the exchange may have applied the operation.
	StatusUnknown bool `json:"status_unknown,omitempty"`
	// Timestamp is when the error occurred.
	Timestamp time.Time `json:"timestamp"`

	err error
}

// Error implements the error interface for ExchangeError.
func (e *ExchangeError) Error() string {
	msg := e.Message
	if msg == "" && e.err != nil {
		msg = e.err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s (%d/%s): %s",
			e.Exchange, e.Type, e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("[%s] %s (%d): %s",
		e.Exchange, e.Type, e.StatusCode, msg)
}

// Unwrap exposes the wrapped cause and the sentinel matching the error type.
func (e *ExchangeError) Unwrap() []error {
	var errs []error
	switch e.Type {
	case ErrorTypeUnknownEndpoint:
		errs = append(errs, ErrUnknownEndpoint)
	case ErrorTypeWouldExceedQuota:
		errs = append(errs, ErrWouldExceedQuota)
	case ErrorTypeSigningFailed:
		errs = append(errs, ErrSigningFailed)
	case ErrorTypeBanned:
		errs = append(errs, ErrBanned)
	}
	if e.err != nil {
		errs = append(errs, e.err)
	}
	return errs
}

// WithCode sets the stable error code and returns the error for chaining.
func (e *ExchangeError) WithCode(code ErrorCode) *ExchangeError {
	e.Code = string(code)
	return e
}

// WithEndpoint sets the endpoint id and returns the error for chaining.
func (e *ExchangeError) WithEndpoint(endpoint string) *ExchangeError {
	e.Endpoint = endpoint
	return e
}

// WithRetryAfter sets the retry hint and returns the error for chaining.
func (e *ExchangeError) WithRetryAfter(d time.Duration) *ExchangeError {
	e.RetryAfter = d
	return e
}

// Wrap attaches a cause and returns the error for chaining.
func (e *ExchangeError) Wrap(err error) *ExchangeError {
	e.err = err
	return e
}

// NewExchangeError creates a new ExchangeError with the specified details.
// The timestamp is automatically set to the current time.
func NewExchangeError(exchange string, errorType ErrorType, statusCode int, message string) *ExchangeError {
	return &ExchangeError{
		Type:       errorType,
		StatusCode: statusCode,
		Message:    message,
		Exchange:   exchange,
		Timestamp:  time.Now(),
	}
}

// NewExchangeErrorWithCode creates a new ExchangeError including an exchange-specific error code.
func NewExchangeErrorWithCode(exchange string, errorType ErrorType, statusCode int, code, message string) *ExchangeError {
	e := NewExchangeError(exchange, errorType, statusCode, message)
	e.Code = code
	return e
}

func errorType(err error) (ErrorType, bool) {
	var e *ExchangeError
	if errors.As(err, &e) {
		return e.Type, true
	}
	return ErrorTypeUnknown, false
}

// IsTransportError returns true if the error is a connection, timeout or 5xx failure.
func IsTransportError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrorTypeTransport
}

// IsRateLimitError returns true if the exchange or the local limiter refused the call.
// Rate limit errors should be retried after RetryAfter.
func IsRateLimitError(err error) bool {
	t, ok := errorType(err)
	return ok && (t == ErrorTypeRateLimit || t == ErrorTypeWouldExceedQuota)
}

// IsBannedError returns true if all traffic to the exchange must halt.
func IsBannedError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrorTypeBanned
}

// IsAuthenticationError returns true if the error is an authentication or signing failure.
// Authentication errors require credential or clock fixes and are not retryable.
func IsAuthenticationError(err error) bool {
	t, ok := errorType(err)
	return ok && (t == ErrorTypeAuthentication || t == ErrorTypeSigningFailed)
}

// IsStatusUnknown returns true if the exchange may have applied the operation despite the failure.
func IsStatusUnknown(err error) bool {
	var e *ExchangeError
	return errors.As(err, &e) && e.StatusUnknown
}

// IsTerminalError returns true if the error must never be retried.
func IsTerminalError(err error) bool {
	t, ok := errorType(err)
	if !ok {
		return false
	}
	switch t {
	case ErrorTypeUnknownEndpoint, ErrorTypeSigningFailed, ErrorTypeAuthentication,
		ErrorTypeRejected, ErrorTypeBanned:
		return true
	}
	return false
}

// RetryAfter extracts the retry hint from an error, or zero.
func RetryAfter(err error) time.Duration {
	var e *ExchangeError
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// IsRetryable returns true if the same call may be issued again after RetryAfter.
// Transport failures whose effect is unknown are not retryable here; callers decide
// based on endpoint idempotency.
func IsRetryable(err error) bool {
	var e *ExchangeError
	if !errors.As(err, &e) {
		return false
	}
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeWouldExceedQuota:
		return true
	case ErrorTypeTransport:
		return !e.StatusUnknown
	}
	return false
}
