package core

import "errors"

// ErrorCode represents a stable, machine-readable error identifier.
// Exchange-native codes travel in ExchangeError.Code for rejected calls; these
// codes are used for failures produced locally.
type ErrorCode string

// Error code constants define standardized error identifiers across all exchanges.
const (
	// ErrCodeUnknownEndpoint indicates the endpoint id was not registered.
	ErrCodeUnknownEndpoint ErrorCode = "UNKNOWN_ENDPOINT"
	// ErrCodeWouldExceedQuota indicates the local limiter refused the reservation.
	ErrCodeWouldExceedQuota ErrorCode = "WOULD_EXCEED_QUOTA"
	// ErrCodeSigningFailed indicates the signer failed.
	ErrCodeSigningFailed ErrorCode = "SIGNING_FAILED"
	// ErrCodeNetwork indicates a network connectivity failure.
	ErrCodeNetwork ErrorCode = "NETWORK_ERROR"
	// ErrCodeServerError indicates a 5xx response with unknown effect.
	ErrCodeServerError ErrorCode = "SERVER_ERROR"
	// ErrCodeRateLimit indicates the exchange answered with a rate limit response.
	ErrCodeRateLimit ErrorCode = "RATE_LIMIT"
	// ErrCodeIPBanned indicates the exchange banned the caller.
	ErrCodeIPBanned ErrorCode = "IP_BANNED"
	// ErrCodeAuth indicates authentication or authorization failure.
	ErrCodeAuth ErrorCode = "AUTH_ERROR"
	// ErrCodeCircuitBreaker indicates the call was refused by an open circuit breaker.
	ErrCodeCircuitBreaker ErrorCode = "CIRCUIT_BREAKER_OPEN"
)

// IsErrorCode checks if the error matches the specified error code.
func IsErrorCode(err error, code ErrorCode) bool {
	var exErr *ExchangeError
	if errors.As(err, &exErr) {
		return ErrorCode(exErr.Code) == code
	}
	return false
}
