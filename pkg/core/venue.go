package core

import "time"

// Signer produces authentication artifacts for a canonical request.
// Implementations must be deterministic given the request, credentials and clock.
type Signer interface {
	Sign(req *Request, creds Credentials) (*AuthArtifacts, error)
}

// SignalKind is a venue's own verdict on a response, independent of HTTP status.
type SignalKind int

const (
	SignalNone SignalKind = iota
	SignalRateLimited
	SignalBanned
	SignalAuthFailed
	SignalRejected
)

func (k SignalKind) String() string {
	switch k {
	case SignalRateLimited:
		return "rate_limited"
	case SignalBanned:
		return "banned"
	case SignalAuthFailed:
		return "auth_failed"
	case SignalRejected:
		return "rejected"
	default:
		return "none"
	}
}

// Signal carries a venue error code found in a response body.
type Signal struct {
	Kind    SignalKind
	Code    string
	Message string
	// RetryAfter is a wait the venue stated in the body, e.g. a ban expiry.
	RetryAfter time.Duration
}

// Interpreter reads venue specific fields from responses.
type Interpreter interface {
	// Inspect extracts the venue error signal from a response body.
	Inspect(resp *WireResponse) Signal
	// Observe parses usage headers into observations for the windows in cost.
	// It returns nil when the venue reports nothing.
	Observe(cost EndpointCost, resp *WireResponse) []Observation
}
