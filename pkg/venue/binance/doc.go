// Package binance describes the Binance spot REST API for the dispatcher.
//
// Binance charges request weight per IP and order counts per account. It reports
// both in X-MBX-USED-WEIGHT-* and X-MBX-ORDER-COUNT-* response headers, which are
// fed back into the limiter after every call. Errors arrive as non-2xx responses
// with a {"code":-1121,"msg":"..."} body.
//
// Importing the package registers the "binance" venue:
//
//	import _ "turnstile/pkg/venue/binance"
//
//	profile, err := venue.New("binance")
package binance
