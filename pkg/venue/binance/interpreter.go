package binance

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"turnstile/pkg/catalog"
	"turnstile/pkg/core"
	"turnstile/pkg/venue"
)

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Interpreter reads Binance error bodies and usage headers.
type Interpreter struct {
	catalog *catalog.Catalog
	options venue.Options
}

var bannedUntil = regexp.MustCompile(`banned until (\d+)`)

// Inspect maps Binance error codes. Successful responses carry no signal.
func (i *Interpreter) Inspect(resp *core.WireResponse) core.Signal {
	if resp == nil || resp.IsSuccess() {
		return core.Signal{}
	}

	var e apiError
	decoded := sonic.Unmarshal(resp.Body, &e) == nil && e.Code != 0

	// A 403 is either an IP ban or a refused key; neither is a request rejection.
	if resp.StatusCode == http.StatusForbidden {
		if !strings.Contains(strings.ToLower(string(resp.Body)), "banned") {
			return core.Signal{}
		}
		sig := core.Signal{Kind: core.SignalBanned, Code: "403", Message: strings.TrimSpace(string(resp.Body))}
		if decoded {
			sig.Code, sig.Message = strconv.Itoa(e.Code), e.Msg
		}
		sig.RetryAfter = i.banRemaining(sig.Message)
		return sig
	}
	if !decoded {
		return core.Signal{}
	}

	sig := core.Signal{Code: strconv.Itoa(e.Code), Message: e.Msg}
	switch e.Code {
	case -1003:
		sig.Kind = core.SignalRateLimited
		if bannedUntil.MatchString(e.Msg) {
			sig.Kind = core.SignalBanned
			sig.RetryAfter = i.banRemaining(e.Msg)
		}
	case -1015:
		sig.Kind = core.SignalRateLimited
	case -1021, -1022, -2014, -2015:
		sig.Kind = core.SignalAuthFailed
	default:
		sig.Kind = core.SignalRejected
		if strings.Contains(strings.ToLower(e.Msg), "too many") {
			sig.Kind = core.SignalRateLimited
		}
	}
	return sig
}

// banRemaining returns the time left until the "banned until <ms>" instant in msg.
func (i *Interpreter) banRemaining(msg string) time.Duration {
	m := bannedUntil.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}
	if d := time.UnixMilli(ms).Sub(i.options.Clock.Now()); d > 0 {
		return d
	}
	return 0
}

// Observe reads X-MBX-USED-WEIGHT-* and X-MBX-ORDER-COUNT-* headers.
func (i *Interpreter) Observe(cost core.EndpointCost, resp *core.WireResponse) []core.Observation {
	return venue.HeaderUsage(i.catalog, cost, resp)
}

var _ core.Interpreter = (*Interpreter)(nil)
