package bybit

import (
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"turnstile/pkg/catalog"
	"turnstile/pkg/core"
)

const (
	headerLimit     = "X-Bapi-Limit"
	headerRemaining = "X-Bapi-Limit-Status"
	headerReset     = "X-Bapi-Limit-Reset-Timestamp"
)

// IPBanDuration is how long Bybit blocks an IP that answered 403 "access too frequent".
const IPBanDuration = 10 * time.Minute

type apiResponse struct {
	RetCode *int   `json:"retCode"`
	RetMsg  string `json:"retMsg"`
}

// Interpreter reads Bybit retCode bodies and per-endpoint limit headers.
type Interpreter struct {
	catalog *catalog.Catalog
}

func (i *Interpreter) Inspect(resp *core.WireResponse) core.Signal {
	if resp == nil {
		return core.Signal{}
	}

	var r apiResponse
	if err := sonic.Unmarshal(resp.Body, &r); err != nil || r.RetCode == nil {
		if resp.StatusCode == 403 {
			return core.Signal{Kind: core.SignalBanned, Code: "403", Message: "access too frequent", RetryAfter: IPBanDuration}
		}
		return core.Signal{}
	}
	if *r.RetCode == 0 {
		return core.Signal{}
	}

	sig := core.Signal{Code: strconv.Itoa(*r.RetCode), Message: r.RetMsg}
	switch *r.RetCode {
	case 10006, 10018:
		sig.Kind = core.SignalRateLimited
	case 10002, 10003, 10004, 10005, 10007, 10009, 10010, 33004:
		sig.Kind = core.SignalAuthFailed
	default:
		sig.Kind = core.SignalRejected
	}
	return sig
}

// Observe maps the X-Bapi-Limit headers onto the endpoint's per-endpoint window.
// Bybit reports remaining capacity, so used is limit minus remaining.
func (i *Interpreter) Observe(cost core.EndpointCost, resp *core.WireResponse) []core.Observation {
	if resp == nil {
		return nil
	}
	limit, err1 := parseInt(resp.Header(headerLimit))
	remaining, err2 := parseInt(resp.Header(headerRemaining))
	if err1 != nil || err2 != nil {
		return nil
	}

	for _, ch := range cost.Charges {
		if i.catalog.UsageHeader(ch.Window) != headerRemaining {
			continue
		}
		obs := core.Observation{Window: ch.Window, Used: max(limit-remaining, 0)}
		if ms, err := parseInt(resp.Header(headerReset)); err == nil {
			obs.ResetAt = time.UnixMilli(ms)
		}
		return []core.Observation{obs}
	}
	return nil
}

func parseInt(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

var _ core.Interpreter = (*Interpreter)(nil)
