package okx

import (
	"github.com/bytedance/sonic"

	"turnstile/pkg/core"
)

type apiResponse struct {
	Code *string `json:"code"`
	Msg  string  `json:"msg"`
	Data []struct {
		SCode string `json:"sCode"`
		SMsg  string `json:"sMsg"`
	} `json:"data"`
}

// Interpreter reads OKX code bodies.
type Interpreter struct{}

func (Interpreter) Inspect(resp *core.WireResponse) core.Signal {
	if resp == nil {
		return core.Signal{}
	}
	var r apiResponse
	if err := sonic.Unmarshal(resp.Body, &r); err != nil || r.Code == nil || *r.Code == "0" {
		return core.Signal{}
	}

	code, msg := *r.Code, r.Msg
	// Batch and order endpoints answer code "1" with the reason per item.
	if code == "1" && len(r.Data) > 0 && r.Data[0].SCode != "" && r.Data[0].SCode != "0" {
		code, msg = r.Data[0].SCode, r.Data[0].SMsg
	}

	sig := core.Signal{Code: code, Message: msg}
	switch code {
	case "50011", "50061":
		sig.Kind = core.SignalRateLimited
	case "50102", "50103", "50104", "50105", "50111", "50112", "50113", "50114":
		sig.Kind = core.SignalAuthFailed
	default:
		sig.Kind = core.SignalRejected
	}
	return sig
}

// Observe returns nil: OKX does not report usage.
func (Interpreter) Observe(core.EndpointCost, *core.WireResponse) []core.Observation {
	return nil
}

var _ core.Interpreter = Interpreter{}
