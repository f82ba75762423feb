package okx

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnstile/internal/clock"
	"turnstile/pkg/core"
	"turnstile/pkg/venue"
)

func TestRegistered(t *testing.T) {
	p, err := venue.New(Name)
	require.NoError(t, err)

	_, err = p.Catalog.NewLimiter(1)
	require.NoError(t, err)
	assert.Equal(t, "https://www.okx.com", p.Catalog.BaseURL(true), "okx has no separate sandbox host")
}

func TestInterpreter_Inspect(t *testing.T) {
	tests := []struct {
		name string
		body string
		want core.Signal
	}{
		{"ok", `{"code":"0","msg":"","data":[]}`, core.Signal{}},
		{"rate_limited", `{"code":"50011","msg":"Rate limit reached. Please refer to API documentation and throttle requests accordingly."}`,
			core.Signal{Kind: core.SignalRateLimited, Code: "50011", Message: "Rate limit reached. Please refer to API documentation and throttle requests accordingly."}},
		{"bad_sign", `{"code":"50113","msg":"Invalid Sign"}`,
			core.Signal{Kind: core.SignalAuthFailed, Code: "50113", Message: "Invalid Sign"}},
		{"expired", `{"code":"50102","msg":"Timestamp request expired"}`,
			core.Signal{Kind: core.SignalAuthFailed, Code: "50102", Message: "Timestamp request expired"}},
		{"order_item", `{"code":"1","msg":"Operation failed.","data":[{"sCode":"51008","sMsg":"Order failed. Insufficient USDT balance in account."}]}`,
			core.Signal{Kind: core.SignalRejected, Code: "51008", Message: "Order failed. Insufficient USDT balance in account."}},
		{"generic", `{"code":"51001","msg":"Instrument ID does not exist"}`,
			core.Signal{Kind: core.SignalRejected, Code: "51001", Message: "Instrument ID does not exist"}},
		{"not_json", `<html>`, core.Signal{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Interpreter{}.Inspect(&core.WireResponse{StatusCode: 200, Body: []byte(tt.body)})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInterpreter_ObserveIsNoop(t *testing.T) {
	p := New()
	cost, _ := p.Catalog.CostOf("trade.order")
	headers := http.Header{}
	headers.Set("X-RateLimit-Remaining", "5")

	assert.Nil(t, p.Interpreter.Observe(cost, &core.WireResponse{StatusCode: 200, Headers: headers}))
}

func TestSigner_NeedsPassphrase(t *testing.T) {
	p := New(venue.WithClock(clock.NewManual(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))))

	_, err := p.Signer.Sign(core.NewRequest("GET", "/api/v5/account/balance"), core.NewStaticCredentials("k", "s", ""))
	assert.Error(t, err)

	art, err := p.Signer.Sign(core.NewRequest("GET", "/api/v5/account/balance"), core.NewStaticCredentials("k", "s", "p"))
	require.NoError(t, err)
	assert.Equal(t, "2023-01-01T00:00:00.000Z", art.Headers["OK-ACCESS-TIMESTAMP"])
}
