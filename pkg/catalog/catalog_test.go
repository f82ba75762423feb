package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnstile/pkg/core"
)

const testCatalog = `
venue: testex
base_url: https://api.testex.com
sandbox_url: https://testnet.testex.com
windows:
  - id: weight
    capacity: 1200
    duration: 1m
    usage_header: X-Used-Weight
  - id: orders
    capacity: 1
    duration: 10s
    strategy: sliding
endpoints:
  - id: ticker
    method: GET
    path: /api/ticker
    category: market_data
    cacheable: true
    cache_ttl: 2s
    costs:
      - window: weight
        units: 2
  - id: order.create
    method: POST
    path: /api/order
    category: order
    private: true
    encoding: json
    costs:
      - window: weight
        units: 10
      - window: orders
        units: 1
  - id: order.cancel
    method: DELETE
    path: /api/order
    category: order
    private: true
    idempotent: true
    costs:
      - window: weight
        units: 1
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(testCatalog))
	require.NoError(t, err)

	assert.Equal(t, "testex", c.Venue())
	assert.Equal(t, "https://api.testex.com", c.BaseURL(false))
	assert.Equal(t, "https://testnet.testex.com", c.BaseURL(true))
	assert.Equal(t, "X-Used-Weight", c.UsageHeader("weight"))
	assert.Empty(t, c.UsageHeader("orders"))

	windows := c.Windows()
	require.Len(t, windows, 2)
	assert.Equal(t, time.Minute, windows[0].Duration)
	assert.Equal(t, 10*time.Second, windows[1].Duration)

	ticker, ok := c.Endpoint("ticker")
	require.True(t, ok)
	assert.True(t, ticker.Idempotent)
	assert.True(t, ticker.Cacheable)
	assert.Equal(t, 2*time.Second, ticker.CacheTTL)
	assert.Equal(t, EncodingQuery, ticker.Encoding)
	assert.False(t, ticker.Private)

	create, ok := c.Endpoint("order.create")
	require.True(t, ok)
	assert.False(t, create.Idempotent)
	assert.True(t, create.Private)
	assert.Equal(t, EncodingJSON, create.Encoding)

	cancel, _ := c.Endpoint("order.cancel")
	assert.True(t, cancel.Idempotent)

	ids := []string{}
	for _, ep := range c.Endpoints() {
		ids = append(ids, ep.ID)
	}
	assert.Equal(t, []string{"order.cancel", "order.create", "ticker"}, ids)
}

func TestCatalog_CostOf(t *testing.T) {
	c, err := Parse([]byte(testCatalog))
	require.NoError(t, err)

	cost, err := c.CostOf("order.create")
	require.NoError(t, err)
	assert.Equal(t, "order.create", cost.Endpoint)
	assert.Equal(t, core.CategoryOrder, cost.Category)
	assert.Equal(t, []core.Charge{{Window: "weight", Units: 10}, {Window: "orders", Units: 1}}, cost.Charges)

	cost.Charges[0].Units = 999
	again, _ := c.CostOf("order.create")
	assert.Equal(t, int64(10), again.Charges[0].Units, "costs are immutable")

	_, err = c.CostOf("order.amend")
	assert.ErrorIs(t, err, core.ErrUnknownEndpoint)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown_field",
			yaml: "venue: x\nbase_url: https://x.io\nwindow: []\n",
			want: "window",
		},
		{
			name: "missing_windows",
			yaml: "venue: x\nbase_url: https://x.io\nendpoints:\n  - {id: a, method: GET, path: /a, category: market_data, costs: [{window: w, units: 1}]}\n",
			want: "Windows",
		},
		{
			name: "unknown_window",
			yaml: "venue: x\nbase_url: https://x.io\nwindows: [{id: w, capacity: 5, duration: 1s}]\nendpoints:\n  - {id: a, method: GET, path: /a, category: market_data, costs: [{window: v, units: 1}]}\n",
			want: `unknown window "v"`,
		},
		{
			name: "cost_exceeds_capacity",
			yaml: "venue: x\nbase_url: https://x.io\nwindows: [{id: w, capacity: 5, duration: 1s}]\nendpoints:\n  - {id: a, method: GET, path: /a, category: market_data, costs: [{window: w, units: 6}]}\n",
			want: "exceeds",
		},
		{
			name: "duplicate_endpoint",
			yaml: "venue: x\nbase_url: https://x.io\nwindows: [{id: w, capacity: 5, duration: 1s}]\nendpoints:\n  - {id: a, method: GET, path: /a, category: market_data, costs: [{window: w, units: 1}]}\n  - {id: a, method: GET, path: /b, category: market_data, costs: [{window: w, units: 1}]}\n",
			want: "duplicate endpoint",
		},
		{
			name: "bad_strategy",
			yaml: "venue: x\nbase_url: https://x.io\nwindows: [{id: w, capacity: 5, duration: 1s, strategy: leaky}]\nendpoints:\n  - {id: a, method: GET, path: /a, category: market_data, costs: [{window: w, units: 1}]}\n",
			want: "Strategy",
		},
		{
			name: "bad_category",
			yaml: "venue: x\nbase_url: https://x.io\nwindows: [{id: w, capacity: 5, duration: 1s}]\nendpoints:\n  - {id: a, method: GET, path: /a, category: misc, costs: [{window: w, units: 1}]}\n",
			want: "Category",
		},
		{
			name: "no_costs",
			yaml: "venue: x\nbase_url: https://x.io\nwindows: [{id: w, capacity: 5, duration: 1s}]\nendpoints:\n  - {id: a, method: GET, path: /a, category: market_data}\n",
			want: "Costs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, c.Endpoints(), 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse([]byte("venue: [")) })
}

func TestCatalog_NewLimiter(t *testing.T) {
	c, err := Parse([]byte(testCatalog))
	require.NoError(t, err)

	l, err := c.NewLimiter(1)
	require.NoError(t, err)

	snap := l.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "orders", snap[0].ID)
	assert.Equal(t, "sliding", snap[0].Strategy.String())

	cost, _ := c.CostOf("order.create")
	_, err = l.TryReserve(cost)
	require.NoError(t, err)
	_, err = l.TryReserve(cost)
	assert.ErrorIs(t, err, core.ErrWouldExceedQuota)
}

func TestCatalog_NewLimiter_MarginTooTight(t *testing.T) {
	c, err := Parse([]byte(`
venue: x
base_url: https://x.io
windows: [{id: w, capacity: 10, duration: 1s}]
endpoints:
  - {id: a, method: GET, path: /a, category: market_data, costs: [{window: w, units: 10}]}
`))
	require.NoError(t, err)

	_, err = c.NewLimiter(0.5)
	assert.ErrorIs(t, err, core.ErrCostExceedsCapacity)
}
