package venue

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnstile/pkg/catalog"
	"turnstile/pkg/core"
)

const testCatalog = `
venue: fake
base_url: https://fake.example
windows:
  - {id: weight, capacity: 100, duration: 1m, usage_header: X-Used}
  - {id: orders, capacity: 10, duration: 10s}
endpoints:
  - id: order
    method: POST
    path: /order
    category: order
    costs:
      - {window: weight, units: 1}
      - {window: orders, units: 1}
`

func TestRegistry(t *testing.T) {
	Register("fake-registry", func(opts ...Option) *Profile {
		return &Profile{Name: "fake-registry"}
	})

	assert.Contains(t, Names(), "fake-registry")
	p, err := New("fake-registry")
	require.NoError(t, err)
	assert.Equal(t, "fake-registry", p.Name)

	_, err = New("nope")
	assert.Error(t, err)

	assert.Panics(t, func() {
		Register("fake-registry", func(opts ...Option) *Profile { return nil })
	})
}

func TestApply(t *testing.T) {
	o := Apply()
	assert.NotNil(t, o.Clock)
	assert.Equal(t, 5*time.Second, o.RecvWindow)
	assert.Len(t, o.SigningOptions(), 2)

	o = Apply(WithRecvWindow(time.Second))
	assert.Equal(t, time.Second, o.RecvWindow)
}

func TestHeaderUsage(t *testing.T) {
	cat, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)
	cost, _ := cat.CostOf("order")

	served := time.Date(2024, 5, 1, 10, 15, 42, 0, time.UTC)
	headers := http.Header{}
	headers.Set("X-Used", "42")
	headers.Set("Date", served.Format(http.TimeFormat))

	obs := HeaderUsage(cat, cost, &core.WireResponse{Headers: headers})
	assert.Equal(t, []core.Observation{{
		Window:  "weight",
		Used:    42,
		ResetAt: time.Date(2024, 5, 1, 10, 16, 0, 0, time.UTC),
	}}, obs)

	headers.Del("Date")
	obs = HeaderUsage(cat, cost, &core.WireResponse{Headers: headers})
	require.Len(t, obs, 1)
	assert.True(t, obs[0].ResetAt.IsZero())

	assert.Nil(t, HeaderUsage(cat, cost, nil))
}

func TestRetryAfterHeader(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		value  string
		want   time.Duration
		wantOK bool
	}{
		{"seconds", "5", 5 * time.Second, true},
		{"http_date", now.Add(30 * time.Second).Format(http.TimeFormat), 30 * time.Second, true},
		{"past_date", now.Add(-time.Minute).Format(http.TimeFormat), 0, true},
		{"missing", "", 0, false},
		{"garbage", "soon", 0, false},
		{"negative", "-3", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			if tt.value != "" {
				headers.Set("Retry-After", tt.value)
			}
			got, ok := RetryAfterHeader(&core.WireResponse{Headers: headers}, now)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
