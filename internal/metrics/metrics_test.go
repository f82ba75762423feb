package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"turnstile/internal/ratelimit"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveOutcome("binance", "spot.ping", "Success", 20*time.Millisecond)
	m.ObserveOutcome("binance", "spot.ping", "Success", 30*time.Millisecond)
	m.ObserveOutcome("binance", "spot.ping", "RateLimited", time.Millisecond)
	m.ObserveReservation("binance", true)
	m.ObserveReservation("binance", false)
	m.ObserveReservation("binance", false)
	m.IncBans("binance")
	m.SetWindows("binance", []ratelimit.WindowStatus{{ID: "request_weight_1m", Capacity: 6000, Used: 42}})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("binance", "spot.ping", "Success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("binance", "spot.ping", "RateLimited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reservations.WithLabelValues("binance", "granted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Reservations.WithLabelValues("binance", "refused")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Bans.WithLabelValues("binance")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.WindowUsed.WithLabelValues("binance", "request_weight_1m")))
	assert.Equal(t, 6000.0, testutil.ToFloat64(m.WindowCap.WithLabelValues("binance", "request_weight_1m")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.Duration))
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOutcome("v", "e", "o", time.Second)
		m.ObserveReservation("v", true)
		m.SetWindows("v", []ratelimit.WindowStatus{{ID: "w"}})
		m.IncBans("v")
	})
}
