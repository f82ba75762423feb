// Package metrics exposes dispatcher activity as prometheus collectors.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"turnstile/internal/ratelimit"
)

type Metrics struct {
	Outcomes     *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	Reservations *prometheus.CounterVec
	WindowUsed   *prometheus.GaugeVec
	WindowCap    *prometheus.GaugeVec
	Bans         *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "turnstile_dispatch_outcomes_total",
			Help: "Dispatched calls by venue, endpoint and outcome",
		}, []string{"venue", "endpoint", "outcome"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "turnstile_dispatch_duration_seconds",
			Help:    "Time from Send to outcome, including quota waits",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"venue", "outcome"}),
		Reservations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "turnstile_reservations_total",
			Help: "Quota reservation attempts by result",
		}, []string{"venue", "result"}),
		WindowUsed: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "turnstile_window_used_units",
			Help: "Units currently counted in each quota window",
		}, []string{"venue", "window"}),
		WindowCap: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "turnstile_window_capacity_units",
			Help: "Effective capacity of each quota window",
		}, []string{"venue", "window"}),
		Bans: f.NewCounterVec(prometheus.CounterOpts{
			Name: "turnstile_bans_total",
			Help: "Venue bans received",
		}, []string{"venue"}),
	}
}

func (m *Metrics) ObserveOutcome(venue, endpoint, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(venue, endpoint, outcome).Inc()
	m.Duration.WithLabelValues(venue, outcome).Observe(d.Seconds())
}

func (m *Metrics) ObserveReservation(venue string, granted bool) {
	if m == nil {
		return
	}
	result := "refused"
	if granted {
		result = "granted"
	}
	m.Reservations.WithLabelValues(venue, result).Inc()
}

// SetWindows publishes a limiter snapshot.
func (m *Metrics) SetWindows(venue string, windows []ratelimit.WindowStatus) {
	if m == nil {
		return
	}
	for _, w := range windows {
		m.WindowUsed.WithLabelValues(venue, w.ID).Set(float64(w.Used))
		m.WindowCap.WithLabelValues(venue, w.ID).Set(float64(w.Capacity))
	}
}

func (m *Metrics) IncBans(venue string) {
	if m == nil {
		return
	}
	m.Bans.WithLabelValues(venue).Inc()
}
