package venue

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"turnstile/pkg/catalog"
	"turnstile/pkg/core"
)

// HeaderUsage reads counters that report used units directly, one header per
// window, as declared by the catalog's usage_header fields. Only windows charged
// by cost are reported. The reset instant is the end of the aligned period that
// contains the response Date, when the venue sends one.
func HeaderUsage(cat *catalog.Catalog, cost core.EndpointCost, resp *core.WireResponse) []core.Observation {
	if resp == nil {
		return nil
	}
	served := ResponseTime(resp)

	var out []core.Observation
	seen := make(map[string]bool, len(cost.Charges))
	for _, ch := range cost.Charges {
		if seen[ch.Window] {
			continue
		}
		seen[ch.Window] = true

		header := cat.UsageHeader(ch.Window)
		if header == "" {
			continue
		}
		used, err := strconv.ParseInt(strings.TrimSpace(resp.Header(header)), 10, 64)
		if err != nil {
			continue
		}
		obs := core.Observation{Window: ch.Window, Used: used}
		if !served.IsZero() {
			obs.ResetAt = served.Truncate(windowDuration(cat, ch.Window)).Add(windowDuration(cat, ch.Window))
		}
		out = append(out, obs)
	}
	return out
}

// ResponseTime parses the Date header, zero when absent.
func ResponseTime(resp *core.WireResponse) time.Time {
	t, err := http.ParseTime(resp.Header("Date"))
	if err != nil {
		return time.Time{}
	}
	return t
}

// RetryAfterHeader parses Retry-After as seconds or an HTTP date relative to now.
func RetryAfterHeader(resp *core.WireResponse, now time.Time) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	v := strings.TrimSpace(resp.Header("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

func windowDuration(cat *catalog.Catalog, id string) time.Duration {
	for _, w := range cat.Windows() {
		if w.ID == id {
			return w.Duration
		}
	}
	return 0
}
