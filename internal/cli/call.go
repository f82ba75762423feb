package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"turnstile/internal/metrics"
	"turnstile/pkg/core"
	"turnstile/pkg/session"
)

type callFlags struct {
	timeout     time.Duration
	showMetrics bool
}

type callReport struct {
	Outcome    string             `json:"outcome"`
	StatusCode int                `json:"status_code,omitempty"`
	RetryAfter time.Duration      `json:"retry_after,omitempty"`
	Local      bool               `json:"local,omitempty"`
	Code       string             `json:"code,omitempty"`
	Message    string             `json:"message,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	Body       string             `json:"body,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

func newCallCmd(g *globalFlags) *cobra.Command {
	f := &callFlags{}
	cmd := &cobra.Command{
		Use:   "call <venue> <endpoint> [key=value ...]",
		Short: "Dispatch one call and print its outcome",
		Example: `  turnstile call binance spot.ticker.price symbol=BTCUSDT
  turnstile call bybit market.tickers category=spot symbol=BTCUSDT -o json`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[2:])
			if err != nil {
				return err
			}
			cfg, err := g.loadConfig(args[0])
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			s, err := session.New(cfg,
				session.WithLogger(newLogger(cmd.ErrOrStderr())),
				session.WithMetrics(metrics.New(reg)))
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), f.timeout)
			defer cancel()

			out, callErr := s.Call(ctx, args[1], params)
			if out == nil {
				return callErr
			}

			report := callReport{
				Outcome:    out.Kind.String(),
				StatusCode: out.StatusCode,
				RetryAfter: out.RetryAfter,
				Local:      out.Local,
				Code:       out.Code,
				Message:    out.Message,
				Reason:     out.Reason,
				Body:       string(out.Body),
			}
			if f.showMetrics {
				if report.Metrics, err = gather(reg); err != nil {
					return err
				}
			}

			if g.output == "json" {
				if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else if err := printCall(cmd, report); err != nil {
				return err
			}
			return callErr
		},
	}
	cmd.Flags().DurationVar(&f.timeout, "timeout", 30*time.Second, "overall deadline including quota waits and retries")
	cmd.Flags().BoolVar(&f.showMetrics, "show-metrics", false, "print the dispatch counters recorded for the call")
	return cmd
}

// parseParams reads key=value arguments.
func parseParams(args []string) (core.Params, error) {
	params := make(core.Params, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("parameter %q is not key=value", arg)
		}
		params[k] = v
	}
	return params, nil
}

// gather flattens counters and gauges into name{labels} keys.
func gather(reg *prometheus.Registry) (map[string]float64, error) {
	families, err := reg.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			key := mf.GetName() + "{" + strings.Join(labels, ",") + "}"
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}

func printCall(cmd *cobra.Command, r callReport) error {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendRow(table.Row{"Outcome", r.Outcome})
	if r.StatusCode != 0 {
		t.AppendRow(table.Row{"Status", r.StatusCode})
	}
	if r.RetryAfter > 0 {
		t.AppendRow(table.Row{"Retry After", r.RetryAfter})
	}
	if r.Local {
		t.AppendRow(table.Row{"Local", "yes"})
	}
	for _, kv := range [][2]string{{"Code", r.Code}, {"Message", r.Message}, {"Reason", r.Reason}} {
		if kv[1] != "" {
			t.AppendRow(table.Row{kv[0], kv[1]})
		}
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), t.Render()); err != nil {
		return err
	}

	if len(r.Metrics) > 0 {
		keys := make([]string, 0, len(r.Metrics))
		for k := range r.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := table.NewWriter()
		m.SetStyle(table.StyleRounded)
		m.SetTitle("Metrics")
		for _, k := range keys {
			m.AppendRow(table.Row{k, r.Metrics[k]})
		}
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), m.Render()); err != nil {
			return err
		}
	}

	if r.Body != "" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), r.Body)
		return err
	}
	return nil
}
