package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jedib0t/go-pretty/v6/table"

	"turnstile/internal/ratelimit"
	"turnstile/pkg/catalog"
)

func writeJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func windowsTable(windows []ratelimit.WindowStatus) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Windows")
	t.AppendHeader(table.Row{"Window", "Strategy", "Used", "Capacity", "Duration", "Resets In"})
	for _, w := range windows {
		t.AppendRow(table.Row{w.ID, w.Strategy.String(), w.Used, w.Capacity, w.Duration, formatWait(w.ResetsIn)})
	}
	return t.Render()
}

func endpointsTable(endpoints []*catalog.Endpoint) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Endpoints")
	t.AppendHeader(table.Row{"Endpoint", "Method", "Path", "Private", "Costs"})
	for _, ep := range endpoints {
		var costs []string
		for _, ch := range ep.Cost().Charges {
			costs = append(costs, fmt.Sprintf("%s=%d", ch.Window, ch.Units))
		}
		t.AppendRow(table.Row{ep.ID, ep.Method, ep.Path, ep.Private, strings.Join(costs, " ")})
	}
	return t.Render()
}

func formatWait(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}
