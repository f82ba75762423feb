package cli

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"turnstile/pkg/core"
	"turnstile/pkg/exchange"
	"turnstile/pkg/venue"
)

func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status [venue ...]",
		Short: "Open a session per venue and report windows, breaker and ban state",
		Long: `status opens one session per venue (all registered venues by default) and
reports their state. With a redis_url configured, bans recorded by other
processes sharing the registry are shown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := args
			if len(names) == 0 {
				names = venue.Names()
			}
			configs := make([]*core.Config, 0, len(names))
			for _, name := range names {
				cfg, err := g.loadConfig(name)
				if err != nil {
					return err
				}
				configs = append(configs, cfg)
			}

			c, err := exchange.Open(configs)
			if err != nil {
				return err
			}
			defer c.Close()

			status, statusErr := c.Status(cmd.Context())
			if g.output == "json" {
				if err := writeJSON(cmd.OutOrStdout(), status); err != nil {
					return err
				}
				return statusErr
			}

			t := table.NewWriter()
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{"Venue", "State", "Breaker", "Banned Until", "Busiest Window", "Used"})
			for _, name := range c.Names() {
				snap, ok := status[name]
				if !ok {
					continue
				}
				banned := "-"
				if !snap.BannedUntil.IsZero() {
					banned = snap.BannedUntil.Format(time.RFC3339)
				}
				busiest, used := "-", "-"
				var best float64 = -1
				for _, w := range snap.Windows {
					if load := float64(w.Used) / float64(w.Capacity); load > best {
						best = load
						busiest = w.ID
						used = fmt.Sprintf("%d/%d", w.Used, w.Capacity)
					}
				}
				breaker := snap.Breaker
				if breaker == "" {
					breaker = "disabled"
				}
				t.AppendRow(table.Row{name, snap.State, breaker, banned, busiest, used})
			}
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), t.Render()); err != nil {
				return err
			}
			return statusErr
		},
	}
}
