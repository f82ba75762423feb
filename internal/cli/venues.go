package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"turnstile/pkg/venue"
)

type venueInfo struct {
	Name      string `json:"name"`
	BaseURL   string `json:"base_url"`
	Sandbox   string `json:"sandbox_url"`
	Windows   int    `json:"windows"`
	Endpoints int    `json:"endpoints"`
}

func newVenuesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "venues",
		Short: "List the registered venues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var infos []venueInfo
			for _, name := range venue.Names() {
				p, err := venue.New(name)
				if err != nil {
					return err
				}
				infos = append(infos, venueInfo{
					Name:      name,
					BaseURL:   p.Catalog.BaseURL(false),
					Sandbox:   p.Catalog.BaseURL(true),
					Windows:   len(p.Catalog.Windows()),
					Endpoints: len(p.Catalog.Endpoints()),
				})
			}

			if g.output == "json" {
				return writeJSON(cmd.OutOrStdout(), infos)
			}

			t := table.NewWriter()
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{"Venue", "Base URL", "Sandbox", "Windows", "Endpoints"})
			for _, i := range infos {
				t.AppendRow(table.Row{i.Name, i.BaseURL, i.Sandbox, i.Windows, i.Endpoints})
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return err
		},
	}
}
