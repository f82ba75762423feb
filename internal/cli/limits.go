package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"turnstile/internal/ratelimit"
	"turnstile/pkg/catalog"
	"turnstile/pkg/session"
)

type limitsReport struct {
	Venue     string                   `json:"venue"`
	Margin    float64                  `json:"safety_margin"`
	Windows   []ratelimit.WindowStatus `json:"windows"`
	Endpoints []endpointCost           `json:"endpoints"`
}

type endpointCost struct {
	ID      string           `json:"id"`
	Method  string           `json:"method"`
	Path    string           `json:"path"`
	Private bool             `json:"private"`
	Costs   map[string]int64 `json:"costs"`
}

func newLimitsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "limits <venue>",
		Short: "Show the quota windows of a venue and what each endpoint costs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(args[0])
			if err != nil {
				return err
			}
			s, err := session.New(cfg, session.WithLogger(newLogger(cmd.ErrOrStderr())))
			if err != nil {
				return err
			}
			defer s.Close()

			snap, err := s.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			endpoints := s.Profile().Catalog.Endpoints()

			if g.output == "json" {
				return writeJSON(cmd.OutOrStdout(), limitsReport{
					Venue:     snap.Exchange,
					Margin:    cfg.SafetyMargin,
					Windows:   snap.Windows,
					Endpoints: costsOf(endpoints),
				})
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", windowsTable(snap.Windows), endpointsTable(endpoints))
			return err
		},
	}
}

func costsOf(endpoints []*catalog.Endpoint) []endpointCost {
	out := make([]endpointCost, 0, len(endpoints))
	for _, ep := range endpoints {
		ec := endpointCost{ID: ep.ID, Method: ep.Method, Path: ep.Path, Private: ep.Private, Costs: make(map[string]int64)}
		for _, ch := range ep.Cost().Charges {
			ec.Costs[ch.Window] += ch.Units
		}
		out = append(out, ec)
	}
	return out
}
