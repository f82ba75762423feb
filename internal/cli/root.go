// Package cli implements the turnstile command line.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"turnstile/pkg/core"

	// Register the built-in venues.
	_ "turnstile/pkg/venue/binance"
	_ "turnstile/pkg/venue/bybit"
	_ "turnstile/pkg/venue/okx"
)

// Version information set by main.
var versionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// SetVersionInfo is called by main with ldflags values.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

type globalFlags struct {
	configFile string
	catalog    string
	logLevel   string
	output     string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "turnstile",
		Short: "Rate-limited, signed dispatch to crypto exchange APIs",
		Long: `turnstile sends calls to exchange REST APIs through a local quota limiter,
request signer and outcome classifier.

Configuration is read from --config and TURNSTILE_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch g.output {
			case "table", "json":
				return nil
			}
			return fmt.Errorf("unsupported output format: %s", g.output)
		},
	}

	root.PersistentFlags().StringVar(&g.configFile, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override the configured log level (debug|info|warn|error)")
	root.PersistentFlags().StringVar(&g.catalog, "catalog", "", "catalog file replacing the venue's built-in windows and endpoints")
	root.PersistentFlags().StringVarP(&g.output, "output", "o", "table", "output format: table|json")

	root.AddCommand(
		newVersionCmd(),
		newVenuesCmd(g),
		newLimitsCmd(g),
		newCallCmd(g),
		newStatusCmd(g),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig reads the configuration for one venue and applies flag overrides.
func (g *globalFlags) loadConfig(venue string) (*core.Config, error) {
	cfg, err := core.LoadConfig(g.configFile, venue)
	if err != nil {
		return nil, err
	}
	cfg.Exchange = venue
	if g.catalog != "" {
		cfg.CatalogPath = g.catalog
	}
	if g.logLevel != "" {
		cfg.LogLevel = strings.ToLower(g.logLevel)
	}
	return cfg, nil
}

// logger writes human readable logs to w.
func newLogger(w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}).
		With().
		Timestamp().
		Logger()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			v := versionInfo.Version
			if v == "" {
				v = "dev"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "turnstile %s (commit %s, built %s)\n", v, versionInfo.Commit, versionInfo.BuildDate)
		},
	}
}
