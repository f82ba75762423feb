package main

import (
	"fmt"
	"os"

	"turnstile/internal/cli"
)

// Set via ldflags, e.g. -ldflags="-X main.version=1.0.0".
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, buildDate)
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
