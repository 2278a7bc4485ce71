package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hutchd/hutch/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hutch",
	Short: "Hutch - Single-host container runtime",
	Long: `Hutch is a single-host container runtime core: a content-addressable
layer store, an image builder with a fingerprint cache, virtual networks
with embedded DNS, and a stack orchestrator, delivered as a single binary
with no external daemon.

Stacks are described in YAML files and brought up and down as a unit:

  hutch up -f hutch.yaml
  hutch up -f hutch.yaml -f override.yaml
  hutch down --volumes`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		jsonOut, _ := cmd.Flags().GetBool("log-json")
		log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
	},
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Hutch version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("data-dir", "./hutch-data", "Data directory for runtime state")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log JSON instead of console output")
	rootCmd.PersistentFlags().String("metrics-addr", "127.0.0.1:9420", "Address the metrics endpoint listens on")
}
