package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath    string
	libraryPath   string
	journalPath   string
	metricsAddr   string
	traceExporter string
	traceEndpoint string
	jsonOutput    bool
)

// buildVersion is reported in READY messages and telemetry.
var buildVersion = "dev"

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	buildVersion = version

	rootCmd := &cobra.Command{
		Use:   "mpvbridge",
		Short: "mpvbridge - host libmpv player sessions",
		Long: `mpvbridge loads libmpv at runtime and hosts player sessions keyed by name.

Features:
  - Player profiles in YAML, JSON, CUE or Starlark
  - JSON-lines request/event stream on stdin/stdout
  - Command policies in Rego, reloaded on change
  - SQLite journal of session events
  - Prometheus metrics and OpenTelemetry traces`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "player profile path")
	rootCmd.PersistentFlags().StringVar(&libraryPath, "library", "", "libmpv shared library path")
	rootCmd.PersistentFlags().StringVar(&journalPath, "journal", "", "SQLite event journal path")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().StringVar(&traceExporter, "trace-exporter", "none", "span exporter (none, stdout, otlp)")
	rootCmd.PersistentFlags().StringVar(&traceEndpoint, "trace-endpoint", "", "OTLP collector endpoint")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newPlayCommand())
	rootCmd.AddCommand(newProbeCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newJournalCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}
