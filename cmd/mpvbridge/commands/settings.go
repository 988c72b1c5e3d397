package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/mpvbridge/pkg/config"
	"github.com/openfroyo/mpvbridge/pkg/stores"
	"github.com/openfroyo/mpvbridge/pkg/telemetry"
)

// currentSettings collects the process settings from the global flags and
// LOG_LEVEL.
func currentSettings() config.Settings {
	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "trace", "debug", "info", "warn", "error":
	default:
		level = "info"
	}

	return config.Settings{
		LibraryPath:     libraryPath,
		JournalPath:     journalPath,
		MetricsAddr:     metricsAddr,
		LogLevel:        level,
		TracingExporter: traceExporter,
		TracingEndpoint: traceEndpoint,
	}
}

// newTelemetry builds the process telemetry. Logs go to stderr in the
// console format.
func newTelemetry(s config.Settings) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = buildVersion
	cfg.Logging.Level = s.LogLevel

	cfg.Metrics.Enabled = s.MetricsAddr != ""
	cfg.Metrics.ListenAddress = s.MetricsAddr

	if s.TracingExporter != "" && s.TracingExporter != "none" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = s.TracingExporter
		cfg.Tracing.Endpoint = s.TracingEndpoint
	}

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}
	return tel, nil
}

// openJournal opens and migrates the journal at path.
func openJournal(ctx context.Context, path string) (*stores.Journal, error) {
	journal, err := stores.NewJournal(stores.Config{
		Path:   path,
		Logger: log.Logger,
	})
	if err != nil {
		return nil, err
	}
	if err := journal.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := journal.Migrate(ctx); err != nil {
		journal.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}
	return journal, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
