package telemetry

import (
	"errors"
	"fmt"
	"time"
)

// Config is the telemetry configuration of an mpvbridge process.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig
	Events  EventsConfig
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is trace, debug, info, warn, error or fatal.
	Level string
	// Format is console or json.
	Format string
	// Output is stdout, stderr or a file path.
	Output string

	EnableCaller bool

	// Sampling keeps verbose engine log forwarding from flooding the log:
	// SamplingInitial messages per second pass, then every
	// SamplingThereafter-th one.
	EnableSampling     bool
	SamplingInitial    int
	SamplingThereafter int

	// TimeFormat is unix, unixms, unixmicro or rfc3339.
	TimeFormat string
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled bool

	// Exporter is otlp, stdout or none.
	Exporter string
	// Endpoint is the OTLP/gRPC collector address.
	Endpoint string
	Headers  map[string]string
	Insecure bool

	SamplingRate       float64
	MaxExportBatchSize int
	ExportTimeout      time.Duration
}

// MetricsConfig configures the Prometheus collectors and their endpoint.
type MetricsConfig struct {
	Enabled       bool
	ListenAddress string
	Path          string
	Namespace     string

	// DefaultHistogramBuckets are the call latency buckets in seconds.
	DefaultHistogramBuckets []float64
}

// EventsConfig configures the player event bus.
type EventsConfig struct {
	// Enabled controls whether events are delivered at all.
	Enabled bool

	// EnableAsync decouples publishers from subscribers through one queue
	// of BufferSize events, delivered in batches of at most MaxBatchSize
	// or every FlushInterval. Delivery order is publish order either way.
	EnableAsync   bool
	BufferSize    int
	FlushInterval time.Duration
	MaxBatchSize  int
}

// DefaultConfig returns console logging at info, tracing off, metrics on
// :9090 and an asynchronous event bus.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "mpvbridge",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:              "info",
			Format:             "console",
			Output:             "stderr",
			SamplingInitial:    100,
			SamplingThereafter: 100,
			TimeFormat:         "rfc3339",
		},
		Tracing: TracingConfig{
			Exporter:           "none",
			Headers:            map[string]string{},
			Insecure:           true,
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9090",
			Path:          "/metrics",
			Namespace:     "mpvbridge",
			DefaultHistogramBuckets: []float64{
				0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0,
			},
		},
		Events: EventsConfig{
			Enabled:       true,
			EnableAsync:   true,
			BufferSize:    1024,
			FlushInterval: 100 * time.Millisecond,
			MaxBatchSize:  64,
		},
	}
}

// ProductionConfig returns a configuration for unattended hosts: JSON logs,
// OTLP traces sampled at 10%.
func ProductionConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = "production"
	cfg.Logging.Format = "json"
	cfg.Logging.EnableSampling = true
	cfg.Logging.TimeFormat = "unix"
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.SamplingRate = 0.1
	cfg.Tracing.Insecure = false
	return cfg
}

var (
	validLevels    = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true}
	validExporters = map[string]bool{"otlp": true, "stdout": true, "none": true}
)

// Validate reports every problem in c.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.ServiceName == "" {
		fail("service name is required")
	}
	if c.ServiceVersion == "" {
		fail("service version is required")
	}
	if !validLevels[c.Logging.Level] {
		fail("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		fail("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}
	if c.Tracing.Enabled && !validExporters[c.Tracing.Exporter] {
		fail("invalid trace exporter: %s", c.Tracing.Exporter)
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		fail("trace sampling rate must be between 0 and 1, got: %f", c.Tracing.SamplingRate)
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		fail("metrics listen address is required when metrics are enabled")
	}
	if c.Events.Enabled && c.Events.EnableAsync && c.Events.BufferSize <= 0 {
		fail("event buffer size must be positive, got: %d", c.Events.BufferSize)
	}

	return errors.Join(errs...)
}
