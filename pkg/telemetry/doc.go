// Package telemetry provides the observability stack of mpvbridge.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry),
// metrics (Prometheus) and an in-process event bus through which translated
// engine events reach their consumers.
//
// # Usage
//
// Initialize telemetry at startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// # Logging
//
//	logger := tel.Logger.NewComponentLogger("player").WithSession("main")
//	logger.WithError(err).Warn("failed to decode event")
//
// Engine log messages are re-logged with EngineLevel, which maps mpv's
// level names onto zerolog levels.
//
// # Tracing
//
// Every player call runs in a span carrying session.key, mpv.operation and
// mpv.name:
//
//	err := tel.RecordCall(ctx, "main", "set_property", "volume", kindOf,
//	    func(ctx context.Context) error {
//	        return core.SetProperty("volume", libmpv.Int64(80))
//	    })
//
// Exporters: "otlp" (gRPC), "stdout" (pretty-printed to stderr), "none".
//
// # Metrics
//
// Exposed under the configured namespace (default mpvbridge):
//
//   - instances_active
//   - instances_created_total{result}
//   - calls_total{operation,status}
//   - call_duration_seconds{operation}
//   - events_total{event}
//   - event_loop_exits_total{reason}
//   - errors_total{kind}
//   - policy_decisions_total{decision}
//
// # Event Bus
//
// EventPublisher delivers events to subscribers in publish order. With
// EnableAsync a single goroutine delivers batches; without it Publish
// delivers before returning.
//
//	tel.Events.Subscribe(func(ev telemetry.Event) {
//	    fmt.Println(ev.Channel, string(ev.Payload))
//	}, telemetry.FilterByType(telemetry.EventTypePlayer))
package telemetry
