package telemetry

import (
	"context"
	"errors"
)

// Telemetry bundles the logger, tracer, metrics and event bus of one
// mpvbridge process.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// NewTelemetry validates cfg and builds every component from it.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Telemetry{Config: cfg}
	var err error
	if t.Logger, err = NewLogger(cfg.Logging); err != nil {
		return nil, err
	}
	if t.Tracer, err = NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment); err != nil {
		return nil, err
	}
	if t.Metrics, err = NewMetrics(cfg.Metrics); err != nil {
		return nil, err
	}
	if t.Events, err = NewEventPublisher(cfg.Events); err != nil {
		return nil, err
	}
	return t, nil
}

// NewNopTelemetry returns telemetry that logs nothing, records no metrics
// and delivers events synchronously.
func NewNopTelemetry() *Telemetry {
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = false
	cfg.Tracing.Enabled = false
	cfg.Events.EnableAsync = false

	tracer, _ := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	metrics, _ := NewMetrics(cfg.Metrics)
	events, _ := NewEventPublisher(cfg.Events)

	return &Telemetry{
		Logger:  NewNopLogger(),
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}
}

// WithContext stores the logger in ctx.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	return t.Logger.WithContext(ctx)
}

// Shutdown drains the event bus, then flushes and stops the tracer.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.Events.Shutdown(ctx), t.Tracer.Shutdown(ctx))
}

// StartMetricsServer serves metrics until ctx is done, if enabled.
func (t *Telemetry) StartMetricsServer(ctx context.Context) error {
	return t.Metrics.StartMetricsServer(ctx)
}

// RecordCall runs fn inside a call span and records its outcome in
// metrics. kindOf classifies a failure for the errors_total metric.
func (t *Telemetry) RecordCall(ctx context.Context, session, operation, name string, kindOf func(error) string, fn func(ctx context.Context) error) error {
	ctx, span := t.Tracer.StartCallSpan(ctx, session, operation, name)
	defer span.End()

	timer := NewTimer()
	err := fn(ctx)
	if err == nil {
		RecordSuccess(span)
		t.Metrics.RecordCall(operation, "ok", timer.Duration())
		return nil
	}

	var kind string
	if kindOf != nil {
		kind = kindOf(err)
	}
	span.SetAttributes(AttrErrorKind.String(kind))
	RecordError(span, err)
	t.Metrics.RecordError(kind)
	t.Metrics.RecordCall(operation, "error", timer.Duration())
	return err
}
