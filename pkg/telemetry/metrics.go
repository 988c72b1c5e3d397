package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics holds the Prometheus collectors of player sessions. A Metrics
// built from a disabled config has no collectors and its recorders do
// nothing.
type Metrics struct {
	config   MetricsConfig
	registry *prometheus.Registry

	instancesActive  prometheus.Gauge
	instancesCreated *prometheus.CounterVec
	calls            *prometheus.CounterVec
	callDuration     *prometheus.HistogramVec
	events           *prometheus.CounterVec
	eventLoopExits   *prometheus.CounterVec
	errorsByKind     *prometheus.CounterVec
	policyDecisions  *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors described by cfg.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	m := &Metrics{config: cfg}
	if !cfg.Enabled {
		return m, nil
	}

	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: cfg.Namespace, Name: name, Help: help}, labels)
	}

	m.instancesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Name:      "instances_active",
		Help:      "Live player instances",
	})
	m.instancesCreated = counter("instances_created_total", "Instance creation attempts by result (created, existing, failed)", "result")
	m.calls = counter("calls_total", "Synchronous player calls by operation and status", "operation", "status")
	m.callDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Name:      "call_duration_seconds",
		Help:      "Duration of synchronous player calls",
		Buckets:   buckets,
	}, []string{"operation"})
	m.events = counter("events_total", "Engine events translated, by event name", "event")
	m.eventLoopExits = counter("event_loop_exits_total", "Event loop terminations by reason", "reason")
	m.errorsByKind = counter("errors_total", "Binding errors by kind", "kind")
	m.policyDecisions = counter("policy_decisions_total", "Command policy decisions", "decision")

	m.registry = prometheus.NewRegistry()
	if err := registerAll(m.registry,
		m.instancesActive, m.instancesCreated,
		m.calls, m.callDuration,
		m.events, m.eventLoopExits,
		m.errorsByKind, m.policyDecisions,
	); err != nil {
		return nil, err
	}
	return m, nil
}

func registerAll(reg prometheus.Registerer, cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return nil
}

// RecordInstanceCreated counts a create attempt. result is "created",
// "existing" or "failed"; only "created" raises the active gauge.
func (m *Metrics) RecordInstanceCreated(result string) {
	if m.registry == nil {
		return
	}
	m.instancesCreated.WithLabelValues(result).Inc()
	if result == "created" {
		m.instancesActive.Inc()
	}
}

func (m *Metrics) RecordInstanceDestroyed() {
	if m.registry == nil {
		return
	}
	m.instancesActive.Dec()
}

// RecordCall records one synchronous call with its outcome and duration.
func (m *Metrics) RecordCall(operation, status string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.calls.WithLabelValues(operation, status).Inc()
	m.callDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Metrics) RecordEvent(event string) {
	if m.registry == nil {
		return
	}
	m.events.WithLabelValues(event).Inc()
}

// RecordEventLoopExit counts an event loop termination (shutdown,
// handler_error, wait_error).
func (m *Metrics) RecordEventLoopExit(reason string) {
	if m.registry == nil {
		return
	}
	m.eventLoopExits.WithLabelValues(reason).Inc()
}

// RecordError counts an error by kind; an empty kind counts as unknown.
func (m *Metrics) RecordError(kind string) {
	if m.registry == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordPolicyDecision(allowed bool) {
	if m.registry == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.policyDecisions.WithLabelValues(decision).Inc()
}

// Registry returns the Prometheus registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer measures the duration of one operation.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since NewTimer.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler serves the registry in the OpenMetrics format.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// StartMetricsServer binds the metrics listener and serves until ctx is
// done. A bind failure is returned; later serve errors are logged.
func (m *Metrics) StartMetricsServer(ctx context.Context) error {
	if !m.config.Enabled {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	ln, err := net.Listen("tcp", m.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.ListenAddress, err)
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", m.config.ListenAddress).Msg("metrics server error")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	return nil
}
