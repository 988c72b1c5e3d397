package player

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
	"github.com/openfroyo/mpvbridge/pkg/telemetry"
)

const (
	// DefaultClientName names the client handle the event loop polls.
	DefaultClientName = "event-client"

	// DefaultWaitTimeout bounds a single event wait.
	DefaultWaitTimeout = 60 * time.Second

	// DefaultTeardownTimeout bounds how long Destroy waits for the event
	// loop to exit after the engine has been shut down.
	DefaultTeardownTimeout = 5 * time.Second
)

// EventHandler receives every event of a session, in order, on the
// session's event loop goroutine. err is set instead of ev when an event
// could not be decoded. Returning an error stops the loop.
type EventHandler func(session string, ev libmpv.Event, err error) error

// Options configures a Registry.
type Options struct {
	// ClientName names the event client handle.
	ClientName string

	// WaitTimeout bounds a single event wait.
	WaitTimeout time.Duration

	// TeardownTimeout bounds the wait for the event loop on destroy.
	TeardownTimeout time.Duration

	// Handler receives session events. Nil drops them.
	Handler EventHandler

	// Telemetry records logs, metrics and bus events. Nil disables it.
	Telemetry *telemetry.Telemetry
}

// Registry maps session keys to live instances.
type Registry struct {
	// mu protects instances and serializes creation.
	mu        sync.Mutex
	instances map[string]*Instance

	backend  Backend
	contexts *contextTable
	opts     Options
	tel      *telemetry.Telemetry
	logger   *telemetry.Logger
}

// NewRegistry creates an empty registry that allocates engines through
// backend.
func NewRegistry(backend Backend, opts Options) *Registry {
	if opts.ClientName == "" {
		opts.ClientName = DefaultClientName
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultWaitTimeout
	}
	if opts.TeardownTimeout <= 0 {
		opts.TeardownTimeout = DefaultTeardownTimeout
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.NewNopTelemetry()
	}

	return &Registry{
		instances: make(map[string]*Instance),
		backend:   backend,
		contexts:  newContextTable(),
		opts:      opts,
		tel:       opts.Telemetry,
		logger:    opts.Telemetry.Logger.NewComponentLogger("registry"),
	}
}

// Create starts an engine instance for session. If one already exists the
// call does nothing and succeeds. The instance becomes visible to other
// callers only after it is fully initialized.
func (r *Registry) Create(session string, cfg Config) (key string, err error) {
	if _, err := r.create(session, cfg); err != nil {
		return "", err
	}
	return session, nil
}

// create is Create that also returns the instance it started, or nil when
// the session already existed.
func (r *Registry) create(session string, cfg Config) (*Instance, error) {
	logger := r.logger.WithSession(session)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[session]; exists {
		logger.Info("instance already exists, skipping initialization")
		r.tel.Metrics.RecordInstanceCreated("existing")
		return nil, nil
	}

	inst, err := r.start(session, cfg)
	if err != nil {
		logger.WithError(err).Error("failed to create instance")
		r.tel.Metrics.RecordInstanceCreated("failed")
		r.tel.Metrics.RecordError(string(libmpv.KindOf(err)))
		return nil, err
	}

	r.instances[session] = inst
	go r.runEventLoop(inst)

	r.tel.Metrics.RecordInstanceCreated("created")
	if err := r.tel.Events.PublishSessionStarted(session, inst.Channel()); err != nil {
		logger.WithError(err).Debug("session start not published")
	}
	logger.Infof("instance created with %d observed properties", len(inst.observed))

	return inst, nil
}

// start performs native creation. Every resource allocated before a
// failure, including the session context block, is released before it
// returns. A panic in the backend is converted into a Create error.
func (r *Registry) start(session string, cfg Config) (inst *Instance, err error) {
	handle := r.contexts.put(&sessionContext{
		session: session,
		channel: EventChannel(session),
		handler: r.opts.Handler,
	})

	var (
		core   Core
		events EventSource
	)
	defer func() {
		if p := recover(); p != nil {
			err = libmpv.NewError(libmpv.KindCreate, fmt.Sprintf("panic during creation: %v", p)).WithSession(session)
		}
		if err == nil {
			return
		}
		if events != nil {
			events.Destroy()
		}
		if core != nil {
			core.Destroy()
		}
		if derr := r.contexts.delete(handle); derr != nil {
			r.logger.WithSession(session).WithError(derr).Error("session context released twice")
		}
		inst = nil
	}()

	core, err = r.backend.Create()
	if err != nil {
		return nil, wrapKind(libmpv.KindCreate, "failed to create engine", err, session)
	}

	for _, opt := range cfg.InitialOptions {
		value, ok := libmpv.EncodeOptionValue(opt.Value)
		if !ok {
			r.logger.WithSession(session).WithField("option", opt.Name).Debug("skipping option with unsupported value")
			continue
		}
		if err = core.SetOption(opt.Name, value); err != nil {
			return nil, wrapKind(libmpv.KindSetOption, "failed to set option "+opt.Name, err, session)
		}
	}

	if err = core.Initialize(); err != nil {
		return nil, wrapKind(libmpv.KindInitialize, "failed to initialize engine", err, session)
	}

	events, err = core.NewEventSource(r.opts.ClientName)
	if err != nil {
		return nil, wrapKind(libmpv.KindCreate, "failed to create event client", err, session)
	}

	observed := append([]ObservedProperty(nil), cfg.ObservedProperties...)
	for idx, p := range observed {
		if err = events.ObserveProperty(uint64(idx+1), p.Name, p.Format); err != nil {
			return nil, wrapKind(libmpv.KindObserve, "failed to observe "+p.Name, err, session)
		}
	}

	if cfg.LogLevel != "" {
		if err = events.RequestLogMessages(cfg.LogLevel); err != nil {
			return nil, wrapKind(libmpv.KindCreate, "failed to request log messages", err, session)
		}
	}

	return &Instance{
		session:  session,
		core:     core,
		events:   events,
		observed: observed,
		handle:   handle,
		done:     make(chan struct{}),
	}, nil
}

// Destroy tears down the instance of session. A missing session is not an
// error.
func (r *Registry) Destroy(session string) error {
	r.mu.Lock()
	inst, ok := r.instances[session]
	if ok {
		delete(r.instances, session)
	}
	r.mu.Unlock()

	if !ok {
		r.logger.WithSession(session).Trace("no instance to destroy")
		return nil
	}

	return r.teardown(inst, "destroyed")
}

// teardown waits for in-flight calls, shuts the engine down, waits for the
// event loop and releases the session context block.
func (r *Registry) teardown(inst *Instance, reason string) error {
	logger := r.logger.WithSession(inst.session)

	inst.life.Lock()
	inst.closed = true
	inst.life.Unlock()

	inst.core.Destroy()

	select {
	case <-inst.done:
	case <-time.After(r.opts.TeardownTimeout):
		logger.Warnf("event loop did not exit within %s", r.opts.TeardownTimeout)
	}

	err := r.contexts.delete(inst.handle)
	if err != nil {
		logger.WithError(err).Error("session context released twice")
	}

	r.tel.Metrics.RecordInstanceDestroyed()
	if perr := r.tel.Events.PublishSessionEnded(inst.session, reason); perr != nil {
		logger.WithError(perr).Debug("session end not published")
	}
	logger.Info("instance destroyed")

	return err
}

// destroyIfCurrent tears inst down if it is still the registered instance
// for its session. The event loop uses it after an engine-initiated
// shutdown.
func (r *Registry) destroyIfCurrent(inst *Instance, reason string) {
	r.mu.Lock()
	current, ok := r.instances[inst.session]
	if !ok || current != inst {
		r.mu.Unlock()
		return
	}
	delete(r.instances, inst.session)
	r.mu.Unlock()

	_ = r.teardown(inst, reason)
}

// WithInstance runs fn against the instance of session. The registry is
// not locked while fn runs; teardown of that one instance waits for fn.
func (r *Registry) WithInstance(session string, fn func(*Instance) error) error {
	r.mu.Lock()
	inst, ok := r.instances[session]
	r.mu.Unlock()

	if !ok {
		return notFound(session)
	}

	inst.life.RLock()
	defer inst.life.RUnlock()
	if inst.closed {
		return notFound(session)
	}
	return fn(inst)
}

// Sessions returns the live session keys in sorted order.
func (r *Registry) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.instances))
	for k := range r.instances {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of live instances.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}

// Close destroys every live instance concurrently and waits for them, or
// for ctx to be done.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	insts := make([]*Instance, 0, len(r.instances))
	for k, inst := range r.instances {
		insts = append(insts, inst)
		delete(r.instances, k)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, inst := range insts {
		wg.Add(1)
		go func(inst *Instance) {
			defer wg.Done()
			_ = r.teardown(inst, "closed")
		}(inst)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("closing sessions: %w", ctx.Err())
	}
}

func notFound(session string) error {
	return libmpv.NewError(libmpv.KindNotFound, "no instance for session").WithSession(session)
}

func wrapKind(kind libmpv.ErrorKind, msg string, err error, session string) error {
	if e, ok := err.(*libmpv.Error); ok && e.Kind == kind {
		return withSession(e, session)
	}
	return libmpv.WrapError(kind, msg, err).WithSession(session)
}
