package player

import (
	"context"
	"errors"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
	"github.com/openfroyo/mpvbridge/pkg/telemetry"
	"github.com/openfroyo/mpvbridge/pkg/window"
)

// CommandGate decides whether a command may run. A denial is reported as
// a libmpv Denied error.
type CommandGate interface {
	CheckCommand(ctx context.Context, session string, args []libmpv.Node) error
}

// PlayerOptions configures a Player.
type PlayerOptions struct {
	Options

	// Gate is consulted before every command. Nil allows everything.
	Gate CommandGate

	// Windows supplies the window a new session embeds into. Nil leaves
	// window placement to the engine.
	Windows window.Provider
}

// Player is the host-facing surface over a Registry.
type Player struct {
	registry *Registry
	tel      *telemetry.Telemetry
	logger   *telemetry.Logger
	gate     CommandGate
	windows  window.Provider
	next     EventHandler
}

// New creates a Player. Every session event is published on the telemetry
// event bus under the session's channel and then passed to
// opts.Handler, if any.
func New(backend Backend, opts PlayerOptions) *Player {
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.NewNopTelemetry()
	}

	p := &Player{
		tel:     opts.Telemetry,
		logger:  opts.Telemetry.Logger.NewComponentLogger("player"),
		gate:    opts.Gate,
		windows: opts.Windows,
		next:    opts.Handler,
	}

	regOpts := opts.Options
	regOpts.Handler = p.handleEvent
	p.registry = NewRegistry(backend, regOpts)

	return p
}

// Registry returns the underlying registry.
func (p *Player) Registry() *Registry {
	return p.registry
}

// Sessions returns the live session keys.
func (p *Player) Sessions() []string {
	return p.registry.Sessions()
}

// Init creates the instance of session from cfg and returns the session
// key. Unless the session is audio-only or cfg already sets wid, the
// window of the session is embedded through the wid option; a window that
// cannot be embedded is logged and skipped.
//
// When ctx ends first Init returns ctx.Err(), and an instance the call goes
// on to create is destroyed as soon as creation finishes. A session that
// already existed is left alone.
func (p *Player) Init(ctx context.Context, session string, cfg Config) (string, error) {
	ctx, span := p.tel.Tracer.StartSessionSpan(ctx, session, "init")
	defer span.End()

	cfg = p.withWindow(session, cfg)

	_, err := offloadAbandon(ctx, func() (*Instance, error) {
		return p.registry.create(session, cfg)
	}, func(inst *Instance) {
		if inst == nil {
			return
		}
		p.logger.WithSession(session).Warn("init abandoned, destroying instance")
		p.registry.destroyIfCurrent(inst, exitAbandoned)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return "", err
	}
	telemetry.RecordSuccess(span)
	return session, nil
}

func (p *Player) withWindow(session string, cfg Config) Config {
	if p.windows == nil {
		return cfg
	}
	logger := p.logger.WithSession(session)

	if cfg.AudioOnly() {
		logger.Debug("audio-only session, skipping window embedding")
		return cfg
	}
	if _, ok := cfg.Option("wid"); ok {
		return cfg
	}

	h, err := p.windows.WindowHandle(session)
	if err != nil {
		logger.WithError(err).Warn("no window handle, skipping window embedding")
		return cfg
	}
	wid, err := h.ID()
	if err != nil {
		logger.WithError(err).Warn("skipping window embedding")
		return cfg
	}

	logger.WithField("wid", wid).Debug("embedding into window")
	return cfg.WithOption("wid", libmpv.Int64(wid))
}

// Destroy tears down the instance of session. A missing session is not an
// error.
func (p *Player) Destroy(ctx context.Context, session string) error {
	ctx, span := p.tel.Tracer.StartSessionSpan(ctx, session, "destroy")
	defer span.End()

	_, err := offload(ctx, func() (struct{}, error) {
		return struct{}{}, p.registry.Destroy(session)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	telemetry.RecordSuccess(span)
	return nil
}

// Command runs name with args on session and returns the engine's result.
func (p *Player) Command(ctx context.Context, session, name string, args ...libmpv.Node) (libmpv.Node, error) {
	full := make([]libmpv.Node, 0, len(args)+1)
	full = append(full, libmpv.String(name))
	full = append(full, args...)

	var result libmpv.Node
	err := p.tel.RecordCall(ctx, session, libmpv.OpCommand, name, errorKind, func(ctx context.Context) error {
		if err := p.checkCommand(ctx, session, name, full); err != nil {
			return err
		}
		var err error
		result, err = offload(ctx, func() (libmpv.Node, error) {
			var out libmpv.Node
			err := p.registry.WithInstance(session, func(inst *Instance) error {
				var cerr error
				out, cerr = inst.Command(full)
				return cerr
			})
			return out, err
		})
		return err
	})
	return result, err
}

func (p *Player) checkCommand(ctx context.Context, session, name string, args []libmpv.Node) error {
	if p.gate == nil {
		return nil
	}
	err := p.gate.CheckCommand(ctx, session, args)
	switch {
	case err == nil:
		p.tel.Metrics.RecordPolicyDecision(true)
		return nil
	case libmpv.IsDenied(err):
		p.tel.Metrics.RecordPolicyDecision(false)
		p.logger.WithSession(session).WithField("command", name).WithError(err).Warn("command denied")
		if perr := p.tel.Events.PublishPolicyViolation(session, name, err.Error()); perr != nil {
			p.logger.WithError(perr).Debug("policy violation not published")
		}
		return withSession(err, session)
	default:
		return err
	}
}

// SetProperty writes a scalar property value on session.
func (p *Player) SetProperty(ctx context.Context, session, name string, value libmpv.Node) error {
	return p.tel.RecordCall(ctx, session, libmpv.OpSetProperty, name, errorKind, func(ctx context.Context) error {
		_, err := offload(ctx, func() (struct{}, error) {
			return struct{}{}, p.registry.WithInstance(session, func(inst *Instance) error {
				return inst.SetProperty(name, value)
			})
		})
		return err
	})
}

// GetProperty reads name from session. format is one of string, flag,
// int64, double or node.
func (p *Player) GetProperty(ctx context.Context, session, name, format string) (libmpv.Node, error) {
	var result libmpv.Node
	err := p.tel.RecordCall(ctx, session, libmpv.OpGetProperty, name, errorKind, func(ctx context.Context) error {
		f, err := libmpv.ParseFormat(format)
		if err != nil {
			return withSession(err, session)
		}
		result, err = offload(ctx, func() (libmpv.Node, error) {
			var out libmpv.Node
			err := p.registry.WithInstance(session, func(inst *Instance) error {
				var gerr error
				out, gerr = inst.GetProperty(name, f)
				return gerr
			})
			return out, err
		})
		return err
	})
	return result, err
}

// SetVideoMarginRatio writes the set video margins of session.
func (p *Player) SetVideoMarginRatio(ctx context.Context, session string, ratio VideoMarginRatio) error {
	return p.tel.RecordCall(ctx, session, libmpv.OpSetProperty, "video-margin-ratio", errorKind, func(ctx context.Context) error {
		_, err := offload(ctx, func() (struct{}, error) {
			return struct{}{}, p.registry.WithInstance(session, func(inst *Instance) error {
				return inst.SetVideoMarginRatio(ratio)
			})
		})
		return err
	})
}

// ApplyProperties writes every property in order. Failures do not stop
// later writes; they are joined into the returned error.
func (p *Player) ApplyProperties(ctx context.Context, session string, props []Option) error {
	var errs []error
	for _, prop := range props {
		if err := p.SetProperty(ctx, session, prop.Name, prop.Value); err != nil {
			if ctx.Err() != nil {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close destroys every session.
func (p *Player) Close(ctx context.Context) error {
	return p.registry.Close(ctx)
}

// handleEvent publishes a session event on the bus. Only a stopped bus or
// a failing downstream handler stops the event loop.
func (p *Player) handleEvent(session string, ev libmpv.Event, err error) error {
	logger := p.logger.WithSession(session)
	channel := EventChannel(session)

	if err != nil {
		perr := p.tel.Events.Publish(telemetry.Event{
			Type:    telemetry.EventTypeError,
			Session: session,
			Channel: channel,
			Message: err.Error(),
			Level:   telemetry.EventLevelError,
		})
		if errors.Is(perr, telemetry.ErrPublisherStopped) {
			return perr
		}
		return p.forward(session, ev, err)
	}

	if msg, ok := ev.(libmpv.LogMessageEvent); ok {
		logger.WithField("prefix", msg.Prefix).Log(msg.Level, msg.Text)
	}

	payload, merr := libmpv.MarshalEvent(ev)
	if merr != nil {
		return merr
	}
	if perr := p.tel.Events.PublishPlayerEvent(session, channel, ev.EventID().String(), payload); perr != nil {
		if errors.Is(perr, telemetry.ErrPublisherStopped) {
			return perr
		}
		logger.WithError(perr).Warn("event not published")
	}

	return p.forward(session, ev, nil)
}

func (p *Player) forward(session string, ev libmpv.Event, err error) error {
	if p.next == nil {
		return nil
	}
	return p.next(session, ev, err)
}

func errorKind(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return string(libmpv.KindOf(err))
}
