package player

import (
	"errors"
	"sync"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
)

// Instance is one live engine session. An Instance handed to a
// WithInstance callback is only valid until the callback returns.
type Instance struct {
	session  string
	core     Core
	events   EventSource
	observed []ObservedProperty
	handle   contextHandle
	done     chan struct{}

	// life is held shared by calls and exclusively by teardown.
	life   sync.RWMutex
	closed bool
}

// Session returns the session key.
func (i *Instance) Session() string {
	return i.session
}

// Channel returns the event channel of the session.
func (i *Instance) Channel() string {
	return EventChannel(i.session)
}

// Observed returns the observed property table in registration order.
func (i *Instance) Observed() []ObservedProperty {
	return append([]ObservedProperty(nil), i.observed...)
}

// ObservedID returns the correlation id assigned to the observed property
// name.
func (i *Instance) ObservedID(name string) (uint64, bool) {
	for idx, p := range i.observed {
		if p.Name == name {
			return uint64(idx + 1), true
		}
	}
	return 0, false
}

// Done is closed when the event loop has exited.
func (i *Instance) Done() <-chan struct{} {
	return i.done
}

// Command runs a command given as its name followed by its arguments and
// returns the engine's result node.
func (i *Instance) Command(args []libmpv.Node) (libmpv.Node, error) {
	if len(args) == 0 {
		return libmpv.Node{}, libmpv.NewError(libmpv.KindCall, "empty command").
			WithOp(libmpv.OpCommand).WithSession(i.session)
	}
	result, err := i.core.Command(args)
	if err != nil {
		return libmpv.Node{}, withSession(err, i.session)
	}
	return result, nil
}

// SetProperty writes a scalar property value. Composite nodes cannot be
// written and fail with an Unsupported error.
func (i *Instance) SetProperty(name string, value libmpv.Node) error {
	if !value.IsScalar() {
		return libmpv.NewError(libmpv.KindUnsupported, "cannot set a "+value.Kind().String()+" property value").
			WithOp(libmpv.OpSetProperty).WithName(name).WithSession(i.session)
	}
	return withSession(i.core.SetProperty(name, value), i.session)
}

// GetProperty reads name in the requested format.
func (i *Instance) GetProperty(name string, format libmpv.Format) (libmpv.Node, error) {
	v, err := i.core.GetProperty(name, format)
	if err != nil {
		return libmpv.Node{}, withSession(err, i.session)
	}
	return v, nil
}

// SetVideoMarginRatio writes the set margins in left, right, top, bottom
// order and stops at the first failure.
func (i *Instance) SetVideoMarginRatio(r VideoMarginRatio) error {
	for _, a := range r.assignments() {
		if err := i.SetProperty(a.Name, a.Value); err != nil {
			return err
		}
	}
	return nil
}

// withSession returns err with its session key filled in.
func withSession(err error, session string) error {
	if err == nil {
		return nil
	}
	var e *libmpv.Error
	if errors.As(err, &e) && e.Session == "" {
		annotated := *e
		annotated.Session = session
		return &annotated
	}
	return err
}
