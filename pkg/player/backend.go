package player

import (
	"time"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
)

// Backend allocates engine cores.
type Backend interface {
	Create() (Core, error)
}

// Core is the primary handle of one engine instance. It is only used from
// the owning call path: creation, calls and teardown.
type Core interface {
	SetOption(name, value string) error
	Initialize() error
	NewEventSource(name string) (EventSource, error)
	Command(args []libmpv.Node) (libmpv.Node, error)
	SetProperty(name string, value libmpv.Node) error
	GetProperty(name string, format libmpv.Format) (libmpv.Node, error)

	// Destroy shuts the engine down and waits for every client handle,
	// including the event source, to be destroyed.
	Destroy()
}

// EventSource is the client handle polled by an instance's event loop.
// Only the event loop touches it after creation.
type EventSource interface {
	ObserveProperty(id uint64, name string, format libmpv.Format) error
	RequestLogMessages(level string) error

	// WaitEvent returns (nil, nil) when timeout expires without an event.
	WaitEvent(timeout time.Duration) (libmpv.Event, error)
	Destroy()
}

// NativeBackend creates engine cores from a loaded libmpv library.
type NativeBackend struct {
	lib *libmpv.Library
}

// NewNativeBackend returns a Backend over lib.
func NewNativeBackend(lib *libmpv.Library) *NativeBackend {
	return &NativeBackend{lib: lib}
}

// Create allocates an uninitialized mpv handle.
func (b *NativeBackend) Create() (Core, error) {
	h, err := b.lib.Create()
	if err != nil {
		return nil, err
	}
	return &nativeCore{h: h}, nil
}

type nativeCore struct {
	h *libmpv.Handle
}

func (c *nativeCore) SetOption(name, value string) error {
	return c.h.SetOptionString(name, value)
}

func (c *nativeCore) Initialize() error {
	return c.h.Initialize()
}

func (c *nativeCore) NewEventSource(name string) (EventSource, error) {
	return c.h.CreateClient(name)
}

func (c *nativeCore) Command(args []libmpv.Node) (libmpv.Node, error) {
	return c.h.CommandNode(args)
}

func (c *nativeCore) SetProperty(name string, value libmpv.Node) error {
	return c.h.SetProperty(name, value)
}

func (c *nativeCore) GetProperty(name string, format libmpv.Format) (libmpv.Node, error) {
	return c.h.GetProperty(name, format)
}

func (c *nativeCore) Destroy() {
	c.h.TerminateDestroy()
}
