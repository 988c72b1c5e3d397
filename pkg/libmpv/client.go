package libmpv

import (
	"sync"
	"time"
	"unsafe"
)

// Handle is one mpv_handle: the core created by Create or a client created
// by CreateClient. A Handle must not be used from two goroutines at once;
// the event client belongs to the event loop and the core to the call path.
type Handle struct {
	lib  *Library
	name string

	mu  sync.Mutex
	ptr uintptr
}

// Create allocates a new, uninitialized player core.
func (l *Library) Create() (*Handle, error) {
	ptr := l.create()
	if ptr == 0 {
		return nil, NewError(KindCreate, "mpv_create returned NULL")
	}
	return &Handle{lib: l, name: "main", ptr: ptr}, nil
}

// Library returns the library the handle was created from.
func (h *Handle) Library() *Library {
	return h.lib
}

// Name returns the client name.
func (h *Handle) Name() string {
	return h.name
}

func (h *Handle) pointer() (uintptr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ptr == 0 {
		return 0, NewError(KindUnsupported, "mpv handle "+h.name+" already destroyed")
	}
	return h.ptr, nil
}

func (h *Handle) statusError(kind ErrorKind, op, name string, status int32) error {
	if status >= 0 {
		return nil
	}
	return NewError(kind, h.lib.ErrorString(int(status))).
		WithOp(op).
		WithName(name).
		WithStatus(int(status))
}

// CreateClient creates another client handle attached to the same core.
func (h *Handle) CreateClient(name string) (*Handle, error) {
	ptr, err := h.pointer()
	if err != nil {
		return nil, err
	}
	var a arena
	defer a.release()

	cname, err := a.cstring(name)
	if err != nil {
		return nil, err
	}
	client := h.lib.createClient(ptr, cname)
	if client == 0 {
		return nil, NewError(KindCreate, "mpv_create_client returned NULL").WithName(name)
	}
	return &Handle{lib: h.lib, name: name, ptr: client}, nil
}

// SetOptionString sets an option before initialization.
func (h *Handle) SetOptionString(name, value string) error {
	ptr, err := h.pointer()
	if err != nil {
		return err
	}
	var a arena
	defer a.release()

	cname, err := a.cstring(name)
	if err != nil {
		return err
	}
	cvalue, err := a.cstring(value)
	if err != nil {
		return err
	}
	return h.statusError(KindSetOption, "set_option", name, h.lib.setOptionString(ptr, cname, cvalue))
}

// Initialize starts the core.
func (h *Handle) Initialize() error {
	ptr, err := h.pointer()
	if err != nil {
		return err
	}
	return h.statusError(KindInitialize, "initialize", "", h.lib.initialize(ptr))
}

// ObserveProperty registers a property for change notifications on this
// client. id is echoed in every PropertyChangeEvent for the property.
func (h *Handle) ObserveProperty(id uint64, name string, format Format) error {
	ptr, err := h.pointer()
	if err != nil {
		return err
	}
	var a arena
	defer a.release()

	cname, err := a.cstring(name)
	if err != nil {
		return err
	}
	return h.statusError(KindObserve, "observe_property", name, h.lib.observeProperty(ptr, id, cname, format))
}

// RequestLogMessages enables LogMessageEvent delivery at the given level.
func (h *Handle) RequestLogMessages(level string) error {
	ptr, err := h.pointer()
	if err != nil {
		return err
	}
	var a arena
	defer a.release()

	clevel, err := a.cstring(level)
	if err != nil {
		return err
	}
	return h.statusError(KindCall, "request_log_messages", level, h.lib.requestLogMessages(ptr, clevel))
}

// Command runs a command given as plain strings through mpv_command.
func (h *Handle) Command(args ...string) error {
	if len(args) == 0 {
		return NewError(KindCall, "empty command").WithOp(OpCommand)
	}
	ptr, err := h.pointer()
	if err != nil {
		return err
	}
	var a arena
	defer a.release()

	argv, err := a.cstrings(args)
	if err != nil {
		return err
	}
	return h.statusError(KindCall, OpCommand, args[0], h.lib.command(ptr, argv))
}

// CommandNode runs a command given as a node array and returns its result.
func (h *Handle) CommandNode(args []Node) (Node, error) {
	name := ""
	if len(args) > 0 {
		name, _ = args[0].Str()
	}
	ptr, err := h.pointer()
	if err != nil {
		return Node{}, err
	}
	var a arena
	defer a.release()

	in := new(node)
	a.hold(in)
	if err := a.encodeNode(Array(args...), in); err != nil {
		return Node{}, err
	}

	out := new(node)
	a.hold(out)
	if err := h.statusError(KindCall, OpCommand, name, h.lib.commandNode(ptr, in, out)); err != nil {
		return Node{}, err
	}
	defer h.lib.freeNodeContents(out)
	return decodeNode(out)
}

// SetProperty writes a scalar property value. Composite nodes fail with
// Unsupported.
func (h *Handle) SetProperty(name string, value Node) error {
	ptr, err := h.pointer()
	if err != nil {
		return err
	}
	var a arena
	defer a.release()

	cname, err := a.cstring(name)
	if err != nil {
		return err
	}
	format, data, err := a.encodeProperty(value)
	if err != nil {
		if e, ok := err.(*Error); ok {
			return e.WithOp(OpSetProperty).WithName(name)
		}
		return err
	}
	return h.statusError(KindCall, OpSetProperty, name, h.lib.setProperty(ptr, cname, format, uintptr(data)))
}

// GetProperty reads a property in the requested format. Native strings and
// nodes are copied and released before returning.
func (h *Handle) GetProperty(name string, format Format) (Node, error) {
	ptr, err := h.pointer()
	if err != nil {
		return Node{}, err
	}
	var a arena
	defer a.release()

	cname, err := a.cstring(name)
	if err != nil {
		return Node{}, err
	}

	fail := func(status int32) error {
		return h.statusError(KindCall, OpGetProperty, name, status)
	}

	switch format {
	case FormatString, FormatOSDString:
		out := new(uintptr)
		a.hold(out)
		if err := fail(h.lib.getProperty(ptr, cname, format, uintptr(unsafe.Pointer(out)))); err != nil {
			return Node{}, err
		}
		if *out == 0 {
			return None(), nil
		}
		defer h.lib.free(*out)
		return String(goString(*out)), nil

	case FormatFlag:
		out := new(int32)
		a.hold(out)
		if err := fail(h.lib.getProperty(ptr, cname, format, uintptr(unsafe.Pointer(out)))); err != nil {
			return Node{}, err
		}
		return Flag(*out != 0), nil

	case FormatInt64:
		out := new(int64)
		a.hold(out)
		if err := fail(h.lib.getProperty(ptr, cname, format, uintptr(unsafe.Pointer(out)))); err != nil {
			return Node{}, err
		}
		return Int64(*out), nil

	case FormatDouble:
		out := new(float64)
		a.hold(out)
		if err := fail(h.lib.getProperty(ptr, cname, format, uintptr(unsafe.Pointer(out)))); err != nil {
			return Node{}, err
		}
		return Double(*out), nil

	case FormatNode:
		out := new(node)
		a.hold(out)
		if err := fail(h.lib.getProperty(ptr, cname, format, uintptr(unsafe.Pointer(out)))); err != nil {
			return Node{}, err
		}
		defer h.lib.freeNodeContents(out)
		return decodeNode(out)

	default:
		return Node{}, NewError(KindUnsupported, "unsupported property format "+format.String()).
			WithOp(OpGetProperty).
			WithName(name)
	}
}

// WaitEvent blocks for up to timeout and decodes the next event. It returns
// (nil, nil) when the wait timed out. Unknown event ids come back as
// *UnknownEventError.
func (h *Handle) WaitEvent(timeout time.Duration) (Event, error) {
	ptr, err := h.pointer()
	if err != nil {
		return nil, err
	}
	raw := h.lib.waitEvent(ptr, timeout.Seconds())
	if raw == 0 {
		return nil, nil
	}
	return decodeEvent((*event)(unsafe.Pointer(raw)))
}

// Destroy disconnects this client. Destroying the last handle of a core
// terminates it. Calling Destroy twice is a no-op.
func (h *Handle) Destroy() {
	if ptr := h.release(); ptr != 0 {
		h.lib.destroy(ptr)
	}
}

// TerminateDestroy shuts the core down and waits for all other clients to
// be destroyed. Calling it twice is a no-op.
func (h *Handle) TerminateDestroy() {
	if ptr := h.release(); ptr != 0 {
		h.lib.terminateDestroy(ptr)
	}
}

func (h *Handle) release() uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	ptr := h.ptr
	h.ptr = 0
	return ptr
}
