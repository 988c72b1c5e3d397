// Package window turns platform window handles into the integer window id
// libmpv accepts through its wid option.
package window

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
)

// Kind names the windowing system a handle belongs to.
type Kind string

// Windowing systems.
const (
	KindWin32   Kind = "win32"
	KindXlib    Kind = "xlib"
	KindXcb     Kind = "xcb"
	KindAppKit  Kind = "appkit"
	KindWayland Kind = "wayland"
)

// Handle is a native window handle. Window holds the HWND on Win32, the
// XID on Xlib and XCB and the NSView pointer on AppKit.
type Handle struct {
	Kind   Kind   `json:"kind" yaml:"kind"`
	Window uint64 `json:"window" yaml:"window"`
}

// ID returns the wid for h. Wayland has no integer window id and any other
// unknown kind is treated the same way: both fail with UnsupportedPlatform.
func (h Handle) ID() (int64, error) {
	switch h.Kind {
	case KindWin32, KindXlib, KindXcb, KindAppKit:
		if h.Window == 0 {
			return 0, libmpv.NewError(libmpv.KindUnsupported, fmt.Sprintf("%s window handle is zero", h.Kind))
		}
		return int64(h.Window), nil
	case KindWayland:
		return 0, libmpv.NewError(libmpv.KindUnsupportedPlatform,
			"window embedding via --wid is not supported on Wayland")
	default:
		return 0, libmpv.NewError(libmpv.KindUnsupportedPlatform,
			fmt.Sprintf("window embedding is not supported for %q handles", h.Kind))
	}
}

// String formats h as kind:0xwindow.
func (h Handle) String() string {
	if h.Kind == KindWayland {
		return string(h.Kind)
	}
	return fmt.Sprintf("%s:%#x", h.Kind, h.Window)
}

// Parse reads a handle written as kind:window, for example "xlib:0x3a00004"
// or "win32:132456". The window number accepts 0x, 0o and 0b prefixes.
// A bare "wayland" is accepted so callers can report the platform error.
func Parse(s string) (Handle, error) {
	kind, window, found := strings.Cut(strings.TrimSpace(s), ":")
	h := Handle{Kind: Kind(strings.ToLower(kind))}
	if h.Kind == KindWayland {
		return h, nil
	}
	if !found {
		return Handle{}, fmt.Errorf("window handle %q must be kind:window", s)
	}
	id, err := strconv.ParseUint(window, 0, 64)
	if err != nil {
		return Handle{}, fmt.Errorf("window handle %q: %w", s, err)
	}
	h.Window = id
	return h, nil
}

// Provider resolves the window a session should render into.
type Provider interface {
	WindowHandle(session string) (Handle, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(session string) (Handle, error)

// WindowHandle calls f.
func (f ProviderFunc) WindowHandle(session string) (Handle, error) {
	return f(session)
}

// Static is a Provider backed by a fixed session-to-handle table.
type Static struct {
	mu      sync.RWMutex
	handles map[string]Handle
}

// NewStatic creates an empty Static provider.
func NewStatic() *Static {
	return &Static{handles: make(map[string]Handle)}
}

// Set binds session to h.
func (s *Static) Set(session string, h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[session] = h
}

// Remove forgets the handle of session.
func (s *Static) Remove(session string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, session)
}

// WindowHandle returns the handle bound to session.
func (s *Static) WindowHandle(session string) (Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[session]
	if !ok {
		return Handle{}, fmt.Errorf("no window registered for session %q", session)
	}
	return h, nil
}

// SessionType reports the desktop session type from XDG_SESSION_TYPE and
// WAYLAND_DISPLAY, for hosts that only know they run on "the current
// display". It returns KindWayland, KindXlib or "".
func SessionType() Kind {
	switch strings.ToLower(os.Getenv("XDG_SESSION_TYPE")) {
	case "wayland":
		return KindWayland
	case "x11":
		return KindXlib
	}
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		return KindWayland
	}
	if os.Getenv("DISPLAY") != "" {
		return KindXlib
	}
	return ""
}
