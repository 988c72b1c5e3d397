package window

import (
	"testing"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
)

func TestHandleID(t *testing.T) {
	tests := []struct {
		name     string
		handle   Handle
		want     int64
		wantKind libmpv.ErrorKind
	}{
		{"win32", Handle{Kind: KindWin32, Window: 0x1234}, 0x1234, ""},
		{"xlib", Handle{Kind: KindXlib, Window: 0x3a00004}, 0x3a00004, ""},
		{"xcb", Handle{Kind: KindXcb, Window: 77}, 77, ""},
		{"appkit", Handle{Kind: KindAppKit, Window: 0x7f00deadbeef}, 0x7f00deadbeef, ""},
		{"wayland", Handle{Kind: KindWayland}, 0, libmpv.KindUnsupportedPlatform},
		{"unknown kind", Handle{Kind: "uikit", Window: 1}, 0, libmpv.KindUnsupportedPlatform},
		{"zero window", Handle{Kind: KindXlib}, 0, libmpv.KindUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.handle.ID()
			if tt.wantKind != "" {
				if libmpv.KindOf(err) != tt.wantKind {
					t.Fatalf("ID() error = %v, want kind %s", err, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("ID() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ID() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Handle
		wantErr bool
	}{
		{"xlib:0x3a00004", Handle{Kind: KindXlib, Window: 0x3a00004}, false},
		{"WIN32:132456", Handle{Kind: KindWin32, Window: 132456}, false},
		{"wayland", Handle{Kind: KindWayland}, false},
		{"xlib", Handle{}, true},
		{"xcb:nope", Handle{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStatic(t *testing.T) {
	s := NewStatic()
	s.Set("main", Handle{Kind: KindXlib, Window: 5})

	h, err := s.WindowHandle("main")
	if err != nil || h.Window != 5 {
		t.Fatalf("WindowHandle() = %+v, %v", h, err)
	}

	s.Remove("main")
	if _, err := s.WindowHandle("main"); err == nil {
		t.Error("WindowHandle() after Remove succeeded")
	}
}

func TestSessionType(t *testing.T) {
	t.Setenv("XDG_SESSION_TYPE", "")
	t.Setenv("WAYLAND_DISPLAY", "wayland-0")
	t.Setenv("DISPLAY", ":0")
	if got := SessionType(); got != KindWayland {
		t.Errorf("SessionType() = %q, want wayland", got)
	}

	t.Setenv("XDG_SESSION_TYPE", "x11")
	if got := SessionType(); got != KindXlib {
		t.Errorf("SessionType() = %q, want xlib", got)
	}
}
