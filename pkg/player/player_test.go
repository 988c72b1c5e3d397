package player

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
	"github.com/openfroyo/mpvbridge/pkg/telemetry"
	"github.com/openfroyo/mpvbridge/pkg/window"
)

func newTestPlayer(b *fakeBackend, opts PlayerOptions) *Player {
	opts.WaitTimeout = 10 * time.Millisecond
	opts.TeardownTimeout = time.Second
	return New(b, opts)
}

type gateFunc func(ctx context.Context, session string, args []libmpv.Node) error

func (f gateFunc) CheckCommand(ctx context.Context, session string, args []libmpv.Node) error {
	return f(ctx, session, args)
}

func TestPlayerWindowEmbedding(t *testing.T) {
	windows := window.NewStatic()
	windows.Set("main", window.Handle{Kind: window.KindXlib, Window: 0x10})
	windows.Set("wl", window.Handle{Kind: window.KindWayland})

	tests := []struct {
		name    string
		session string
		cfg     Config
		wantWid string
	}{
		{"embeds window", "main", Config{}, "16"},
		{"audio only vid", "main", Config{InitialOptions: []Option{{Name: "vid", Value: libmpv.String("no")}}}, ""},
		{"audio only video flag", "main", Config{InitialOptions: []Option{{Name: "video", Value: libmpv.Flag(false)}}}, ""},
		{"caller wid wins", "main", Config{InitialOptions: []Option{{Name: "wid", Value: libmpv.Int64(7)}}}, "7"},
		{"wayland skipped", "wl", Config{}, ""},
		{"no window", "other", Config{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{}
			p := newTestPlayer(b, PlayerOptions{Windows: windows})
			defer p.Close(context.Background())

			if _, err := p.Init(context.Background(), tt.session, tt.cfg); err != nil {
				t.Fatalf("Init() error = %v", err)
			}

			wid := ""
			for _, o := range b.core(0).optionList() {
				if o[0] == "wid" {
					wid = o[1]
				}
			}
			if wid != tt.wantWid {
				t.Errorf("wid = %q, want %q", wid, tt.wantWid)
			}
		})
	}
}

func TestPlayerScenario(t *testing.T) {
	tel := telemetry.NewNopTelemetry()
	var (
		mu       sync.Mutex
		received []telemetry.Event
	)
	tel.Events.Subscribe(func(e telemetry.Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e)
	}, telemetry.FilterByType(telemetry.EventTypePlayer))

	b := &fakeBackend{}
	p := newTestPlayer(b, PlayerOptions{Options: Options{Telemetry: tel}})
	defer p.Close(context.Background())
	ctx := context.Background()

	var cfg Config
	raw := `{"initialOptions":{"volume":50,"mute":false},"observedProperties":{"pause":"flag"}}`
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, err := p.Init(ctx, "main", cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if err := p.SetProperty(ctx, "main", "pause", libmpv.Flag(false)); err != nil {
		t.Fatalf("SetProperty(pause) error = %v", err)
	}
	got, err := p.GetProperty(ctx, "main", "pause", "flag")
	if err != nil {
		t.Fatalf("GetProperty() error = %v", err)
	}
	if !got.Equal(libmpv.Flag(false)) {
		t.Errorf("GetProperty() = %v, want false", got.Interface())
	}
	if err := p.SetProperty(ctx, "main", "volume", libmpv.Int64(80)); err != nil {
		t.Fatalf("SetProperty(volume) error = %v", err)
	}

	b.core(0).eventSource().push(libmpv.PropertyChangeEvent{Name: "pause", Data: libmpv.Flag(true), ID: 1})

	ok := waitFor(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})
	if !ok {
		t.Fatal("property change not published")
	}
	mu.Lock()
	e := received[0]
	mu.Unlock()
	if e.Channel != "mpv-event-main" || e.Session != "main" || e.Name != "property-change" {
		t.Errorf("published event = %+v", e)
	}
	want := `{"event":"property-change","name":"pause","data":true,"id":1}`
	if string(e.Payload) != want {
		t.Errorf("payload = %s, want %s", e.Payload, want)
	}
}

func TestPlayerCommand(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown session", func(t *testing.T) {
		p := newTestPlayer(&fakeBackend{}, PlayerOptions{})
		_, err := p.Command(ctx, "ghost", "loadfile", libmpv.String("video.mp4"))
		if !libmpv.IsNotFound(err) {
			t.Errorf("Command() error = %v, want not found", err)
		}
	})

	t.Run("destroyed session", func(t *testing.T) {
		p := newTestPlayer(&fakeBackend{}, PlayerOptions{})
		_, _ = p.Init(ctx, "main", Config{})
		_ = p.Destroy(ctx, "main")
		_, err := p.Command(ctx, "main", "loadfile", libmpv.String("video.mp4"))
		if !libmpv.IsNotFound(err) {
			t.Errorf("Command() error = %v, want not found", err)
		}
	})

	t.Run("runs and returns result", func(t *testing.T) {
		b := &fakeBackend{}
		p := newTestPlayer(b, PlayerOptions{})
		defer p.Close(ctx)
		_, _ = p.Init(ctx, "main", Config{})

		got, err := p.Command(ctx, "main", "loadfile", libmpv.String("video.mp4"))
		if err != nil {
			t.Fatalf("Command() error = %v", err)
		}
		if s, _ := got.Str(); s != "ok" {
			t.Errorf("Command() = %v", got.Interface())
		}
	})

	t.Run("native failure carries context", func(t *testing.T) {
		p := newTestPlayer(&fakeBackend{}, PlayerOptions{})
		defer p.Close(ctx)
		_, _ = p.Init(ctx, "main", Config{})

		_, err := p.Command(ctx, "main", "fail")
		var e *libmpv.Error
		if !errors.As(err, &e) {
			t.Fatalf("Command() error = %v, want *libmpv.Error", err)
		}
		if e.Kind != libmpv.KindCall || e.Op != libmpv.OpCommand || e.Session != "main" || e.Name != "fail" {
			t.Errorf("error = %+v", e)
		}
	})

	t.Run("denied by gate", func(t *testing.T) {
		b := &fakeBackend{}
		gate := gateFunc(func(_ context.Context, _ string, args []libmpv.Node) error {
			if name, _ := args[0].Str(); name == "run" {
				return libmpv.NewError(libmpv.KindDenied, "subprocesses are not allowed").WithName(name)
			}
			return nil
		})
		p := newTestPlayer(b, PlayerOptions{Gate: gate})
		defer p.Close(ctx)
		_, _ = p.Init(ctx, "main", Config{})

		if _, err := p.Command(ctx, "main", "run", libmpv.String("sh")); !libmpv.IsDenied(err) {
			t.Errorf("Command(run) error = %v, want denied", err)
		}
		if _, err := p.Command(ctx, "main", "seek", libmpv.Int64(10)); err != nil {
			t.Errorf("Command(seek) error = %v", err)
		}
		if n := b.core(0).commandCount(); n != 1 {
			t.Errorf("engine ran %d commands, want 1", n)
		}
	})

	t.Run("caller gives up on cancel", func(t *testing.T) {
		b := &fakeBackend{}
		p := newTestPlayer(b, PlayerOptions{})
		_, _ = p.Init(ctx, "main", Config{})

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := p.Command(cctx, "main", "block")
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Command() error = %v, want deadline exceeded", err)
		}

		close(b.core(0).unblock)
		_ = p.Close(ctx)
	})
}

func TestPlayerProperties(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{}
	p := newTestPlayer(b, PlayerOptions{})
	defer p.Close(ctx)
	_, _ = p.Init(ctx, "main", Config{})

	t.Run("composite value is unsupported", func(t *testing.T) {
		err := p.SetProperty(ctx, "main", "playlist", libmpv.Array(libmpv.String("a")))
		if !libmpv.IsUnsupported(err) {
			t.Errorf("SetProperty() error = %v, want unsupported", err)
		}
	})

	t.Run("unknown format is unsupported", func(t *testing.T) {
		_, err := p.GetProperty(ctx, "main", "volume", "float")
		if !libmpv.IsUnsupported(err) {
			t.Errorf("GetProperty() error = %v, want unsupported", err)
		}
	})

	t.Run("missing property", func(t *testing.T) {
		_, err := p.GetProperty(ctx, "main", "no-such-property", "string")
		if !libmpv.IsPropertyNotFound(err) {
			t.Errorf("GetProperty() error = %v, want property not found", err)
		}
	})

	t.Run("margins skip unset sides", func(t *testing.T) {
		left, bottom := 0.1, 0.25
		before := len(b.core(0).setList())
		err := p.SetVideoMarginRatio(ctx, "main", VideoMarginRatio{Left: &left, Bottom: &bottom})
		if err != nil {
			t.Fatalf("SetVideoMarginRatio() error = %v", err)
		}
		got := b.core(0).setList()[before:]
		want := []string{"video-margin-ratio-left", "video-margin-ratio-bottom"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("writes = %v, want %v", got, want)
		}
	})

	t.Run("apply continues past failures", func(t *testing.T) {
		before := len(b.core(0).setList())
		err := p.ApplyProperties(ctx, "main", []Option{
			{Name: "playlist", Value: libmpv.Map()},
			{Name: "volume", Value: libmpv.Int64(70)},
		})
		if !libmpv.IsUnsupported(err) {
			t.Errorf("ApplyProperties() error = %v, want unsupported", err)
		}
		got := b.core(0).setList()[before:]
		if !reflect.DeepEqual(got, []string{"volume"}) {
			t.Errorf("writes = %v", got)
		}
	})
}

func TestPlayerHandlerChain(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{}
	got := make(chan libmpv.Event, 4)
	p := newTestPlayer(b, PlayerOptions{Options: Options{Handler: func(_ string, ev libmpv.Event, _ error) error {
		got <- ev
		return nil
	}}})
	defer p.Close(ctx)

	_, _ = p.Init(ctx, "main", Config{})
	b.core(0).eventSource().push(libmpv.FileLoadedEvent{})

	select {
	case ev := <-got:
		if _, ok := ev.(libmpv.FileLoadedEvent); !ok {
			t.Errorf("forwarded %#v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event not forwarded")
	}
}

func TestPlayerStoppedBusStopsLoop(t *testing.T) {
	ctx := context.Background()
	tel := telemetry.NewNopTelemetry()
	b := &fakeBackend{}
	p := newTestPlayer(b, PlayerOptions{Options: Options{Telemetry: tel}})

	_, _ = p.Init(ctx, "main", Config{})
	_ = tel.Events.Shutdown(ctx)
	events := b.core(0).eventSource()
	events.push(libmpv.TickEvent{})

	if !waitFor(events.isDestroyed) {
		t.Fatal("event loop kept running on a stopped bus")
	}
	if err := p.Destroy(ctx, "main"); err != nil {
		t.Errorf("Destroy() error = %v", err)
	}
}

func TestPlayerInitAbandoned(t *testing.T) {
	t.Run("created instance is destroyed", func(t *testing.T) {
		b := &fakeBackend{createDelay: 100 * time.Millisecond}
		p := newTestPlayer(b, PlayerOptions{})
		defer p.Close(context.Background())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		if _, err := p.Init(ctx, "main", Config{}); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Init() error = %v, want %v", err, context.DeadlineExceeded)
		}

		ok := waitFor(func() bool {
			return b.created() == 1 && b.core(0).isDestroyed() && p.Registry().Len() == 0
		})
		if !ok {
			t.Fatal("abandoned instance was not destroyed")
		}
	})

	t.Run("existing session is kept", func(t *testing.T) {
		b := &fakeBackend{}
		p := newTestPlayer(b, PlayerOptions{})
		defer p.Close(context.Background())

		if _, err := p.Init(context.Background(), "main", Config{}); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _ = p.Init(ctx, "main", Config{})
		time.Sleep(50 * time.Millisecond)

		if b.core(0).isDestroyed() {
			t.Error("existing instance destroyed")
		}
		if got := p.Registry().Len(); got != 1 {
			t.Errorf("Len() = %d, want 1", got)
		}
	})
}
