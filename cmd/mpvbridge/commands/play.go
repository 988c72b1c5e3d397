package commands

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/mpvbridge/pkg/config"
	"github.com/openfroyo/mpvbridge/pkg/libmpv"
	"github.com/openfroyo/mpvbridge/pkg/player"
	"github.com/openfroyo/mpvbridge/pkg/policy"
	"github.com/openfroyo/mpvbridge/pkg/protocol"
	"github.com/openfroyo/mpvbridge/pkg/telemetry"
	"github.com/openfroyo/mpvbridge/pkg/window"
)

const shutdownTimeout = 10 * time.Second

// exitReasonSessionEnded is reported when the engine shut the session
// down, for example after a quit command.
const exitReasonSessionEnded = "session_ended"

type playOptions struct {
	session string
	window  string
	mode    string
	watch   bool
}

func newPlayCommand() *cobra.Command {
	var opts playOptions

	cmd := &cobra.Command{
		Use:   "play [file...]",
		Short: "Host a player session",
		Long: `Create a player session from the profile and serve it over stdio.

Requests are read from stdin, one JSON value per line:
  - ["loadfile","video.mp4"]                        run a command
  - {"id":"1","op":"set_property","name":"pause","value":true}
  - {"id":"2","op":"get_property","name":"time-pos","format":"double"}
  - {"op":"set_video_margin_ratio","margins":{"left":0.25}}

Replies and session events are written to stdout, one JSON message per line.
Logs go to stderr. The session ends when stdin is closed, on interrupt, or
when the engine shuts down.`,
		Example: `  # Play a file with the default profile
  mpvbridge play video.mp4

  # Use a profile and reload it on change
  mpvbridge play -c profile.yaml --watch

  # Embed into an X11 window
  mpvbridge play --window xlib:0x3a00004 video.mp4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.session, "session", "main", "session key")
	cmd.Flags().StringVar(&opts.window, "window", "", "window handle to embed into (kind:id)")
	cmd.Flags().StringVar(&opts.mode, "mode", "append-play", "loadfile mode for the files given as arguments")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "reload the profile and policies when they change")

	return cmd
}

func runPlay(ctx context.Context, opts playOptions, files []string) error {
	settings := currentSettings()
	loader := config.NewLoader()
	if err := loader.ValidateSettings(ctx, settings); err != nil {
		return err
	}

	profile := &config.Profile{Name: "default"}
	if configPath != "" {
		var err error
		if profile, err = loader.Load(ctx, configPath); err != nil {
			return fmt.Errorf("failed to load profile: %w", err)
		}
	}

	log.Info().
		Str("session", opts.session).
		Str("profile", profile.Name).
		Strs("files", files).
		Msg("Starting player session")

	tel, err := newTelemetry(settings)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}()
	if err := tel.StartMetricsServer(ctx); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	if settings.JournalPath != "" {
		journal, err := openJournal(ctx, settings.JournalPath)
		if err != nil {
			return err
		}
		defer journal.Close()
		tel.Events.Subscribe(journal.Subscriber(), nil)
	}

	gate, err := newPolicyGate(ctx, profile.Policies, opts.watch)
	if err != nil {
		return err
	}
	defer gate.Close()

	windows := window.NewStatic()
	if handle := firstNonEmpty(opts.window, profile.Window); handle != "" {
		h, err := window.Parse(handle)
		if err != nil {
			return err
		}
		windows.Set(opts.session, h)
	}

	lib, err := libmpv.Open(settings.LibraryPath)
	if err != nil {
		return err
	}
	log.Debug().
		Str("path", lib.Path()).
		Str("api", lib.ClientAPIVersionString()).
		Msg("Loaded libmpv")

	p := player.New(player.NewNativeBackend(lib), player.PlayerOptions{
		Options: player.Options{Telemetry: tel},
		Gate:    gate,
		Windows: windows,
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := p.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to close sessions")
		}
	}()

	srv := protocol.NewServer(os.Stdin, os.Stdout, p, opts.session, log.Logger)
	tel.Events.Subscribe(srv.Forward(), telemetry.FilterByType(telemetry.EventTypePlayer))

	if _, err := p.Init(ctx, opts.session, profile.PlayerConfig()); err != nil {
		return err
	}
	if err := p.ApplyProperties(ctx, opts.session, profile.Properties); err != nil {
		log.Warn().Err(err).Msg("Some profile properties were not applied")
	}

	for _, file := range files {
		if _, err := p.Command(ctx, opts.session, "loadfile", libmpv.String(file), libmpv.String(opts.mode)); err != nil {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	if opts.watch && configPath != "" {
		watcher := config.NewWatcher(loader, configPath, log.Logger)
		if err := watcher.Start(ctx, profileReloader(ctx, p, gate, opts.session)); err != nil {
			return err
		}
		defer watcher.Close()
	}

	var ended <-chan struct{}
	if err := p.Registry().WithInstance(opts.session, func(inst *player.Instance) error {
		ended = inst.Done()
		return nil
	}); err != nil {
		return err
	}

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-ended:
			cancel()
		case <-serveCtx.Done():
		}
	}()

	if err := srv.Ready(&protocol.ReadyMessage{
		Version:  buildVersion,
		Platform: runtime.GOOS,
		Arch:     runtime.GOARCH,
		PID:      os.Getpid(),
		Metadata: map[string]string{
			"profile": profile.Name,
			"libmpv":  lib.ClientAPIVersionString(),
		},
	}); err != nil {
		return err
	}

	reason, serveErr := srv.Serve(serveCtx)
	select {
	case <-ended:
		reason = exitReasonSessionEnded
	default:
	}

	exitCode := 0
	if serveErr != nil {
		exitCode = 1
	}
	log.Info().
		Str("reason", reason).
		Int("requests", srv.Requests()).
		Msg("Player session finished")

	if err := srv.Exit(reason, exitCode); err != nil {
		log.Debug().Err(err).Msg("EXIT message not written")
	}
	return serveErr
}

// newPolicyGate creates the command gate with the built-in rules and the
// profile's policy paths.
func newPolicyGate(ctx context.Context, paths []string, watch bool) (*policy.Engine, error) {
	engine, err := policy.NewEngine(log.Logger)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return engine, nil
	}
	if err := engine.LoadPolicies(ctx, paths); err != nil {
		engine.Close()
		return nil, err
	}
	if watch {
		if err := engine.Watch(ctx); err != nil {
			engine.Close()
			return nil, err
		}
	}
	return engine, nil
}

// profileReloader re-applies the live properties of a reloaded profile and
// loads policy paths it adds.
func profileReloader(ctx context.Context, p *player.Player, gate *policy.Engine, session string) func(*config.Profile, error) {
	return func(profile *config.Profile, err error) {
		if err != nil {
			return
		}
		if err := p.ApplyProperties(ctx, session, profile.Properties); err != nil {
			log.Warn().Err(err).Str("profile", profile.Name).Msg("Some profile properties were not applied")
		}
		if len(profile.Policies) > 0 {
			if err := gate.LoadPolicies(ctx, profile.Policies); err != nil {
				log.Error().Err(err).Msg("Failed to load profile policies")
			}
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
