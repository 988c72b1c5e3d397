package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
	"github.com/openfroyo/mpvbridge/pkg/player"
)

// probeProperties are read from a throwaway instance.
var probeProperties = []string{"mpv-version", "ffmpeg-version", "libass-version"}

type probeReport struct {
	Library    string            `json:"library"`
	APIVersion string            `json:"api_version"`
	Properties map[string]string `json:"properties,omitempty"`
}

func newProbeCommand() *cobra.Command {
	var instance bool

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check that libmpv can be loaded",
		Long: `Locate and load libmpv and report its client API version.

The library is looked up at --library, MPV_LIBRARY_PATH, next to the
executable, in ../lib and finally by its platform name. With --instance a
headless instance is created to read the engine's version properties.`,
		Example: `  # Report the library that would be used
  mpvbridge probe

  # Also start an instance
  mpvbridge probe --instance --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := libmpv.Open(libraryPath)
			if err != nil {
				return err
			}

			report := probeReport{
				Library:    lib.Path(),
				APIVersion: lib.ClientAPIVersionString(),
			}
			if instance {
				if report.Properties, err = probeInstance(cmd.Context(), lib); err != nil {
					return err
				}
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "library: %s\n", report.Library)
			fmt.Fprintf(cmd.OutOrStdout(), "client API: %s\n", report.APIVersion)
			for _, name := range probeProperties {
				if v, ok := report.Properties[name]; ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, v)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&instance, "instance", false, "create a headless instance and read its versions")

	return cmd
}

func probeInstance(ctx context.Context, lib *libmpv.Library) (map[string]string, error) {
	const session = "probe"

	p := player.New(player.NewNativeBackend(lib), player.PlayerOptions{})
	defer p.Close(context.Background())

	cfg := player.Config{InitialOptions: []player.Option{
		{Name: "vo", Value: libmpv.String("null")},
		{Name: "ao", Value: libmpv.String("null")},
		{Name: "idle", Value: libmpv.String("yes")},
	}}
	if _, err := p.Init(ctx, session, cfg); err != nil {
		return nil, err
	}

	props := make(map[string]string, len(probeProperties))
	for _, name := range probeProperties {
		v, err := p.GetProperty(ctx, session, name, libmpv.FormatString.String())
		if err != nil {
			log.Debug().Err(err).Str("property", name).Msg("Property not available")
			continue
		}
		props[name], _ = v.Str()
	}

	if err := p.Destroy(ctx, session); err != nil {
		return nil, err
	}
	return props, nil
}
