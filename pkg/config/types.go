package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
	"github.com/openfroyo/mpvbridge/pkg/player"
)

// Profile is a named player configuration.
type Profile struct {
	// Name identifies the profile.
	Name string `json:"name" validate:"required,max=64"`

	// InitialOptions are set before the engine is initialized, in order.
	InitialOptions []player.Option `json:"-"`

	// ObservedProperties are observed on the event client, in order.
	ObservedProperties []player.ObservedProperty `json:"-"`

	// Properties are written after initialization and again on every
	// reload of the profile.
	Properties []player.Option `json:"-"`

	// LogLevel requests engine log messages at that level.
	LogLevel string `json:"logLevel,omitempty" validate:"omitempty,oneof=no fatal error warn info v debug trace"`

	// Policies lists .rego files or directories checked before commands.
	Policies []string `json:"policies,omitempty" validate:"dive,required"`

	// Window is a window handle such as "xlib:0x3a00004" to embed into.
	Window string `json:"window,omitempty" validate:"omitempty,contains=:|eq=wayland"`

	// Source is the file the profile was loaded from.
	Source string `json:"source,omitempty"`

	// LoadedAt is when the profile was loaded.
	LoadedAt time.Time `json:"loadedAt"`
}

// PlayerConfig returns the session configuration described by p.
func (p *Profile) PlayerConfig() player.Config {
	return player.Config{
		InitialOptions:     append([]player.Option(nil), p.InitialOptions...),
		ObservedProperties: append([]player.ObservedProperty(nil), p.ObservedProperties...),
		LogLevel:           p.LogLevel,
	}
}

// ValidationError describes one problem found while loading a profile.
type ValidationError struct {
	// File is the source file.
	File string `json:"file,omitempty"`

	// Line is the 1-based line number, if known.
	Line int `json:"line,omitempty"`

	// Column is the 1-based column number, if known.
	Column int `json:"column,omitempty"`

	// Path is the field path within the profile.
	Path string `json:"path,omitempty"`

	// Message describes the problem.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors collects every problem of one load.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Settings are the host process settings.
type Settings struct {
	// LibraryPath is an explicit libmpv path.
	LibraryPath string `json:"libraryPath,omitempty" validate:"omitempty,filepath"`

	// JournalPath is the SQLite event journal; empty disables the journal.
	JournalPath string `json:"journalPath,omitempty"`

	// MetricsAddr serves Prometheus metrics when set.
	MetricsAddr string `json:"metricsAddr,omitempty" validate:"omitempty,hostname_port"`

	// LogLevel is the process log level.
	LogLevel string `json:"logLevel,omitempty" validate:"omitempty,oneof=trace debug info warn error"`

	// TracingExporter selects the span exporter.
	TracingExporter string `json:"tracingExporter,omitempty" validate:"omitempty,oneof=none stdout otlp"`

	// TracingEndpoint is the OTLP collector address.
	TracingEndpoint string `json:"tracingEndpoint,omitempty" validate:"required_if=TracingExporter otlp"`
}

// optionsFromNode turns a map node into an ordered option list.
func optionsFromNode(path string, n libmpv.Node) ([]player.Option, error) {
	if n.IsNone() {
		return nil, nil
	}
	if n.Kind() != libmpv.NodeMap {
		return nil, ValidationError{Path: path, Message: "must be a mapping"}
	}
	opts := make([]player.Option, 0, n.Len())
	for _, e := range n.Entries() {
		opts = append(opts, player.Option{Name: e.Key, Value: e.Value})
	}
	return opts, nil
}
