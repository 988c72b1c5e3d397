package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
	"github.com/openfroyo/mpvbridge/pkg/player"
	"github.com/openfroyo/mpvbridge/pkg/window"
)

// Supported profile file extensions.
var profileExtensions = []string{".yaml", ".yml", ".json", ".cue", ".star"}

// Loader reads and validates profiles.
type Loader struct {
	schemas   *SchemaRegistry
	cue       *CUEParser
	starlark  *StarlarkEvaluator
	validator *validator.Validate
}

// NewLoader creates a loader with the built-in schemas.
func NewLoader() *Loader {
	return &Loader{
		schemas:   NewSchemaRegistry(),
		cue:       NewCUEParser(),
		starlark:  NewStarlarkEvaluator(10 * time.Second),
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Schemas returns the schema registry.
func (l *Loader) Schemas() *SchemaRegistry {
	return l.schemas
}

// IsProfileFile reports whether path has a profile extension.
func IsProfileFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range profileExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Load reads the profile at path. The format follows the extension.
func (l *Loader) Load(ctx context.Context, path string) (*Profile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return l.LoadBytes(ctx, path, content)
}

// LoadBytes parses content as the profile file filename.
func (l *Loader) LoadBytes(ctx context.Context, filename string, content []byte) (*Profile, error) {
	doc, err := l.parseDocument(ctx, filename, content)
	if err != nil {
		return nil, err
	}
	if doc.Kind() != libmpv.NodeMap {
		return nil, ValidationError{File: filename, Message: "profile must be a mapping"}
	}

	plain, _ := doc.Interface().(map[string]interface{})
	if err := l.schemas.ValidateProfileDocument(ctx, plain); err != nil {
		return nil, ValidationError{File: filename, Message: err.Error()}
	}

	profile, err := profileFromDocument(filename, doc)
	if err != nil {
		return nil, err
	}

	if err := l.validateProfile(filename, profile); err != nil {
		return nil, err
	}

	return profile, nil
}

func (l *Loader) parseDocument(ctx context.Context, filename string, content []byte) (libmpv.Node, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return parseYAML(filename, content)
	case ".json":
		doc, err := libmpv.ParseJSON(content)
		if err != nil {
			return libmpv.Node{}, ValidationError{File: filename, Message: err.Error()}
		}
		return doc, nil
	case ".cue":
		return l.cue.Parse(filename, content)
	case ".star":
		input := map[string]libmpv.Node{
			"platform":     libmpv.String(runtime.GOOS),
			"session_type": libmpv.String(string(window.SessionType())),
		}
		result, err := l.starlark.Evaluate(ctx, filename, string(content), input)
		if err != nil {
			return libmpv.Node{}, ValidationError{File: filename, Message: err.Error()}
		}
		return starlarkDocument(result.Output), nil
	default:
		return libmpv.Node{}, fmt.Errorf("unsupported profile format %q", filepath.Ext(filename))
	}
}

// profileFromDocument decodes a schema-checked document.
func profileFromDocument(filename string, doc libmpv.Node) (*Profile, error) {
	profile := &Profile{Source: filename, LoadedAt: time.Now()}
	fail := func(path, msg string) error {
		return ValidationError{File: filename, Path: path, Message: msg}
	}

	if v, ok := doc.Lookup("name"); ok {
		profile.Name, _ = v.Str()
	}
	if v, ok := doc.Lookup("logLevel"); ok {
		profile.LogLevel, _ = v.Str()
	}
	if v, ok := doc.Lookup("window"); ok {
		profile.Window, _ = v.Str()
	}

	var err error
	if v, ok := doc.Lookup("initialOptions"); ok {
		if profile.InitialOptions, err = optionsFromNode("initialOptions", v); err != nil {
			return nil, err
		}
	}

	if v, ok := doc.Lookup("properties"); ok {
		if profile.Properties, err = optionsFromNode("properties", v); err != nil {
			return nil, err
		}
		for _, p := range profile.Properties {
			if !p.Value.IsScalar() {
				return nil, fail("properties."+p.Name, "must be a string, flag or number")
			}
		}
	}

	if v, ok := doc.Lookup("observedProperties"); ok {
		for _, e := range v.Entries() {
			name, _ := e.Value.Str()
			format, ferr := libmpv.ParseFormat(name)
			if ferr != nil {
				return nil, fail("observedProperties."+e.Key, ferr.Error())
			}
			profile.ObservedProperties = append(profile.ObservedProperties, player.ObservedProperty{Name: e.Key, Format: format})
		}
	}

	if v, ok := doc.Lookup("policies"); ok {
		base := filepath.Dir(filename)
		for i, item := range v.Items() {
			p, ok := item.Str()
			if !ok {
				return nil, fail(fmt.Sprintf("policies[%d]", i), "must be a string")
			}
			if !filepath.IsAbs(p) && filename != "" {
				p = filepath.Join(base, p)
			}
			profile.Policies = append(profile.Policies, p)
		}
	}

	return profile, nil
}

func (l *Loader) validateProfile(filename string, p *Profile) error {
	var out ValidationErrors

	if err := l.validator.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			out = append(out, ValidationError{
				File:    filename,
				Path:    fe.Namespace(),
				Message: fmt.Sprintf("failed %q validation", fe.Tag()),
			})
		}
	}

	for _, lists := range [][]player.Option{p.InitialOptions, p.Properties} {
		for _, o := range lists {
			if strings.TrimSpace(o.Name) == "" {
				out = append(out, ValidationError{File: filename, Message: "option names must not be empty"})
			}
		}
	}

	if p.Window != "" {
		if _, err := window.Parse(p.Window); err != nil {
			out = append(out, ValidationError{File: filename, Path: "window", Message: err.Error()})
		}
	}

	if len(out) > 0 {
		return out
	}
	return nil
}

// ValidateSettings checks s against its struct tags and the settings
// schema.
func (l *Loader) ValidateSettings(ctx context.Context, s Settings) error {
	if err := l.validator.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if err := l.schemas.ValidateSettings(ctx, s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}
