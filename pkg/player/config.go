package player

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
)

// Option is one initial option or property assignment.
type Option struct {
	Name  string
	Value libmpv.Node
}

// ObservedProperty is one entry of the observed property table. Its
// correlation id is its 1-based position in Config.ObservedProperties.
type ObservedProperty struct {
	Name   string
	Format libmpv.Format
}

// Config describes a new session. Both lists keep the order the caller
// wrote them in.
type Config struct {
	InitialOptions     []Option
	ObservedProperties []ObservedProperty

	// LogLevel, when set, requests engine log messages at that level.
	LogLevel string
}

// Option returns the initial option named name.
func (c Config) Option(name string) (libmpv.Node, bool) {
	for _, o := range c.InitialOptions {
		if o.Name == name {
			return o.Value, true
		}
	}
	return libmpv.Node{}, false
}

// WithOption returns a copy of c with name set to value, replacing an
// existing entry in place or appending a new one.
func (c Config) WithOption(name string, value libmpv.Node) Config {
	opts := make([]Option, 0, len(c.InitialOptions)+1)
	replaced := false
	for _, o := range c.InitialOptions {
		if o.Name == name {
			o.Value = value
			replaced = true
		}
		opts = append(opts, o)
	}
	if !replaced {
		opts = append(opts, Option{Name: name, Value: value})
	}
	c.InitialOptions = opts
	c.ObservedProperties = append([]ObservedProperty(nil), c.ObservedProperties...)
	return c
}

// AudioOnly reports whether the options disable video output, through
// either "video" or "vid" set to "no" or false.
func (c Config) AudioOnly() bool {
	for _, o := range c.InitialOptions {
		if o.Name != "video" && o.Name != "vid" {
			continue
		}
		if s, ok := o.Value.Str(); ok && s == "no" {
			return true
		}
		if b, ok := o.Value.Bool(); ok && !b {
			return true
		}
	}
	return false
}

type configJSON struct {
	InitialOptions     json.RawMessage `json:"initialOptions,omitempty"`
	ObservedProperties json.RawMessage `json:"observedProperties,omitempty"`
	LogLevel           string          `json:"logLevel,omitempty"`
}

// UnmarshalJSON reads {initialOptions, observedProperties, logLevel},
// keeping object key order.
func (c *Config) UnmarshalJSON(data []byte) error {
	var raw configJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := Config{LogLevel: raw.LogLevel}

	if len(raw.InitialOptions) > 0 && !bytes.Equal(raw.InitialOptions, []byte("null")) {
		opts, err := libmpv.ParseJSON(raw.InitialOptions)
		if err != nil {
			return fmt.Errorf("initialOptions: %w", err)
		}
		if opts.Kind() != libmpv.NodeMap {
			return fmt.Errorf("initialOptions must be an object")
		}
		for _, e := range opts.Entries() {
			out.InitialOptions = append(out.InitialOptions, Option{Name: e.Key, Value: e.Value})
		}
	}

	if len(raw.ObservedProperties) > 0 && !bytes.Equal(raw.ObservedProperties, []byte("null")) {
		props, err := libmpv.ParseJSON(raw.ObservedProperties)
		if err != nil {
			return fmt.Errorf("observedProperties: %w", err)
		}
		if props.Kind() != libmpv.NodeMap {
			return fmt.Errorf("observedProperties must be an object")
		}
		for _, e := range props.Entries() {
			name, ok := e.Value.Str()
			if !ok {
				return fmt.Errorf("observedProperties.%s: format must be a string", e.Key)
			}
			format, err := libmpv.ParseFormat(name)
			if err != nil {
				return fmt.Errorf("observedProperties.%s: %w", e.Key, err)
			}
			out.ObservedProperties = append(out.ObservedProperties, ObservedProperty{Name: e.Key, Format: format})
		}
	}

	*c = out
	return nil
}

// MarshalJSON writes the camelCase shape read by UnmarshalJSON.
func (c Config) MarshalJSON() ([]byte, error) {
	opts := make([]libmpv.MapEntry, 0, len(c.InitialOptions))
	for _, o := range c.InitialOptions {
		opts = append(opts, libmpv.MapEntry{Key: o.Name, Value: o.Value})
	}
	props := make([]libmpv.MapEntry, 0, len(c.ObservedProperties))
	for _, p := range c.ObservedProperties {
		props = append(props, libmpv.MapEntry{Key: p.Name, Value: libmpv.String(p.Format.String())})
	}

	optsJSON, err := libmpv.Map(opts...).MarshalJSON()
	if err != nil {
		return nil, err
	}
	propsJSON, err := libmpv.Map(props...).MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(configJSON{
		InitialOptions:     optsJSON,
		ObservedProperties: propsJSON,
		LogLevel:           c.LogLevel,
	})
}

// VideoMarginRatio holds the four video-margin-ratio properties. Nil
// fields are left untouched.
type VideoMarginRatio struct {
	Left   *float64 `json:"left,omitempty" yaml:"left,omitempty"`
	Right  *float64 `json:"right,omitempty" yaml:"right,omitempty"`
	Top    *float64 `json:"top,omitempty" yaml:"top,omitempty"`
	Bottom *float64 `json:"bottom,omitempty" yaml:"bottom,omitempty"`
}

// assignments lists the property writes for r in left, right, top, bottom
// order.
func (r VideoMarginRatio) assignments() []Option {
	var out []Option
	add := func(side string, v *float64) {
		if v != nil {
			out = append(out, Option{Name: "video-margin-ratio-" + side, Value: libmpv.Double(*v)})
		}
	}
	add("left", r.Left)
	add("right", r.Right)
	add("top", r.Top)
	add("bottom", r.Bottom)
	return out
}
