// Package config loads player profiles and host settings.
//
// # Overview
//
// A profile names the options a session starts with, the properties it
// observes and the properties applied once it runs:
//
//	name: default
//	initialOptions: {volume: 50, mute: false}
//	observedProperties: {pause: flag, time-pos: double}
//	properties: {volume: 70}
//	logLevel: warn
//	policies: [./policies]
//
// # Formats
//
// The file extension selects the format:
//
//   - .yaml/.yml: YAML, key order taken from the mapping node
//   - .json: JSON, key order taken from the token stream
//   - .cue: CUE, key order taken from the struct's field order
//   - .star: Starlark; the globals name, initial_options,
//     observed_properties, properties, log_level, policies and window
//     become the profile, with platform and session_type predeclared
//
// Every format decodes into an ordered libmpv.Node document first, so the
// option order a user writes is the order options reach the engine.
//
// # Validation
//
// Documents are checked against the built-in #Profile CUE schema, then the
// decoded Profile is checked with validator struct tags. Problems are
// reported as ValidationErrors carrying file, line and field path where
// known.
//
// # Reloading
//
// Watcher follows a profile file with fsnotify and hands every reloaded
// Profile to a callback after a short debounce.
package config
