package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Built-in schema names.
const (
	SchemaProfile  = "profile"
	SchemaSettings = "settings"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	sr.mustRegister(SchemaProfile, builtinProfileSchema, "#Profile")
	sr.mustRegister(SchemaSettings, builtinSettingsSchema, "#Settings")

	return sr
}

func (sr *SchemaRegistry) mustRegister(name, schema, definition string) {
	if err := sr.RegisterSchema(name, schema, definition); err != nil {
		panic(err)
	}
}

// RegisterSchema compiles schema and registers its definition under name.
func (sr *SchemaRegistry) RegisterSchema(name, schema, definition string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := val.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("schema %s does not define %s", name, definition)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema. A cue
// context is not safe for concurrent use, so validations are serialized.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	schema, ok := sr.schemas[schemaName]
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names in sorted order.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const builtinProfileSchema = `
#Scalar: string | bool | int | float

#Format: "string" | "flag" | "int64" | "double" | "node"

#Profile: {
	name: string & =~"^[a-zA-Z0-9_.-]+$"

	// Options set before the engine starts
	initialOptions?: {[string]: #Scalar | [...] | {...}}

	// Property name to requested format
	observedProperties?: {[string]: #Format}

	// Properties written after start and on every reload
	properties?: {[string]: #Scalar}

	logLevel?: "no" | "fatal" | "error" | "warn" | "info" | "v" | "debug" | "trace"

	policies?: [...string]

	window?: string & (=~"^[a-z0-9]+:" | "wayland")
}
`

const builtinSettingsSchema = `
#Settings: {
	libraryPath?:     string
	journalPath?:     string
	metricsAddr?:     string & =~":[0-9]+$"
	logLevel?:        "trace" | "debug" | "info" | "warn" | "error"
	tracingExporter?: "none" | "stdout" | "otlp"
	tracingEndpoint?: string
}
`

// ValidateProfileDocument validates a decoded profile document.
func (sr *SchemaRegistry) ValidateProfileDocument(ctx context.Context, doc map[string]interface{}) error {
	return sr.ValidateAgainstSchema(ctx, SchemaProfile, doc)
}

// ValidateSettings validates settings against the settings schema.
func (sr *SchemaRegistry) ValidateSettings(ctx context.Context, s Settings) error {
	doc := make(map[string]interface{})
	for key, value := range map[string]string{
		"libraryPath":     s.LibraryPath,
		"journalPath":     s.JournalPath,
		"metricsAddr":     s.MetricsAddr,
		"logLevel":        s.LogLevel,
		"tracingExporter": s.TracingExporter,
		"tracingEndpoint": s.TracingEndpoint,
	} {
		if value != "" {
			doc[key] = value
		}
	}
	return sr.ValidateAgainstSchema(ctx, SchemaSettings, doc)
}
