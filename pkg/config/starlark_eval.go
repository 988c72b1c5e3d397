package config

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
)

// StarlarkEvaluator runs profile scripts under a time limit.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// StarlarkResult is the outcome of one script run.
type StarlarkResult struct {
	// Output holds the public, non-callable globals of the script.
	Output        map[string]libmpv.Node
	ExecutionTime time.Duration
	// Error is the failure message of a failed run.
	Error string
}

// NewStarlarkEvaluator creates an evaluator. A zero timeout means 10s.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &StarlarkEvaluator{timeout: timeout}
}

// Evaluate executes script with input predeclared and returns its globals.
// The script is cancelled when the timeout or ctx expires. On failure the
// result is still returned with Error set.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, filename, script string, input map[string]libmpv.Node) (*StarlarkResult, error) {
	start := time.Now()
	result := &StarlarkResult{}

	output, err := se.run(ctx, filename, script, input)
	result.ExecutionTime = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}
	result.Output = output
	return result, nil
}

func (se *StarlarkEvaluator) run(ctx context.Context, filename, script string, input map[string]libmpv.Node) (map[string]libmpv.Node, error) {
	predeclared := starlark.StringDict{"struct": starlark.NewBuiltin("struct", starlarkstruct.Make)}
	for key, val := range input {
		sv, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = sv
	}

	ctx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	thread := &starlark.Thread{Name: "profile", Print: func(*starlark.Thread, string) {}}
	stop := context.AfterFunc(ctx, func() { thread.Cancel(ctx.Err().Error()) })
	defer stop()

	globals, err := starlark.ExecFile(thread, filename, script, predeclared)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("starlark execution timeout after %v", se.timeout)
		}
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	output := make(map[string]libmpv.Node, len(globals))
	for name, val := range globals {
		if strings.HasPrefix(name, "_") {
			continue
		}
		if _, ok := val.(starlark.Callable); ok {
			continue
		}
		n, err := fromStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert output %s: %w", name, err)
		}
		output[name] = n
	}
	return output, nil
}

// toStarlarkValue converts a node to a Starlark value.
func toStarlarkValue(n libmpv.Node) (starlark.Value, error) {
	switch n.Kind() {
	case libmpv.NodeNone:
		return starlark.None, nil
	case libmpv.NodeFlag:
		b, _ := n.Bool()
		return starlark.Bool(b), nil
	case libmpv.NodeInt64:
		i, _ := n.Int()
		return starlark.MakeInt64(i), nil
	case libmpv.NodeDouble:
		f, _ := n.Float()
		return starlark.Float(f), nil
	case libmpv.NodeString:
		s, _ := n.Str()
		return starlark.String(s), nil
	case libmpv.NodeArray:
		list := make([]starlark.Value, 0, n.Len())
		for _, item := range n.Items() {
			v, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return starlark.NewList(list), nil
	case libmpv.NodeMap:
		dict := starlark.NewDict(n.Len())
		for _, e := range n.Entries() {
			v, err := toStarlarkValue(e.Value)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(e.Key), v); err != nil {
				return nil, err
			}
		}
		return dict, nil
	case libmpv.NodeByteArray:
		return starlark.Bytes(n.Bytes()), nil
	default:
		return nil, fmt.Errorf("unsupported node kind: %s", n.Kind())
	}
}

// fromStarlarkValue converts a Starlark value to a node. Dicts keep their
// insertion order; struct fields are sorted by name.
func fromStarlarkValue(v starlark.Value) (libmpv.Node, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return libmpv.None(), nil
	case starlark.Bool:
		return libmpv.Flag(bool(val)), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return libmpv.Node{}, fmt.Errorf("integer too large")
		}
		return libmpv.Int64(i), nil
	case starlark.Float:
		return libmpv.Double(float64(val)), nil
	case starlark.String:
		return libmpv.String(string(val)), nil
	case starlark.Bytes:
		return libmpv.ByteArray([]byte(val)), nil
	case *starlark.List:
		items := make([]libmpv.Node, 0, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return libmpv.Node{}, err
			}
			items = append(items, item)
		}
		return libmpv.Array(items...), nil
	case starlark.Tuple:
		items := make([]libmpv.Node, 0, len(val))
		for _, elem := range val {
			item, err := fromStarlarkValue(elem)
			if err != nil {
				return libmpv.Node{}, err
			}
			items = append(items, item)
		}
		return libmpv.Array(items...), nil
	case *starlark.Dict:
		entries := make([]libmpv.MapEntry, 0, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return libmpv.Node{}, fmt.Errorf("dict key must be string, got %s", item[0].Type())
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return libmpv.Node{}, err
			}
			entries = append(entries, libmpv.MapEntry{Key: string(key), Value: value})
		}
		return libmpv.Map(entries...), nil
	case *starlarkstruct.Struct:
		names := val.AttrNames()
		sort.Strings(names)
		entries := make([]libmpv.MapEntry, 0, len(names))
		for _, name := range names {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return libmpv.Node{}, err
			}
			entries = append(entries, libmpv.MapEntry{Key: name, Value: value})
		}
		return libmpv.Map(entries...), nil
	default:
		return libmpv.Node{}, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}

// starlarkGlobals maps profile script globals to profile document keys.
var starlarkGlobals = []struct{ global, key string }{
	{"name", "name"},
	{"initial_options", "initialOptions"},
	{"observed_properties", "observedProperties"},
	{"properties", "properties"},
	{"log_level", "logLevel"},
	{"policies", "policies"},
	{"window", "window"},
}

// starlarkDocument builds a profile document from script globals.
func starlarkDocument(output map[string]libmpv.Node) libmpv.Node {
	var entries []libmpv.MapEntry
	for _, g := range starlarkGlobals {
		if v, ok := output[g.global]; ok && !v.IsNone() {
			entries = append(entries, libmpv.MapEntry{Key: g.key, Value: v})
		}
	}
	return libmpv.Map(entries...)
}
