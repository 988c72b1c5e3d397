package config

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
)

// CUEParser reads profile documents written in CUE.
type CUEParser struct {
	ctx *cue.Context
}

// NewCUEParser creates a new CUE parser.
func NewCUEParser() *CUEParser {
	return &CUEParser{ctx: cuecontext.New()}
}

// ParseFile compiles the CUE file at path into a document node.
func (cp *CUEParser) ParseFile(path string) (libmpv.Node, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return libmpv.Node{}, fmt.Errorf("failed to read file: %w", err)
	}
	return cp.Parse(path, content)
}

// Parse compiles CUE source into a document node. Struct fields keep
// their declaration order.
func (cp *CUEParser) Parse(filename string, content []byte) (libmpv.Node, error) {
	val := cp.ctx.CompileBytes(content, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return libmpv.Node{}, convertCUEErrors(err)
	}
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return libmpv.Node{}, convertCUEErrors(err)
	}
	return cueToNode("", val)
}

// cueToNode converts a concrete CUE value.
func cueToNode(path string, v cue.Value) (libmpv.Node, error) {
	switch v.Kind() {
	case cue.NullKind:
		return libmpv.None(), nil
	case cue.BoolKind:
		b, err := v.Bool()
		return libmpv.Flag(b), err
	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return libmpv.Node{}, ValidationError{Path: path, Message: err.Error()}
		}
		return libmpv.Int64(i), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		return libmpv.Double(f), err
	case cue.StringKind:
		s, err := v.String()
		return libmpv.String(s), err
	case cue.BytesKind:
		b, err := v.Bytes()
		return libmpv.ByteArray(b), err
	case cue.ListKind:
		list, err := v.List()
		if err != nil {
			return libmpv.Node{}, err
		}
		var items []libmpv.Node
		for idx := 0; list.Next(); idx++ {
			item, err := cueToNode(fmt.Sprintf("%s[%d]", path, idx), list.Value())
			if err != nil {
				return libmpv.Node{}, err
			}
			items = append(items, item)
		}
		return libmpv.Array(items...), nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return libmpv.Node{}, err
		}
		var entries []libmpv.MapEntry
		for iter.Next() {
			key := iter.Selector().Unquoted()
			child, err := cueToNode(joinPath(path, key), iter.Value())
			if err != nil {
				return libmpv.Node{}, err
			}
			entries = append(entries, libmpv.MapEntry{Key: key, Value: child})
		}
		return libmpv.Map(entries...), nil
	default:
		return libmpv.Node{}, ValidationError{Path: path, Message: "value is not concrete"}
	}
}

// convertCUEErrors converts CUE errors to ValidationErrors.
func convertCUEErrors(err error) ValidationErrors {
	var out ValidationErrors

	for _, e := range errors.Errors(err) {
		ve := ValidationError{Message: errors.Details(e, nil)}
		if pos := errors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		out = append(out, ve)
	}

	return out
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
