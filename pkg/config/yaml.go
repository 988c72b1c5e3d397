package config

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
)

// parseYAML decodes a YAML document into a node, keeping mapping order.
func parseYAML(filename string, content []byte) (libmpv.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return libmpv.Node{}, ValidationError{File: filename, Message: err.Error()}
	}
	if doc.Kind == 0 {
		return libmpv.Map(), nil
	}
	return yamlToNode(filename, "", &doc)
}

func yamlToNode(filename, path string, n *yaml.Node) (libmpv.Node, error) {
	fail := func(msg string) error {
		return ValidationError{File: filename, Line: n.Line, Column: n.Column, Path: path, Message: msg}
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return libmpv.Map(), nil
		}
		return yamlToNode(filename, path, n.Content[0])
	case yaml.AliasNode:
		return yamlToNode(filename, path, n.Alias)
	case yaml.SequenceNode:
		items := make([]libmpv.Node, 0, len(n.Content))
		for i, c := range n.Content {
			item, err := yamlToNode(filename, fmt.Sprintf("%s[%d]", path, i), c)
			if err != nil {
				return libmpv.Node{}, err
			}
			items = append(items, item)
		}
		return libmpv.Array(items...), nil
	case yaml.MappingNode:
		entries := make([]libmpv.MapEntry, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode, valNode := n.Content[i], n.Content[i+1]
			if keyNode.Kind != yaml.ScalarNode {
				return libmpv.Node{}, fail("mapping keys must be scalars")
			}
			child, err := yamlToNode(filename, joinPath(path, keyNode.Value), valNode)
			if err != nil {
				return libmpv.Node{}, err
			}
			entries = append(entries, libmpv.MapEntry{Key: keyNode.Value, Value: child})
		}
		return libmpv.Map(entries...), nil
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!null":
			return libmpv.None(), nil
		case "!!bool":
			var b bool
			if err := n.Decode(&b); err != nil {
				return libmpv.Node{}, fail(err.Error())
			}
			return libmpv.Flag(b), nil
		case "!!int":
			var i int64
			if err := n.Decode(&i); err != nil {
				return libmpv.Node{}, fail(err.Error())
			}
			return libmpv.Int64(i), nil
		case "!!float":
			f, err := strconv.ParseFloat(n.Value, 64)
			if err != nil {
				var decoded float64
				if derr := n.Decode(&decoded); derr != nil {
					return libmpv.Node{}, fail(derr.Error())
				}
				f = decoded
			}
			return libmpv.Double(f), nil
		default:
			return libmpv.String(n.Value), nil
		}
	default:
		return libmpv.Node{}, fail("unsupported YAML node")
	}
}
