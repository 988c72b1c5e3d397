package libmpv

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// NodeKind discriminates the Node variants.
type NodeKind int

const (
	NodeNone NodeKind = iota
	NodeString
	NodeFlag
	NodeInt64
	NodeDouble
	NodeArray
	NodeMap
	NodeByteArray
)

var nodeKindNames = [...]string{"none", "string", "flag", "int64", "double", "array", "map", "byte-array"}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return "unknown"
}

// Node is any value the engine produces or accepts. The zero Node is None.
// Values are immutable once built.
type Node struct {
	kind    NodeKind
	str     string
	flag    bool
	i64     int64
	f64     float64
	items   []Node
	entries []MapEntry
	raw     []byte
}

// MapEntry is one key/value pair of a map Node.
type MapEntry struct {
	Key   string
	Value Node
}

// None returns the empty Node.
func None() Node { return Node{} }

// String returns a string Node.
func String(s string) Node { return Node{kind: NodeString, str: s} }

// Flag returns a boolean Node.
func Flag(b bool) Node { return Node{kind: NodeFlag, flag: b} }

// Int64 returns an integer Node.
func Int64(i int64) Node { return Node{kind: NodeInt64, i64: i} }

// Double returns a floating point Node.
func Double(f float64) Node { return Node{kind: NodeDouble, f64: f} }

// Array returns an array Node holding items in order.
func Array(items ...Node) Node {
	return Node{kind: NodeArray, items: append([]Node{}, items...)}
}

// Map returns a map Node. Entries keep their order; a repeated key replaces
// the earlier value in place.
func Map(entries ...MapEntry) Node {
	out := make([]MapEntry, 0, len(entries))
	index := make(map[string]int, len(entries))
	for _, e := range entries {
		if i, ok := index[e.Key]; ok {
			out[i].Value = e.Value
			continue
		}
		index[e.Key] = len(out)
		out = append(out, e)
	}
	return Node{kind: NodeMap, entries: out}
}

// ByteArray returns a byte array Node holding a copy of b.
func ByteArray(b []byte) Node {
	return Node{kind: NodeByteArray, raw: append([]byte{}, b...)}
}

// Kind returns the variant.
func (n Node) Kind() NodeKind { return n.kind }

// IsScalar reports whether n can be written as a property value.
func (n Node) IsScalar() bool {
	switch n.kind {
	case NodeString, NodeFlag, NodeInt64, NodeDouble:
		return true
	}
	return false
}

// IsNone reports whether n is None.
func (n Node) IsNone() bool { return n.kind == NodeNone }

// Str returns the string payload.
func (n Node) Str() (string, bool) { return n.str, n.kind == NodeString }

// Bool returns the flag payload.
func (n Node) Bool() (bool, bool) { return n.flag, n.kind == NodeFlag }

// Int returns the int64 payload.
func (n Node) Int() (int64, bool) { return n.i64, n.kind == NodeInt64 }

// Float returns the double payload.
func (n Node) Float() (float64, bool) { return n.f64, n.kind == NodeDouble }

// Items returns the array elements.
func (n Node) Items() []Node {
	if n.kind != NodeArray {
		return nil
	}
	return n.items
}

// Entries returns the map entries in order.
func (n Node) Entries() []MapEntry {
	if n.kind != NodeMap {
		return nil
	}
	return n.entries
}

// Bytes returns the byte array payload.
func (n Node) Bytes() []byte {
	if n.kind != NodeByteArray {
		return nil
	}
	return n.raw
}

// Len returns the number of elements of an array or map Node.
func (n Node) Len() int {
	switch n.kind {
	case NodeArray:
		return len(n.items)
	case NodeMap:
		return len(n.entries)
	case NodeByteArray:
		return len(n.raw)
	}
	return 0
}

// Lookup returns the value stored under key in a map Node.
func (n Node) Lookup(key string) (Node, bool) {
	for _, e := range n.Entries() {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Node{}, false
}

// Equal reports deep equality, including map order.
func (n Node) Equal(other Node) bool {
	if n.kind != other.kind {
		return false
	}
	switch n.kind {
	case NodeNone:
		return true
	case NodeString:
		return n.str == other.str
	case NodeFlag:
		return n.flag == other.flag
	case NodeInt64:
		return n.i64 == other.i64
	case NodeDouble:
		return n.f64 == other.f64 || (math.IsNaN(n.f64) && math.IsNaN(other.f64))
	case NodeArray:
		if len(n.items) != len(other.items) {
			return false
		}
		for i := range n.items {
			if !n.items[i].Equal(other.items[i]) {
				return false
			}
		}
		return true
	case NodeMap:
		if len(n.entries) != len(other.entries) {
			return false
		}
		for i := range n.entries {
			if n.entries[i].Key != other.entries[i].Key || !n.entries[i].Value.Equal(other.entries[i].Value) {
				return false
			}
		}
		return true
	case NodeByteArray:
		return bytes.Equal(n.raw, other.raw)
	}
	return false
}

// Interface converts n into plain Go values: nil, string, bool, int64,
// float64, []interface{}, map[string]interface{} or []byte. Map order is lost.
func (n Node) Interface() interface{} {
	switch n.kind {
	case NodeString:
		return n.str
	case NodeFlag:
		return n.flag
	case NodeInt64:
		return n.i64
	case NodeDouble:
		return n.f64
	case NodeArray:
		out := make([]interface{}, len(n.items))
		for i, item := range n.items {
			out[i] = item.Interface()
		}
		return out
	case NodeMap:
		out := make(map[string]interface{}, len(n.entries))
		for _, e := range n.entries {
			out[e.Key] = e.Value.Interface()
		}
		return out
	case NodeByteArray:
		return append([]byte{}, n.raw...)
	}
	return nil
}

// MarshalJSON writes n untagged: None is null, maps keep their order and
// byte arrays become arrays of numbers.
func (n Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n Node) writeJSON(buf *bytes.Buffer) error {
	switch n.kind {
	case NodeNone:
		buf.WriteString("null")
	case NodeString:
		b, err := json.Marshal(n.str)
		if err != nil {
			return err
		}
		buf.Write(b)
	case NodeFlag:
		buf.WriteString(strconv.FormatBool(n.flag))
	case NodeInt64:
		buf.WriteString(strconv.FormatInt(n.i64, 10))
	case NodeDouble:
		if math.IsNaN(n.f64) || math.IsInf(n.f64, 0) {
			buf.WriteString("null")
			return nil
		}
		b, err := json.Marshal(n.f64)
		if err != nil {
			return err
		}
		buf.Write(b)
	case NodeArray:
		buf.WriteByte('[')
		for i, item := range n.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case NodeMap:
		buf.WriteByte('{')
		for i, e := range n.entries {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(e.Key)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := e.Value.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case NodeByteArray:
		buf.WriteByte('[')
		for i, b := range n.raw {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(strconv.Itoa(int(b)))
		}
		buf.WriteByte(']')
	}
	return nil
}

// UnmarshalJSON decodes JSON into a Node, keeping object key order.
func (n *Node) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
