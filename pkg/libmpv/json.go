package libmpv

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// ParseJSON decodes a JSON document into a Node. Object keys keep their
// document order, integral numbers become Int64 and other numbers Double.
func ParseJSON(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	n, err := decodeJSONValue(dec)
	if err != nil {
		return Node{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Node{}, fmt.Errorf("unexpected data after JSON value")
	}
	return n, nil
}

func decodeJSONValue(dec *json.Decoder) (Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return Node{}, err
	}

	switch v := tok.(type) {
	case nil:
		return None(), nil
	case bool:
		return Flag(v), nil
	case string:
		return String(v), nil
	case json.Number:
		return numberNode(v), nil
	case json.Delim:
		switch v {
		case '[':
			var items []Node
			for dec.More() {
				item, err := decodeJSONValue(dec)
				if err != nil {
					return Node{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Node{}, err
			}
			return Array(items...), nil
		case '{':
			var entries []MapEntry
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Node{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Node{}, fmt.Errorf("object key is %T, not string", keyTok)
				}
				value, err := decodeJSONValue(dec)
				if err != nil {
					return Node{}, err
				}
				entries = append(entries, MapEntry{Key: key, Value: value})
			}
			if _, err := dec.Token(); err != nil {
				return Node{}, err
			}
			return Map(entries...), nil
		}
	}
	return Node{}, fmt.Errorf("unexpected JSON token %v", tok)
}

func numberNode(num json.Number) Node {
	if i, err := strconv.ParseInt(num.String(), 10, 64); err == nil {
		return Int64(i)
	}
	f, _ := num.Float64()
	return Double(f)
}

// FromInterface converts plain Go values into a Node. Keys of Go maps have
// no order and are sorted.
func FromInterface(v interface{}) (Node, error) {
	switch val := v.(type) {
	case nil:
		return None(), nil
	case Node:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Flag(val), nil
	case int:
		return Int64(int64(val)), nil
	case int32:
		return Int64(int64(val)), nil
	case int64:
		return Int64(val), nil
	case uint32:
		return Int64(int64(val)), nil
	case float32:
		return Double(float64(val)), nil
	case float64:
		return Double(val), nil
	case json.Number:
		return numberNode(val), nil
	case []byte:
		return ByteArray(val), nil
	case []string:
		items := make([]Node, len(val))
		for i, s := range val {
			items[i] = String(s)
		}
		return Array(items...), nil
	case []interface{}:
		items := make([]Node, len(val))
		for i, item := range val {
			n, err := FromInterface(item)
			if err != nil {
				return Node{}, err
			}
			items[i] = n
		}
		return Array(items...), nil
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		entries := make([]MapEntry, 0, len(keys))
		for _, k := range keys {
			n, err := FromInterface(val[k])
			if err != nil {
				return Node{}, err
			}
			entries = append(entries, MapEntry{Key: k, Value: n})
		}
		return Map(entries...), nil
	default:
		return Node{}, NewError(KindUnsupported, fmt.Sprintf("cannot convert %T to a node", v))
	}
}

// EncodeOptionValue renders an initial option value the way the engine's
// option parser expects it: flags as "yes"/"no", numbers in their natural
// form, strings unchanged. Any other value reports ok == false and is skipped.
func EncodeOptionValue(v Node) (value string, ok bool) {
	switch v.kind {
	case NodeString:
		return v.str, true
	case NodeFlag:
		if v.flag {
			return "yes", true
		}
		return "no", true
	case NodeInt64:
		return strconv.FormatInt(v.i64, 10), true
	case NodeDouble:
		return strconv.FormatFloat(v.f64, 'f', -1, 64), true
	default:
		return "", false
	}
}
