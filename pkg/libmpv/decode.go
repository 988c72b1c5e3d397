package libmpv

import (
	"unsafe"
)

const (
	nodeSize    = unsafe.Sizeof(node{})
	pointerSize = unsafe.Sizeof(uintptr(0))
)

// goString copies a NUL-terminated native string.
func goString(p uintptr) string {
	if p == 0 {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Pointer(p + uintptr(n))) != 0 {
		n++
	}
	if n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
}

// goStrings walks a NULL-terminated array of native strings. A positive
// limit caps the walk for arrays that also carry an element count.
func goStrings(p uintptr, limit int) []string {
	out := []string{}
	if p == 0 {
		return out
	}
	for i := 0; limit <= 0 || i < limit; i++ {
		entry := *(*uintptr)(unsafe.Pointer(p + uintptr(i)*pointerSize))
		if entry == 0 {
			break
		}
		out = append(out, goString(entry))
	}
	return out
}

// decodeNode copies a native mpv_node tree into a Node. Every tag mpv_node
// may carry is handled; anything else is a Conversion error.
func decodeNode(n *node) (Node, error) {
	if n == nil {
		return None(), nil
	}

	switch n.format {
	case FormatNone:
		return None(), nil
	case FormatString:
		return String(goString(uintptr(n.u))), nil
	case FormatFlag:
		return Flag(*(*int32)(unsafe.Pointer(&n.u)) != 0), nil
	case FormatInt64:
		return Int64(*(*int64)(unsafe.Pointer(&n.u))), nil
	case FormatDouble:
		return Double(*(*float64)(unsafe.Pointer(&n.u))), nil
	case FormatNodeArray:
		list := (*nodeList)(unsafe.Pointer(uintptr(n.u)))
		if list == nil {
			return Array(), nil
		}
		items := make([]Node, 0, list.num)
		for i := 0; i < int(list.num); i++ {
			child, err := decodeNode(listValue(list, i))
			if err != nil {
				return Node{}, err
			}
			items = append(items, child)
		}
		return Node{kind: NodeArray, items: items}, nil
	case FormatNodeMap:
		list := (*nodeList)(unsafe.Pointer(uintptr(n.u)))
		if list == nil {
			return Map(), nil
		}
		entries := make([]MapEntry, 0, list.num)
		for i := 0; i < int(list.num); i++ {
			key := goString(*(*uintptr)(unsafe.Pointer(list.keys + uintptr(i)*pointerSize)))
			value, err := decodeNode(listValue(list, i))
			if err != nil {
				return Node{}, err
			}
			entries = append(entries, MapEntry{Key: key, Value: value})
		}
		return Map(entries...), nil
	case FormatByteArray:
		ba := (*byteArray)(unsafe.Pointer(uintptr(n.u)))
		if ba == nil || ba.size == 0 || ba.data == 0 {
			return ByteArray(nil), nil
		}
		return ByteArray(unsafe.Slice((*byte)(unsafe.Pointer(ba.data)), ba.size)), nil
	default:
		return Node{}, conversionErrorf("unsupported mpv_node format %d", int32(n.format))
	}
}

func listValue(list *nodeList, i int) *node {
	return (*node)(unsafe.Pointer(list.values + uintptr(i)*nodeSize))
}

// decodeProperty decodes the data pointer of a property record or a typed
// get_property result. OSD strings decode to String like plain strings.
func decodeProperty(format Format, data uintptr) (Node, error) {
	if format == FormatNone || data == 0 {
		return None(), nil
	}

	switch format {
	case FormatString, FormatOSDString:
		return String(goString(*(*uintptr)(unsafe.Pointer(data)))), nil
	case FormatFlag:
		return Flag(*(*int32)(unsafe.Pointer(data)) != 0), nil
	case FormatInt64:
		return Int64(*(*int64)(unsafe.Pointer(data))), nil
	case FormatDouble:
		return Double(*(*float64)(unsafe.Pointer(data))), nil
	case FormatNode:
		return decodeNode((*node)(unsafe.Pointer(data)))
	default:
		return Node{}, conversionErrorf("unsupported property format %d", int32(format))
	}
}
