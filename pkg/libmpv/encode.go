package libmpv

import (
	"runtime"
	"strings"
	"unsafe"
)

// arena owns the Go memory handed to a single native call. Everything it
// allocates stays pinned until release, which callers defer right after
// creating the arena.
type arena struct {
	pinner runtime.Pinner
	keep   []interface{}
}

func (a *arena) release() {
	a.pinner.Unpin()
	a.keep = nil
}

func (a *arena) hold(p interface{}) {
	a.pinner.Pin(p)
	a.keep = append(a.keep, p)
}

// cstring copies s into pinned NUL-terminated memory.
func (a *arena) cstring(s string) (uintptr, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return 0, conversionErrorf("string %q contains a NUL byte", s)
	}
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	a.hold(&buf[0])
	return uintptr(unsafe.Pointer(&buf[0])), nil
}

// cstrings builds a NULL-terminated array of native strings.
func (a *arena) cstrings(values []string) (uintptr, error) {
	ptrs := make([]uintptr, len(values)+1)
	for i, v := range values {
		p, err := a.cstring(v)
		if err != nil {
			return 0, err
		}
		ptrs[i] = p
	}
	a.hold(&ptrs[0])
	return uintptr(unsafe.Pointer(&ptrs[0])), nil
}

// encodeNode writes n into dst using the mpv_node layout.
func (a *arena) encodeNode(n Node, dst *node) error {
	dst.u = 0
	switch n.kind {
	case NodeNone:
		dst.format = FormatNone
	case NodeString:
		p, err := a.cstring(n.str)
		if err != nil {
			return err
		}
		dst.u = uint64(p)
		dst.format = FormatString
	case NodeFlag:
		var v int32
		if n.flag {
			v = 1
		}
		*(*int32)(unsafe.Pointer(&dst.u)) = v
		dst.format = FormatFlag
	case NodeInt64:
		*(*int64)(unsafe.Pointer(&dst.u)) = n.i64
		dst.format = FormatInt64
	case NodeDouble:
		*(*float64)(unsafe.Pointer(&dst.u)) = n.f64
		dst.format = FormatDouble
	case NodeArray:
		list, err := a.encodeList(n.items, nil)
		if err != nil {
			return err
		}
		dst.u = uint64(list)
		dst.format = FormatNodeArray
	case NodeMap:
		values := make([]Node, len(n.entries))
		keys := make([]string, len(n.entries))
		for i, e := range n.entries {
			keys[i] = e.Key
			values[i] = e.Value
		}
		list, err := a.encodeList(values, keys)
		if err != nil {
			return err
		}
		dst.u = uint64(list)
		dst.format = FormatNodeMap
	case NodeByteArray:
		ba := &byteArray{size: uintptr(len(n.raw))}
		if len(n.raw) > 0 {
			data := append([]byte{}, n.raw...)
			a.hold(&data[0])
			ba.data = uintptr(unsafe.Pointer(&data[0]))
		}
		a.hold(ba)
		dst.u = uint64(uintptr(unsafe.Pointer(ba)))
		dst.format = FormatByteArray
	default:
		return conversionErrorf("unknown node kind %d", int(n.kind))
	}
	return nil
}

func (a *arena) encodeList(values []Node, keys []string) (uintptr, error) {
	list := &nodeList{num: int32(len(values))}
	if len(values) > 0 {
		natives := make([]node, len(values))
		a.hold(&natives[0])
		for i := range values {
			if err := a.encodeNode(values[i], &natives[i]); err != nil {
				return 0, err
			}
		}
		list.values = uintptr(unsafe.Pointer(&natives[0]))
	}
	if keys != nil && len(keys) > 0 {
		p, err := a.cstrings(keys)
		if err != nil {
			return 0, err
		}
		list.keys = p
	}
	a.hold(list)
	return uintptr(unsafe.Pointer(list)), nil
}

// encodeProperty prepares a property write. Only scalar Nodes have a native
// typed setter; composite values fail with Unsupported.
func (a *arena) encodeProperty(v Node) (Format, unsafe.Pointer, error) {
	switch v.kind {
	case NodeString:
		p, err := a.cstring(v.str)
		if err != nil {
			return FormatNone, nil, err
		}
		slot := new(uintptr)
		*slot = p
		a.hold(slot)
		return FormatString, unsafe.Pointer(slot), nil
	case NodeFlag:
		slot := new(int32)
		if v.flag {
			*slot = 1
		}
		a.hold(slot)
		return FormatFlag, unsafe.Pointer(slot), nil
	case NodeInt64:
		slot := new(int64)
		*slot = v.i64
		a.hold(slot)
		return FormatInt64, unsafe.Pointer(slot), nil
	case NodeDouble:
		slot := new(float64)
		*slot = v.f64
		a.hold(slot)
		return FormatDouble, unsafe.Pointer(slot), nil
	default:
		return FormatNone, nil, NewError(KindUnsupported,
			"setting a property with a "+v.kind.String()+" node value is not supported")
	}
}
