package libmpv

import "fmt"

var formatNames = map[Format]string{
	FormatNone:      "none",
	FormatString:    "string",
	FormatOSDString: "osd-string",
	FormatFlag:      "flag",
	FormatInt64:     "int64",
	FormatDouble:    "double",
	FormatNode:      "node",
	FormatNodeArray: "node-array",
	FormatNodeMap:   "node-map",
	FormatByteArray: "byte-array",
}

// String returns the lowercase format name.
func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", int32(f))
}

// ParseFormat resolves a requestable format name: string, flag, int64,
// double or node. Any other name is an Unsupported error.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "string":
		return FormatString, nil
	case "flag":
		return FormatFlag, nil
	case "int64":
		return FormatInt64, nil
	case "double":
		return FormatDouble, nil
	case "node":
		return FormatNode, nil
	default:
		return FormatNone, NewError(KindUnsupported, fmt.Sprintf("unknown property format %q", name))
	}
}

// MarshalText encodes the format by name.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText accepts the names understood by ParseFormat.
func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
