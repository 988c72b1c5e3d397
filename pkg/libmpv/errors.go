package libmpv

import (
	"errors"
	"fmt"
)

// ErrorKind classifies binding failures.
type ErrorKind string

const (
	// KindCreate means the native handle or the event client could not be allocated.
	KindCreate ErrorKind = "create"

	// KindInitialize means mpv_initialize returned a negative status.
	KindInitialize ErrorKind = "initialize"

	// KindSetOption means an initial option was rejected by the engine.
	KindSetOption ErrorKind = "set_option"

	// KindObserve means a property observation could not be registered.
	KindObserve ErrorKind = "observe"

	// KindCall covers failed command, set_property and get_property calls.
	KindCall ErrorKind = "call"

	// KindConversion means a native value carried a tag that cannot be decoded.
	KindConversion ErrorKind = "conversion"

	// KindNotFound means no instance exists for the session key.
	KindNotFound ErrorKind = "not_found"

	// KindUnsupported means the value or feature cannot be represented natively.
	KindUnsupported ErrorKind = "unsupported"

	// KindUnsupportedPlatform means no integer window id exists on this platform.
	KindUnsupportedPlatform ErrorKind = "unsupported_platform"

	// KindLibrary means the shared library could not be located or bound.
	KindLibrary ErrorKind = "library"

	// KindDenied means a command policy rejected the call.
	KindDenied ErrorKind = "denied"
)

// Call operation names carried by KindCall errors.
const (
	OpCommand     = "command"
	OpSetProperty = "set_property"
	OpGetProperty = "get_property"
)

// Error is the single error type returned by the binding layers.
type Error struct {
	// Kind is the failure classification.
	Kind ErrorKind `json:"kind"`

	// Op is the operation that failed (command, set_property, get_property, ...).
	Op string `json:"op,omitempty"`

	// Name is the command, property or option name involved.
	Name string `json:"name,omitempty"`

	// Session is the session key of the instance, if known.
	Session string `json:"session,omitempty"`

	// Status is the native mpv error code, or zero.
	Status int `json:"status,omitempty"`

	// Message is the human-readable cause, usually from mpv_error_string.
	Message string `json:"message"`

	// Err is the wrapped cause.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("mpv %s", e.Kind)
	if e.Op != "" {
		msg += " " + e.Op
	}
	if e.Name != "" {
		msg += fmt.Sprintf(" %q", e.Name)
	}
	if e.Session != "" {
		msg += fmt.Sprintf(" (session=%s)", e.Session)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so errors.Is(err, &Error{Kind: KindNotFound}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Status == 0 || e.Status == t.Status)
}

// NewError creates an error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates an error of the given kind around a cause.
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithOp sets the failed operation.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithName sets the command, property or option name.
func (e *Error) WithName(name string) *Error {
	e.Name = name
	return e
}

// WithSession sets the session key.
func (e *Error) WithSession(session string) *Error {
	e.Session = session
	return e
}

// WithStatus sets the native status code.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound reports whether err means the session has no live instance.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsUnsupported reports whether err is an Unsupported failure.
func IsUnsupported(err error) bool {
	return KindOf(err) == KindUnsupported
}

// IsUnsupportedPlatform reports whether err is an UnsupportedPlatform failure.
func IsUnsupportedPlatform(err error) bool {
	return KindOf(err) == KindUnsupportedPlatform
}

// IsConversion reports whether err is a Conversion failure.
func IsConversion(err error) bool {
	return KindOf(err) == KindConversion
}

// IsDenied reports whether err came from the command policy.
func IsDenied(err error) bool {
	return KindOf(err) == KindDenied
}

// IsPropertyNotFound reports whether the engine rejected a property name.
func IsPropertyNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindCall && e.Status == int(StatusPropertyNotFound)
	}
	return false
}

func conversionErrorf(format string, args ...interface{}) *Error {
	return NewError(KindConversion, fmt.Sprintf(format, args...))
}
