// Package protocol defines the JSON-lines stdio protocol spoken by
// "mpvbridge play": requests arrive one per line on stdin, replies and
// session events leave one per line on stdout.
package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
	"github.com/openfroyo/mpvbridge/pkg/player"
)

// MessageType represents the type of an outbound message.
type MessageType string

const (
	// MessageTypeReady is sent once the session is initialized
	MessageTypeReady MessageType = "READY"
	// MessageTypeEvent carries one session event envelope
	MessageTypeEvent MessageType = "EVENT"
	// MessageTypeReply answers a successful request
	MessageTypeReply MessageType = "REPLY"
	// MessageTypeError answers a failed or malformed request
	MessageTypeError MessageType = "ERROR"
	// MessageTypeExit is sent before the process terminates
	MessageTypeExit MessageType = "EXIT"
)

// Op names the player call a request performs.
type Op string

const (
	OpCommand             Op = "command"
	OpSetProperty         Op = "set_property"
	OpGetProperty         Op = "get_property"
	OpSetVideoMarginRatio Op = "set_video_margin_ratio"
)

// Error kinds that do not come from libmpv.
const (
	// ErrorKindProtocol marks errors about the request line itself.
	ErrorKindProtocol = "protocol"
	// ErrorKindCanceled marks requests abandoned on shutdown or timeout.
	ErrorKindCanceled = "canceled"
)

// Message is the base structure for all outbound messages.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ReadyMessage is sent when the session accepts requests.
type ReadyMessage struct {
	Version  string            `json:"version"`
	Session  string            `json:"session"`
	Channel  string            `json:"channel"`
	Platform string            `json:"platform"`
	Arch     string            `json:"arch"`
	PID      int               `json:"pid"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Request is one decoded request line.
type Request struct {
	// ID is echoed in the reply. Array lines have no ID.
	ID string `json:"id,omitempty"`

	Op Op `json:"op"`

	// Session defaults to the process session when empty.
	Session string `json:"session,omitempty"`

	// Name is the property name for property operations.
	Name string `json:"name,omitempty"`

	// Value is the value for set_property; HasValue reports it was present.
	Value    libmpv.Node `json:"value"`
	HasValue bool        `json:"-"`

	// Format is the get_property format, node when empty.
	Format string `json:"format,omitempty"`

	// Args is the command name followed by its arguments.
	Args []libmpv.Node `json:"args,omitempty"`

	// Margins is the set_video_margin_ratio payload.
	Margins *player.VideoMarginRatio `json:"margins,omitempty"`
}

// ReplyMessage answers a successful request.
type ReplyMessage struct {
	ID      string       `json:"id,omitempty"`
	Op      Op           `json:"op"`
	Session string       `json:"session"`
	Name    string       `json:"name,omitempty"`
	Result  *libmpv.Node `json:"result,omitempty"`
}

// EventMessage carries one session event as published on its channel.
type EventMessage struct {
	Channel string          `json:"channel"`
	Session string          `json:"session"`
	Event   json.RawMessage `json:"event"`
}

// ErrorMessage describes a failed request.
type ErrorMessage struct {
	ID      string `json:"id,omitempty"`
	Op      Op     `json:"op,omitempty"`
	Session string `json:"session,omitempty"`
	Name    string `json:"name,omitempty"`
	Kind    string `json:"kind"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
}

// ExitMessage is sent before the process terminates.
type ExitMessage struct {
	Reason        string `json:"reason"`
	ExitCode      int    `json:"exit_code"`
	RequestsTotal int    `json:"requests_total"`
}

// Validate checks if the message type is valid.
func (mt MessageType) Validate() error {
	switch mt {
	case MessageTypeReady, MessageTypeEvent, MessageTypeReply,
		MessageTypeError, MessageTypeExit:
		return nil
	default:
		return fmt.Errorf("invalid message type: %s", mt)
	}
}

// Validate checks if the op is known.
func (op Op) Validate() error {
	switch op {
	case OpCommand, OpSetProperty, OpGetProperty, OpSetVideoMarginRatio:
		return nil
	default:
		return fmt.Errorf("invalid op: %q", string(op))
	}
}

// Validate checks the fields each op needs. An empty command argument list
// is left for the player to reject.
func (r *Request) Validate() error {
	if err := r.Op.Validate(); err != nil {
		return err
	}
	switch r.Op {
	case OpSetProperty:
		if r.Name == "" {
			return fmt.Errorf("property name is required")
		}
		if !r.HasValue {
			return fmt.Errorf("value is required")
		}
	case OpGetProperty:
		if r.Name == "" {
			return fmt.Errorf("property name is required")
		}
		if r.Format == "" {
			r.Format = libmpv.FormatNode.String()
		}
	case OpSetVideoMarginRatio:
		if r.Margins == nil {
			return fmt.Errorf("margins are required")
		}
	}
	return nil
}

// NewErrorMessage describes err as a reply to req. req may be nil for
// lines that could not be decoded.
func NewErrorMessage(req *Request, err error) *ErrorMessage {
	msg := &ErrorMessage{
		Kind:    ErrorKindProtocol,
		Message: err.Error(),
	}
	if req != nil {
		msg.ID = req.ID
		msg.Op = req.Op
		msg.Session = req.Session
		msg.Name = req.Name
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		msg.Kind = ErrorKindCanceled
	}

	var mpvErr *libmpv.Error
	if errors.As(err, &mpvErr) {
		msg.Kind = string(mpvErr.Kind)
		msg.Status = mpvErr.Status
		if mpvErr.Name != "" {
			msg.Name = mpvErr.Name
		}
		if mpvErr.Session != "" {
			msg.Session = mpvErr.Session
		}
	}
	return msg
}

// UnmarshalJSON decodes the object form of a request. Values and arguments
// keep their map key order.
func (r *Request) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID      string                   `json:"id"`
		Op      Op                       `json:"op"`
		Session string                   `json:"session"`
		Name    string                   `json:"name"`
		Value   json.RawMessage          `json:"value"`
		Format  string                   `json:"format"`
		Args    []json.RawMessage        `json:"args"`
		Margins *player.VideoMarginRatio `json:"margins"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	req := Request{
		ID:      raw.ID,
		Op:      raw.Op,
		Session: raw.Session,
		Name:    raw.Name,
		Format:  raw.Format,
		Margins: raw.Margins,
	}
	if req.Op == "" && len(raw.Args) > 0 {
		req.Op = OpCommand
	}
	if len(bytes.TrimSpace(raw.Value)) > 0 {
		v, err := libmpv.ParseJSON(raw.Value)
		if err != nil {
			return fmt.Errorf("value: %w", err)
		}
		req.Value = v
		req.HasValue = true
	}
	for i, a := range raw.Args {
		n, err := libmpv.ParseJSON(a)
		if err != nil {
			return fmt.Errorf("args[%d]: %w", i, err)
		}
		req.Args = append(req.Args, n)
	}

	*r = req
	return nil
}
