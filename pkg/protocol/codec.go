package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
)

// Encoder writes protocol messages to an io.Writer. It is safe for
// concurrent use; each message is written and flushed as one line.
type Encoder struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewEncoder creates a new protocol encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w: bufio.NewWriter(w),
	}
}

// Encode writes a message to the output stream.
func (e *Encoder) Encode(msgType MessageType, data interface{}) error {
	if err := msgType.Validate(); err != nil {
		return fmt.Errorf("invalid message type: %w", err)
	}

	var dataBytes []byte
	var err error
	if data != nil {
		dataBytes, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal data: %w", err)
		}
	}

	msg := Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Data:      dataBytes,
	}

	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.w.Write(msgBytes); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	if err := e.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	return nil
}

// EncodeReady sends a READY message.
func (e *Encoder) EncodeReady(ready *ReadyMessage) error {
	return e.Encode(MessageTypeReady, ready)
}

// EncodeEvent sends an EVENT message.
func (e *Encoder) EncodeEvent(event *EventMessage) error {
	if event.Session == "" {
		return fmt.Errorf("invalid event: session is required")
	}
	if !json.Valid(event.Event) {
		return fmt.Errorf("invalid event: payload is not JSON")
	}
	return e.Encode(MessageTypeEvent, event)
}

// EncodeReply sends a REPLY message.
func (e *Encoder) EncodeReply(reply *ReplyMessage) error {
	return e.Encode(MessageTypeReply, reply)
}

// EncodeError sends an ERROR message.
func (e *Encoder) EncodeError(err *ErrorMessage) error {
	return e.Encode(MessageTypeError, err)
}

// EncodeExit sends an EXIT message.
func (e *Encoder) EncodeExit(exit *ExitMessage) error {
	return e.Encode(MessageTypeExit, exit)
}

// DecodeError reports a request line that could not be decoded. The
// stream itself is still usable.
type DecodeError struct {
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decoder reads request lines from an io.Reader.
type Decoder struct {
	r    *bufio.Scanner
	line int
}

// NewDecoder creates a new protocol decoder.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	// Set a large buffer for potentially large commands
	const maxCapacity = 10 * 1024 * 1024 // 10 MB
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, maxCapacity)
	return &Decoder{
		r: scanner,
	}
}

// DecodeCommand reads the next request. A line holding a JSON array is a
// command, for example ["loadfile","video.mp4"]; a line holding an object
// is a Request with an op. Blank lines are skipped. It returns io.EOF at
// the end of input and a *DecodeError for a malformed line.
func (d *Decoder) DecodeCommand() (*Request, error) {
	var line []byte
	for {
		if !d.r.Scan() {
			if err := d.r.Err(); err != nil {
				return nil, fmt.Errorf("scan error: %w", err)
			}
			return nil, io.EOF
		}
		d.line++
		line = bytes.TrimSpace(d.r.Bytes())
		if len(line) > 0 {
			break
		}
	}

	req, err := parseRequest(line)
	if err != nil {
		return nil, &DecodeError{Line: d.line, Err: err}
	}
	return req, nil
}

func parseRequest(line []byte) (*Request, error) {
	switch line[0] {
	case '[':
		n, err := libmpv.ParseJSON(line)
		if err != nil {
			return nil, fmt.Errorf("failed to parse command: %w", err)
		}
		return &Request{Op: OpCommand, Args: n.Items()}, nil
	case '{':
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			return nil, fmt.Errorf("failed to parse request: %w", err)
		}
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("invalid request: %w", err)
		}
		return &req, nil
	default:
		return nil, fmt.Errorf("expected a JSON array or object")
	}
}
