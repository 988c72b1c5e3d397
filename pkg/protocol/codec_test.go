package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
)

func TestEncoder(t *testing.T) {
	result := libmpv.Map(libmpv.MapEntry{Key: "playlist_entry_id", Value: libmpv.Int64(1)})

	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "encode ready message",
			msgType: MessageTypeReady,
			data: &ReadyMessage{
				Version:  "1.0.0",
				Session:  "main",
				Channel:  "mpv-event-main",
				Platform: "linux",
				Arch:     "amd64",
				PID:      1234,
			},
		},
		{
			name:    "encode reply message",
			msgType: MessageTypeReply,
			data:    &ReplyMessage{ID: "1", Op: OpCommand, Session: "main", Result: &result},
		},
		{
			name:    "encode error message",
			msgType: MessageTypeError,
			data:    &ErrorMessage{ID: "1", Kind: "call", Status: -8, Message: "property not found"},
		},
		{
			name:    "encode exit message",
			msgType: MessageTypeExit,
			data:    &ExitMessage{Reason: "eof", RequestsTotal: 5},
		},
		{
			name:    "invalid message type",
			msgType: MessageType("CMD"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			enc := NewEncoder(&buf)

			err := enc.Encode(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("Encode() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}

			output := buf.String()
			if !strings.HasSuffix(output, "\n") {
				t.Error("Encoded message should end with newline")
			}
			if strings.Count(output, "\n") != 1 {
				t.Error("Encoded message should be a single line")
			}

			var msg Message
			if err := json.Unmarshal([]byte(output), &msg); err != nil {
				t.Fatalf("Failed to unmarshal encoded message: %v", err)
			}
			if msg.Type != tt.msgType {
				t.Errorf("Message type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp.IsZero() {
				t.Error("Message timestamp should be set")
			}
		})
	}
}

func TestEncodeReplyResult(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	result := libmpv.Map(
		libmpv.MapEntry{Key: "b", Value: libmpv.Flag(true)},
		libmpv.MapEntry{Key: "a", Value: libmpv.None()},
	)
	if err := enc.EncodeReply(&ReplyMessage{ID: "7", Op: OpGetProperty, Session: "main", Name: "x", Result: &result}); err != nil {
		t.Fatalf("EncodeReply failed: %v", err)
	}

	want := `"data":{"id":"7","op":"get_property","session":"main","name":"x","result":{"b":true,"a":null}}`
	if !strings.Contains(buf.String(), want) {
		t.Errorf("reply = %s, want it to contain %s", buf.String(), want)
	}
}

func TestEncodeEvent(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	ev := &EventMessage{
		Channel: "mpv-event-main",
		Session: "main",
		Event:   json.RawMessage(`{"event":"property-change","name":"pause","data":true,"id":1}`),
	}
	if err := enc.EncodeEvent(ev); err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	want := `"data":{"channel":"mpv-event-main","session":"main","event":{"event":"property-change","name":"pause","data":true,"id":1}}`
	if !strings.Contains(buf.String(), want) {
		t.Errorf("event = %s, want it to contain %s", buf.String(), want)
	}

	if err := enc.EncodeEvent(&EventMessage{Event: ev.Event}); err == nil {
		t.Error("Expected error for missing session")
	}
	if err := enc.EncodeEvent(&EventMessage{Session: "main", Event: json.RawMessage(`{`)}); err == nil {
		t.Error("Expected error for invalid payload")
	}
}

func TestEncoderConcurrent(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = enc.EncodeReply(&ReplyMessage{Op: OpCommand, Session: "main"})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 20 {
		t.Fatalf("Expected 20 lines, got %d", len(lines))
	}
	for _, line := range lines {
		if !json.Valid([]byte(line)) {
			t.Errorf("Interleaved line: %s", line)
		}
	}
}

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		check   func(t *testing.T, req *Request)
	}{
		{
			name:  "array command",
			input: `["loadfile","video.mp4"]`,
			check: func(t *testing.T, req *Request) {
				if req.Op != OpCommand || len(req.Args) != 2 {
					t.Fatalf("unexpected request %+v", req)
				}
				if s, _ := req.Args[1].Str(); s != "video.mp4" {
					t.Errorf("args[1] = %q", s)
				}
			},
		},
		{
			name:  "array command with mixed values",
			input: `["seek", 10, "relative", {"b": 1, "a": 2.5}]`,
			check: func(t *testing.T, req *Request) {
				if n, ok := req.Args[1].Int(); !ok || n != 10 {
					t.Errorf("args[1] = %v", req.Args[1])
				}
				entries := req.Args[3].Entries()
				if len(entries) != 2 || entries[0].Key != "b" || entries[1].Key != "a" {
					t.Errorf("map order not preserved: %+v", entries)
				}
			},
		},
		{
			name:  "object command",
			input: `{"id":"c1","args":["cycle","pause"]}`,
			check: func(t *testing.T, req *Request) {
				if req.ID != "c1" || req.Op != OpCommand || len(req.Args) != 2 {
					t.Errorf("unexpected request %+v", req)
				}
			},
		},
		{
			name:  "set property",
			input: `{"op":"set_property","name":"volume","value":70}`,
			check: func(t *testing.T, req *Request) {
				if !req.HasValue {
					t.Fatal("value should be present")
				}
				if n, ok := req.Value.Int(); !ok || n != 70 {
					t.Errorf("value = %v", req.Value)
				}
			},
		},
		{
			name:  "set property with null value",
			input: `{"op":"set_property","name":"volume","value":null}`,
			check: func(t *testing.T, req *Request) {
				if !req.HasValue || !req.Value.IsNone() {
					t.Errorf("expected an explicit None value, got %+v", req)
				}
			},
		},
		{
			name:  "get property defaults to node",
			input: `{"op":"get_property","name":"time-pos"}`,
			check: func(t *testing.T, req *Request) {
				if req.Format != "node" {
					t.Errorf("format = %q", req.Format)
				}
			},
		},
		{
			name:  "margins",
			input: `{"op":"set_video_margin_ratio","session":"side","margins":{"left":0.25,"bottom":0.1}}`,
			check: func(t *testing.T, req *Request) {
				if req.Session != "side" || req.Margins == nil || req.Margins.Left == nil || *req.Margins.Left != 0.25 || req.Margins.Top != nil {
					t.Errorf("unexpected margins request %+v", req)
				}
			},
		},
		{name: "invalid json", input: `{invalid json`, wantErr: true},
		{name: "scalar line", input: `"loadfile"`, wantErr: true},
		{name: "unknown op", input: `{"op":"quit"}`, wantErr: true},
		{name: "set property without value", input: `{"op":"set_property","name":"volume"}`, wantErr: true},
		{name: "get property without name", input: `{"op":"get_property"}`, wantErr: true},
		{name: "margins missing", input: `{"op":"set_video_margin_ratio"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := NewDecoder(strings.NewReader(tt.input + "\n"))
			req, err := dec.DecodeCommand()

			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var decErr *DecodeError
				if !errors.As(err, &decErr) || decErr.Line != 1 {
					t.Errorf("expected a DecodeError on line 1, got %v", err)
				}
				return
			}
			tt.check(t, req)
		})
	}
}

func TestDecodeCommandStream(t *testing.T) {
	input := "[\"play\"]\n\n   \n{bad\n[\"stop\"]\n"
	dec := NewDecoder(strings.NewReader(input))

	req, err := dec.DecodeCommand()
	if err != nil {
		t.Fatalf("first line: %v", err)
	}
	if s, _ := req.Args[0].Str(); s != "play" {
		t.Errorf("first command = %q", s)
	}

	_, err = dec.DecodeCommand()
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if decErr.Line != 4 {
		t.Errorf("expected error on line 4, got %d", decErr.Line)
	}

	req, err = dec.DecodeCommand()
	if err != nil {
		t.Fatalf("decoder should recover after a bad line: %v", err)
	}
	if s, _ := req.Args[0].Str(); s != "stop" {
		t.Errorf("last command = %q", s)
	}

	if _, err := dec.DecodeCommand(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}
