package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
	"github.com/openfroyo/mpvbridge/pkg/player"
	"github.com/openfroyo/mpvbridge/pkg/telemetry"
)

// Exit reasons reported in the EXIT message.
const (
	ExitReasonInputClosed = "stdin_closed"
	ExitReasonCanceled    = "canceled"
	ExitReasonError       = "error"
)

// Caller performs player calls. *player.Player implements it.
type Caller interface {
	Command(ctx context.Context, session, name string, args ...libmpv.Node) (libmpv.Node, error)
	SetProperty(ctx context.Context, session, name string, value libmpv.Node) error
	GetProperty(ctx context.Context, session, name, format string) (libmpv.Node, error)
	SetVideoMarginRatio(ctx context.Context, session string, ratio player.VideoMarginRatio) error
}

var _ Caller = (*player.Player)(nil)

// Server answers request lines read from r with replies written to w.
// Requests are handled one at a time, in order.
type Server struct {
	enc      *Encoder
	dec      *Decoder
	caller   Caller
	session  string
	logger   zerolog.Logger
	requests atomic.Int64
}

// NewServer creates a server. Requests that name no session go to
// session.
func NewServer(r io.Reader, w io.Writer, caller Caller, session string, logger zerolog.Logger) *Server {
	return &Server{
		enc:     NewEncoder(w),
		dec:     NewDecoder(r),
		caller:  caller,
		session: session,
		logger:  logger.With().Str("component", "protocol").Logger(),
	}
}

// Ready sends the READY message.
func (s *Server) Ready(ready *ReadyMessage) error {
	if ready.Session == "" {
		ready.Session = s.session
	}
	if ready.Channel == "" {
		ready.Channel = player.EventChannel(ready.Session)
	}
	return s.enc.EncodeReady(ready)
}

// Requests returns the number of request lines handled so far, malformed
// ones included.
func (s *Server) Requests() int {
	return int(s.requests.Load())
}

type decoded struct {
	req *Request
	err error
}

// Serve handles requests until the input ends or ctx is done and returns
// the exit reason. A malformed line is answered with an ERROR message and
// does not stop the server. The returned error is set only when reading
// or writing the stream failed.
func (s *Server) Serve(ctx context.Context) (string, error) {
	lines := make(chan decoded)
	go func() {
		defer close(lines)
		for {
			req, err := s.dec.DecodeCommand()
			select {
			case lines <- decoded{req: req, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil && !isDecodeError(err) {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ExitReasonCanceled, nil

		case line, ok := <-lines:
			if !ok {
				return ExitReasonCanceled, nil
			}
			switch {
			case errors.Is(line.err, io.EOF):
				return ExitReasonInputClosed, nil
			case isDecodeError(line.err):
				s.requests.Add(1)
				s.logger.Warn().Err(line.err).Msg("Malformed request")
				if err := s.enc.EncodeError(NewErrorMessage(nil, line.err)); err != nil {
					return ExitReasonError, err
				}
			case line.err != nil:
				return ExitReasonError, line.err
			default:
				s.requests.Add(1)
				if err := s.Handle(ctx, line.req); err != nil {
					return ExitReasonError, err
				}
			}
		}
	}
}

// Handle runs one request and writes its REPLY or ERROR. Only a failed
// write is returned.
func (s *Server) Handle(ctx context.Context, req *Request) error {
	if req.Session == "" {
		req.Session = s.session
	}

	result, err := s.dispatch(ctx, req)
	if err != nil {
		s.logger.Debug().Err(err).
			Str("id", req.ID).
			Str("op", string(req.Op)).
			Str("session", req.Session).
			Msg("Request failed")
		return s.enc.EncodeError(NewErrorMessage(req, err))
	}

	return s.enc.EncodeReply(&ReplyMessage{
		ID:      req.ID,
		Op:      req.Op,
		Session: req.Session,
		Name:    req.Name,
		Result:  result,
	})
}

func (s *Server) dispatch(ctx context.Context, req *Request) (*libmpv.Node, error) {
	switch req.Op {
	case OpCommand:
		if len(req.Args) == 0 {
			return nil, libmpv.NewError(libmpv.KindCall, "command name is required").
				WithOp(libmpv.OpCommand).WithSession(req.Session)
		}
		name, ok := req.Args[0].Str()
		if !ok || name == "" {
			return nil, libmpv.NewError(libmpv.KindCall, "command name must be a non-empty string").
				WithOp(libmpv.OpCommand).WithSession(req.Session)
		}
		req.Name = name
		out, err := s.caller.Command(ctx, req.Session, name, req.Args[1:]...)
		if err != nil {
			return nil, err
		}
		return &out, nil

	case OpSetProperty:
		return nil, s.caller.SetProperty(ctx, req.Session, req.Name, req.Value)

	case OpGetProperty:
		out, err := s.caller.GetProperty(ctx, req.Session, req.Name, req.Format)
		if err != nil {
			return nil, err
		}
		return &out, nil

	case OpSetVideoMarginRatio:
		if req.Margins == nil {
			return nil, fmt.Errorf("margins are required")
		}
		return nil, s.caller.SetVideoMarginRatio(ctx, req.Session, *req.Margins)

	default:
		return nil, fmt.Errorf("invalid op: %q", string(req.Op))
	}
}

// Forward returns a bus subscriber that writes every player event as an
// EVENT message.
func (s *Server) Forward() telemetry.EventSubscriber {
	return func(ev telemetry.Event) {
		if ev.Type != telemetry.EventTypePlayer || len(ev.Payload) == 0 {
			return
		}
		msg := &EventMessage{
			Channel: ev.Channel,
			Session: ev.Session,
			Event:   ev.Payload,
		}
		if err := s.enc.EncodeEvent(msg); err != nil {
			s.logger.Error().Err(err).Str("session", ev.Session).Msg("Failed to forward event")
		}
	}
}

// Exit sends the EXIT message.
func (s *Server) Exit(reason string, exitCode int) error {
	return s.enc.EncodeExit(&ExitMessage{
		Reason:        reason,
		ExitCode:      exitCode,
		RequestsTotal: s.Requests(),
	})
}

func isDecodeError(err error) bool {
	var decErr *DecodeError
	return errors.As(err, &decErr)
}
