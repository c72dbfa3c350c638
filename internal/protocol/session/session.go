package session

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/danmuck/brickctl/internal/observability"
	"github.com/danmuck/brickctl/internal/protocol"
	"github.com/danmuck/brickctl/internal/protocol/codec"
	"github.com/danmuck/brickctl/internal/protocol/frame"
	"github.com/danmuck/brickctl/internal/transport"
	"github.com/rs/zerolog"
)

// State is the position of the current exchange.
type State int

const (
	StateIdle State = iota
	StateSent
	StateAwaitingReply
	StateCompleted
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSent:
		return "sent"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// noter is implemented by channels that keep a last-error diagnostic.
type noter interface {
	Note(err error)
}

// Session drives one brick. It is not safe for concurrent use: the wire
// carries one outstanding request at a time.
type Session struct {
	ch      transport.Channel
	codec   *codec.Codec
	reg     protocol.Registry
	cfg     Config
	log     zerolog.Logger
	state   State
	onState func(State)
}

func New(ch transport.Channel, reg protocol.Registry, cfg Config, logger zerolog.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, protocol.ArgumentError("session", err)
	}
	if err := reg.Validate(); err != nil {
		return nil, protocol.ArgumentError("session", err)
	}
	return &Session{
		ch:    ch,
		codec: codec.New(ch, reg.Kinds),
		reg:   reg,
		cfg:   cfg,
		log:   logger,
	}, nil
}

// State reports the exchange state; it is StateIdle between operations.
func (s *Session) State() State {
	return s.state
}

// OnState registers a hook observing every state transition.
func (s *Session) OnState(fn func(State)) {
	s.onState = fn
}

// Codec exposes the message codec, mainly to seed the counter.
func (s *Session) Codec() *codec.Codec {
	return s.codec
}

func (s *Session) Registry() protocol.Registry {
	return s.reg
}

func (s *Session) setState(st State) {
	s.state = st
	if s.onState != nil {
		s.onState(st)
	}
}

// exchange sends one request and, when expectReply is set, polls for its
// reply up to cfg.Retries times without resending.
func (s *Session) exchange(ctx context.Context, name string, op protocol.Op, payload []byte, expectReply bool) (frame.Frame, error) {
	opcode, err := s.reg.Opcode(op)
	if err != nil {
		return frame.Frame{}, withOp(name, err)
	}
	if s.state != StateIdle {
		return frame.Frame{}, protocol.ProtocolError(name, fmt.Errorf("%w: state %s", protocol.ErrBusy, s.state))
	}
	if err := ctx.Err(); err != nil {
		return frame.Frame{}, s.record(name, protocol.TimeoutError(name, err))
	}
	req, err := s.codec.EncodeRequest(opcode, expectReply, payload)
	if err != nil {
		return frame.Frame{}, s.record(name, err)
	}

	start := time.Now()
	if err := s.codec.Send(req); err != nil {
		s.setState(StateFailed)
		s.setState(StateIdle)
		err = s.record(name, err)
		observability.LogExchange(s.log, name, req.Counter, observability.OutcomeFailed, 0, time.Since(start), err)
		return frame.Frame{}, err
	}
	s.setState(StateSent)
	defer func() {
		s.codec.Release()
		s.setState(StateIdle)
	}()

	if !expectReply {
		observability.LogExchange(s.log, name, req.Counter, observability.OutcomeSent, 0, time.Since(start), nil)
		return frame.Frame{}, nil
	}

	s.setState(StateAwaitingReply)
	polls := 0
	for polls < s.cfg.Retries {
		if err := ctx.Err(); err != nil {
			s.setState(StateTimedOut)
			err = s.record(name, protocol.TimeoutError(name, err))
			observability.LogExchange(s.log, name, req.Counter, observability.OutcomeTimedOut, polls, time.Since(start), err)
			return frame.Frame{}, err
		}
		polls++
		reply, ok, err := s.codec.Receive(s.cfg.ReadTimeout)
		if err == nil && ok {
			err = s.codec.Correlate(reply)
		}
		if err == nil && ok && reply.Failed(s.reg.Kinds) {
			err = protocol.DeviceError(name, reply.Status, s.reg.StatusName(reply.Status))
		}
		if err != nil {
			s.setState(StateFailed)
			err = s.record(name, err)
			observability.LogExchange(s.log, name, req.Counter, observability.OutcomeFailed, polls, time.Since(start), err)
			return frame.Frame{}, err
		}
		if !ok {
			continue
		}
		s.setState(StateCompleted)
		observability.LogExchange(s.log, name, req.Counter, observability.OutcomeCompleted, polls, time.Since(start), nil)
		return reply, nil
	}

	s.setState(StateTimedOut)
	err = s.record(name, protocol.TimeoutError(name, fmt.Errorf("%w: %d polls of %v", protocol.ErrTimedOut, polls, s.cfg.ReadTimeout)))
	observability.LogExchange(s.log, name, req.Counter, observability.OutcomeTimedOut, polls, time.Since(start), err)
	return frame.Frame{}, err
}

func (s *Session) record(name string, err error) error {
	err = withOp(name, err)
	if n, ok := s.ch.(noter); ok {
		n.Note(err)
	}
	return err
}

// withOp stamps the operation name on a taxonomy error that lacks one.
func withOp(name string, err error) error {
	if pe, ok := err.(*protocol.Error); ok && pe.Op == "" {
		pe.Op = name
	}
	return err
}

func malformed(name string, format string, args ...any) error {
	return protocol.ProtocolError(name, fmt.Errorf("%w: "+format, append([]any{protocol.ErrMalformed}, args...)...))
}

// pathPayload encodes a device path as payload bytes plus NUL terminator.
func pathPayload(name, p string) ([]byte, error) {
	if p == "" {
		return nil, protocol.ArgumentError(name, fmt.Errorf("empty path"))
	}
	for i := 0; i < len(p); i++ {
		if p[i] == 0 {
			return nil, protocol.ArgumentError(name, fmt.Errorf("path %q contains NUL", p))
		}
	}
	out := make([]byte, 0, len(p)+1)
	out = append(out, p...)
	return append(out, 0), nil
}

func putU16(b []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(b, v)
}

func putU32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}
