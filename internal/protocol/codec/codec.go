// Package codec turns operations into correlated request/reply frames on a
// transport channel. It owns the 16-bit message counter and the single
// outstanding request slot.
package codec

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/brickctl/internal/protocol"
	"github.com/danmuck/brickctl/internal/protocol/frame"
	"github.com/danmuck/brickctl/internal/transport"
)

type Codec struct {
	ch          transport.Channel
	kinds       frame.Kinds
	next        uint16
	outstanding *frame.Frame
	rbuf        []byte
}

func New(ch transport.Channel, kinds frame.Kinds) *Codec {
	size := ch.MaxFrame()
	if size < frame.MaxBodyLen+frame.LengthFieldLen {
		size = frame.MaxBodyLen + frame.LengthFieldLen
	}
	return &Codec{ch: ch, kinds: kinds, rbuf: make([]byte, size)}
}

// Reset sets the counter value the next request will carry.
func (c *Codec) Reset(next uint16) {
	c.next = next
}

// Kinds returns the kind bytes the codec encodes and accepts.
func (c *Codec) Kinds() frame.Kinds {
	return c.kinds
}

// EncodeRequest allocates the next counter value; the counter wraps at the
// 16-bit boundary. A payload too large for one frame consumes no counter.
func (c *Codec) EncodeRequest(opcode uint8, expectReply bool, payload []byte) (frame.Frame, error) {
	length := frame.RequestLength(len(payload))
	if length > frame.MaxBodyLen {
		return frame.Frame{}, protocol.ArgumentError("", fmt.Errorf("%w: %d bytes", frame.ErrPayloadTooLarge, len(payload)))
	}
	f := frame.Frame{
		Length:  uint16(length),
		Counter: c.next,
		Kind:    c.kinds.RequestKind(expectReply),
		Opcode:  opcode,
		Payload: payload,
	}
	c.next++
	return f, nil
}

// Send writes req. A request expecting a reply occupies the outstanding
// slot until Release; a second one before that is rejected.
func (c *Codec) Send(req frame.Frame) error {
	if c.outstanding != nil {
		return protocol.ProtocolError("", fmt.Errorf("%w: counter %d", protocol.ErrBusy, c.outstanding.Counter))
	}
	b, err := frame.EncodeRequest(req)
	if err != nil {
		return protocol.ArgumentError("", err)
	}
	if len(b) > c.ch.MaxFrame() {
		return protocol.ArgumentError("", fmt.Errorf("%w: %d > %d", transport.ErrFrameTooLarge, len(b), c.ch.MaxFrame()))
	}
	if _, err := c.ch.Write(b); err != nil {
		return asTransport(err)
	}
	if req.ExpectsReply(c.kinds) {
		held := req
		c.outstanding = &held
	}
	return nil
}

// Receive performs one bounded read. ok is false when the wait elapsed
// without data.
func (c *Codec) Receive(timeout time.Duration) (reply frame.Frame, ok bool, err error) {
	n, err := c.ch.ReadTimeout(c.rbuf, timeout)
	if err != nil {
		return frame.Frame{}, false, asTransport(err)
	}
	if n == 0 {
		return frame.Frame{}, false, nil
	}
	reply, err = frame.DecodeReply(c.rbuf[:n], c.kinds)
	if err != nil {
		return frame.Frame{}, false, protocol.ProtocolError("", errors.Join(protocol.ErrMalformed, err))
	}
	return reply, true, nil
}

// Correlate matches reply against the outstanding request.
func (c *Codec) Correlate(reply frame.Frame) error {
	if c.outstanding == nil {
		return protocol.ProtocolError("", fmt.Errorf("%w: no outstanding request for counter %d", protocol.ErrDesync, reply.Counter))
	}
	if reply.Counter != c.outstanding.Counter {
		return protocol.ProtocolError("", fmt.Errorf("%w: got %d want %d", protocol.ErrDesync, reply.Counter, c.outstanding.Counter))
	}
	if reply.Opcode != c.outstanding.Opcode {
		return protocol.ProtocolError("", fmt.Errorf("%w: got 0x%02X want 0x%02X", protocol.ErrOpcodeMismatch, reply.Opcode, c.outstanding.Opcode))
	}
	return nil
}

// Outstanding returns the request awaiting a reply, if any.
func (c *Codec) Outstanding() (frame.Frame, bool) {
	if c.outstanding == nil {
		return frame.Frame{}, false
	}
	return *c.outstanding, true
}

// Release frees the outstanding slot.
func (c *Codec) Release() {
	c.outstanding = nil
}

func asTransport(err error) error {
	if protocol.KindOf(err) != 0 {
		return err
	}
	return protocol.TransportError("", err)
}
