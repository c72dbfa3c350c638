package codec

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/brickctl/internal/protocol"
	"github.com/danmuck/brickctl/internal/protocol/frame"
	"github.com/danmuck/brickctl/internal/testutil/testlog"
)

// echoChannel answers every request that expects a reply with a reply
// echoing its counter, opcode and payload. skew shifts the echoed counter.
type echoChannel struct {
	kinds   frame.Kinds
	max     int
	skew    uint16
	replies [][]byte
	raw     [][]byte
}

func (e *echoChannel) Write(b []byte) (int, error) {
	req, err := frame.DecodeRequest(b, e.kinds)
	if err != nil {
		return 0, err
	}
	if req.ExpectsReply(e.kinds) {
		rep, _ := frame.EncodeReply(frame.Frame{
			Counter: req.Counter + e.skew,
			Kind:    e.kinds.Reply,
			Opcode:  req.Opcode,
			Payload: req.Payload,
		})
		e.replies = append(e.replies, rep)
	}
	return len(b), nil
}

func (e *echoChannel) ReadTimeout(buf []byte, _ time.Duration) (int, error) {
	if len(e.raw) > 0 {
		next := e.raw[0]
		e.raw = e.raw[1:]
		return copy(buf, next), nil
	}
	if len(e.replies) == 0 {
		return 0, nil
	}
	next := e.replies[0]
	e.replies = e.replies[1:]
	return copy(buf, next), nil
}

func (e *echoChannel) LastError() string { return "" }
func (e *echoChannel) MaxFrame() int     { return e.max }
func (e *echoChannel) Name() string      { return "echo" }
func (e *echoChannel) Close() error      { return nil }

func newEcho() *echoChannel {
	return &echoChannel{kinds: frame.DefaultKinds(), max: 1024}
}

func TestCounterIsMonotonicAndWraps(t *testing.T) {
	testlog.Start(t)
	c := New(newEcho(), frame.DefaultKinds())
	c.Reset(0xFFFE)
	var got []uint16
	for i := 0; i < 4; i++ {
		f, err := c.EncodeRequest(0x9D, true, nil)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		got = append(got, f.Counter)
	}
	want := []uint16{0xFFFE, 0xFFFF, 0x0000, 0x0001}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("counter[%d] got=%#x want=%#x", i, got[i], want[i])
		}
	}
}

func TestRoundTripPreservesOpcodeAndPayload(t *testing.T) {
	testlog.Start(t)
	ch := newEcho()
	c := New(ch, ch.kinds)
	payloads := [][]byte{nil, {0}, []byte("/home/root/lms2012/prjs/\x00"), bytes.Repeat([]byte{0xAB}, 900)}
	for i, payload := range payloads {
		opcode := uint8(0x90 + i)
		req, err := c.EncodeRequest(opcode, true, payload)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if int(req.Length) != 4+len(payload) {
			t.Fatalf("unexpected length field: %d", req.Length)
		}
		if err := c.Send(req); err != nil {
			t.Fatalf("send: %v", err)
		}
		reply, ok, err := c.Receive(time.Millisecond)
		if err != nil || !ok {
			t.Fatalf("receive: ok=%v err=%v", ok, err)
		}
		if err := c.Correlate(reply); err != nil {
			t.Fatalf("correlate: %v", err)
		}
		c.Release()
		if reply.Opcode != opcode || !bytes.Equal(reply.Payload, payload) {
			t.Fatalf("round trip mismatch: opcode=%#x payload=%d bytes", reply.Opcode, len(reply.Payload))
		}
	}
}

func TestCorrelateRejectsCounterDesync(t *testing.T) {
	testlog.Start(t)
	ch := newEcho()
	ch.skew = 1
	c := New(ch, ch.kinds)
	req, _ := c.EncodeRequest(0x9C, true, []byte("/x\x00"))
	if err := c.Send(req); err != nil {
		t.Fatalf("send: %v", err)
	}
	reply, ok, err := c.Receive(time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("receive: ok=%v err=%v", ok, err)
	}
	err = c.Correlate(reply)
	if !errors.Is(err, protocol.ErrDesync) || !protocol.IsKind(err, protocol.KindProtocol) {
		t.Fatalf("expected protocol desync, got %v", err)
	}
}

func TestCorrelateWithoutOutstanding(t *testing.T) {
	testlog.Start(t)
	c := New(newEcho(), frame.DefaultKinds())
	if err := c.Correlate(frame.Frame{Counter: 3}); !errors.Is(err, protocol.ErrDesync) {
		t.Fatalf("expected desync, got %v", err)
	}
}

func TestSendRejectsSecondOutstandingRequest(t *testing.T) {
	testlog.Start(t)
	c := New(newEcho(), frame.DefaultKinds())
	first, _ := c.EncodeRequest(0x9D, true, nil)
	if err := c.Send(first); err != nil {
		t.Fatalf("send: %v", err)
	}
	second, _ := c.EncodeRequest(0x9D, true, nil)
	if err := c.Send(second); !errors.Is(err, protocol.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if got, ok := c.Outstanding(); !ok || got.Counter != first.Counter {
		t.Fatalf("unexpected outstanding: %+v %v", got, ok)
	}
	c.Release()
	if err := c.Send(second); err != nil {
		t.Fatalf("send after release: %v", err)
	}
}

func TestNoReplyRequestLeavesSlotFree(t *testing.T) {
	testlog.Start(t)
	c := New(newEcho(), frame.DefaultKinds())
	req, _ := c.EncodeRequest(0x9C, false, []byte("/x\x00"))
	if req.Kind != frame.DefaultKinds().NoReply {
		t.Fatalf("unexpected kind %#x", req.Kind)
	}
	if err := c.Send(req); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, ok := c.Outstanding(); ok {
		t.Fatalf("no-reply request must not occupy the outstanding slot")
	}
}

func TestReceiveMalformedIsProtocolError(t *testing.T) {
	testlog.Start(t)
	ch := newEcho()
	ch.raw = [][]byte{{0x09, 0x00, 0x01, 0x00, 0x03, 0x9D, 0x00}}
	c := New(ch, ch.kinds)
	_, _, err := c.Receive(time.Millisecond)
	if !errors.Is(err, protocol.ErrMalformed) || !errors.Is(err, frame.ErrLengthMismatch) {
		t.Fatalf("expected malformed length mismatch, got %v", err)
	}
	if !protocol.IsKind(err, protocol.KindProtocol) {
		t.Fatalf("expected protocol kind, got %v", protocol.KindOf(err))
	}
}

func TestReceiveTimeout(t *testing.T) {
	testlog.Start(t)
	c := New(newEcho(), frame.DefaultKinds())
	_, ok, err := c.Receive(time.Millisecond)
	if err != nil || ok {
		t.Fatalf("expected silent timeout, got ok=%v err=%v", ok, err)
	}
}

func TestSendRejectsFrameLargerThanChannel(t *testing.T) {
	testlog.Start(t)
	ch := newEcho()
	ch.max = 16
	c := New(ch, ch.kinds)
	req, _ := c.EncodeRequest(0x93, true, make([]byte, 32))
	if err := c.Send(req); !protocol.IsKind(err, protocol.KindArgument) {
		t.Fatalf("expected argument error, got %v", err)
	}
	if _, ok := c.Outstanding(); ok {
		t.Fatalf("failed send must not occupy the outstanding slot")
	}
}
