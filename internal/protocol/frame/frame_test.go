package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/brickctl/internal/testutil/testlog"
)

func TestEncodeRequestLayout(t *testing.T) {
	testlog.Start(t)
	k := DefaultKinds()
	b, err := EncodeRequest(Frame{Counter: 0x0102, Kind: k.ReplyExpected, Opcode: 0x99, Payload: []byte("/a\x00")})
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	want := []byte{0x07, 0x00, 0x02, 0x01, 0x01, 0x99, '/', 'a', 0x00}
	if !bytes.Equal(b, want) {
		t.Fatalf("unexpected bytes: got=% X want=% X", b, want)
	}
}

func TestRequestRoundTrip(t *testing.T) {
	testlog.Start(t)
	k := DefaultKinds()
	in := Frame{Counter: 42, Kind: k.NoReply, Opcode: 0x9C, Payload: []byte("/tmp/x\x00")}
	b, err := EncodeRequest(in)
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	out, err := DecodeRequest(b, k)
	if err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if out.Counter != 42 || out.Opcode != 0x9C || out.Kind != k.NoReply {
		t.Fatalf("header mismatch: %+v", out)
	}
	if out.ExpectsReply(k) {
		t.Fatalf("no-reply frame reported as expecting reply")
	}
	if !bytes.Equal(out.Payload, in.Payload) {
		t.Fatalf("payload mismatch: %q", out.Payload)
	}
	if int(out.Length) != RequestLength(len(in.Payload)) {
		t.Fatalf("unexpected length: %d", out.Length)
	}
}

func TestReplyRoundTrip(t *testing.T) {
	testlog.Start(t)
	k := DefaultKinds()
	b, err := EncodeReply(Frame{Counter: 7, Kind: k.Reply, Opcode: 0x99, Status: 0, Payload: []byte{1, 2, 3}})
	if err != nil {
		t.Fatalf("encode reply: %v", err)
	}
	out, err := DecodeReply(b, k)
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if out.Counter != 7 || out.Opcode != 0x99 || out.Failed(k) {
		t.Fatalf("unexpected reply: %+v", out)
	}
	if !bytes.Equal(out.Payload, []byte{1, 2, 3}) {
		t.Fatalf("payload mismatch: % X", out.Payload)
	}
}

func TestDecodeReplyShortHeader(t *testing.T) {
	testlog.Start(t)
	_, err := DecodeReply([]byte{5, 0, 1, 0, 3, 0x99}, DefaultKinds())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestDecodeReplyLengthMismatch(t *testing.T) {
	testlog.Start(t)
	b, _ := EncodeReply(Frame{Counter: 1, Kind: DefaultKinds().Reply, Opcode: 0x99, Payload: []byte("abc")})
	_, err := DecodeReply(b[:len(b)-1], DefaultKinds())
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
	_, err = DecodeReply(append(b, 0), DefaultKinds())
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch on trailing bytes, got %v", err)
	}
}

func TestDecodeReplyRejectsRequestKind(t *testing.T) {
	testlog.Start(t)
	k := DefaultKinds()
	b, _ := EncodeReply(Frame{Counter: 1, Kind: k.ReplyExpected, Opcode: 0x99})
	_, err := DecodeReply(b, k)
	if !errors.Is(err, ErrNotReply) {
		t.Fatalf("expected ErrNotReply, got %v", err)
	}
}

func TestReplyErrorKindFails(t *testing.T) {
	testlog.Start(t)
	k := DefaultKinds()
	b, _ := EncodeReply(Frame{Counter: 1, Kind: k.ReplyError, Opcode: 0x9C, Status: 0x06})
	out, err := DecodeReply(b, k)
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if !out.Failed(k) || out.Status != 0x06 {
		t.Fatalf("expected failed reply with status 6: %+v", out)
	}
}

func TestEncodeRequestPayloadTooLarge(t *testing.T) {
	testlog.Start(t)
	_, err := EncodeRequest(Frame{Payload: make([]byte, MaxBodyLen)})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestDeclaredSize(t *testing.T) {
	testlog.Start(t)
	if _, ok := DeclaredSize([]byte{1}); ok {
		t.Fatalf("expected short input to report not ok")
	}
	n, ok := DeclaredSize([]byte{0x05, 0x00, 0xFF})
	if !ok || n != 7 {
		t.Fatalf("unexpected declared size: %d %v", n, ok)
	}
}

func TestKindsValidateRejectsDuplicates(t *testing.T) {
	testlog.Start(t)
	k := DefaultKinds()
	k.Reply = k.ReplyExpected
	if err := k.Validate(); err == nil {
		t.Fatalf("expected duplicate kind error")
	}
}
