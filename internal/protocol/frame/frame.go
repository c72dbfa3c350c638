package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	LengthFieldLen   = 2
	RequestHeaderLen = 6
	ReplyHeaderLen   = 7
	// MaxBodyLen bounds everything after the length field.
	MaxBodyLen = 0xFFFF
)

var (
	ErrShortHeader     = errors.New("frame: short header")
	ErrLengthMismatch  = errors.New("frame: declared length does not match available bytes")
	ErrNotReply        = errors.New("frame: kind is not a reply marker")
	ErrNotRequest      = errors.New("frame: kind is not a request marker")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// Kinds holds the firmware's message-type bytes.
type Kinds struct {
	ReplyExpected uint8
	NoReply       uint8
	Reply         uint8
	ReplyError    uint8
}

func DefaultKinds() Kinds {
	return Kinds{
		ReplyExpected: 0x01,
		NoReply:       0x81,
		Reply:         0x03,
		ReplyError:    0x05,
	}
}

func (k Kinds) Validate() error {
	vals := []uint8{k.ReplyExpected, k.NoReply, k.Reply, k.ReplyError}
	for i := range vals {
		for j := i + 1; j < len(vals); j++ {
			if vals[i] == vals[j] {
				return fmt.Errorf("frame: duplicate kind byte 0x%02X", vals[i])
			}
		}
	}
	return nil
}

func (k Kinds) RequestKind(expectReply bool) uint8 {
	if expectReply {
		return k.ReplyExpected
	}
	return k.NoReply
}

func (k Kinds) IsRequest(b uint8) bool {
	return b == k.ReplyExpected || b == k.NoReply
}

func (k Kinds) IsReply(b uint8) bool {
	return b == k.Reply || b == k.ReplyError
}

// Frame is one complete wire message. Status is meaningful for replies only.
type Frame struct {
	Length  uint16
	Counter uint16
	Kind    uint8
	Opcode  uint8
	Status  uint8
	Payload []byte
}

// ExpectsReply reports whether a request frame asks for an answer.
func (f Frame) ExpectsReply(k Kinds) bool {
	return f.Kind == k.ReplyExpected
}

// Failed reports whether a reply carries the error marker or a nonzero status.
func (f Frame) Failed(k Kinds) bool {
	return f.Kind == k.ReplyError || f.Status != 0
}

// RequestLength is the length field value for a request carrying n payload bytes.
func RequestLength(n int) int {
	return RequestHeaderLen - LengthFieldLen + n
}

// ReplyLength is the length field value for a reply carrying n payload bytes.
func ReplyLength(n int) int {
	return ReplyHeaderLen - LengthFieldLen + n
}

// DeclaredSize returns the full on-wire size (length field included) announced
// by the first two bytes of b.
func DeclaredSize(b []byte) (int, bool) {
	if len(b) < LengthFieldLen {
		return 0, false
	}
	return LengthFieldLen + int(binary.LittleEndian.Uint16(b[0:2])), true
}

func EncodeRequest(f Frame) ([]byte, error) {
	body := RequestLength(len(f.Payload))
	if body > MaxBodyLen {
		return nil, ErrPayloadTooLarge
	}
	buf := make([]byte, LengthFieldLen+body)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(body))
	binary.LittleEndian.PutUint16(buf[2:4], f.Counter)
	buf[4] = f.Kind
	buf[5] = f.Opcode
	copy(buf[RequestHeaderLen:], f.Payload)
	return buf, nil
}

func DecodeRequest(b []byte, k Kinds) (Frame, error) {
	if len(b) < RequestHeaderLen {
		return Frame{}, ErrShortHeader
	}
	length := binary.LittleEndian.Uint16(b[0:2])
	if int(length) != len(b)-LengthFieldLen {
		return Frame{}, ErrLengthMismatch
	}
	if !k.IsRequest(b[4]) {
		return Frame{}, ErrNotRequest
	}
	payload := make([]byte, len(b)-RequestHeaderLen)
	copy(payload, b[RequestHeaderLen:])
	return Frame{
		Length:  length,
		Counter: binary.LittleEndian.Uint16(b[2:4]),
		Kind:    b[4],
		Opcode:  b[5],
		Payload: payload,
	}, nil
}

func EncodeReply(f Frame) ([]byte, error) {
	body := ReplyLength(len(f.Payload))
	if body > MaxBodyLen {
		return nil, ErrPayloadTooLarge
	}
	buf := make([]byte, LengthFieldLen+body)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(body))
	binary.LittleEndian.PutUint16(buf[2:4], f.Counter)
	buf[4] = f.Kind
	buf[5] = f.Opcode
	buf[6] = f.Status
	copy(buf[ReplyHeaderLen:], f.Payload)
	return buf, nil
}

func DecodeReply(b []byte, k Kinds) (Frame, error) {
	if len(b) < ReplyHeaderLen {
		return Frame{}, ErrShortHeader
	}
	length := binary.LittleEndian.Uint16(b[0:2])
	if int(length) != len(b)-LengthFieldLen {
		return Frame{}, ErrLengthMismatch
	}
	if !k.IsReply(b[4]) {
		return Frame{}, ErrNotReply
	}
	payload := make([]byte, len(b)-ReplyHeaderLen)
	copy(payload, b[ReplyHeaderLen:])
	return Frame{
		Length:  length,
		Counter: binary.LittleEndian.Uint16(b[2:4]),
		Kind:    b[4],
		Opcode:  b[5],
		Status:  b[6],
		Payload: payload,
	}, nil
}
