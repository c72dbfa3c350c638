// Package chunk splits outbound payloads into frame-sized pieces and
// reassembles inbound multi-frame payloads.
//
// A failed transfer is not resumable: callers restart from the beginning.
package chunk

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMax        = errors.New("chunk: max chunk size must be positive")
	ErrOverflow          = errors.New("chunk: data exceeds declared size")
	ErrRemainingMismatch = errors.New("chunk: declared remaining size inconsistent with bytes received")
	ErrStalled           = errors.New("chunk: empty continuation before transfer complete")
	ErrAckMismatch       = errors.New("chunk: acknowledged byte count differs from bytes sent")
)

// Split cuts payload into ceil(len/max) chunks of at most max bytes; the
// last chunk is the exact remainder. The chunks alias payload.
func Split(payload []byte, max int) ([][]byte, error) {
	if max <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMax, max)
	}
	out := make([][]byte, 0, (len(payload)+max-1)/max)
	for start := 0; start < len(payload); start += max {
		end := start + max
		if end > len(payload) {
			end = len(payload)
		}
		out = append(out, payload[start:end:end])
	}
	return out, nil
}

// initialCap bounds the buffer reserved up front; the declared total comes
// from the device and only grows the buffer as data arrives.
const initialCap = 64 << 10

// Assembler concatenates inbound chunks until a declared total is reached.
type Assembler struct {
	total uint32
	buf   []byte
}

// NewAssembler starts a transfer of total bytes; first is the data carried
// by the initiating reply and may be empty.
func NewAssembler(total uint32, first []byte) (*Assembler, error) {
	a := &Assembler{total: total, buf: make([]byte, 0, min(total, initialCap))}
	if err := a.append(first); err != nil {
		return nil, err
	}
	return a, nil
}

// Continue adds one continuation chunk. remaining is the byte count the
// sender declares still outstanding before this chunk.
func (a *Assembler) Continue(remaining uint32, data []byte) error {
	if want := a.Remaining(); remaining != want {
		return fmt.Errorf("%w: declared %d, expected %d", ErrRemainingMismatch, remaining, want)
	}
	if len(data) == 0 && !a.Done() {
		return ErrStalled
	}
	return a.append(data)
}

func (a *Assembler) append(data []byte) error {
	if uint64(len(a.buf))+uint64(len(data)) > uint64(a.total) {
		return fmt.Errorf("%w: %d + %d > %d", ErrOverflow, len(a.buf), len(data), a.total)
	}
	a.buf = append(a.buf, data...)
	return nil
}

func (a *Assembler) Total() uint32     { return a.total }
func (a *Assembler) Received() uint32  { return uint32(len(a.buf)) }
func (a *Assembler) Remaining() uint32 { return a.total - uint32(len(a.buf)) }
func (a *Assembler) Done() bool        { return uint32(len(a.buf)) == a.total }

// Bytes returns the reassembled payload so far.
func (a *Assembler) Bytes() []byte { return a.buf }

// AckTracker checks the running byte count a receiver acknowledges per chunk.
type AckTracker struct {
	sent uint32
}

// Sent records n more bytes handed to the receiver.
func (t *AckTracker) Sent(n int) {
	t.sent += uint32(n)
}

// Ack compares the receiver's running count with the bytes sent so far.
func (t *AckTracker) Ack(count uint32) error {
	if count != t.sent {
		return fmt.Errorf("%w: acknowledged %d, sent %d", ErrAckMismatch, count, t.sent)
	}
	return nil
}

func (t *AckTracker) Total() uint32 { return t.sent }
