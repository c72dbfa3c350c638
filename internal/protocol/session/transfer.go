package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/danmuck/brickctl/internal/observability"
	"github.com/danmuck/brickctl/internal/protocol"
	"github.com/danmuck/brickctl/internal/protocol/chunk"
	"github.com/danmuck/brickctl/internal/protocol/frame"
)

const (
	// handle byte in front of every upload chunk
	uploadChunkOverhead = 1
	// u32 size/remaining + handle byte in front of every inbound chunk
	inboundChunkOverhead = 5
	uploadAckLen         = 5
)

// handleScope guarantees a device file handle is released on every exit
// path of the operation that opened it.
type handleScope struct {
	s    *Session
	op   string
	id   uint8
	done bool
}

func (s *Session) openHandle(op string, id uint8) *handleScope {
	s.log.Debug().Str("op", op).Uint8("handle", id).Msg("handle opened")
	return &handleScope{s: s, op: op, id: id}
}

// complete marks the handle as closed by the device at transfer end.
func (h *handleScope) complete() {
	h.done = true
}

// release closes the handle unless the transfer completed. A cancelled
// context leaves it open: no further request may be issued.
func (h *handleScope) release(ctx context.Context, errp *error) {
	if h.done {
		return
	}
	h.done = true
	if ctx.Err() != nil {
		h.s.log.Warn().Str("op", h.op).Uint8("handle", h.id).Msg("handle left open after cancellation")
		return
	}
	if err := h.s.CloseHandle(ctx, h.id); err != nil {
		*errp = errors.Join(*errp, err)
	}
}

// CloseHandle releases a device file handle.
func (s *Session) CloseHandle(ctx context.Context, id uint8) error {
	_, err := s.exchange(ctx, "close_handle", protocol.OpCloseHandle, []byte{id}, true)
	return err
}

// uploadChunkCap is the largest data slice one upload frame carries.
func (s *Session) uploadChunkCap() int {
	return s.capFor(s.ch.MaxFrame() - frame.RequestHeaderLen - uploadChunkOverhead)
}

// inboundChunkCap is the byte count requested per download/list reply.
func (s *Session) inboundChunkCap() int {
	n := s.capFor(s.ch.MaxFrame() - frame.ReplyHeaderLen - inboundChunkOverhead)
	if n > math.MaxUint16 {
		n = math.MaxUint16
	}
	return n
}

func (s *Session) capFor(n int) int {
	if s.cfg.MaxChunk > 0 && s.cfg.MaxChunk < n {
		n = s.cfg.MaxChunk
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Upload writes data to remote on the device. Every chunk must be
// acknowledged with the running byte count; a mismatch aborts the transfer.
func (s *Session) Upload(ctx context.Context, data []byte, remote string) (err error) {
	const name = "upload"
	p, err := pathPayload(name, remote)
	if err != nil {
		return err
	}
	if uint64(len(data)) > math.MaxUint32 {
		return protocol.ArgumentError(name, fmt.Errorf("payload of %d bytes exceeds 4 GiB", len(data)))
	}
	begin := putU32(make([]byte, 0, 4+len(p)), uint32(len(data)))
	begin = append(begin, p...)

	reply, err := s.exchange(ctx, name, protocol.OpBeginUpload, begin, true)
	if err != nil {
		return err
	}
	if len(reply.Payload) < 1 {
		return s.record(name, malformed(name, "begin reply missing handle"))
	}
	h := s.openHandle(name, reply.Payload[0])
	defer h.release(ctx, &err)

	chunks, err := chunk.Split(data, s.uploadChunkCap())
	if err != nil {
		return protocol.ArgumentError(name, err)
	}
	var acks chunk.AckTracker
	for _, c := range chunks {
		payload := make([]byte, 0, 1+len(c))
		payload = append(payload, h.id)
		payload = append(payload, c...)
		rep, err := s.exchange(ctx, name, protocol.OpContinueUpload, payload, true)
		if err != nil {
			return err
		}
		if len(rep.Payload) < uploadAckLen {
			return s.record(name, malformed(name, "chunk acknowledgement of %d bytes", len(rep.Payload)))
		}
		if rep.Payload[0] != h.id {
			return s.record(name, malformed(name, "acknowledged handle %d, transfer uses %d", rep.Payload[0], h.id))
		}
		acks.Sent(len(c))
		if err := acks.Ack(binary.LittleEndian.Uint32(rep.Payload[1:5])); err != nil {
			return s.record(name, protocol.ProtocolError(name, errors.Join(protocol.ErrTransferDesync, err)))
		}
		observability.RecordChunk("up", len(c))
	}
	// the device closes the handle once the declared size has arrived
	h.complete()
	s.log.Info().Str("path", remote).Int("bytes", len(data)).Int("chunks", len(chunks)).Msg("upload complete")
	return nil
}

// Download reads the remote file.
func (s *Session) Download(ctx context.Context, remote string) ([]byte, error) {
	return s.fetch(ctx, "download", protocol.OpBeginDownload, protocol.OpContinueDownload, remote)
}

// fetch runs a begin/continue inbound transfer: the begin reply declares the
// total size, every continuation declares the bytes still outstanding.
func (s *Session) fetch(ctx context.Context, name string, beginOp, contOp protocol.Op, remote string) (out []byte, err error) {
	p, err := pathPayload(name, remote)
	if err != nil {
		return nil, err
	}
	max := uint16(s.inboundChunkCap())
	begin := putU16(make([]byte, 0, 2+len(p)), max)
	begin = append(begin, p...)

	reply, err := s.exchange(ctx, name, beginOp, begin, true)
	if err != nil {
		return nil, err
	}
	if len(reply.Payload) < inboundChunkOverhead {
		return nil, s.record(name, malformed(name, "begin reply of %d bytes", len(reply.Payload)))
	}
	total := binary.LittleEndian.Uint32(reply.Payload[0:4])
	h := s.openHandle(name, reply.Payload[4])
	defer h.release(ctx, &err)
	if s.cfg.MaxTransfer > 0 && int64(total) > s.cfg.MaxTransfer {
		return nil, s.record(name, malformed(name, "declared size %d exceeds limit %d", total, s.cfg.MaxTransfer))
	}

	asm, err := chunk.NewAssembler(total, reply.Payload[inboundChunkOverhead:])
	if err != nil {
		return nil, s.record(name, protocol.ProtocolError(name, errors.Join(protocol.ErrMalformed, err)))
	}
	observability.RecordChunk("down", len(reply.Payload)-inboundChunkOverhead)

	for !asm.Done() {
		req := putU16([]byte{h.id}, max)
		rep, err := s.exchange(ctx, name, contOp, req, true)
		if err != nil {
			return nil, err
		}
		if len(rep.Payload) < inboundChunkOverhead {
			return nil, s.record(name, malformed(name, "continuation of %d bytes", len(rep.Payload)))
		}
		if rep.Payload[4] != h.id {
			return nil, s.record(name, malformed(name, "continuation for handle %d, transfer uses %d", rep.Payload[4], h.id))
		}
		remaining := binary.LittleEndian.Uint32(rep.Payload[0:4])
		data := rep.Payload[inboundChunkOverhead:]
		if err := asm.Continue(remaining, data); err != nil {
			return nil, s.record(name, protocol.ProtocolError(name, errors.Join(protocol.ErrMalformed, err)))
		}
		observability.RecordChunk("down", len(data))
	}
	h.complete()
	s.log.Debug().Str("op", name).Str("path", remote).Uint32("bytes", total).Msg("transfer complete")
	return asm.Bytes(), nil
}
