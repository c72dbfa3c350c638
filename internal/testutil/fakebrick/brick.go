// Package fakebrick simulates a brick's file store behind the real frame
// codec so session and CLI tests run without hardware.
package fakebrick

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/danmuck/brickctl/internal/protocol"
	"github.com/danmuck/brickctl/internal/protocol/frame"
)

// Opcodes assigned to operations stock firmware lacks.
const (
	OpcodeExec uint8 = 0xB1
	OpcodeKill uint8 = 0xB2
	OpcodeCopy uint8 = 0xB3
	OpcodeMove uint8 = 0xB4
)

// Registry is the default registry plus the extension opcodes above.
func Registry() protocol.Registry {
	reg := protocol.DefaultRegistry()
	reg.Opcodes[protocol.OpExec] = OpcodeExec
	reg.Opcodes[protocol.OpKill] = OpcodeKill
	reg.Opcodes[protocol.OpCopy] = OpcodeCopy
	reg.Opcodes[protocol.OpMove] = OpcodeMove
	return reg
}

type handle struct {
	path   string
	upload bool
	size   uint32
	data   []byte
	sent   int
}

// Brick is a transport.Channel backed by an in-memory file store.
type Brick struct {
	Reg      protocol.Registry
	Frame    int
	Files    map[string][]byte
	Dirs     map[string]bool
	NotFound uint8

	// Silent drops every request without replying.
	Silent bool
	// AckSkew is added to every upload acknowledgement.
	AckSkew int
	// CounterSkew is added to every reply counter.
	CounterSkew uint16
	// RemainingSkew is added to every declared remaining size.
	RemainingSkew int
	// Intercept, when set, may replace the reply to a request.
	Intercept func(req frame.Frame) (frame.Frame, bool)

	Requests     []frame.Frame
	UploadChunks [][]byte
	Acks         []uint32
	Executed     []string
	Killed       []string
	Closed       []uint8

	handles map[uint8]*handle
	next    uint8
	replies [][]byte
	closed  bool
}

func New() *Brick {
	return &Brick{
		Reg:      Registry(),
		Frame:    1024,
		Files:    map[string][]byte{},
		Dirs:     map[string]bool{"/": true},
		NotFound: protocol.StatusIllegalPath,
		handles:  map[uint8]*handle{},
	}
}

// AddFile stores data at p, creating parent directories.
func (b *Brick) AddFile(p string, data []byte) {
	p = path.Clean(p)
	b.mkdirAll(path.Dir(p))
	b.Files[p] = append([]byte(nil), data...)
}

func (b *Brick) AddDir(p string) {
	b.mkdirAll(path.Clean(p))
}

func (b *Brick) mkdirAll(p string) {
	for p != "/" && p != "." {
		b.Dirs[p] = true
		p = path.Dir(p)
	}
}

// OpenHandles reports handles the brick still considers open.
func (b *Brick) OpenHandles() int {
	return len(b.handles)
}

// RequestsFor returns the logged requests carrying opcode.
func (b *Brick) RequestsFor(op protocol.Op) []frame.Frame {
	code := b.Reg.Opcodes[op]
	var out []frame.Frame
	for _, r := range b.Requests {
		if r.Opcode == code {
			out = append(out, r)
		}
	}
	return out
}

func (b *Brick) Name() string      { return "fake" }
func (b *Brick) MaxFrame() int     { return b.Frame }
func (b *Brick) LastError() string { return "" }

func (b *Brick) Close() error {
	b.closed = true
	return nil
}

// Reopen lets a closed brick serve another connection.
func (b *Brick) Reopen() {
	b.closed = false
	b.replies = nil
}

func (b *Brick) Write(p []byte) (int, error) {
	if b.closed {
		return 0, fmt.Errorf("fakebrick: closed")
	}
	if len(p) > b.Frame {
		return 0, fmt.Errorf("fakebrick: frame of %d bytes exceeds %d", len(p), b.Frame)
	}
	req, err := frame.DecodeRequest(p, b.Reg.Kinds)
	if err != nil {
		return 0, err
	}
	b.Requests = append(b.Requests, req)
	rep := b.handle(req)
	if b.Intercept != nil {
		if r, ok := b.Intercept(req); ok {
			rep = r
		}
	}
	if b.Silent || !req.ExpectsReply(b.Reg.Kinds) {
		return len(p), nil
	}
	rep.Counter = req.Counter + b.CounterSkew
	rep.Opcode = req.Opcode
	if rep.Kind == 0 {
		rep.Kind = b.Reg.Kinds.Reply
		if rep.Status != protocol.StatusSuccess {
			rep.Kind = b.Reg.Kinds.ReplyError
		}
	}
	out, err := frame.EncodeReply(rep)
	if err != nil {
		return 0, err
	}
	b.replies = append(b.replies, out)
	return len(p), nil
}

// ReadTimeout hands out queued replies; with none queued it waits the full
// timeout and reports nothing.
func (b *Brick) ReadTimeout(buf []byte, timeout time.Duration) (int, error) {
	if len(b.replies) == 0 {
		time.Sleep(timeout)
		return 0, nil
	}
	next := b.replies[0]
	b.replies = b.replies[1:]
	return copy(buf, next), nil
}

// Reply builds a reply carrying status and payload for Intercept hooks.
func Reply(status uint8, payload []byte) frame.Frame {
	return frame.Frame{Status: status, Payload: payload}
}

func (b *Brick) handle(req frame.Frame) frame.Frame {
	ops := map[uint8]protocol.Op{}
	for op, code := range b.Reg.Opcodes {
		ops[code] = op
	}
	op, ok := ops[req.Opcode]
	if !ok {
		return Reply(protocol.StatusUnknownError, nil)
	}
	p := req.Payload
	switch op {
	case protocol.OpBeginUpload:
		if len(p) < 5 {
			return Reply(protocol.StatusSizeError, nil)
		}
		size := binary.LittleEndian.Uint32(p[0:4])
		target := cstring(p[4:])
		if !b.Dirs[path.Dir(target)] {
			return Reply(b.NotFound, nil)
		}
		id := b.open(&handle{path: target, upload: true, size: size})
		if size == 0 {
			b.Files[target] = []byte{}
			delete(b.handles, id)
		}
		return Reply(protocol.StatusSuccess, []byte{id})
	case protocol.OpContinueUpload:
		if len(p) < 1 {
			return Reply(protocol.StatusSizeError, nil)
		}
		h, ok := b.handles[p[0]]
		if !ok || !h.upload {
			return Reply(protocol.StatusUnknownHandle, nil)
		}
		data := p[1:]
		b.UploadChunks = append(b.UploadChunks, append([]byte(nil), data...))
		h.data = append(h.data, data...)
		if len(h.data) > int(h.size) {
			delete(b.handles, p[0])
			return Reply(protocol.StatusSizeError, nil)
		}
		ack := uint32(len(h.data) + b.AckSkew)
		b.Acks = append(b.Acks, ack)
		if len(h.data) == int(h.size) {
			b.Files[h.path] = h.data
			delete(b.handles, p[0])
		}
		return Reply(protocol.StatusSuccess, binary.LittleEndian.AppendUint32([]byte{p[0]}, ack))
	case protocol.OpBeginDownload:
		if len(p) < 3 {
			return Reply(protocol.StatusSizeError, nil)
		}
		target := cstring(p[2:])
		data, ok := b.Files[target]
		if !ok {
			return Reply(b.NotFound, nil)
		}
		return b.beginRead(target, data, binary.LittleEndian.Uint16(p[0:2]))
	case protocol.OpList:
		if len(p) < 3 {
			return Reply(protocol.StatusSizeError, nil)
		}
		target := path.Clean(cstring(p[2:]))
		if !b.Dirs[target] {
			return Reply(b.NotFound, nil)
		}
		return b.beginRead(target, b.listing(target), binary.LittleEndian.Uint16(p[0:2]))
	case protocol.OpContinueDownload, protocol.OpContinueList:
		if len(p) < 3 {
			return Reply(protocol.StatusSizeError, nil)
		}
		h, ok := b.handles[p[0]]
		if !ok || h.upload {
			return Reply(protocol.StatusUnknownHandle, nil)
		}
		return b.continueRead(p[0], h, binary.LittleEndian.Uint16(p[1:3]))
	case protocol.OpCloseHandle:
		if len(p) < 1 {
			return Reply(protocol.StatusSizeError, nil)
		}
		if _, ok := b.handles[p[0]]; !ok {
			return Reply(protocol.StatusUnknownHandle, nil)
		}
		delete(b.handles, p[0])
		b.Closed = append(b.Closed, p[0])
		return Reply(protocol.StatusSuccess, nil)
	case protocol.OpMkdir:
		target := path.Clean(cstring(p))
		if b.Dirs[target] || b.Files[target] != nil {
			return Reply(protocol.StatusFileExists, nil)
		}
		if !b.Dirs[path.Dir(target)] {
			return Reply(b.NotFound, nil)
		}
		b.Dirs[target] = true
		return Reply(protocol.StatusSuccess, nil)
	case protocol.OpRemove:
		target := path.Clean(cstring(p))
		if _, ok := b.Files[target]; ok {
			delete(b.Files, target)
			return Reply(protocol.StatusSuccess, nil)
		}
		if b.Dirs[target] && target != "/" {
			if len(b.children(target)) > 0 {
				return Reply(protocol.StatusNoPermission, nil)
			}
			delete(b.Dirs, target)
			return Reply(protocol.StatusSuccess, nil)
		}
		return Reply(b.NotFound, nil)
	case protocol.OpTest:
		return Reply(protocol.StatusSuccess, nil)
	case protocol.OpExec, protocol.OpKill:
		target := cstring(p)
		if _, ok := b.Files[target]; !ok {
			return Reply(b.NotFound, nil)
		}
		if op == protocol.OpExec {
			b.Executed = append(b.Executed, target)
		} else {
			b.Killed = append(b.Killed, target)
		}
		return Reply(protocol.StatusSuccess, nil)
	case protocol.OpCopy, protocol.OpMove:
		src, rest := cutCString(p)
		dst := cstring(rest)
		data, ok := b.Files[src]
		if !ok {
			return Reply(b.NotFound, nil)
		}
		if !b.Dirs[path.Dir(dst)] {
			return Reply(b.NotFound, nil)
		}
		b.Files[dst] = append([]byte(nil), data...)
		if op == protocol.OpMove {
			delete(b.Files, src)
		}
		return Reply(protocol.StatusSuccess, nil)
	}
	return Reply(protocol.StatusUnknownError, nil)
}

func (b *Brick) open(h *handle) uint8 {
	b.next++
	for b.handles[b.next] != nil {
		b.next++
	}
	b.handles[b.next] = h
	return b.next
}

func (b *Brick) beginRead(target string, data []byte, max uint16) frame.Frame {
	h := &handle{path: target, size: uint32(len(data)), data: data}
	id := b.open(h)
	n := min(int(max), len(data))
	h.sent = n
	if h.sent == len(data) {
		delete(b.handles, id)
	}
	payload := binary.LittleEndian.AppendUint32(nil, uint32(len(data)))
	payload = append(payload, id)
	payload = append(payload, data[:n]...)
	return Reply(protocol.StatusSuccess, payload)
}

func (b *Brick) continueRead(id uint8, h *handle, max uint16) frame.Frame {
	remaining := len(h.data) - h.sent
	n := min(int(max), remaining)
	payload := binary.LittleEndian.AppendUint32(nil, uint32(remaining+b.RemainingSkew))
	payload = append(payload, id)
	payload = append(payload, h.data[h.sent:h.sent+n]...)
	h.sent += n
	if h.sent == len(h.data) {
		delete(b.handles, id)
	}
	return Reply(protocol.StatusSuccess, payload)
}

// listing renders dir the way firmware does: subdirectories as "name/",
// files as "<MD5> <SIZE> name", both hex and upper case.
func (b *Brick) listing(dir string) []byte {
	var sb strings.Builder
	for _, child := range b.children(dir) {
		name := path.Base(child)
		if b.Dirs[child] {
			sb.WriteString(name + "/\n")
			continue
		}
		data := b.Files[child]
		sum := md5.Sum(data)
		fmt.Fprintf(&sb, "%X %08X %s\n", sum[:], len(data), name)
	}
	return []byte(sb.String())
}

func (b *Brick) children(dir string) []string {
	var out []string
	for d := range b.Dirs {
		if d != dir && path.Dir(d) == dir {
			out = append(out, d)
		}
	}
	for f := range b.Files {
		if path.Dir(f) == dir {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

func cstring(b []byte) string {
	s, _ := cutCString(b)
	return s
}

func cutCString(b []byte) (string, []byte) {
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), b[i+1:]
		}
	}
	return string(b), nil
}
