package protocol

import (
	"fmt"
	"sort"

	"github.com/danmuck/brickctl/internal/protocol/frame"
)

// Op names one firmware operation; its byte value lives in a Registry.
type Op string

// Upload/download are named from the host side: the firmware calls
// an upload a "download" and vice versa.
const (
	OpBeginUpload      Op = "begin_upload"
	OpContinueUpload   Op = "continue_upload"
	OpBeginDownload    Op = "begin_download"
	OpContinueDownload Op = "continue_download"
	OpCloseHandle      Op = "close_handle"
	OpList             Op = "list"
	OpContinueList     Op = "continue_list"
	OpMkdir            Op = "mkdir"
	OpRemove           Op = "remove"
	OpTest             Op = "test"
	OpExec             Op = "exec"
	OpKill             Op = "kill"
	OpCopy             Op = "copy"
	OpMove             Op = "move"
)

// AllOps lists every operation a registry can assign.
var AllOps = []Op{
	OpBeginUpload, OpContinueUpload, OpBeginDownload, OpContinueDownload,
	OpCloseHandle, OpList, OpContinueList, OpMkdir, OpRemove, OpTest,
	OpExec, OpKill, OpCopy, OpMove,
}

// Status codes reported by stock EV3 firmware.
const (
	StatusSuccess           uint8 = 0x00
	StatusUnknownHandle     uint8 = 0x01
	StatusHandleNotReady    uint8 = 0x02
	StatusCorruptFile       uint8 = 0x03
	StatusNoHandles         uint8 = 0x04
	StatusNoPermission      uint8 = 0x05
	StatusIllegalPath       uint8 = 0x06
	StatusFileExists        uint8 = 0x07
	StatusEndOfFile         uint8 = 0x08
	StatusSizeError         uint8 = 0x09
	StatusUnknownError      uint8 = 0x0A
	StatusIllegalFilename   uint8 = 0x0B
	StatusIllegalConnection uint8 = 0x0C
)

// Registry maps operations and status codes onto firmware-defined bytes.
// An operation without an entry is unassigned and cannot be issued.
type Registry struct {
	Kinds    frame.Kinds
	Opcodes  map[Op]uint8
	Statuses map[uint8]string
}

// DefaultRegistry returns the stock EV3 system-command table. Exec, kill,
// copy and move have no system opcode on stock firmware and stay unassigned.
func DefaultRegistry() Registry {
	return Registry{
		Kinds: frame.DefaultKinds(),
		Opcodes: map[Op]uint8{
			OpBeginUpload:      0x92,
			OpContinueUpload:   0x93,
			OpBeginDownload:    0x94,
			OpContinueDownload: 0x95,
			OpCloseHandle:      0x98,
			OpList:             0x99,
			OpContinueList:     0x9A,
			OpMkdir:            0x9B,
			OpRemove:           0x9C,
			OpTest:             0x9D,
		},
		Statuses: map[uint8]string{
			StatusSuccess:           "success",
			StatusUnknownHandle:     "unknown handle",
			StatusHandleNotReady:    "handle not ready",
			StatusCorruptFile:       "corrupt file",
			StatusNoHandles:         "no handles available",
			StatusNoPermission:      "no permission",
			StatusIllegalPath:       "illegal path",
			StatusFileExists:        "file exists",
			StatusEndOfFile:         "end of file",
			StatusSizeError:         "size error",
			StatusUnknownError:      "unknown error",
			StatusIllegalFilename:   "illegal filename",
			StatusIllegalConnection: "illegal connection",
		},
	}
}

// Opcode resolves op, failing with UnknownCommand when it is unassigned.
func (r Registry) Opcode(op Op) (uint8, error) {
	code, ok := r.Opcodes[op]
	if !ok {
		return 0, UnknownCommand(string(op), fmt.Errorf("%w: %s", ErrUnassignedOpcode, op))
	}
	return code, nil
}

// StatusName returns the display name for code, or "" when unknown.
func (r Registry) StatusName(code uint8) string {
	return r.Statuses[code]
}

// Clone returns a deep copy safe to mutate.
func (r Registry) Clone() Registry {
	out := Registry{
		Kinds:    r.Kinds,
		Opcodes:  make(map[Op]uint8, len(r.Opcodes)),
		Statuses: make(map[uint8]string, len(r.Statuses)),
	}
	for k, v := range r.Opcodes {
		out.Opcodes[k] = v
	}
	for k, v := range r.Statuses {
		out.Statuses[k] = v
	}
	return out
}

func (r Registry) Validate() error {
	if err := r.Kinds.Validate(); err != nil {
		return fmt.Errorf("registry kinds invalid: %w", err)
	}
	known := make(map[Op]bool, len(AllOps))
	for _, op := range AllOps {
		known[op] = true
	}
	ops := make([]string, 0, len(r.Opcodes))
	for op := range r.Opcodes {
		ops = append(ops, string(op))
	}
	sort.Strings(ops)
	seen := make(map[uint8]Op, len(r.Opcodes))
	for _, name := range ops {
		op := Op(name)
		if !known[op] {
			return fmt.Errorf("registry: unknown operation %q", name)
		}
		code := r.Opcodes[op]
		if prev, dup := seen[code]; dup {
			return fmt.Errorf("registry: opcode 0x%02X assigned to both %s and %s", code, prev, op)
		}
		seen[code] = op
	}
	return nil
}
