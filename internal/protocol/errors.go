package protocol

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how far it reaches.
type Kind int

const (
	KindArgument Kind = iota + 1
	KindIO
	KindTransport
	KindProtocol
	KindDevice
	KindTimeout
	KindUnknownCommand
)

var (
	ErrNoDevice         = errors.New("protocol: no device")
	ErrMalformed        = errors.New("protocol: malformed frame")
	ErrDesync           = errors.New("protocol: reply counter desync")
	ErrOpcodeMismatch   = errors.New("protocol: reply opcode mismatch")
	ErrTransferDesync   = errors.New("protocol: transfer acknowledgement desync")
	ErrTimedOut         = errors.New("protocol: timed out awaiting reply")
	ErrDeviceStatus     = errors.New("protocol: device rejected request")
	ErrBusy             = errors.New("protocol: request already outstanding")
	ErrAmbiguousPath    = errors.New("protocol: ambiguous path")
	ErrUnassignedOpcode = errors.New("protocol: opcode not assigned")
)

func (k Kind) String() string {
	switch k {
	case KindArgument:
		return "argument error"
	case KindIO:
		return "io error"
	case KindTransport:
		return "transport error"
	case KindProtocol:
		return "protocol error"
	case KindDevice:
		return "device error"
	case KindTimeout:
		return "timed out"
	case KindUnknownCommand:
		return "unknown command"
	default:
		return "unknown error"
	}
}

// Error is the single error shape surfaced above the session layer.
// Code carries the raw device status for KindDevice and is zero otherwise.
type Error struct {
	Kind   Kind
	Op     string
	Code   uint8
	Status string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Kind == KindDevice {
		if e.Status != "" {
			msg = fmt.Sprintf("%s (status 0x%02X %s)", msg, e.Code, e.Status)
		} else {
			msg = fmt.Sprintf("%s (status 0x%02X)", msg, e.Code)
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ExitCode maps the kind onto the process exit status used by the CLI.
func (e *Error) ExitCode() int {
	return ExitCode(e)
}

func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func ArgumentError(op string, err error) *Error  { return NewError(KindArgument, op, err) }
func IOError(op string, err error) *Error        { return NewError(KindIO, op, err) }
func TransportError(op string, err error) *Error { return NewError(KindTransport, op, err) }
func ProtocolError(op string, err error) *Error  { return NewError(KindProtocol, op, err) }
func TimeoutError(op string, err error) *Error   { return NewError(KindTimeout, op, err) }

func UnknownCommand(op string, err error) *Error {
	return NewError(KindUnknownCommand, op, err)
}

// DeviceError passes code through untouched; status is only a display name.
func DeviceError(op string, code uint8, status string) *Error {
	return &Error{Kind: KindDevice, Op: op, Code: code, Status: status, Err: ErrDeviceStatus}
}

// KindOf reports the taxonomy kind of err, or zero when err carries none.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// DeviceCode returns the raw status code of a device rejection.
func DeviceCode(err error) (uint8, bool) {
	var pe *Error
	if errors.As(err, &pe) && pe.Kind == KindDevice {
		return pe.Code, true
	}
	return 0, false
}

// ExitCode maps err onto a process exit status; nil is 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindArgument:
		return 2
	case KindIO:
		return 3
	case KindTransport:
		return 4
	case KindProtocol:
		return 5
	case KindDevice:
		return 6
	case KindTimeout:
		return 7
	case KindUnknownCommand:
		return 8
	default:
		return 1
	}
}
