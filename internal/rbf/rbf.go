// Package rbf builds launcher programs: minimal bytecode images whose only
// instruction starts another program on the brick by path.
package rbf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	Magic   = "LEGO"
	Version = 0x0068

	objectOffset = 0x1C
	localBytes   = 8

	sizeOffset = len(Magic)
)

var (
	ErrEmptyPath    = errors.New("rbf: empty target path")
	ErrPathHasNUL   = errors.New("rbf: target path contains NUL")
	ErrBadMagic     = errors.New("rbf: bad magic")
	ErrSizeMismatch = errors.New("rbf: size field does not match image length")
	ErrBadLayout    = errors.New("rbf: not a launcher image")
)

// header is the image header, one object header and the opening of the
// program-start instruction whose string operand follows.
var header = func() []byte {
	b := make([]byte, 0, 30)
	b = append(b, Magic...)
	b = binary.LittleEndian.AppendUint32(b, 0) // total size, patched by Build
	b = binary.LittleEndian.AppendUint16(b, Version)
	b = binary.LittleEndian.AppendUint16(b, 1) // objects
	b = binary.LittleEndian.AppendUint32(b, 0) // globals
	b = binary.LittleEndian.AppendUint32(b, objectOffset)
	b = binary.LittleEndian.AppendUint16(b, 0) // owner
	b = binary.LittleEndian.AppendUint16(b, 0) // trigger count
	b = binary.LittleEndian.AppendUint32(b, localBytes)
	return append(b, 0x60, 0x80)
}()

// trailer loads the started program, waits on it and ends the object.
var trailer = []byte{0x44, 0x85, 0x82, 0xE8, 0x03, 0x40, 0x86, 0x40, 0x0A}

// HeaderLen and TrailerLen frame the NUL-terminated target path.
var (
	HeaderLen  = len(header)
	TrailerLen = len(trailer)
)

// Size returns the image length for a target path of n bytes.
func Size(n int) int {
	return HeaderLen + n + 1 + TrailerLen
}

// Build returns a launcher image for target. It performs no I/O.
func Build(target string) ([]byte, error) {
	if target == "" {
		return nil, ErrEmptyPath
	}
	if i := bytes.IndexByte([]byte(target), 0); i >= 0 {
		return nil, fmt.Errorf("%w at offset %d", ErrPathHasNUL, i)
	}
	out := make([]byte, 0, Size(len(target)))
	out = append(out, header...)
	out = append(out, target...)
	out = append(out, 0)
	out = append(out, trailer...)
	binary.LittleEndian.PutUint32(out[sizeOffset:], uint32(len(out)))
	return out, nil
}

// Parse verifies a launcher image and returns its target path.
func Parse(b []byte) (string, error) {
	if len(b) < HeaderLen+1+TrailerLen {
		return "", fmt.Errorf("%w: %d bytes", ErrBadLayout, len(b))
	}
	if string(b[:sizeOffset]) != Magic {
		return "", fmt.Errorf("%w: %q", ErrBadMagic, b[:sizeOffset])
	}
	if size := binary.LittleEndian.Uint32(b[sizeOffset:]); int(size) != len(b) {
		return "", fmt.Errorf("%w: field %d, image %d", ErrSizeMismatch, size, len(b))
	}
	if !bytes.Equal(b[sizeOffset+4:HeaderLen], header[sizeOffset+4:]) {
		return "", fmt.Errorf("%w: header", ErrBadLayout)
	}
	if !bytes.Equal(b[len(b)-TrailerLen:], trailer) {
		return "", fmt.Errorf("%w: trailer", ErrBadLayout)
	}
	body := b[HeaderLen : len(b)-TrailerLen]
	nul := bytes.IndexByte(body, 0)
	if nul != len(body)-1 || nul == 0 {
		return "", fmt.Errorf("%w: target path", ErrBadLayout)
	}
	return string(body[:nul]), nil
}
