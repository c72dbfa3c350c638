package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/brickctl/internal/protocol"
	"github.com/danmuck/brickctl/internal/protocol/frame"
	"go.bug.st/serial"
)

type serialPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Bluetooth carries raw frames over an RFCOMM serial stream. Reads hand out
// exactly one frame; bytes past it stay buffered for the next read.
type Bluetooth struct {
	port    serialPort
	cfg     BluetoothConfig
	now     func() time.Time
	pending []byte
	lastErr error
	closed  bool
}

// OpenBluetooth opens the paired device's serial port.
func OpenBluetooth(cfg BluetoothConfig) (*Bluetooth, error) {
	if cfg.Port == "" {
		return nil, ErrNoPort
	}
	if cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("transport: invalid bluetooth buffer size %d", cfg.BufferSize)
	}
	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("transport: open bluetooth %s: %w", cfg.Port, err)
	}
	return newBluetooth(port, cfg, time.Now), nil
}

func newBluetooth(port serialPort, cfg BluetoothConfig, now func() time.Time) *Bluetooth {
	return &Bluetooth{port: port, cfg: cfg, now: now}
}

func (b *Bluetooth) Name() string  { return NameBluetooth }
func (b *Bluetooth) MaxFrame() int { return b.cfg.BufferSize }

func (b *Bluetooth) Write(f []byte) (int, error) {
	if b.closed {
		return 0, ErrClosed
	}
	if len(f) > b.cfg.BufferSize {
		return 0, b.note(fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(f), b.cfg.BufferSize))
	}
	written := 0
	for written < len(f) {
		n, err := b.port.Write(f[written:])
		if err != nil {
			return written, b.note(fmt.Errorf("transport: bluetooth write: %w", err))
		}
		if n == 0 {
			return written, b.note(ErrShortWrite)
		}
		written += n
	}
	return written, nil
}

func (b *Bluetooth) ReadTimeout(buf []byte, timeout time.Duration) (int, error) {
	if b.closed {
		return 0, ErrClosed
	}
	deadline := b.now().Add(timeout)
	chunk := make([]byte, b.cfg.BufferSize)
	for {
		if n, ok := frame.DeclaredSize(b.pending); ok {
			if limit := min(b.cfg.BufferSize, len(buf)); n > limit {
				// No frame boundary can be trusted after a bad length prefix.
				b.pending = b.pending[:0]
				return 0, b.note(protocol.ProtocolError("", fmt.Errorf("%w: %w: declared %d > %d, stream buffer dropped", protocol.ErrMalformed, ErrShortBuffer, n, limit)))
			}
		}
		if n, ok := frame.DeclaredSize(b.pending); ok && len(b.pending) >= n {
			copy(buf, b.pending[:n])
			b.pending = append(b.pending[:0], b.pending[n:]...)
			return n, nil
		}
		remaining := deadline.Sub(b.now())
		if remaining <= 0 {
			return 0, nil
		}
		if err := b.port.SetReadTimeout(remaining); err != nil {
			return 0, b.note(fmt.Errorf("transport: bluetooth set timeout: %w", err))
		}
		n, err := b.port.Read(chunk)
		if err != nil {
			return 0, b.note(fmt.Errorf("transport: bluetooth read: %w", err))
		}
		if n == 0 {
			return 0, nil
		}
		b.pending = append(b.pending, chunk[:n]...)
	}
}

func (b *Bluetooth) LastError() string {
	if b.lastErr == nil {
		return ""
	}
	return b.lastErr.Error()
}

func (b *Bluetooth) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.pending = nil
	if err := b.port.Close(); err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	return nil
}

func (b *Bluetooth) note(err error) error {
	b.lastErr = err
	return err
}
