// Package device owns the single connection a process keeps to one brick.
package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/brickctl/internal/protocol"
	"github.com/danmuck/brickctl/internal/transport"
)

// Device exclusively owns one transport channel and remembers the last
// failure seen on it. It is itself a transport.Channel so the codec can
// be driven through it.
type Device struct {
	ch      transport.Channel
	lastErr error
	closed  bool
}

// Open probes for a device and takes ownership of the channel it finds.
func Open(ctx context.Context, prober *transport.Prober) (*Device, error) {
	ch, err := prober.Open(ctx)
	if err != nil {
		return nil, err
	}
	return New(ch), nil
}

// New wraps an already opened channel.
func New(ch transport.Channel) *Device {
	return &Device{ch: ch}
}

func (d *Device) Name() string  { return d.ch.Name() }
func (d *Device) MaxFrame() int { return d.ch.MaxFrame() }

// Write and ReadTimeout leave Op empty so the session running the
// exchange can stamp its operation name.
func (d *Device) Write(frame []byte) (int, error) {
	if d.closed {
		return 0, d.note(channelError("write", transport.ErrClosed))
	}
	n, err := d.ch.Write(frame)
	if err != nil {
		return n, d.note(channelError("write", err))
	}
	return n, nil
}

func (d *Device) ReadTimeout(buf []byte, timeout time.Duration) (int, error) {
	if d.closed {
		return 0, d.note(channelError("read", transport.ErrClosed))
	}
	n, err := d.ch.ReadTimeout(buf, timeout)
	if err != nil {
		return n, d.note(channelError("read", err))
	}
	return n, nil
}

// Note records err as the latest diagnostic; nil is ignored.
func (d *Device) Note(err error) {
	if err != nil {
		d.lastErr = err
	}
}

// LastError combines the latest recorded failure with the channel's own
// diagnostic.
func (d *Device) LastError() string {
	own := ""
	if d.lastErr != nil {
		own = d.lastErr.Error()
	}
	chErr := d.ch.LastError()
	switch {
	case own == "":
		return chErr
	case chErr == "" || chErr == own:
		return own
	default:
		return own + " (" + chErr + ")"
	}
}

func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.ch.Close(); err != nil {
		return protocol.TransportError("close", err)
	}
	return nil
}

func channelError(dir string, err error) error {
	if protocol.KindOf(err) != 0 {
		return err
	}
	return protocol.TransportError("", fmt.Errorf("%s: %w", dir, err))
}

func (d *Device) note(err error) error {
	d.lastErr = err
	return err
}

var _ transport.Channel = (*Device)(nil)

// IsClosed reports whether err came from a closed device.
func IsClosed(err error) bool {
	return errors.Is(err, transport.ErrClosed)
}
