package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/sstallion/go-hid"
)

type hidDevice interface {
	Write(p []byte) (int, error)
	ReadWithTimeout(p []byte, timeout time.Duration) (int, error)
	Close() error
}

// USB carries frames inside fixed-size HID reports.
type USB struct {
	dev     hidDevice
	cfg     USBConfig
	release func() error

	lastErr error
	closed  bool
}

// OpenUSB opens the first HID device matching the configured ids.
func OpenUSB(cfg USBConfig) (*USB, error) {
	if cfg.ReportSize <= 0 {
		return nil, fmt.Errorf("transport: invalid usb report size %d", cfg.ReportSize)
	}
	if err := hid.Init(); err != nil {
		return nil, fmt.Errorf("transport: hid init: %w", err)
	}
	var (
		dev *hid.Device
		err error
	)
	if cfg.Serial != "" {
		dev, err = hid.Open(cfg.VendorID, cfg.ProductID, cfg.Serial)
	} else {
		dev, err = hid.OpenFirst(cfg.VendorID, cfg.ProductID)
	}
	if err != nil {
		_ = hid.Exit()
		return nil, fmt.Errorf("transport: open usb %04x:%04x: %w", cfg.VendorID, cfg.ProductID, err)
	}
	return newUSB(dev, cfg, hid.Exit), nil
}

func newUSB(dev hidDevice, cfg USBConfig, release func() error) *USB {
	return &USB{dev: dev, cfg: cfg, release: release}
}

func (u *USB) Name() string  { return NameUSB }
func (u *USB) MaxFrame() int { return u.cfg.ReportSize }

func (u *USB) Write(f []byte) (int, error) {
	if u.closed {
		return 0, ErrClosed
	}
	if len(f) > u.cfg.ReportSize {
		return 0, u.note(fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(f), u.cfg.ReportSize))
	}
	report := wrapReport(u.cfg.ReportID, f, u.cfg.ReportSize)
	n, err := u.dev.Write(report)
	if err != nil {
		return 0, u.note(fmt.Errorf("transport: usb write: %w", err))
	}
	if n < len(report) {
		return 0, u.note(fmt.Errorf("%w: %d of %d report bytes", ErrShortWrite, n, len(report)))
	}
	return len(f), nil
}

func (u *USB) ReadTimeout(buf []byte, timeout time.Duration) (int, error) {
	if u.closed {
		return 0, ErrClosed
	}
	report := make([]byte, u.cfg.ReportSize+1)
	n, err := u.dev.ReadWithTimeout(report, timeout)
	if errors.Is(err, hid.ErrTimeout) {
		return 0, nil
	}
	if err != nil {
		return 0, u.note(fmt.Errorf("transport: usb read: %w", err))
	}
	if n == 0 {
		return 0, nil
	}
	f := unwrapReport(u.cfg.ReportID, report[:n])
	if len(f) > len(buf) {
		return 0, u.note(fmt.Errorf("%w: %d > %d", ErrShortBuffer, len(f), len(buf)))
	}
	return copy(buf, f), nil
}

func (u *USB) LastError() string {
	if u.lastErr == nil {
		return ""
	}
	return u.lastErr.Error()
}

func (u *USB) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true

	err := u.dev.Close()
	if u.release != nil {
		err = errors.Join(err, u.release())
	}
	return err
}

func (u *USB) note(err error) error {
	u.lastErr = err
	return err
}
