package transport

import (
	"errors"
	"runtime"
	"time"
)

const (
	NameUSB       = "usb"
	NameBluetooth = "bluetooth"
)

var (
	ErrClosed        = errors.New("transport: channel closed")
	ErrFrameTooLarge = errors.New("transport: frame exceeds channel capacity")
	ErrShortBuffer   = errors.New("transport: read buffer smaller than frame")
	ErrShortWrite    = errors.New("transport: short write")
	ErrNoPort        = errors.New("transport: no bluetooth serial port configured")
	ErrUnknownLink   = errors.New("transport: unknown link in probe order")
)

// Channel is a frame-granular byte link to one device.
//
// ReadTimeout returns (0, nil) when nothing arrives within timeout and never
// blocks longer than that.
type Channel interface {
	Write(frame []byte) (int, error)
	ReadTimeout(buf []byte, timeout time.Duration) (int, error)
	LastError() string
	// MaxFrame is the largest frame, length field included, the link carries.
	MaxFrame() int
	Name() string
	Close() error
}

type USBConfig struct {
	VendorID   uint16
	ProductID  uint16
	Serial     string
	ReportID   uint8
	ReportSize int
}

type BluetoothConfig struct {
	Port       string
	BaudRate   int
	BufferSize int
}

// Config selects and parameterizes the physical links.
type Config struct {
	Order     []string
	USB       USBConfig
	Bluetooth BluetoothConfig
}

func DefaultConfig() Config {
	return Config{
		Order: []string{NameUSB, NameBluetooth},
		USB: USBConfig{
			VendorID:   0x0694,
			ProductID:  0x0005,
			ReportID:   0x00,
			ReportSize: 1024,
		},
		Bluetooth: BluetoothConfig{
			Port:       defaultBluetoothPort(),
			BaudRate:   115200,
			BufferSize: 1024,
		},
	}
}

func defaultBluetoothPort() string {
	switch runtime.GOOS {
	case "linux":
		return "/dev/rfcomm0"
	case "darwin":
		return "/dev/tty.EV3-SerialPort"
	default:
		return ""
	}
}
