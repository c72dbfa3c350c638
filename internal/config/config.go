package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/brickctl/internal/protocol"
	"github.com/danmuck/brickctl/internal/protocol/session"
	"github.com/danmuck/brickctl/internal/remotepath"
	"github.com/danmuck/brickctl/internal/transport"
)

// Config is everything brickctl resolves before talking to a brick.
type Config struct {
	Transport transport.Config
	Session   session.Config
	Registry  protocol.Registry
	Logging   LoggingConfig
	// CD is the virtual current directory joined to relative remote paths.
	CD string
}

type LoggingConfig struct {
	Level       string
	File        string
	MetricsFile string
}

// brickctl config.toml key mapping to runtime settings.
type fileConfig struct {
	CD        string          `toml:"cd"`
	Transport transportFile   `toml:"transport"`
	Session   sessionFile     `toml:"session"`
	Registry  registryFile    `toml:"registry"`
	Logging   loggingFileConf `toml:"logging"`
}

type transportFile struct {
	Order     []string      `toml:"order"`
	USB       usbFile       `toml:"usb"`
	Bluetooth bluetoothFile `toml:"bluetooth"`
}

type usbFile struct {
	VendorID   uint16 `toml:"vendor_id"`
	ProductID  uint16 `toml:"product_id"`
	Serial     string `toml:"serial"`
	ReportID   uint8  `toml:"report_id"`
	ReportSize int    `toml:"report_size"`
}

type bluetoothFile struct {
	Port       string `toml:"port"`
	BaudRate   int    `toml:"baud_rate"`
	BufferSize int    `toml:"buffer_size"`
}

type sessionFile struct {
	ReadTimeout string `toml:"read_timeout"`
	Retries     int    `toml:"retries"`
	MaxChunk    int    `toml:"max_chunk"`
	MaxTransfer int64  `toml:"max_transfer"`
}

type registryFile struct {
	Kinds    kindsFile         `toml:"kinds"`
	Opcodes  map[string]uint8  `toml:"opcodes"`
	Statuses map[string]string `toml:"statuses"`
}

type kindsFile struct {
	ReplyExpected uint8 `toml:"reply_expected"`
	NoReply       uint8 `toml:"no_reply"`
	Reply         uint8 `toml:"reply"`
	ReplyError    uint8 `toml:"reply_error"`
}

type loggingFileConf struct {
	Level       string `toml:"level"`
	File        string `toml:"file"`
	MetricsFile string `toml:"metrics_file"`
}

func DefaultConfig() Config {
	return Config{
		Transport: transport.DefaultConfig(),
		Session:   session.DefaultConfig(),
		Registry:  protocol.DefaultRegistry(),
		Logging:   LoggingConfig{Level: "warn"},
	}
}

// DefaultPath is brickctl/config.toml under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config path: %w", err)
	}
	return filepath.Join(dir, "brickctl", "config.toml"), nil
}

// Load overlays the file at path on DefaultConfig. A missing file yields
// the defaults unless required is set. The CD environment variable
// overrides the file's cd key.
func Load(path string, required bool) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) != "" {
		if err := overlayFile(&cfg, path); err != nil {
			if required || !errors.Is(err, fs.ErrNotExist) {
				return Config{}, err
			}
		}
	}
	if cd, ok := os.LookupEnv(remotepath.EnvCD); ok {
		cfg.CD = cd
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overlayFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load brickctl config (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load brickctl config (%s): unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("cd") {
		cfg.CD = strings.TrimSpace(raw.CD)
	}

	if meta.IsDefined("transport", "order") {
		cfg.Transport.Order = nil
		for _, name := range raw.Transport.Order {
			cfg.Transport.Order = append(cfg.Transport.Order, strings.ToLower(strings.TrimSpace(name)))
		}
	}
	usb := &cfg.Transport.USB
	if meta.IsDefined("transport", "usb", "vendor_id") {
		usb.VendorID = raw.Transport.USB.VendorID
	}
	if meta.IsDefined("transport", "usb", "product_id") {
		usb.ProductID = raw.Transport.USB.ProductID
	}
	if meta.IsDefined("transport", "usb", "serial") {
		usb.Serial = strings.TrimSpace(raw.Transport.USB.Serial)
	}
	if meta.IsDefined("transport", "usb", "report_id") {
		usb.ReportID = raw.Transport.USB.ReportID
	}
	if meta.IsDefined("transport", "usb", "report_size") {
		usb.ReportSize = raw.Transport.USB.ReportSize
	}
	bt := &cfg.Transport.Bluetooth
	if meta.IsDefined("transport", "bluetooth", "port") {
		bt.Port = strings.TrimSpace(raw.Transport.Bluetooth.Port)
	}
	if meta.IsDefined("transport", "bluetooth", "baud_rate") {
		bt.BaudRate = raw.Transport.Bluetooth.BaudRate
	}
	if meta.IsDefined("transport", "bluetooth", "buffer_size") {
		bt.BufferSize = raw.Transport.Bluetooth.BufferSize
	}

	if meta.IsDefined("session", "read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Session.ReadTimeout))
		if err != nil {
			return fmt.Errorf("load brickctl config (%s): session.read_timeout: %w", path, err)
		}
		cfg.Session.ReadTimeout = d
	}
	if meta.IsDefined("session", "retries") {
		cfg.Session.Retries = raw.Session.Retries
	}
	if meta.IsDefined("session", "max_chunk") {
		cfg.Session.MaxChunk = raw.Session.MaxChunk
	}
	if meta.IsDefined("session", "max_transfer") {
		cfg.Session.MaxTransfer = raw.Session.MaxTransfer
	}

	if err := overlayRegistry(&cfg.Registry, raw.Registry, meta); err != nil {
		return fmt.Errorf("load brickctl config (%s): %w", path, err)
	}

	if meta.IsDefined("logging", "level") {
		cfg.Logging.Level = strings.TrimSpace(raw.Logging.Level)
	}
	if meta.IsDefined("logging", "file") {
		cfg.Logging.File = strings.TrimSpace(raw.Logging.File)
	}
	if meta.IsDefined("logging", "metrics_file") {
		cfg.Logging.MetricsFile = strings.TrimSpace(raw.Logging.MetricsFile)
	}
	return nil
}

// overlayRegistry merges opcode and status overrides into reg. Assigning
// an opcode of an unknown operation is an error.
func overlayRegistry(reg *protocol.Registry, raw registryFile, meta toml.MetaData) error {
	if meta.IsDefined("registry", "kinds", "reply_expected") {
		reg.Kinds.ReplyExpected = raw.Kinds.ReplyExpected
	}
	if meta.IsDefined("registry", "kinds", "no_reply") {
		reg.Kinds.NoReply = raw.Kinds.NoReply
	}
	if meta.IsDefined("registry", "kinds", "reply") {
		reg.Kinds.Reply = raw.Kinds.Reply
	}
	if meta.IsDefined("registry", "kinds", "reply_error") {
		reg.Kinds.ReplyError = raw.Kinds.ReplyError
	}
	for name, code := range raw.Opcodes {
		reg.Opcodes[protocol.Op(strings.ToLower(strings.TrimSpace(name)))] = code
	}
	for key, name := range raw.Statuses {
		code, err := strconv.ParseUint(strings.TrimSpace(key), 0, 8)
		if err != nil {
			return fmt.Errorf("registry.statuses: key %q is not a status code: %w", key, err)
		}
		reg.Statuses[uint8(code)] = name
	}
	return nil
}

func (c Config) Validate() error {
	if len(c.Transport.Order) == 0 {
		return fmt.Errorf("config invalid: transport.order is empty")
	}
	for _, name := range c.Transport.Order {
		if name != transport.NameUSB && name != transport.NameBluetooth {
			return fmt.Errorf("config invalid: transport.order: %w %q", transport.ErrUnknownLink, name)
		}
	}
	if c.Transport.USB.ReportSize <= 0 {
		return fmt.Errorf("config invalid: transport.usb.report_size must be positive")
	}
	if c.Transport.Bluetooth.BufferSize <= 0 {
		return fmt.Errorf("config invalid: transport.bluetooth.buffer_size must be positive")
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}
	if err := c.Registry.Validate(); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}
	return nil
}
