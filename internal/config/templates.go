package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

const templateHeader = `# brickctl configuration
#
# Every key is optional; omitted keys keep their built-in default.
# Opcodes for exec, kill, copy and move are firmware specific and have no
# default: add them under [registry.opcodes] when your firmware has them.

`

// Template renders cfg as a config file.
func Template(cfg Config) (string, error) {
	raw := fileConfig{
		CD: cfg.CD,
		Transport: transportFile{
			Order: cfg.Transport.Order,
			USB: usbFile{
				VendorID:   cfg.Transport.USB.VendorID,
				ProductID:  cfg.Transport.USB.ProductID,
				Serial:     cfg.Transport.USB.Serial,
				ReportID:   cfg.Transport.USB.ReportID,
				ReportSize: cfg.Transport.USB.ReportSize,
			},
			Bluetooth: bluetoothFile{
				Port:       cfg.Transport.Bluetooth.Port,
				BaudRate:   cfg.Transport.Bluetooth.BaudRate,
				BufferSize: cfg.Transport.Bluetooth.BufferSize,
			},
		},
		Session: sessionFile{
			ReadTimeout: cfg.Session.ReadTimeout.String(),
			Retries:     cfg.Session.Retries,
			MaxChunk:    cfg.Session.MaxChunk,
			MaxTransfer: cfg.Session.MaxTransfer,
		},
		Registry: registryFile{
			Kinds: kindsFile{
				ReplyExpected: cfg.Registry.Kinds.ReplyExpected,
				NoReply:       cfg.Registry.Kinds.NoReply,
				Reply:         cfg.Registry.Kinds.Reply,
				ReplyError:    cfg.Registry.Kinds.ReplyError,
			},
			Opcodes:  make(map[string]uint8, len(cfg.Registry.Opcodes)),
			Statuses: make(map[string]string, len(cfg.Registry.Statuses)),
		},
		Logging: loggingFileConf{
			Level:       cfg.Logging.Level,
			File:        cfg.Logging.File,
			MetricsFile: cfg.Logging.MetricsFile,
		},
	}
	for op, code := range cfg.Registry.Opcodes {
		raw.Registry.Opcodes[string(op)] = code
	}
	for code, name := range cfg.Registry.Statuses {
		raw.Registry.Statuses[strconv.Itoa(int(code))] = name
	}

	var buf bytes.Buffer
	buf.WriteString(templateHeader)
	if err := toml.NewEncoder(&buf).Encode(raw); err != nil {
		return "", fmt.Errorf("render config template: %w", err)
	}
	return buf.String(), nil
}

// WriteTemplate writes the default config to path, creating its directory.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	body, err := Template(DefaultConfig())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, []byte(body), 0o600)
}
