package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/brickctl/internal/protocol"
	"github.com/danmuck/brickctl/internal/transport"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	t.Setenv("CD", "")
	path := filepath.Join(t.TempDir(), "absent.toml")

	cfg, err := Load(path, false)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)

	_, err = Load(path, true)
	require.Error(t, err)
}

func TestLoadOverlaysDefinedKeysOnly(t *testing.T) {
	t.Setenv("CD", "")
	path := writeConfig(t, `
cd = "../prjs"

[transport]
order = ["Bluetooth"]

[transport.bluetooth]
port = "/dev/rfcomm1"

[session]
read_timeout = "250ms"
retries = 9
max_transfer = 1048576

[registry.opcodes]
exec = 0xB1
kill = 0xB2

[registry.statuses]
"0x0D" = "busy"

[logging]
level = "debug"
`)
	cfg, err := Load(path, true)
	require.NoError(t, err)

	def := DefaultConfig()
	require.Equal(t, "../prjs", cfg.CD)
	require.Equal(t, []string{transport.NameBluetooth}, cfg.Transport.Order)
	require.Equal(t, "/dev/rfcomm1", cfg.Transport.Bluetooth.Port)
	require.Equal(t, def.Transport.Bluetooth.BaudRate, cfg.Transport.Bluetooth.BaudRate)
	require.Equal(t, def.Transport.USB, cfg.Transport.USB)
	require.Equal(t, 250*time.Millisecond, cfg.Session.ReadTimeout)
	require.Equal(t, 9, cfg.Session.Retries)
	require.Equal(t, def.Session.MaxChunk, cfg.Session.MaxChunk)
	require.Equal(t, int64(1<<20), cfg.Session.MaxTransfer)
	require.Equal(t, uint8(0xB1), cfg.Registry.Opcodes[protocol.OpExec])
	require.Equal(t, uint8(0xB2), cfg.Registry.Opcodes[protocol.OpKill])
	require.Equal(t, uint8(0x99), cfg.Registry.Opcodes[protocol.OpList])
	require.Equal(t, "busy", cfg.Registry.Statuses[0x0D])
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvCDOverridesFile(t *testing.T) {
	t.Setenv("CD", "/media/card")
	path := writeConfig(t, `cd = "../prjs"`)

	cfg, err := Load(path, true)
	require.NoError(t, err)
	require.Equal(t, "/media/card", cfg.CD)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("CD", "")
	cases := map[string]string{
		"unknown key":      `colour = "red"`,
		"bad duration":     "[session]\nread_timeout = \"soon\"",
		"zero retries":     "[session]\nretries = 0",
		"negative limit":   "[session]\nmax_transfer = -1",
		"unknown link":     "[transport]\norder = [\"wifi\"]",
		"duplicate opcode": "[registry.opcodes]\nexec = 0x99",
		"unknown op":       "[registry.opcodes]\nreboot = 0xC0",
		"bad status key":   "[registry.statuses]\nbusy = \"x\"",
		"opcode overflow":  "[registry.opcodes]\nexec = 300",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body), true)
			require.Error(t, err)
		})
	}
}

func TestTemplateLoadsBackToDefaults(t *testing.T) {
	t.Setenv("CD", "")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, WriteTemplate(path, false))
	require.Error(t, WriteTemplate(path, false))
	require.NoError(t, WriteTemplate(path, true))

	cfg, err := Load(path, true)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	t.Setenv("HOME", "/tmp/home")
	path, err := DefaultPath()
	require.NoError(t, err)
	require.Equal(t, "config.toml", filepath.Base(path))
	require.Equal(t, "brickctl", filepath.Base(filepath.Dir(path)))
}
