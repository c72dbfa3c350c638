package observability

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/brickctl/internal/testutil/testlog"
	"github.com/rs/zerolog/log"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordExchange("list", OutcomeCompleted, 12*time.Millisecond)
	RecordChunk("up", 1017)
	LogExchange(log.Logger, "remove", 3, OutcomeFailed, 1, time.Millisecond, errors.New("device error"))
	LogExchange(log.Logger, "test", 4, OutcomeTimedOut, 5, time.Second, nil)
}

func TestWriteMetricsFile(t *testing.T) {
	testlog.Start(t)
	RecordExchange("mkdir", OutcomeCompleted, time.Millisecond)
	path := filepath.Join(t.TempDir(), "brickctl.prom")
	if err := WriteMetricsFile(path); err != nil {
		t.Fatalf("write metrics: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(data), "brickctl_session_exchanges_total") {
		t.Fatalf("metrics file missing exchange counter:\n%s", data)
	}
}

func TestSessionLoggerTagsSession(t *testing.T) {
	testlog.Start(t)
	a := SessionLogger("usb")
	b := SessionLogger("usb")
	a.Debug().Msg("a")
	b.Debug().Msg("b")
}
