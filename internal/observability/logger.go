package observability

import (
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileSink returns a size-rotated JSON log file writer.
func FileSink(path string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    5,
		MaxBackups: 3,
		MaxAge:     28,
	}
}

// SessionLogger derives a logger tagged with a fresh session id and the
// transport carrying it.
func SessionLogger(transport string) zerolog.Logger {
	return log.Logger.With().
		Str("app", "brickctl").
		Str("session", uuid.NewString()).
		Str("transport", transport).
		Logger()
}
