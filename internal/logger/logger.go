package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init builds the process logger, installs it as the zerolog global and
// returns it for explicit injection.
func Init(level, format string) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLogLevel(level))

	l := New(os.Stdout, format)
	log.Logger = l
	return l
}

// New creates a logger writing to w. Format "json" writes structured lines,
// anything else uses the human readable console writer.
func New(w io.Writer, format string) zerolog.Logger {
	if strings.ToLower(format) != "json" {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    false,
		}
	}

	return zerolog.New(w).With().
		Timestamp().
		Caller().
		Str("service", "queuemon").
		Logger()
}

// parseLogLevel parses string log level to zerolog level
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}
