package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Log is the process-wide logger. It writes JSON at info level until Setup runs.
var Log = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Setup configures Log. format "console" switches to human-readable output for local runs.
func Setup(level, format string) {
	Log = New(os.Stderr, level, format)
}

func New(out io.Writer, level, format string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: out}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(out).With().Timestamp().Logger().Level(lvl)
}
