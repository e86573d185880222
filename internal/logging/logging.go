package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds a timestamped zerolog logger writing to w (stdout when nil).
// Unknown levels fall back to info.
func New(w io.Writer, level string) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Console is New with human-readable output, used outside production.
func Console(level string) zerolog.Logger {
	return New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}, level)
}
