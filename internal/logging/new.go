package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Options selects the implementation and destination of the root logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text, json, console
	// File, when set, receives the log through a rotating writer instead of Output.
	File   string
	Output io.Writer
}

// New builds the root logger. text and json are served by slog, console by
// zerolog's ConsoleWriter. The returned closer releases the log file.
func New(opts Options) (Logger, io.Closer) {
	var out io.Writer = os.Stderr
	if opts.Output != nil {
		out = opts.Output
	}
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rot := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
		out, closer = rot, rot
	}

	switch opts.Format {
	case FormatConsole:
		zl := zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: opts.File != ""}).
			Level(zerologLevel(opts.Level)).
			With().Timestamp().Logger()
		return NewZerologLogger(zl), closer
	case FormatJSON:
		h := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slogLevel(opts.Level)})
		return NewSlogLogger(slog.New(h)), closer
	default:
		h := slog.NewTextHandler(out, &slog.HandlerOptions{Level: slogLevel(opts.Level)})
		return NewSlogLogger(slog.New(h)), closer
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
