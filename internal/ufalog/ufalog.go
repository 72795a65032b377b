// Package ufalog wires the daemon and CLI tools to a single zerolog logger,
// mapping the spec's -l level vocabulary onto zerolog levels.
package ufalog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Init replaces it; until Init is
// called it writes human-readable output at info level to stderr.
var Logger zerolog.Logger

// Level is one of the daemon's -l <level> values.
type Level string

const (
	Off   Level = "off"
	Debug Level = "debug"
	Info  Level = "info"
	Warn  Level = "warn"
	Error Level = "error"
	Fatal Level = "fatal"
)

// Config controls how Init builds the global logger.
type Config struct {
	Level    Level
	Detailed bool // -L: full timestamps/caller info instead of terse console output
	Output   io.Writer
}

// Init builds the global Logger from cfg. Safe to call more than once; the
// daemon calls it exactly once at startup after flags are parsed.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(toZerologLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.Detailed {
		Logger = zerolog.New(output).With().Timestamp().Caller().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{Out: output, NoColor: true}).
		With().Timestamp().Logger()
}

func toZerologLevel(l Level) zerolog.Level {
	switch l {
	case Off:
		return zerolog.Disabled
	case Debug:
		return zerolog.DebugLevel
	case Info:
		return zerolog.InfoLevel
	case Warn:
		return zerolog.WarnLevel
	case Error:
		return zerolog.ErrorLevel
	case Fatal:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithComponent returns a child logger tagged with a component field, used
// by the reactor, the RPC server, and the repository cache to scope their
// log lines.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

func init() {
	Init(Config{Level: Info})
}
