package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide root logger. Engine packages never log
// through it directly; they derive scoped children via WithComponent or
// ForStore so every line names its origin.
var Logger zerolog.Logger

// Level names a verbosity threshold. The zero value resolves to info.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// zerologLevel resolves a Level leniently: case-insensitive, with
// "warning" accepted for "warn" and anything unrecognized becoming info.
func (l Level) zerologLevel() zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(l))) {
	case string(DebugLevel):
		return zerolog.DebugLevel
	case string(WarnLevel), "warning":
		return zerolog.WarnLevel
	case string(ErrorLevel):
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init installs the root logger. Logs go to stderr unless an Output is
// given: stdout belongs to command results, and the CLI's --json mode
// must stay machine-parseable. Timestamps are emitted in milliseconds,
// the same resolution the WAL records.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(cfg.Level.zerologLevel())
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if !cfg.JSONOutput {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
			PartsOrder: []string{
				zerolog.TimestampFieldName,
				zerolog.LevelFieldName,
				"component",
				zerolog.MessageFieldName,
			},
		}
	}
	Logger = zerolog.New(output).With().Timestamp().Logger()
}

// WithComponent derives a child logger for one engine subsystem
// (registry, api, events, ...).
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// ForStore derives the logger shape used on every per-store path: the
// subsystem plus the store id it is acting on. The WAL and the store
// both log through this so a single store's
// activity can be filtered out of a multi-store process.
func ForStore(component, storeID string) zerolog.Logger {
	return Logger.With().
		Str("component", component).
		Str("store_id", storeID).
		Logger()
}
