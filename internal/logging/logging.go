// Package logging initializes the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Config controls logger initialization.
type Config struct {
	Format    string // "json", "console", or "auto"
	Level     string // "debug", "info", "warn", "error"
	Component string // optional component name
}

var (
	mu           sync.Mutex
	isTerminalFn = term.IsTerminal
)

// Init configures the global logger. Safe to call more than once; the last
// call wins (the config watcher re-applies level changes through SetLevel).
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	zerolog.TimeFieldFormat = time.RFC3339

	var w io.Writer = os.Stderr
	if useConsole(cfg.Format) {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(w).With().Timestamp()
	if cfg.Component != "" {
		logger = logger.Str("component", cfg.Component)
	}
	log.Logger = logger.Logger().Level(ParseLevel(cfg.Level))
}

// SetLevel adjusts the global level at runtime.
func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	log.Logger = log.Logger.Level(ParseLevel(level))
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func useConsole(format string) bool {
	switch strings.ToLower(format) {
	case "console":
		return true
	case "json":
		return false
	default:
		return isTerminalFn(int(os.Stderr.Fd()))
	}
}
