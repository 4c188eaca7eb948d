package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (device opened, session saved)
	LevelLive    = 2 // Live info (state transitions, shutter, countdown)
	LevelVerbose = 3 // Verbose (geometry inputs, transform details)
	LevelTrace   = 4 // Trace (GPIO, driver callbacks, frames)
)

var (
	mu     sync.RWMutex
	level  int
	out    io.Writer = os.Stdout
	logger           = zerolog.Nop()
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info
// 2 = live info (state transitions, captures)
// 3 = verbose (geometry, transforms)
// 4 = trace (GPIO, driver callbacks)
func Init(debugLevel int) {
	mu.Lock()
	defer mu.Unlock()
	level = debugLevel
	rebuild()
}

// SetOutput redirects debug output (e.g. to a web broadcaster as well as stdout).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	rebuild()
}

func rebuild() {
	if level <= LevelOff {
		logger = zerolog.Nop()
		return
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger = zerolog.New(out).
		Level(zerologLevel(level)).
		With().
		Timestamp().
		Str("service", "camctl").
		Logger()
}

func zerologLevel(l int) zerolog.Level {
	switch {
	case l >= LevelTrace:
		return zerolog.TraceLevel
	case l >= LevelLive:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

func base() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Level returns the current debug level.
func Level() int {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

// Component returns a child logger annotated with the given component name.
// Call it after Init: the child keeps the level and output it was built with.
func Component(name string) zerolog.Logger {
	return base().With().Str(FieldComponent, name).Logger()
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if IsEnabled(LevelInfo) {
		l := base()
		l.Info().Msgf(format, args...)
	}
}

// Value prints a named value (level 1).
func Value(name string, value interface{}) {
	if IsEnabled(LevelInfo) {
		l := base()
		l.Info().Interface(name, value).Msg("value")
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if IsEnabled(LevelLive) {
		l := base()
		l.Debug().Str("tag", "live").Msgf(format, args...)
	}
}

// Transition prints a state machine transition (level 2).
func Transition(machine string, from, to fmt.Stringer) {
	if IsEnabled(LevelLive) {
		l := base()
		l.Debug().
			Str(FieldComponent, machine).
			Str(FieldOldState, from.String()).
			Str(FieldNewState, to.String()).
			Msg("state transition")
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if IsEnabled(LevelVerbose) {
		l := base()
		l.Debug().Str("tag", "verbose").Msgf(format, args...)
	}
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if IsEnabled(LevelVerbose) {
		l := base()
		l.Debug().Str("tag", "verbose").Msgf("%s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if IsEnabled(LevelVerbose) {
		l := base()
		l.Debug().Str("section", name).Msg("━━━━━━━━━━━━━━━━━━━━")
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace).
func Trace(format string, args ...interface{}) {
	if IsEnabled(LevelTrace) {
		l := base()
		l.Trace().Msgf(format, args...)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if IsEnabled(LevelTrace) {
		l := base()
		l.Trace().Str("op", operation).Int("pin", pin).Interface("value", value).Msg("gpio")
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if IsEnabled(LevelInfo) {
		l := base()
		l.Error().Err(err).Msg("error")
	}
}
