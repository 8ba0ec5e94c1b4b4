// Package logger provides the relay's structured logging wrapper around
// zerolog. Call sites pass a component tag as the first argument so log
// lines can be filtered per-package, matching the shape used throughout
// this repository's predecessor (InfoCF/WarnCF/ErrorCF/DebugCF).
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	once sync.Once
	base zerolog.Logger
)

func get() zerolog.Logger {
	once.Do(func() {
		var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		if os.Getenv("RELAY_LOG_FORMAT") == "json" {
			out = os.Stderr
		}
		level := zerolog.InfoLevel
		if lvl, err := zerolog.ParseLevel(os.Getenv("RELAY_LOG_LEVEL")); err == nil {
			level = lvl
		}
		base = zerolog.New(out).With().Timestamp().Logger().Level(level)
	})
	return base
}

// SetOutput redirects all future log lines, for tests that want to capture
// output instead of polluting stderr.
func SetOutput(w io.Writer) {
	once.Do(func() {})
	base = zerolog.New(w).With().Timestamp().Logger()
}

func event(e *zerolog.Event, component, msg string, fields map[string]any) {
	e = e.Str("component", component)
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

// DebugCF logs a debug-level line for component with structured fields.
func DebugCF(component, msg string, fields map[string]any) {
	event(get().Debug(), component, msg, fields)
}

// InfoCF logs an info-level line for component with structured fields.
func InfoCF(component, msg string, fields map[string]any) {
	event(get().Info(), component, msg, fields)
}

// WarnCF logs a warn-level line for component with structured fields.
func WarnCF(component, msg string, fields map[string]any) {
	event(get().Warn(), component, msg, fields)
}

// ErrorCF logs an error-level line for component with structured fields.
func ErrorCF(component, msg string, fields map[string]any) {
	event(get().Error(), component, msg, fields)
}

// InfoC logs an info-level line for component with no extra fields.
func InfoC(component, msg string) {
	InfoCF(component, msg, nil)
}

// WarnC logs a warn-level line for component with no extra fields.
func WarnC(component, msg string) {
	WarnCF(component, msg, nil)
}
