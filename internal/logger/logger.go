// Package logger provides the configured zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

// Format and level are read from ARCANA_LOG_FORMAT (json|console) and
// ARCANA_LOG_LEVEL. Call sites should use .Stack() on error events.
func New(component string) zerolog.Logger {
	return NewWithWriter(component, os.Stderr, os.Getenv("ARCANA_LOG_FORMAT"), os.Getenv("ARCANA_LOG_LEVEL"))
}

func NewWithWriter(component string, w io.Writer, format, level string) zerolog.Logger {
	zerolog.ErrorStackMarshaler = func(err error) interface{} {
		type stackTracer interface{ StackTrace() pkgerrors.StackTrace }
		if _, ok := err.(stackTracer); !ok {
			err = pkgerrors.WithStack(err)
		}
		return zpkgerrors.MarshalStack(err)
	}

	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().
		Str("component", component).
		Timestamp().
		Logger()
}

// Nop discards everything; handy for tests and library defaults.
func Nop() zerolog.Logger { return zerolog.Nop() }
