// Package logger adapts rs/zerolog to the core Logger interface.
package logger

import corelogger "github.com/kilianp07/fleetsim/core/logger"

type Logger = corelogger.Logger

// NopLogger discards everything.
type NopLogger = corelogger.Nop

// New returns a Logger for the given component. APP_ENV=dev switches to a
// human readable console format.
func New(component string) Logger {
	return NewZerologLogger(component)
}
