// Package logging is a small facade over slog so interactive commands can
// silence background noise without threading a logger everywhere.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
)

var (
	disabled atomic.Bool
	logger   = slog.New(slog.NewTextHandler(os.Stderr, nil))
)

// Disable turns off all logging (used for clean interactive output).
func Disable() {
	disabled.Store(true)
}

// Enable turns logging back on.
func Enable() {
	disabled.Store(false)
}

// SetLogger replaces the backing slog logger.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// Infof logs a formatted info message.
func Infof(format string, v ...any) {
	if !disabled.Load() {
		logger.Info(fmt.Sprintf(format, v...))
	}
}

// Warnf logs a formatted warning message.
func Warnf(format string, v ...any) {
	if !disabled.Load() {
		logger.Warn(fmt.Sprintf(format, v...))
	}
}

// Errorf logs a formatted error message.
func Errorf(format string, v ...any) {
	if !disabled.Load() {
		logger.Error(fmt.Sprintf(format, v...))
	}
}

// Debugf logs a formatted debug message.
func Debugf(format string, v ...any) {
	if !disabled.Load() {
		logger.Debug(fmt.Sprintf(format, v...))
	}
}
