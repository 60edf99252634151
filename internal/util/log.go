// Package util provides logging and small helpers shared by every package.
package util

import (
	"fmt"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by pterm's default logger.
// All output goes to stderr by default (pterm's default).

func LogDebug(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// Scope is a logger that prefixes every line with a component tag,
// e.g. "[video] discarding late packet".
type Scope string

func (s Scope) Debug(format string, args ...interface{}) {
	LogDebug("[%s] %s", string(s), fmt.Sprintf(format, args...))
}

func (s Scope) Info(format string, args ...interface{}) {
	LogInfo("[%s] %s", string(s), fmt.Sprintf(format, args...))
}

func (s Scope) Warning(format string, args ...interface{}) {
	LogWarning("[%s] %s", string(s), fmt.Sprintf(format, args...))
}

func (s Scope) Error(format string, args ...interface{}) {
	LogError("[%s] %s", string(s), fmt.Sprintf(format, args...))
}
