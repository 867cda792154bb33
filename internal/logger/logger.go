// Package logger provides request-level logging helpers. Long-lived
// components use a named hclog.Logger instead; see NewComponentLogger.
package logger

import (
	"log"
	"os"

	"github.com/hashicorp/go-hclog"
)

// Info logs informational messages
func Info(format string, args ...interface{}) {
	log.Printf("INFO: "+format, args...)
}

// Warn logs warning messages
func Warn(format string, args ...interface{}) {
	log.Printf("WARN: "+format, args...)
}

// Error logs error messages
func Error(format string, args ...interface{}) {
	log.Printf("ERROR: "+format, args...)
}

// Debug logs debug messages
func Debug(format string, args ...interface{}) {
	log.Printf("DEBUG: "+format, args...)
}

// NewComponentLogger returns a named structured logger for a long-lived
// component such as the session registry or the audit writer.
func NewComponentLogger(name string) hclog.Logger {
	level := hclog.LevelFromString(os.Getenv("STREAMGATE_LOG_LEVEL"))
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   name,
		Level:  level,
		Output: os.Stdout,
	})
}
