// SPDX-License-Identifier: MIT

// Package log is the sensor's level-gated logger. It wraps the standard
// library logger with an atomically stored global level so the level can be
// changed from configuration without locking, and hands out named loggers
// that prefix each line with the subsystem that wrote it.
//
// Nothing in this package may be called from the sample delivery path.
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

// --- Global Logger State ---

var currentLevel atomic.Uint32

// logger writes date, time with microseconds.
var logger = stdlog.New(os.Stderr, "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds)

func init() {
	SetLevel(LevelInfo)
}

// SetLevel sets the global logging level atomically.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetOutput redirects all log output. Tests use it to capture lines.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func shouldLog(level LogLevel) bool {
	return level >= GetLevel()
}

// output formats one line. INFO and WARN get an extra space so the message
// column lines up with the five letter levels.
func output(level LogLevel, prefix, msg string) {
	pad := " "
	if level == LevelInfo || level == LevelWarn {
		pad = "  "
	}
	if prefix != "" {
		msg = prefix + ": " + msg
	}
	_ = logger.Output(3, "["+level.String()+"]"+pad+msg)
}

// --- Package-level functions ---

func Debugf(format string, v ...any) {
	if shouldLog(LevelDebug) {
		output(LevelDebug, "", fmt.Sprintf(format, v...))
	}
}

func Infof(format string, v ...any) {
	if shouldLog(LevelInfo) {
		output(LevelInfo, "", fmt.Sprintf(format, v...))
	}
}

func Warnf(format string, v ...any) {
	if shouldLog(LevelWarn) {
		output(LevelWarn, "", fmt.Sprintf(format, v...))
	}
}

func Errorf(format string, v ...any) {
	if shouldLog(LevelError) {
		output(LevelError, "", fmt.Sprintf(format, v...))
	}
}

// Fatalf logs a formatted fatal message and exits the application.
// Fatal messages are always logged regardless of the current level.
func Fatalf(format string, v ...any) {
	output(LevelFatal, "", fmt.Sprintf(format, v...))
	os.Exit(1)
}

// --- Named loggers ---

// Logger prefixes every line with a subsystem name. The zero value logs
// without a prefix.
type Logger struct {
	name string
}

// Named returns a Logger for the given subsystem, e.g. Named("capture").
func Named(name string) Logger {
	return Logger{name: name}
}

// Name returns the subsystem prefix.
func (l Logger) Name() string { return l.name }

func (l Logger) Debugf(format string, v ...any) {
	if shouldLog(LevelDebug) {
		output(LevelDebug, l.name, fmt.Sprintf(format, v...))
	}
}

func (l Logger) Infof(format string, v ...any) {
	if shouldLog(LevelInfo) {
		output(LevelInfo, l.name, fmt.Sprintf(format, v...))
	}
}

func (l Logger) Warnf(format string, v ...any) {
	if shouldLog(LevelWarn) {
		output(LevelWarn, l.name, fmt.Sprintf(format, v...))
	}
}

func (l Logger) Errorf(format string, v ...any) {
	if shouldLog(LevelError) {
		output(LevelError, l.name, fmt.Sprintf(format, v...))
	}
}
