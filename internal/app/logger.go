package app

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Logger interface for app layer
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// level ordering for the stderr logger
const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

func parseLevel(s string) int {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return levelDebug
	case "WARN":
		return levelWarn
	case "ERROR":
		return levelError
	default:
		return levelInfo
	}
}

// stderrLogger writes leveled lines to a single writer
type stderrLogger struct {
	output io.Writer
	min    int
}

// NewStderrLogger creates a logger filtering below the given level
// (DEBUG, INFO, WARN, ERROR; unknown values default to INFO).
func NewStderrLogger(output io.Writer, level string) Logger {
	return &stderrLogger{output: output, min: parseLevel(level)}
}

func (l *stderrLogger) log(lvl int, prefix, format string, args ...interface{}) {
	if lvl < l.min {
		return
	}
	fmt.Fprintf(l.output, prefix+format+"\n", args...)
}

func (l *stderrLogger) Debug(format string, args ...interface{}) {
	l.log(levelDebug, "DEBUG: ", format, args...)
}

func (l *stderrLogger) Info(format string, args ...interface{}) {
	l.log(levelInfo, "INFO: ", format, args...)
}

func (l *stderrLogger) Warn(format string, args ...interface{}) {
	l.log(levelWarn, "WARN: ", format, args...)
}

func (l *stderrLogger) Error(format string, args ...interface{}) {
	l.log(levelError, "ERROR: ", format, args...)
}

// globalLogger is the logger instance used by app layer
var globalLogger Logger = NewStderrLogger(os.Stderr, "INFO")

// SetLogger sets the global logger for app layer
func SetLogger(logger Logger) {
	if logger != nil {
		globalLogger = logger
	}
}

// GetLogger returns the current logger
func GetLogger() Logger {
	return globalLogger
}
