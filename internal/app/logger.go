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

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
)

// defaultLogger writes to stderr, dropping messages below its level
type defaultLogger struct {
	output io.Writer
	min    level
}

// NewLogger creates a stderr logger. Recognized levels: debug, info,
// warn, error. Anything else means info.
func NewLogger(lvl string) Logger {
	return &defaultLogger{output: os.Stderr, min: parseLevel(lvl)}
}

func parseLevel(s string) level {
	switch strings.ToLower(s) {
	case "debug":
		return levelDebug
	case "warn", "warning":
		return levelWarn
	case "error":
		return levelError
	}
	return levelInfo
}

func (l *defaultLogger) log(lvl level, prefix, format string, args ...interface{}) {
	if lvl < l.min {
		return
	}
	fmt.Fprintf(l.output, prefix+format+"\n", args...)
}

func (l *defaultLogger) Debug(format string, args ...interface{}) {
	l.log(levelDebug, "DEBUG: ", format, args...)
}

func (l *defaultLogger) Info(format string, args ...interface{}) {
	l.log(levelInfo, "INFO: ", format, args...)
}

func (l *defaultLogger) Warn(format string, args ...interface{}) {
	l.log(levelWarn, "WARN: ", format, args...)
}

func (l *defaultLogger) Error(format string, args ...interface{}) {
	l.log(levelError, "ERROR: ", format, args...)
}

// NopLogger discards everything. Used by tests.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
