// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package logging

import (
	"fmt"
	"log"
	"strings"
)

var (
	// DefaultLogger is the default logger and is used by httputils.
	DefaultLogger Logger = New("HTTPUtils")
)

const (
	// LevelAll enables all logs.
	LevelAll = iota
	// LevelDebug logs are usually disabled in production.
	LevelDebug
	// LevelInfo is the default logging priority.
	LevelInfo
	// LevelWarn .
	LevelWarn
	// LevelError .
	LevelError
	// LevelNone disables all logs.
	LevelNone
)

var levelNames = map[string]int{
	"all":   LevelAll,
	"debug": LevelDebug,
	"info":  LevelInfo,
	"warn":  LevelWarn,
	"error": LevelError,
	"none":  LevelNone,
}

// Logger defines log interface.
type Logger interface {
	SetLevel(lvl int)
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// SetLogger sets default logger.
func SetLogger(l Logger) {
	DefaultLogger = l
}

// SetLevel sets default logger's priority.
func SetLevel(lvl int) {
	switch lvl {
	case LevelAll, LevelDebug, LevelInfo, LevelWarn, LevelError, LevelNone:
		DefaultLogger.SetLevel(lvl)
	default:
		log.Printf("invalid log level: %v", lvl)
	}
}

// ParseLevel maps a level name such as "debug" or "warn" to its value.
func ParseLevel(name string) (int, error) {
	lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return LevelInfo, fmt.Errorf("invalid log level %q", name)
	}
	return lvl, nil
}

// New returns a logger that prefixes every line with [tag].
func New(tag string) Logger {
	return &logger{level: LevelInfo, tag: tag}
}

// logger implements Logger and is used by default.
type logger struct {
	level int
	tag   string
}

// SetLevel sets logs priority.
func (l *logger) SetLevel(lvl int) {
	switch lvl {
	case LevelAll, LevelDebug, LevelInfo, LevelWarn, LevelError, LevelNone:
		l.level = lvl
	default:
		log.Printf("invalid log level: %v", lvl)
	}
}

func (l *logger) output(lvl int, prefix, format string, v ...interface{}) {
	if lvl < l.level {
		return
	}
	if l.tag != "" {
		prefix += " [" + l.tag + "]"
	}
	log.Printf(prefix+" "+format+"\n", v...)
}

// Debug logs a message at LevelDebug.
func (l *logger) Debug(format string, v ...interface{}) {
	l.output(LevelDebug, "[DBG]", format, v...)
}

// Info logs a message at LevelInfo.
func (l *logger) Info(format string, v ...interface{}) {
	l.output(LevelInfo, "[INF]", format, v...)
}

// Warn logs a message at LevelWarn.
func (l *logger) Warn(format string, v ...interface{}) {
	l.output(LevelWarn, "[WRN]", format, v...)
}

// Error logs a message at LevelError.
func (l *logger) Error(format string, v ...interface{}) {
	l.output(LevelError, "[ERR]", format, v...)
}

// Debug uses DefaultLogger to log a message at LevelDebug.
func Debug(format string, v ...interface{}) {
	if DefaultLogger != nil {
		DefaultLogger.Debug(format, v...)
	}
}

// Info uses DefaultLogger to log a message at LevelInfo.
func Info(format string, v ...interface{}) {
	if DefaultLogger != nil {
		DefaultLogger.Info(format, v...)
	}
}

// Warn uses DefaultLogger to log a message at LevelWarn.
func Warn(format string, v ...interface{}) {
	if DefaultLogger != nil {
		DefaultLogger.Warn(format, v...)
	}
}

// Error uses DefaultLogger to log a message at LevelError.
func Error(format string, v ...interface{}) {
	if DefaultLogger != nil {
		DefaultLogger.Error(format, v...)
	}
}
