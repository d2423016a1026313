// Buffered telemetry logging for the resistance controller.
//
// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package log provides the controller's leveled logger and its appender
// chain. Log lines are buffered in the handler and pushed to the appenders
// by WriteLogs, which the maintenance supervisor calls on its 500 ms
// cadence; hot-path logging therefore never touches the network.
package log

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a string into a LogLevel, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Appender receives fully formatted log lines on each flush.
type Appender interface {
	// Append delivers a batch of formatted lines. Best effort: delivery
	// failures are the appender's problem, not the control loops'.
	Append(lines []string)

	// Close releases the appender's resources.
	Close() error
}

// maxBuffered bounds the handler's line buffer between flushes. When the
// buffer is full the oldest lines are dropped.
const maxBuffered = 256

// Handler buffers formatted log lines and fans them out to appenders.
type Handler struct {
	mu        sync.Mutex
	appenders []Appender
	buffer    []string
	dropped   int

	// console receives lines immediately, outside the buffered path.
	console io.Writer

	level      LogLevel
	timeFormat string
}

// NewHandler returns a Handler writing immediately to console (typically
// stderr; nil disables console output).
func NewHandler(console io.Writer) *Handler {
	return &Handler{
		console:    console,
		level:      INFO,
		timeFormat: "2006-01-02 15:04:05.000",
	}
}

// AddAppender registers an appender for buffered delivery.
func (h *Handler) AddAppender(a Appender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appenders = append(h.appenders, a)
}

// SetLevel sets the minimum level recorded by loggers on this handler.
func (h *Handler) SetLevel(level LogLevel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.level = level
}

// Level returns the current minimum level.
func (h *Handler) Level() LogLevel {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level
}

// WriteLogs flushes buffered lines to every appender. Called periodically
// by the maintenance supervisor.
func (h *Handler) WriteLogs() {
	h.mu.Lock()
	if h.dropped > 0 {
		h.buffer = append(h.buffer,
			fmt.Sprintf("%s [WARN ] LOG: %d lines dropped",
				time.Now().Format(h.timeFormat), h.dropped))
		h.dropped = 0
	}
	lines := h.buffer
	h.buffer = nil
	appenders := make([]Appender, len(h.appenders))
	copy(appenders, h.appenders)
	h.mu.Unlock()

	if len(lines) == 0 {
		return
	}
	for _, a := range appenders {
		a.Append(lines)
	}
}

// Close flushes once more and closes every appender.
func (h *Handler) Close() error {
	h.WriteLogs()

	h.mu.Lock()
	appenders := h.appenders
	h.appenders = nil
	h.mu.Unlock()

	var firstErr error
	for _, a := range appenders {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// record formats one line, writes it to the console, and buffers it for
// the appenders.
func (h *Handler) record(level LogLevel, prefix, msg string) {
	h.mu.Lock()
	if level < h.level {
		h.mu.Unlock()
		return
	}

	line := fmt.Sprintf("%s [%-5s] %s: %s",
		time.Now().Format(h.timeFormat), level.String(), prefix, msg)

	if len(h.buffer) >= maxBuffered {
		h.buffer = h.buffer[1:]
		h.dropped++
	}
	h.buffer = append(h.buffer, line)
	console := h.console
	h.mu.Unlock()

	if console != nil {
		fmt.Fprintln(console, line)
	}
}

// Logger is a per-component logger bound to a Handler.
type Logger struct {
	handler *Handler
	prefix  string
}

// New returns a logger with the given component prefix on the handler.
func (h *Handler) New(prefix string) *Logger {
	return &Logger{handler: h, prefix: prefix}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.handler.record(DEBUG, l.prefix, fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.handler.record(INFO, l.prefix, fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.handler.record(WARN, l.prefix, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.handler.record(ERROR, l.prefix, fmt.Sprintf(format, args...))
}

// Discard returns a logger that records nothing, for tests.
func Discard() *Logger {
	h := NewHandler(nil)
	h.SetLevel(ERROR + 1)
	return h.New("")
}
