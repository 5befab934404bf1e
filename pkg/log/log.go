// Copyright The VM-PACK Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"k8s.io/klog/v2"
)

// Level describes the severity of a log message.
type Level int

const (
	// LevelDebug is the severity for debug messages.
	LevelDebug Level = iota
	// LevelInfo is the severity for informational messages.
	LevelInfo
	// LevelWarn is the severity for warnings.
	LevelWarn
	// LevelError is the severity for errors.
	LevelError
)

// Logger is the interface for producing log messages for/from a particular source.
type Logger interface {
	// Debug formats and emits a debug message.
	Debug(format string, args ...interface{})
	// Info formats and emits an informational message.
	Info(format string, args ...interface{})
	// Warn formats and emits a warning message.
	Warn(format string, args ...interface{})
	// Error formats and emits an error message.
	Error(format string, args ...interface{})
	// Panic formats and emits an error message then panics with the same.
	Panic(format string, args ...interface{})
	// Fatal formats and emits an error message and os.Exit()'s with status 1.
	Fatal(format string, args ...interface{})

	// Debugf is an alias for Debug.
	Debugf(format string, args ...interface{})
	// Infof is an alias for Info.
	Infof(format string, args ...interface{})
	// Warnf is an alias for Warn.
	Warnf(format string, args ...interface{})
	// Errorf is an alias for Error.
	Errorf(format string, args ...interface{})

	// EnableDebug enables or disables debug messages for this Logger.
	EnableDebug(bool) bool
	// DebugEnabled checks if debug messages are enabled for this Logger.
	DebugEnabled() bool
	// Source returns the source name of this Logger.
	Source() string

	// SlogHandler returns a log/slog handler emitting through this Logger.
	SlogHandler() slog.Handler
}

// logger implements Logger for a single source.
type logger struct {
	source string
}

// logging is the shared state of all loggers.
type logging struct {
	sync.RWMutex
	level   Level
	prefix  bool
	dbgmap  srcmap
	debug   map[string]bool
	loggers map[string]logger
}

var (
	log = &logging{
		level:   DefaultLevel,
		dbgmap:  make(srcmap),
		debug:   make(map[string]bool),
		loggers: make(map[string]logger),
	}
	deflog = log.get("default")
)

// Get returns the Logger for the given source, creating it if necessary.
func Get(source string) Logger {
	return log.get(source)
}

// NewLogger is an alias for Get.
func NewLogger(source string) Logger {
	return log.get(source)
}

// Default returns the default Logger.
func Default() Logger {
	return deflog
}

// SetLevel sets the lowest severity level of messages which are emitted.
func SetLevel(level Level) {
	log.Lock()
	defer log.Unlock()
	log.level = level
}

func (l *logging) get(source string) logger {
	l.Lock()
	defer l.Unlock()

	if lg, ok := l.loggers[source]; ok {
		return lg
	}

	lg := logger{source: source}
	l.loggers[source] = lg
	l.debug[source] = l.dbgmap.enabled(source)

	return lg
}

func (l *logging) setDbgMap(m srcmap) {
	l.dbgmap = m
	for source := range l.loggers {
		l.debug[source] = m.enabled(source)
	}
}

func (l *logging) setPrefix(prefix bool) {
	l.prefix = prefix
}

func (l *logging) debugEnabled(source string) bool {
	l.RLock()
	defer l.RUnlock()
	return l.debug[source] || l.level <= LevelDebug
}

func (l *logging) format(source, format string, args ...interface{}) string {
	msg := fmt.Sprintf(format, args...)

	l.RLock()
	prefix := l.prefix
	l.RUnlock()

	if !prefix {
		return msg
	}
	return "[" + source + "] " + msg
}

func (m srcmap) enabled(source string) bool {
	if state, ok := m[source]; ok {
		return state
	}
	if state, ok := m["*"]; ok {
		return state
	}
	return false
}

func (l logger) emit(level Level, format string, args ...interface{}) {
	msg := log.format(l.source, format, args...)
	for _, line := range strings.Split(msg, "\n") {
		switch level {
		case LevelDebug, LevelInfo:
			klog.InfoDepth(2, line)
		case LevelWarn:
			klog.WarningDepth(2, line)
		default:
			klog.ErrorDepth(2, line)
		}
	}
}

func (l logger) Debug(format string, args ...interface{}) {
	if !l.DebugEnabled() {
		return
	}
	l.emit(LevelDebug, format, args...)
}

func (l logger) Info(format string, args ...interface{}) {
	log.RLock()
	skip := log.level > LevelInfo
	log.RUnlock()
	if skip {
		return
	}
	l.emit(LevelInfo, format, args...)
}

func (l logger) Warn(format string, args ...interface{}) {
	log.RLock()
	skip := log.level > LevelWarn
	log.RUnlock()
	if skip {
		return
	}
	l.emit(LevelWarn, format, args...)
}

func (l logger) Error(format string, args ...interface{}) {
	l.emit(LevelError, format, args...)
}

func (l logger) Panic(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.emit(LevelError, "%s", msg)
	panic(msg)
}

func (l logger) Fatal(format string, args ...interface{}) {
	l.emit(LevelError, format, args...)
	klog.FlushAndExit(klog.ExitFlushTimeout, 1)
}

func (l logger) Debugf(format string, args ...interface{}) { l.Debug(format, args...) }
func (l logger) Infof(format string, args ...interface{})  { l.Info(format, args...) }
func (l logger) Warnf(format string, args ...interface{})  { l.Warn(format, args...) }
func (l logger) Errorf(format string, args ...interface{}) { l.Error(format, args...) }

func (l logger) EnableDebug(state bool) bool {
	log.Lock()
	defer log.Unlock()
	prev := log.debug[l.source]
	log.debug[l.source] = state
	return prev
}

func (l logger) DebugEnabled() bool {
	return log.debugEnabled(l.source)
}

func (l logger) Source() string {
	return l.source
}

// loggerError returns a package-specific formatted error.
func loggerError(format string, args ...interface{}) error {
	return fmt.Errorf("logger: "+format, args...)
}

// parseEnabled parses a boolean-ish on/off state.
func parseEnabled(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on", "true", "enable", "enabled", "1", "yes":
		return true, nil
	case "off", "false", "disable", "disabled", "0", "no":
		return false, nil
	}
	return false, loggerError("invalid enabled/disabled state %q", value)
}
