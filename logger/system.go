// Copyright 2024 The xdp2p Authors
// This file is part of xdp2p.
//
// xdp2p is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// xdp2p is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with xdp2p. If not, see <http://www.gnu.org/licenses/>.

package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// LogLevel mirrors the verbosity scale used throughout the networking core:
// higher numbers are more verbose.
type LogLevel int

const (
	Silence LogLevel = iota
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
	DetailLevel
)

// LogSystem receives every log line emitted through a Logger and decides how
// (or whether) to persist it. Multiple systems can be registered at once,
// e.g. a colorized stderr writer plus a JSON file sink.
type LogSystem interface {
	LogPrint(level LogLevel, msg string)
	SetLogLevel(level LogLevel)
}

var (
	logSystemsMu sync.RWMutex
	logSystems   []LogSystem
)

// AddLogSystem registers sys to receive all future log lines.
func AddLogSystem(sys LogSystem) {
	logSystemsMu.Lock()
	defer logSystemsMu.Unlock()
	logSystems = append(logSystems, sys)
}

func broadcast(level LogLevel, msg string) {
	logSystemsMu.RLock()
	defer logSystemsMu.RUnlock()
	for _, sys := range logSystems {
		sys.LogPrint(level, msg)
	}
}

// Logger is a named, component-scoped emitter. The p2p package's mlog.go
// obtains one per structured-event component (e.g. "server", "discover").
type Logger struct {
	component string
}

// NewLogger returns a Logger scoped to component.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// Sendf writes a formatted structured log line. calldepth is accepted for
// API parity with callers that may want it for future caller-frame
// attribution; it is currently unused.
func (l *Logger) Sendf(calldepth int, format string, args ...interface{}) {
	msg := fmt.Sprintf("[%s] %s", l.component, fmt.Sprintf(format, args...))
	broadcast(InfoLevel, msg)
}

func (l *Logger) send(level LogLevel, args ...interface{}) {
	broadcast(level, fmt.Sprintf("[%s] %s", l.component, fmt.Sprint(args...)))
}

// Infoln logs a line at InfoLevel.
func (l *Logger) Infoln(args ...interface{}) { l.send(InfoLevel, args...) }

// Warnln logs a line at WarnLevel.
func (l *Logger) Warnln(args ...interface{}) { l.send(WarnLevel, args...) }

// Errorln logs a line at ErrorLevel.
func (l *Logger) Errorln(args ...interface{}) { l.send(ErrorLevel, args...) }

// Debugln logs a line at DebugLevel.
func (l *Logger) Debugln(args ...interface{}) { l.send(DebugLevel, args...) }

// stdLogSystem writes plain or colorized lines to an io.Writer.
type stdLogSystem struct {
	mu     sync.Mutex
	w      io.Writer
	level  LogLevel
	colors bool
}

// NewStdLogSystem creates a LogSystem that writes timestamped lines to w.
// Every line is prefixed with a timestamp regardless of flags; any non-zero
// flags value turns on colorized output by level.
func NewStdLogSystem(w io.Writer, flags int, level LogLevel) LogSystem {
	return &stdLogSystem{w: w, level: level, colors: flags != 0}
}

func (s *stdLogSystem) SetLogLevel(level LogLevel) {
	s.mu.Lock()
	s.level = level
	s.mu.Unlock()
}

func (s *stdLogSystem) LogPrint(level LogLevel, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level > s.level {
		return
	}
	line := fmt.Sprintf("%s %s\n", time.Now().Format("2006/01/02 15:04:05"), msg)
	if s.colors {
		line = colorForLevel(level)(line)
	}
	io.WriteString(s.w, line)
}

// jsonLogSystem writes one JSON object per log line.
type jsonLogSystem struct {
	mu    sync.Mutex
	w     io.Writer
	level LogLevel
}

// NewJsonLogSystem creates a LogSystem emitting newline-delimited JSON.
func NewJsonLogSystem(w io.Writer) LogSystem {
	return &jsonLogSystem{w: w, level: DetailLevel}
}

func (s *jsonLogSystem) SetLogLevel(level LogLevel) {
	s.mu.Lock()
	s.level = level
	s.mu.Unlock()
}

func (s *jsonLogSystem) LogPrint(level LogLevel, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level > s.level {
		return
	}
	enc := json.NewEncoder(s.w)
	_ = enc.Encode(map[string]interface{}{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": int(level),
		"msg":   msg,
	})
}

// mlogLogSystem writes the structured "RECEIVER VERB SUBJECT detail..." line
// format produced by MLogT.String, optionally timestamped.
type mlogLogSystem struct {
	mu            sync.Mutex
	w             io.Writer
	level         LogLevel
	withTimestamp bool
}

// NewMLogSystem creates a LogSystem for the mlog structured-event format.
func NewMLogSystem(w io.Writer, flags int, level LogLevel, withTimestamp bool) LogSystem {
	return &mlogLogSystem{w: w, level: level, withTimestamp: withTimestamp}
}

func (s *mlogLogSystem) SetLogLevel(level LogLevel) {
	s.mu.Lock()
	s.level = level
	s.mu.Unlock()
}

func (s *mlogLogSystem) LogPrint(level LogLevel, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level > s.level {
		return
	}
	if s.withTimestamp {
		fmt.Fprintf(s.w, "%s %s\n", time.Now().UTC().Format(time.RFC3339Nano), msg)
		return
	}
	fmt.Fprintf(s.w, "%s\n", msg)
}
