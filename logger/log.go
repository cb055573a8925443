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
	"io"
	"os"

	"github.com/xdagnet/xdp2p/common"
	"gopkg.in/natefinch/lumberjack.v2"
)

// openLogFile opens filename for append, rotating it through lumberjack so a
// long-running node doesn't grow an unbounded log file.
func openLogFile(datadir string, filename string) io.Writer {
	path := common.EnsurePathAbsoluteOrRelativeTo(datadir, filename)
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
	}
}

// New installs a plain-text (optionally colorized) log system writing to
// logFile, or to stdout if logFile is empty.
func New(datadir string, logFile string, logLevel int, flags int) LogSystem {
	var writer io.Writer
	if logFile == "" {
		writer = os.Stdout
	} else {
		writer = openLogFile(datadir, logFile)
	}

	sys := NewStdLogSystem(writer, flags, LogLevel(logLevel))
	AddLogSystem(sys)
	return sys
}

// BuildNewMLogSystem installs the structured mlog line format.
func BuildNewMLogSystem(datadir string, logFile string, logLevel int, flags int, withTimestamp bool) LogSystem {
	var writer io.Writer
	if logFile == "" {
		writer = os.Stdout
	} else {
		writer = openLogFile(datadir, logFile)
	}

	sys := NewMLogSystem(writer, flags, LogLevel(logLevel), withTimestamp)
	AddLogSystem(sys)
	return sys
}

// NewJSONsystem installs a newline-delimited-JSON log system.
func NewJSONsystem(datadir string, logFile string) LogSystem {
	var writer io.Writer
	if logFile == "-" {
		writer = os.Stdout
	} else {
		writer = openLogFile(datadir, logFile)
	}

	sys := NewJsonLogSystem(writer)
	AddLogSystem(sys)
	return sys
}
