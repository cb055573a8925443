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

import "github.com/fatih/color"

var (
	ColorGreen   = color.New(color.FgGreen).SprintFunc()
	ColorRed     = color.New(color.FgRed).SprintFunc()
	ColorBlue    = color.New(color.FgCyan).SprintFunc()
	ColorYellow  = color.New(color.FgYellow).SprintFunc()
	ColorMagenta = color.New(color.FgMagenta).SprintFunc()
)

func colorForLevel(level LogLevel) func(a ...interface{}) string {
	switch level {
	case ErrorLevel:
		return ColorRed
	case WarnLevel:
		return ColorYellow
	case DebugLevel, DetailLevel:
		return ColorBlue
	default:
		return ColorGreen
	}
}
