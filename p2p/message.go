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

package p2p

// Message codes. 0x00-0x0F is reserved for UDP discovery (handled entirely
// inside the discover package and never seen by Channel Manager dispatch).
// 0x10-0x1F is session control, handled by the connection pipeline itself.
// 0x20-0xFF is free for the host application.
const (
	CodeKadPing      = 0x00
	CodeKadPong      = 0x01
	CodeKadFindNode  = 0x02
	CodeKadNeighbors = 0x03

	CodeDisconnect     = 0x10
	CodeHandshakeInit  = 0x11
	CodeHandshakeHello = 0x12
	CodeHandshakeWorld = 0x13
	CodePing           = 0x14
	CodePong           = 0x15

	CodeAppMin = 0x20
	CodeAppMax = 0xFF
)

// IsSessionControlCode reports whether code is reserved for the connection
// pipeline's own handshake/keep-alive/disconnect traffic.
func IsSessionControlCode(code byte) bool {
	return code >= 0x10 && code <= 0x1F
}

// IsApplicationCode reports whether code is in the range the host may
// register handlers for.
func IsApplicationCode(code byte) bool {
	return code >= CodeAppMin && code <= CodeAppMax
}

// Message is one decoded application-layer frame handed to a Handler.
type Message struct {
	Code byte
	Body []byte
}
