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

import (
	"net"

	"github.com/xdagnet/xdp2p/metrics"
)

// meteredConn wraps a channel's TCP connection so every byte in or out is
// reflected in the owning Node's metrics.Registry.
type meteredConn struct {
	net.Conn
	markBytes func(int64)
}

func newMeteredConn(reg *metrics.Registry, conn net.Conn, ingress bool) net.Conn {
	if ingress {
		return &meteredConn{conn, reg.BytesIn.Mark}
	}
	return &meteredConn{conn, reg.BytesOut.Mark}
}

func (c *meteredConn) Read(b []byte) (n int, err error) {
	n, err = c.Conn.Read(b)
	c.markBytes(int64(n))
	return
}

func (c *meteredConn) Write(b []byte) (n int, err error) {
	n, err = c.Conn.Write(b)
	c.markBytes(int64(n))
	return
}
