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

package discover

import (
	"encoding/binary"
	"net"

	"github.com/xdagnet/xdp2p/common"
)

// Discovery message codes (0x00-0x0F of the shared message-code space; see
// p2p.CodeKad*). Declared again here so this package has no import-time
// dependency on the root p2p package.
const (
	codePing      = 0x00
	codePong      = 0x01
	codeFindNode  = 0x02
	codeNeighbors = 0x03
)

// maxDatagramSize is the hard cap on a discovery UDP packet; anything
// larger (or a 1-byte datagram) is dropped with a warning, never parsed.
const maxDatagramSize = 2048

// wbuf is the primitive-field encoder used for discovery packet bodies:
// byte, short, int, long, length-prefixed bytes/string, bool.
type wbuf struct{ b []byte }

func (w *wbuf) putByte(v byte) *wbuf { w.b = append(w.b, v); return w }
func (w *wbuf) putBool(v bool) *wbuf {
	if v {
		return w.putByte(1)
	}
	return w.putByte(0)
}
func (w *wbuf) putShort(v uint16) *wbuf {
	var t [2]byte
	binary.BigEndian.PutUint16(t[:], v)
	w.b = append(w.b, t[:]...)
	return w
}
func (w *wbuf) putInt(v uint32) *wbuf {
	var t [4]byte
	binary.BigEndian.PutUint32(t[:], v)
	w.b = append(w.b, t[:]...)
	return w
}
func (w *wbuf) putLong(v uint64) *wbuf {
	var t [8]byte
	binary.BigEndian.PutUint64(t[:], v)
	w.b = append(w.b, t[:]...)
	return w
}
func (w *wbuf) putBytes(v []byte) *wbuf {
	w.putInt(uint32(len(v)))
	w.b = append(w.b, v...)
	return w
}
func (w *wbuf) putString(v string) *wbuf { return w.putBytes([]byte(v)) }
func (w *wbuf) putIP(ip net.IP) *wbuf {
	v4 := ip.To4()
	if v4 != nil {
		return w.putByte(4).putBytes(v4)
	}
	v6 := ip.To16()
	if v6 != nil {
		return w.putByte(6).putBytes(v6)
	}
	return w.putByte(0).putBytes(nil)
}
func (w *wbuf) putNodeID(id common.NodeID) *wbuf { return w.putBytes(id.Bytes()) }
func (w *wbuf) bytes() []byte                    { return w.b }

type rbuf struct {
	b   []byte
	off int
}

func newRbuf(b []byte) *rbuf { return &rbuf{b: b} }

func (r *rbuf) left() int { return len(r.b) - r.off }

func (r *rbuf) getByte() (byte, error) {
	if r.left() < 1 {
		return 0, errShortDatagram
	}
	v := r.b[r.off]
	r.off++
	return v, nil
}

func (r *rbuf) getBool() (bool, error) {
	v, err := r.getByte()
	return v != 0, err
}

func (r *rbuf) getShort() (uint16, error) {
	if r.left() < 2 {
		return 0, errShortDatagram
	}
	v := binary.BigEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v, nil
}

func (r *rbuf) getInt() (uint32, error) {
	if r.left() < 4 {
		return 0, errShortDatagram
	}
	v := binary.BigEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v, nil
}

func (r *rbuf) getLong() (uint64, error) {
	if r.left() < 8 {
		return 0, errShortDatagram
	}
	v := binary.BigEndian.Uint64(r.b[r.off:])
	r.off += 8
	return v, nil
}

func (r *rbuf) getBytes() ([]byte, error) {
	n, err := r.getInt()
	if err != nil {
		return nil, err
	}
	if r.left() < int(n) {
		return nil, errShortDatagram
	}
	v := r.b[r.off : r.off+int(n)]
	r.off += int(n)
	return v, nil
}

func (r *rbuf) getString() (string, error) {
	b, err := r.getBytes()
	return string(b), err
}

func (r *rbuf) getIP() (net.IP, error) {
	kind, err := r.getByte()
	if err != nil {
		return nil, err
	}
	raw, err := r.getBytes()
	if err != nil {
		return nil, err
	}
	switch kind {
	case 4, 6:
		return net.IP(raw), nil
	default:
		return nil, nil
	}
}

func (r *rbuf) getNodeID() (common.NodeID, error) {
	var id common.NodeID
	raw, err := r.getBytes()
	if err != nil {
		return id, err
	}
	if len(raw) != common.NodeIDBytes {
		return id, errShortDatagram
	}
	copy(id[:], raw)
	return id, nil
}
