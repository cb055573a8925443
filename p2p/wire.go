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

import "encoding/binary"

// wireBuf is a small append-only byte builder used to assemble the signed
// bytes of a handshake message and its on-wire body. All multi-byte
// integers are big-endian, matching the TCP frame header.
type wireBuf struct {
	b []byte
}

func (w *wireBuf) byte(v byte) *wireBuf { w.b = append(w.b, v); return w }

func (w *wireBuf) u16(v uint16) *wireBuf {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	w.b = append(w.b, tmp[:]...)
	return w
}

func (w *wireBuf) u32(v uint32) *wireBuf {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	w.b = append(w.b, tmp[:]...)
	return w
}

func (w *wireBuf) u64(v uint64) *wireBuf {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	w.b = append(w.b, tmp[:]...)
	return w
}

func (w *wireBuf) bytes(v []byte) *wireBuf {
	w.u32(uint32(len(v)))
	w.b = append(w.b, v...)
	return w
}

func (w *wireBuf) str(v string) *wireBuf { return w.bytes([]byte(v)) }

func (w *wireBuf) strs(v []string) *wireBuf {
	w.u32(uint32(len(v)))
	for _, s := range v {
		w.str(s)
	}
	return w
}

func (w *wireBuf) bytesVal() []byte { return w.b }

// wireReader consumes a wireBuf-encoded byte slice in order.
type wireReader struct {
	b   []byte
	off int
}

func newWireReader(b []byte) *wireReader { return &wireReader{b: b} }

func (r *wireReader) remaining() int { return len(r.b) - r.off }

func (r *wireReader) byte() (byte, error) {
	if r.remaining() < 1 {
		return 0, &ParseError{Kind: ErrKindTruncatedField}
	}
	v := r.b[r.off]
	r.off++
	return v, nil
}

func (r *wireReader) u16() (uint16, error) {
	if r.remaining() < 2 {
		return 0, &ParseError{Kind: ErrKindTruncatedField}
	}
	v := binary.BigEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v, nil
}

func (r *wireReader) u32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, &ParseError{Kind: ErrKindTruncatedField}
	}
	v := binary.BigEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v, nil
}

func (r *wireReader) u64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, &ParseError{Kind: ErrKindTruncatedField}
	}
	v := binary.BigEndian.Uint64(r.b[r.off:])
	r.off += 8
	return v, nil
}

func (r *wireReader) bytes() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if r.remaining() < int(n) {
		return nil, &ParseError{Kind: ErrKindTruncatedField}
	}
	v := r.b[r.off : r.off+int(n)]
	r.off += int(n)
	return v, nil
}

func (r *wireReader) str() (string, error) {
	b, err := r.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *wireReader) strs() ([]string, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := r.str()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
