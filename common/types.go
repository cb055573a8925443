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

// Package common holds small types and helpers shared across the networking
// stack: node identifiers, hex rendering and atomic file persistence.
package common

import (
	"encoding/hex"
	"fmt"
)

// NodeIDBits is the width of a NodeID in bits: a 160-bit hash of a public key,
// the same width as an account address. The older 64-byte raw-pubkey node id
// scheme is not implemented.
const NodeIDBits = 160

// NodeIDBytes is the width of a NodeID in bytes.
const NodeIDBytes = NodeIDBits / 8

// NodeID uniquely identifies a node on the network. It is derived from the
// node's long-lived public key by crypto.NodeIDFromPubkey (the low 20 bytes
// of keccak256 over the 64-byte uncompressed public key).
type NodeID [NodeIDBytes]byte

// Bytes returns a copy of id as a byte slice.
func (id NodeID) Bytes() []byte { return id[:] }

// String renders the id as a 0x-prefixed hex string.
func (id NodeID) String() string { return "0x" + hex.EncodeToString(id[:]) }

// IsZero reports whether id is the zero value.
func (id NodeID) IsZero() bool { return id == NodeID{} }

// HexID parses a hex string (with or without 0x prefix) into a NodeID.
func HexID(s string) (NodeID, error) {
	var id NodeID
	s = trimHexPrefix(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("common: hex string has wrong length, want %d bytes, have %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// MustHexID is like HexID but panics on error. Intended for tests and
// hard-coded bootstrap identifiers.
func MustHexID(s string) NodeID {
	id, err := HexID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// DistanceCmp compares the XOR distances target->a and target->b, returning -1, 0
// or 1 analogous to bytes.Compare. It is the building block used by the
// routing table to order candidate nodes by closeness to a target.
func DistanceCmp(target, a, b NodeID) int {
	for i := range target {
		da := a[i] ^ target[i]
		db := b[i] ^ target[i]
		if da != db {
			if da < db {
				return -1
			}
			return 1
		}
	}
	return 0
}

// LogDist returns 160 minus the number of leading zero bits of (a XOR b),
// unclamped. A value of 0 means a == b.
func LogDist(a, b NodeID) int {
	lz := 0
	for i := range a {
		x := a[i] ^ b[i]
		if x == 0 {
			lz += 8
			continue
		}
		lz += leadingZeros8(x)
		break
	}
	return NodeIDBits - lz
}

// BucketIndex returns the routing-table bucket that would hold b in a's
// table: LogDist(a, b) clamped to [0, NodeIDBits-1].
func BucketIndex(a, b NodeID) int {
	d := LogDist(a, b)
	if d < 0 {
		return 0
	}
	if d > NodeIDBits-1 {
		return NodeIDBits - 1
	}
	return d
}

func leadingZeros8(x byte) int {
	n := 0
	for i := 7; i >= 0; i-- {
		if x&(1<<uint(i)) != 0 {
			break
		}
		n++
	}
	return n
}
