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

package common

import "testing"

func TestHexIDRoundTrip(t *testing.T) {
	id := MustHexID("0x000102030405060708090a0b0c0d0e0f10111213")
	if got := id.String(); got != "0x000102030405060708090a0b0c0d0e0f10111213" {
		t.Fatalf("unexpected string rendering: %s", got)
	}
	if len(id) != NodeIDBytes {
		t.Fatalf("expected %d bytes, got %d", NodeIDBytes, len(id))
	}
}

func TestHexIDWrongLength(t *testing.T) {
	if _, err := HexID("0xaabb"); err == nil {
		t.Fatal("expected error for short hex id")
	}
}

func TestLogDistSelf(t *testing.T) {
	var a NodeID
	if d := LogDist(a, a); d != 0 {
		t.Fatalf("expected distance 0 for identical ids, got %d", d)
	}
}

func TestLogDistMaximal(t *testing.T) {
	var a, b NodeID
	for i := range b {
		b[i] = 0xff
	}
	if d := LogDist(a, b); d != NodeIDBits {
		t.Fatalf("expected max distance %d, got %d", NodeIDBits, d)
	}
	if idx := BucketIndex(a, b); idx != NodeIDBits-1 {
		t.Fatalf("expected clamped bucket index %d, got %d", NodeIDBits-1, idx)
	}
}

// TestDistanceMonotonicity exercises invariant 1 from the testable
// properties: the XOR distance ordering of (a,b) vs (a,c) agrees with the
// bucket index ordering, save for ties that land in the same bucket.
func TestDistanceMonotonicity(t *testing.T) {
	a := MustHexID("0x1111111111111111111111111111111111111111")
	b := MustHexID("0x1111111111111111111111111111111111111100")
	c := MustHexID("0xffffffffffffffffffffffffffffffffffffffff")

	cmp := DistanceCmp(a, b, c)
	ib, ic := BucketIndex(a, b), BucketIndex(a, c)
	if cmp < 0 && ib > ic {
		t.Fatalf("distance says b closer but bucket index disagrees: ib=%d ic=%d", ib, ic)
	}
	if cmp > 0 && ic > ib {
		t.Fatalf("distance says c closer but bucket index disagrees: ib=%d ic=%d", ib, ic)
	}
}
