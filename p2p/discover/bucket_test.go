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
	"net"
	"testing"

	"github.com/xdagnet/xdp2p/p2p/distip"
)

func newTestBucket() *bucket {
	return &bucket{ips: distip.DistinctNetSet{Subnet: bucketSubnet, Limit: bucketIPLimit}}
}

func TestBucketAddIfRoom(t *testing.T) {
	b := newTestBucket()
	for i := 0; i < bucketSize; i++ {
		n := newNode(randomNodeID(), net.IPv4(10, 0, byte(i), 1), 30303, 30303)
		if !b.addIfRoom(n) {
			t.Fatalf("addIfRoom rejected entry %d of %d", i, bucketSize)
		}
	}
	overflow := newNode(randomNodeID(), net.IPv4(10, 0, 99, 1), 30303, 30303)
	if b.addIfRoom(overflow) {
		t.Error("addIfRoom accepted entry beyond bucketSize")
	}
}

func TestBucketIPLimit(t *testing.T) {
	b := newTestBucket()
	ip := net.IPv4(192, 168, 1, 1)
	accepted := 0
	for i := 0; i < bucketIPLimit+2; i++ {
		n := newNode(randomNodeID(), ip, 30303, 30303)
		if b.addIfRoom(n) {
			accepted++
		}
	}
	if accepted != bucketIPLimit {
		t.Errorf("accepted %d entries from one /24, want %d", accepted, bucketIPLimit)
	}
}

func TestBucketBumpToTail(t *testing.T) {
	b := newTestBucket()
	var nodes []*Node
	for i := 0; i < 5; i++ {
		n := newNode(randomNodeID(), net.IPv4(10, 1, byte(i), 1), 30303, 30303)
		nodes = append(nodes, n)
		b.addIfRoom(n)
	}
	b.bumpToTail(nodes[0])
	if b.entries[len(b.entries)-1] != nodes[0] {
		t.Error("bumpToTail did not move entry to tail")
	}
	if b.oldest() != nodes[1] {
		t.Error("oldest() did not return the new least-recently-seen entry")
	}
}

func TestBucketEvictAndAdd(t *testing.T) {
	b := newTestBucket()
	var nodes []*Node
	for i := 0; i < bucketSize; i++ {
		n := newNode(randomNodeID(), net.IPv4(10, 2, byte(i), 1), 30303, 30303)
		nodes = append(nodes, n)
		b.addIfRoom(n)
	}
	replacement := newNode(randomNodeID(), net.IPv4(10, 3, 0, 1), 30303, 30303)
	b.evictAndAdd(replacement)
	if len(b.entries) != bucketSize {
		t.Fatalf("bucket size = %d, want %d", len(b.entries), bucketSize)
	}
	if b.find(nodes[0].ID) != nil {
		t.Error("evicted entry still present")
	}
	if b.find(replacement.ID) == nil {
		t.Error("replacement entry missing after evictAndAdd")
	}
}

func TestBucketRemove(t *testing.T) {
	b := newTestBucket()
	n := newNode(randomNodeID(), net.IPv4(10, 4, 0, 1), 30303, 30303)
	b.addIfRoom(n)
	b.remove(n)
	if b.find(n.ID) != nil {
		t.Error("node still present after remove")
	}
	// Removing the IP slot should free it up for a new entry at the limit.
	ip := net.IPv4(10, 4, 0, 1)
	for i := 0; i < bucketIPLimit; i++ {
		if !b.addIfRoom(newNode(randomNodeID(), ip, 30303, 30303)) {
			t.Fatal("addIfRoom rejected entry after remove freed IP slot")
		}
	}
}
