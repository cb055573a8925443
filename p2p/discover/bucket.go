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
	"github.com/xdagnet/xdp2p/common"
	"github.com/xdagnet/xdp2p/p2p/distip"
)

// bucketSize is Kademlia's K: at most this many live entries per bucket.
const bucketSize = 16

// bucketIPLimit caps how many entries in a single bucket may share a /24,
// so one host announcing many ids can't monopolize a bucket.
const bucketIPLimit, bucketSubnet = 2, 24

// bucket holds up to bucketSize Nodes ordered least-recently-seen first (so
// entries[0] is the eviction candidate). A pending replacement challenges
// entries[0] before an insert into a full bucket is allowed to evict it.
type bucket struct {
	entries []*Node
	ips     distip.DistinctNetSet
}

// find returns the entry for id, or nil.
func (b *bucket) find(id common.NodeID) *Node {
	for _, n := range b.entries {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// bumpToTail moves n to the tail (most-recently-seen position), used when a
// known node is touched again.
func (b *bucket) bumpToTail(n *Node) {
	for i, e := range b.entries {
		if e == n {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			b.entries = append(b.entries, n)
			return
		}
	}
}

// addIfRoom appends n and returns true if the bucket had room and n's /24
// is under bucketIPLimit. If full, the caller is responsible for running
// the least-recently-seen challenge before calling evictAndAdd.
func (b *bucket) addIfRoom(n *Node) bool {
	if len(b.entries) >= bucketSize {
		return false
	}
	if !b.ips.Add(n.IP) {
		return false
	}
	b.entries = append(b.entries, n)
	return true
}

// oldest returns the least-recently-seen entry, or nil if empty.
func (b *bucket) oldest() *Node {
	if len(b.entries) == 0 {
		return nil
	}
	return b.entries[0]
}

// evictAndAdd removes the oldest entry and appends replacement.
func (b *bucket) evictAndAdd(replacement *Node) {
	if len(b.entries) > 0 {
		b.ips.Remove(b.entries[0].IP)
		b.entries = b.entries[1:]
	}
	b.ips.Add(replacement.IP)
	b.entries = append(b.entries, replacement)
}

// remove deletes n from the bucket, if present.
func (b *bucket) remove(n *Node) {
	for i, e := range b.entries {
		if e == n {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			b.ips.Remove(n.IP)
			return
		}
	}
}
