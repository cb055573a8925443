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
	"sort"
	"sync"
	"time"

	"github.com/xdagnet/xdp2p/common"
	"github.com/xdagnet/xdp2p/p2p/distip"
)

const (
	staleBucketAge = 1 * time.Hour

	minConnectableReputation = 20

	trimSoftCap = 2000
	trimHardCap = 3000

	tableIPLimit, tableSubnet = 10, 24 // at most 10 addresses from the same /24 across the whole table
)

// Table is the routing table: common.NodeIDBits buckets indexed by XOR
// distance from self, plus an id index for O(1) membership checks. self is
// never inserted.
type Table struct {
	mu      sync.RWMutex
	buckets [common.NodeIDBits]*bucket
	byID    map[common.NodeID]*Node

	self *Node
	ips  distip.DistinctNetSet

	pinger pinger // sends the liveness-challenge ping, implemented by UDP

	db *nodeDB // persistent cache, nil if the node was configured without a DataDir

	decayHours float64 // hours passed to DecayReputation not yet turned into a step
}

// pinger is the narrow interface Table needs back into the UDP transport,
// kept separate so table logic can be unit tested without real sockets.
type pinger interface {
	ping(n *Node) error
}

func newTable(self *Node, p pinger, db *nodeDB) *Table {
	t := &Table{
		byID:   make(map[common.NodeID]*Node),
		self:   self,
		ips:    distip.DistinctNetSet{Subnet: tableSubnet, Limit: tableIPLimit},
		pinger: p,
		db:     db,
	}
	for i := range t.buckets {
		t.buckets[i] = &bucket{ips: distip.DistinctNetSet{Subnet: bucketSubnet, Limit: bucketIPLimit}}
	}
	return t
}

func (t *Table) bucketIndex(id common.NodeID) int {
	return common.BucketIndex(t.self.ID, id)
}

// Contains reports whether id is currently tracked.
func (t *Table) Contains(id common.NodeID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.byID[id]
	return ok
}

// Touch updates last_seen/last_contacted for an already-known node and
// moves its bucket entry to the tail.
func (t *Table) Touch(id common.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.byID[id]
	if !ok {
		return
	}
	n.LastSeen = time.Now()
	n.LastContacted = n.LastSeen
	n.findFails = 0
	b := t.buckets[t.bucketIndex(id)]
	b.bumpToTail(n)
	t.db.save(n)
}

// Add inserts a newly discovered node into its bucket. If the bucket is
// full, the least-recently-seen entry is challenged with a ping through
// t.pinger, synchronously and outside the table lock: if it answers it is
// touched and n is discarded, otherwise it is evicted and n takes its place.
func (t *Table) Add(n *Node) {
	if n.ID == t.self.ID {
		return
	}
	t.mu.Lock()
	if _, ok := t.byID[n.ID]; ok {
		t.mu.Unlock()
		t.Touch(n.ID)
		return
	}
	if !t.ips.Add(n.IP) {
		t.mu.Unlock()
		return
	}

	idx := t.bucketIndex(n.ID)
	b := t.buckets[idx]

	if b.addIfRoom(n) {
		t.byID[n.ID] = n
		t.mu.Unlock()
		t.db.save(n)
		return
	}
	t.ips.Remove(n.IP)

	oldest := b.oldest()
	t.mu.Unlock()

	if oldest == nil || t.pinger == nil {
		return
	}
	// Challenge the oldest entry outside the lock: a real ping round-trips
	// over the network and must not block table writers.
	if err := t.pinger.ping(oldest); err == nil {
		t.Touch(oldest.ID)
		return
	}
	t.mu.Lock()
	if _, ok := t.byID[n.ID]; ok {
		t.mu.Unlock()
		return
	}
	delete(t.byID, oldest.ID)
	t.ips.Remove(oldest.IP)
	t.ips.Add(n.IP)
	b.evictAndAdd(n)
	t.byID[n.ID] = n
	t.mu.Unlock()
	t.db.delete(oldest.ID)
	t.db.save(n)
}

// MarkAlive records a successful ping/pong round-trip: reputation +5 (capped
// at 200), state promoted to ALIVE.
func (t *Table) MarkAlive(id common.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.byID[id]
	if !ok {
		return
	}
	n.Reputation += 5
	if n.Reputation > 200 {
		n.Reputation = 200
	}
	n.State = StateAlive
	n.LastSeen = time.Now()
	t.db.save(n)
}

// Penalize applies delta (normally negative) to id's reputation, e.g. a ping
// timeout (-5). Reputation floors at 0; a node whose reputation falls below
// minConnectableReputation is marked DEAD but stays in the table.
func (t *Table) Penalize(id common.NodeID, delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.byID[id]
	if !ok {
		return
	}
	n.Reputation += delta
	if n.Reputation < 0 {
		n.Reputation = 0
	}
	if n.Reputation < minConnectableReputation {
		n.State = StateDead
	}
	t.db.save(n)
}

// DecayReputation moves every record's reputation_score toward the default
// of 100 at 5 points per 24 hours. It is run once per hour by the scheduler
// with deltaHours=1; elapsed hours accumulate across calls until they add up
// to at least one whole point.
func (t *Table) DecayReputation(deltaHours float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.decayHours += deltaHours
	step := int(5 * t.decayHours / 24)
	if step == 0 {
		return
	}
	t.decayHours -= float64(step) * 24 / 5
	for _, n := range t.byID {
		switch {
		case n.Reputation < 100:
			n.Reputation += step
			if n.Reputation > 100 {
				n.Reputation = 100
			}
		case n.Reputation > 100:
			n.Reputation -= step
			if n.Reputation < 100 {
				n.Reputation = 100
			}
		}
	}
}

// Drop removes n from the table entirely.
func (t *Table) Drop(n *Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[n.ID]; !ok {
		return
	}
	delete(t.byID, n.ID)
	t.buckets[t.bucketIndex(n.ID)].remove(n)
	t.ips.Remove(n.IP)
	t.db.delete(n.ID)
}

type byDistance struct {
	nodes  []*Node
	target common.NodeID
}

func (s *byDistance) Len() int      { return len(s.nodes) }
func (s *byDistance) Swap(i, j int) { s.nodes[i], s.nodes[j] = s.nodes[j], s.nodes[i] }
func (s *byDistance) Less(i, j int) bool {
	cmp := common.DistanceCmp(s.target, s.nodes[i].ID, s.nodes[j].ID)
	if cmp != 0 {
		return cmp < 0
	}
	return s.nodes[i].LastSeen.After(s.nodes[j].LastSeen)
}

// ClosestTo returns up to n records ordered by ascending XOR distance from
// target, ties broken by more-recent LastSeen.
func (t *Table) ClosestTo(target common.NodeID, n int) []*Node {
	t.mu.RLock()
	all := make([]*Node, 0, len(t.byID))
	for _, node := range t.byID {
		all = append(all, node)
	}
	t.mu.RUnlock()

	sort.Sort(&byDistance{nodes: all, target: target})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// Connectable returns every tracked node that is not DEAD and has
// reputation at least minConnectableReputation, ordered by reputation then
// distance from self - the candidate order the Channel Manager's outbound
// maintenance job consumes.
func (t *Table) Connectable() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Node, 0, len(t.byID))
	for _, n := range t.byID {
		if n.State == StateDead || n.Reputation < minConnectableReputation {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Reputation != out[j].Reputation {
			return out[i].Reputation > out[j].Reputation
		}
		return common.DistanceCmp(t.self.ID, out[i].ID, out[j].ID) < 0
	})
	return out
}

// Size returns the total number of tracked nodes.
func (t *Table) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

// nodeDBMaxAge is how long a persisted node may go untouched before the
// on-disk cache drops it, independent of the in-memory table's own state.
const nodeDBMaxAge = 7 * 24 * time.Hour

// ExpirePersisted prunes stale entries from the on-disk node cache. It does
// not touch the in-memory table.
func (t *Table) ExpirePersisted() {
	t.db.expire(nodeDBMaxAge)
}

// Trim enforces the table's size bounds: past trimSoftCap, DEAD entries are
// purged first; if that isn't enough to get under trimHardCap, the
// oldest-touched entries (by LastSeen) are evicted until size <= soft cap.
func (t *Table) Trim() {
	t.mu.Lock()
	size := len(t.byID)
	if size <= trimSoftCap {
		t.mu.Unlock()
		return
	}

	var dead []*Node
	for _, n := range t.byID {
		if n.State == StateDead {
			dead = append(dead, n)
		}
	}
	for _, n := range dead {
		if len(t.byID) <= trimSoftCap {
			break
		}
		delete(t.byID, n.ID)
		t.buckets[t.bucketIndex(n.ID)].remove(n)
		t.ips.Remove(n.IP)
	}

	if len(t.byID) > trimHardCap {
		all := make([]*Node, 0, len(t.byID))
		for _, n := range t.byID {
			all = append(all, n)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].LastSeen.Before(all[j].LastSeen) })
		for _, n := range all {
			if len(t.byID) <= trimSoftCap {
				break
			}
			delete(t.byID, n.ID)
			t.buckets[t.bucketIndex(n.ID)].remove(n)
			t.ips.Remove(n.IP)
		}
	}
	t.mu.Unlock()
}

// staleBucketIndices returns the index of every bucket whose most-recently
// touched entry is older than staleBucketAge. Empty buckets are skipped.
func (t *Table) staleBucketIndices(now time.Time) []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var stale []int
	for i, b := range t.buckets {
		if len(b.entries) == 0 {
			continue
		}
		newest := b.entries[len(b.entries)-1].LastSeen
		if now.Sub(newest) > staleBucketAge {
			stale = append(stale, i)
		}
	}
	return stale
}
