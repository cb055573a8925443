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
	"time"

	"github.com/xdagnet/xdp2p/common"
)

// fakePinger always succeeds or always fails, for deterministic eviction
// tests without a real socket.
type fakePinger struct{ fail bool }

func (p *fakePinger) ping(n *Node) error {
	if p.fail {
		return errPongTimeout
	}
	return nil
}

func newTestTable(fail bool) (*Table, *fakePinger) {
	self := newNode(randomNodeID(), net.IPv4(127, 0, 0, 1), 30303, 30303)
	p := &fakePinger{fail: fail}
	return newTable(self, p, nil), p
}

func distinctIP(i int) net.IP {
	return net.IPv4(byte(10+i/65536), byte((i/256)%256), byte(i%256), 1)
}

func TestTableAddAndContains(t *testing.T) {
	tab, _ := newTestTable(false)
	n := newNode(randomNodeID(), distinctIP(1), 30303, 30303)
	tab.Add(n)
	if !tab.Contains(n.ID) {
		t.Error("table does not contain node just added")
	}
	if tab.Size() != 1 {
		t.Errorf("Size() = %d, want 1", tab.Size())
	}
}

func TestTableAddIgnoresSelf(t *testing.T) {
	tab, _ := newTestTable(false)
	tab.Add(tab.self)
	if tab.Size() != 0 {
		t.Error("table accepted its own id")
	}
}

func TestTableTouchUpdatesLastSeen(t *testing.T) {
	tab, _ := newTestTable(false)
	n := newNode(randomNodeID(), distinctIP(2), 30303, 30303)
	tab.Add(n)
	before := n.LastSeen
	time.Sleep(time.Millisecond)
	tab.Touch(n.ID)
	if !n.LastSeen.After(before) {
		t.Error("Touch did not update LastSeen")
	}
}

func TestTableDrop(t *testing.T) {
	tab, _ := newTestTable(false)
	n := newNode(randomNodeID(), distinctIP(3), 30303, 30303)
	tab.Add(n)
	tab.Drop(n)
	if tab.Contains(n.ID) {
		t.Error("table still contains dropped node")
	}
}

func TestTableClosestToOrdering(t *testing.T) {
	tab, _ := newTestTable(false)
	target := randomNodeID()
	for i := 0; i < 40; i++ {
		tab.Add(newNode(randomNodeID(), distinctIP(100+i), 30303, 30303))
	}
	closest := tab.ClosestTo(target, 10)
	if len(closest) != 10 {
		t.Fatalf("ClosestTo returned %d nodes, want 10", len(closest))
	}
	for i := 1; i < len(closest); i++ {
		if common.DistanceCmp(target, closest[i-1].ID, closest[i].ID) > 0 {
			t.Error("ClosestTo did not return nodes in ascending distance order")
		}
	}
}

func TestTableConnectableExcludesDeadAndLowReputation(t *testing.T) {
	tab, _ := newTestTable(false)
	alive := newNode(randomNodeID(), distinctIP(200), 30303, 30303)
	tab.Add(alive)

	dead := newNode(randomNodeID(), distinctIP(201), 30303, 30303)
	dead.State = StateDead
	tab.Add(dead)

	lowRep := newNode(randomNodeID(), distinctIP(202), 30303, 30303)
	lowRep.Reputation = 5
	tab.Add(lowRep)

	connectable := tab.Connectable()
	for _, n := range connectable {
		if n.ID == dead.ID {
			t.Error("Connectable included a DEAD node")
		}
		if n.ID == lowRep.ID {
			t.Error("Connectable included a low-reputation node")
		}
	}
}

func TestTableEvictionOnFullBucketPingFails(t *testing.T) {
	tab, _ := newTestTable(true) // ping always fails -> oldest gets evicted
	self := tab.self

	// Craft bucketSize+1 ids that all land in the same bucket as each
	// other (but not self) by fixing a prefix relative to self.
	var ids []common.NodeID
	for len(ids) < bucketSize+1 {
		id := randomNodeID()
		if common.BucketIndex(self.ID, id) == common.BucketIndex(self.ID, idOrFirst(ids, id)) {
			ids = append(ids, id)
		}
	}

	var nodes []*Node
	for i, id := range ids {
		n := newNode(id, distinctIP(300+i), 30303, 30303)
		nodes = append(nodes, n)
		tab.Add(n)
	}

	if tab.Contains(nodes[0].ID) {
		t.Error("oldest entry should have been evicted when its ping failed")
	}
	if !tab.Contains(nodes[len(nodes)-1].ID) {
		t.Error("newest entry should have replaced the evicted one")
	}
}

func idOrFirst(ids []common.NodeID, candidate common.NodeID) common.NodeID {
	if len(ids) == 0 {
		return candidate
	}
	return ids[0]
}

func TestTableMarkAliveAndPenalize(t *testing.T) {
	tab, _ := newTestTable(false)
	n := newNode(randomNodeID(), distinctIP(400), 30303, 30303)
	n.Reputation = 100
	tab.Add(n)

	tab.MarkAlive(n.ID)
	if n.Reputation != 105 {
		t.Errorf("Reputation after MarkAlive = %d, want 105", n.Reputation)
	}
	if n.State != StateAlive {
		t.Error("MarkAlive did not set state ALIVE")
	}

	tab.Penalize(n.ID, -5)
	if n.Reputation != 100 {
		t.Errorf("Reputation after Penalize = %d, want 100", n.Reputation)
	}
}

func TestTablePenalizeMarksDead(t *testing.T) {
	tab, _ := newTestTable(false)
	n := newNode(randomNodeID(), distinctIP(401), 30303, 30303)
	n.Reputation = 22
	tab.Add(n)

	tab.Penalize(n.ID, -5)
	if n.State != StateDead {
		t.Error("Penalize did not mark a sub-threshold node DEAD")
	}
}

func TestTableTrimSoftCap(t *testing.T) {
	tab, _ := newTestTable(false)
	// Force a small cap via a throwaway table sized like production would
	// be impractical in a unit test; instead verify Trim is a no-op under
	// the cap and doesn't panic over it by directly exercising the dead-node
	// purge path at a reduced scale.
	for i := 0; i < 10; i++ {
		n := newNode(randomNodeID(), distinctIP(500+i), 30303, 30303)
		if i%2 == 0 {
			n.State = StateDead
		}
		tab.Add(n)
	}
	tab.Trim() // under trimSoftCap: no-op
	if tab.Size() != 10 {
		t.Errorf("Trim() altered table size under the soft cap: got %d, want 10", tab.Size())
	}
}
