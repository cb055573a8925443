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

// Package discover implements a Kademlia-style discovery protocol over UDP:
// node identifier space, k-buckets with eviction, ping/pong liveness,
// find-node/neighbors lookup, bootstrap and iterative resolution.
package discover

import (
	"net"
	"time"

	"github.com/xdagnet/xdp2p/common"
)

// State is a NodeHandler's liveness state machine.
type State int

const (
	StateDiscovered State = iota
	StateAlive
	StateDead
)

// Node is one routing-table entry: an endpoint plus the bookkeeping the
// spec's NodeRecord calls for.
type Node struct {
	ID     common.NodeID
	IP     net.IP
	UDPPort int
	TCPPort int

	FirstSeen     time.Time
	LastSeen      time.Time
	LastContacted time.Time
	Reputation    int
	State         State

	findFails int
	addedAt   time.Time // when this record entered the local table, for DB eviction
}

// addr returns the UDP address to send discovery packets to.
func (n *Node) addr() *net.UDPAddr {
	return &net.UDPAddr{IP: n.IP, Port: n.UDPPort}
}

// equalEndpoint reports whether two endpoints name the same peer: the spec
// defines endpoint equality purely by node id.
func equalEndpoint(a, b *Node) bool { return a.ID == b.ID }

func newNode(id common.NodeID, ip net.IP, udpPort, tcpPort int) *Node {
	now := time.Now()
	return &Node{
		ID:         id,
		IP:         ip,
		UDPPort:    udpPort,
		TCPPort:    tcpPort,
		FirstSeen:  now,
		LastSeen:   now,
		Reputation: 100,
		State:      StateDiscovered,
		addedAt:    now,
	}
}

func (n *Node) String() string {
	return n.ID.String() + "@" + n.addr().String()
}
