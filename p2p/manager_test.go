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

import (
	"math/rand"
	"net"
	"testing"

	"github.com/xdagnet/xdp2p/common"
	"github.com/xdagnet/xdp2p/metrics"
	"github.com/xdagnet/xdp2p/p2p/reputation"
)

func newTestManager(t *testing.T, maxConns, maxSameIP int) *ChannelManager {
	cfg := &Config{NetworkID: 1, NetworkVersion: 1, MaxConnections: maxConns, MaxConnectionsWithSameIP: maxSameIP}
	bans := reputation.Open(t.TempDir())
	return newChannelManager(cfg, newHandlerRegistry(), bans, metrics.New())
}

func testChannelWithAddr(mgr *ChannelManager, ip string, dir Direction) *Channel {
	a, _ := net.Pipe()
	addr := &net.TCPAddr{IP: net.ParseIP(ip), Port: 30303}
	return newChannel(mgr, a, addr, dir)
}

func TestAdmitPreHandshakeRejectsTooManyPeers(t *testing.T) {
	mgr := newTestManager(t, 1, 10)
	ch := testChannelWithAddr(mgr, "10.0.0.1", Inbound)
	peer := PeerInfo{ID: randomNodeIDForTest()}
	if err := mgr.finalize(ch, peer, 1); err != nil {
		t.Fatal(err)
	}

	if err := mgr.admitPreHandshake("10.0.0.2"); err == nil {
		t.Error("expected admission to fail once MaxConnections is reached")
	}
}

func TestAdmitPreHandshakeRejectsSameIPLimit(t *testing.T) {
	mgr := newTestManager(t, 10, 1)
	ch := testChannelWithAddr(mgr, "10.0.0.5", Inbound)
	peer := PeerInfo{ID: randomNodeIDForTest()}
	if err := mgr.finalize(ch, peer, 1); err != nil {
		t.Fatal(err)
	}

	if err := mgr.admitPreHandshake("10.0.0.5"); err == nil {
		t.Error("expected admission to fail once the per-IP limit is reached")
	}
}

func TestFinalizeRejectsNetworkMismatch(t *testing.T) {
	mgr := newTestManager(t, 10, 10)
	ch := testChannelWithAddr(mgr, "10.0.0.9", Inbound)
	err := mgr.finalize(ch, PeerInfo{ID: randomNodeIDForTest()}, 2)
	ae, ok := err.(*AdmissionError)
	if !ok || ae.Reason != DiscDifferentVersion {
		t.Errorf("finalize() err = %v, want AdmissionError{DiscDifferentVersion}", err)
	}
}

func TestFinalizeRejectsDuplicatePeer(t *testing.T) {
	mgr := newTestManager(t, 10, 10)
	id := randomNodeIDForTest()

	first := testChannelWithAddr(mgr, "10.0.0.10", Inbound)
	if err := mgr.finalize(first, PeerInfo{ID: id}, 1); err != nil {
		t.Fatal(err)
	}

	second := testChannelWithAddr(mgr, "10.0.0.11", Inbound)
	err := mgr.finalize(second, PeerInfo{ID: id}, 1)
	ae, ok := err.(*AdmissionError)
	if !ok || ae.Reason != DiscDuplicatePeer {
		t.Errorf("finalize() on a duplicate peer id = %v, want AdmissionError{DiscDuplicatePeer}", err)
	}
	if _, ok := mgr.ChannelByNodeID(id); !ok {
		t.Error("the first channel should remain registered after the duplicate is rejected")
	}
}

func TestManagerRemoveUnregisters(t *testing.T) {
	mgr := newTestManager(t, 10, 10)
	id := randomNodeIDForTest()
	ch := testChannelWithAddr(mgr, "10.0.0.20", Outbound)
	if err := mgr.finalize(ch, PeerInfo{ID: id}, 1); err != nil {
		t.Fatal(err)
	}

	mgr.remove(ch, DiscBadProtocol)

	if _, ok := mgr.ChannelByNodeID(id); ok {
		t.Error("channel still registered after remove")
	}
	if !ch.isClosed() {
		t.Error("remove did not close the channel")
	}
	if !mgr.bans.IsBanned("10.0.0.20") {
		t.Error("DiscBadProtocol should ban the remote ip")
	}
}

func TestManagerCount(t *testing.T) {
	mgr := newTestManager(t, 10, 10)
	out := testChannelWithAddr(mgr, "10.0.0.30", Outbound)
	in := testChannelWithAddr(mgr, "10.0.0.31", Inbound)
	mgr.finalize(out, PeerInfo{ID: randomNodeIDForTest()}, 1)
	mgr.finalize(in, PeerInfo{ID: randomNodeIDForTest()}, 1)

	total, outbound := mgr.count()
	if total != 2 || outbound != 1 {
		t.Errorf("count() = (%d, %d), want (2, 1)", total, outbound)
	}
}

func randomNodeIDForTest() common.NodeID {
	var id common.NodeID
	rand.Read(id[:])
	return id
}
