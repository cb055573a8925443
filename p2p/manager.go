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
	"net"
	"sync"

	"github.com/xdagnet/xdp2p/common"
	"github.com/xdagnet/xdp2p/logger"
	"github.com/xdagnet/xdp2p/metrics"
	"github.com/xdagnet/xdp2p/p2p/reputation"
)

// ChannelManager is the shared ledger of active sessions: it runs admission
// control, keeps the node-id and endpoint indices, dispatches decoded
// application frames to handlers, and drives disconnect/ban bookkeeping.
// Membership transitions go through mu so a channel is never visible in one
// map but not the other.
type ChannelManager struct {
	cfg     *Config
	reg     *handlerRegistry
	bans    *reputation.Store
	metrics *metrics.Registry
	log     *logger.Logger

	mu             sync.RWMutex
	byEndpoint     map[string]*Channel // remote_endpoint.String() -> Channel
	byNodeID       map[common.NodeID]*Channel
	countsByIP     map[string]int
}

func newChannelManager(cfg *Config, reg *handlerRegistry, bans *reputation.Store, m *metrics.Registry) *ChannelManager {
	return &ChannelManager{
		cfg:        cfg,
		reg:        reg,
		bans:       bans,
		metrics:    m,
		log:        logger.NewLogger("channel-manager"),
		byEndpoint: make(map[string]*Channel),
		byNodeID:   make(map[common.NodeID]*Channel),
		countsByIP: make(map[string]int),
	}
}

// admitPreHandshake runs the ordered admission checks from the spec against a candidate
// that has not yet registered (inbound accept, before handshake starts).
// Checks that require the peer id (duplicate suppression, network id) run
// again in finalize once HELLO/WORLD has been verified.
func (m *ChannelManager) admitPreHandshake(remoteIP string) error {
	if m.bans.IsBanned(remoteIP) {
		return &AdmissionError{Reason: DiscTimeBanned}
	}

	m.mu.RLock()
	total := len(m.byEndpoint)
	sameIP := m.countsByIP[remoteIP]
	m.mu.RUnlock()

	if total >= m.cfg.MaxConnections {
		return &AdmissionError{Reason: DiscTooManyPeers}
	}
	if sameIP >= m.cfg.MaxConnectionsWithSameIP {
		return &AdmissionError{Reason: DiscMaxConnectionsSameIP}
	}
	return nil
}

// finalize runs the peer-id-dependent admission checks and, on success,
// registers ch under both indices. The older session always wins a
// duplicate-peer race: a second channel to an already-registered peer id is
// rejected, never replacing the existing one.
func (m *ChannelManager) finalize(ch *Channel, peer PeerInfo, remoteNetworkID uint64) error {
	remoteIP := ch.RemoteAddr().IP.String()

	m.mu.Lock()
	if m.bans.IsBanned(remoteIP) {
		m.mu.Unlock()
		return &AdmissionError{Reason: DiscTimeBanned}
	}
	if len(m.byEndpoint) >= m.cfg.MaxConnections {
		m.mu.Unlock()
		return &AdmissionError{Reason: DiscTooManyPeers}
	}
	if m.countsByIP[remoteIP] >= m.cfg.MaxConnectionsWithSameIP {
		m.mu.Unlock()
		return &AdmissionError{Reason: DiscMaxConnectionsSameIP}
	}
	if _, exists := m.byNodeID[peer.ID]; exists {
		m.mu.Unlock()
		return &AdmissionError{Reason: DiscDuplicatePeer}
	}
	if remoteNetworkID != m.cfg.NetworkID {
		m.mu.Unlock()
		return &AdmissionError{Reason: DiscDifferentVersion}
	}

	ch.markHandshakeFinished(peer)
	m.byEndpoint[ch.RemoteAddr().String()] = ch
	m.byNodeID[peer.ID] = ch
	m.countsByIP[remoteIP]++
	m.mu.Unlock()

	m.updateConnCounts()
	m.reg.broadcastConnect(ch)

	m.mu.RLock()
	count := len(m.byEndpoint)
	m.mu.RUnlock()
	mlogChannelManager.Send(mlogChannelAdded.SetDetailValues(
		count, peer.ID.String(), ch.RemoteAddr().String(), ch.Direction().String(),
	).String())

	return nil
}

// remove unregisters ch, fires on_disconnect, and (for hostile reasons)
// escalates to the ban store.
func (m *ChannelManager) remove(ch *Channel, reason DisconnectReason) {
	peer := ch.PeerInfo()
	remoteIP := ch.RemoteAddr().IP.String()

	m.mu.Lock()
	delete(m.byEndpoint, ch.RemoteAddr().String())
	if ch.HandshakeFinished() {
		if cur, ok := m.byNodeID[peer.ID]; ok && cur == ch {
			delete(m.byNodeID, peer.ID)
		}
	}
	if m.countsByIP[remoteIP] > 0 {
		m.countsByIP[remoteIP]--
		if m.countsByIP[remoteIP] == 0 {
			delete(m.countsByIP, remoteIP)
		}
	}
	m.mu.Unlock()

	m.updateConnCounts()
	ch.close()

	if ch.HandshakeFinished() {
		m.reg.broadcastDisconnect(ch, reason)
	}

	m.mu.RLock()
	count := len(m.byEndpoint)
	m.mu.RUnlock()
	mlogChannelManager.Send(mlogChannelRemoved.SetDetailValues(
		count, peer.ID.String(), reason.String(),
	).String())

	switch reason {
	case DiscBadHandshake:
		m.bans.Ban(remoteIP, reputation.ReasonBadHandshake)
	case DiscBadProtocol:
		m.bans.Ban(remoteIP, reputation.ReasonBadProtocol)
		m.bans.Apply(peer.ID.String(), -20)
	case DiscPingTimeout:
		m.bans.Apply(peer.ID.String(), -5)
	}
}

func (m *ChannelManager) updateConnCounts() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var active, passive int
	for _, ch := range m.byEndpoint {
		if ch.Direction() == Outbound {
			active++
		} else {
			passive++
		}
	}
	m.metrics.ConnActive.Update(int64(active))
	m.metrics.ConnPassive.Update(int64(passive))
	m.metrics.ConnTotal.Update(int64(active + passive))
}

// Dispatch looks up the handler registered for code and invokes OnMessage.
// Codes with no registered handler are silently dropped (the host chose not
// to care about them).
func (m *ChannelManager) Dispatch(ch *Channel, code byte, body []byte) {
	m.metrics.MsgIn(code).Mark(1)
	h := m.reg.lookup(code)
	if h == nil {
		return
	}
	h.OnMessage(ch, code, body)
}

// ActiveChannels returns a snapshot of every registered channel.
func (m *ChannelManager) ActiveChannels() []*Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Channel, 0, len(m.byEndpoint))
	for _, ch := range m.byEndpoint {
		out = append(out, ch)
	}
	return out
}

// ChannelByNodeID returns the channel for id, if any.
func (m *ChannelManager) ChannelByNodeID(id common.NodeID) (*Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.byNodeID[id]
	return ch, ok
}

// count reports the current total and outbound connection counts, used by
// the outbound-maintenance scheduler job to decide whether more dials are
// needed.
func (m *ChannelManager) count() (total, outbound int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.byEndpoint {
		total++
		if ch.Direction() == Outbound {
			outbound++
		}
	}
	return total, outbound
}

func remoteIPOf(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
