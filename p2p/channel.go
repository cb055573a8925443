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
	"sync/atomic"
	"time"

	"github.com/xdagnet/xdp2p/common"
)

// Direction records which side dialed a Channel.
type Direction uint8

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

// PeerInfo is the handshake-derived identity of the remote side of a
// Channel, available once handshakeFinished is true.
type PeerInfo struct {
	ID                 common.NodeID
	ListenPort         uint16
	ClientID           string
	Capabilities       []string
	LatestBlockNumber  uint64
	NodeTag            string
}

// Channel is a handshake-finished, bidirectional TCP session. The Channel
// Manager owns it for its entire lifetime: every field reachable from
// outside this package must be read through an exported accessor so the
// owning connection goroutine stays the only writer.
type Channel struct {
	remoteAddr *net.TCPAddr
	direction  Direction
	startTime  time.Time

	conn    net.Conn
	queue   *sendQueue
	version protocolVersion

	lastSend      int64 // unix nano, atomic
	lastRecv      int64 // unix nano, atomic
	waitingPong   int32 // atomic bool
	pingSentAt    int64 // unix nano, atomic
	avgLatencyMs  int64 // fixed-point *1000, atomic

	handshakeDone int32 // atomic bool
	peerMu        sync.RWMutex
	peer          PeerInfo

	closeOnce sync.Once
	closed    chan struct{}

	manager *ChannelManager
}

func newChannel(mgr *ChannelManager, conn net.Conn, addr *net.TCPAddr, dir Direction) *Channel {
	now := time.Now()
	return &Channel{
		remoteAddr: addr,
		direction:  dir,
		startTime:  now,
		conn:       conn,
		queue:      newSendQueue(defaultQueueCapacity),
		lastSend:   now.UnixNano(),
		lastRecv:   now.UnixNano(),
		closed:     make(chan struct{}),
		manager:    mgr,
	}
}

func (c *Channel) RemoteAddr() *net.TCPAddr { return c.remoteAddr }
func (c *Channel) Direction() Direction     { return c.direction }
func (c *Channel) StartTime() time.Time     { return c.startTime }

func (c *Channel) HandshakeFinished() bool {
	return atomic.LoadInt32(&c.handshakeDone) == 1
}

func (c *Channel) markHandshakeFinished(peer PeerInfo) {
	c.peerMu.Lock()
	c.peer = peer
	c.peerMu.Unlock()
	atomic.StoreInt32(&c.handshakeDone, 1)
}

func (c *Channel) PeerInfo() PeerInfo {
	c.peerMu.RLock()
	defer c.peerMu.RUnlock()
	return c.peer
}

func (c *Channel) LastSend() time.Time { return time.Unix(0, atomic.LoadInt64(&c.lastSend)) }
func (c *Channel) LastRecv() time.Time { return time.Unix(0, atomic.LoadInt64(&c.lastRecv)) }

// AvgLatencyMs returns the exponential-moving-average keep-alive latency in
// milliseconds.
func (c *Channel) AvgLatencyMs() float64 {
	return float64(atomic.LoadInt64(&c.avgLatencyMs)) / 1000
}

// Send enqueues an application payload for code. It never blocks; it
// returns an error if the channel is closed or the relevant queue is full.
func (c *Channel) Send(code byte, body []byte) error {
	select {
	case <-c.closed:
		return errChannelClosed
	default:
	}
	return c.queue.enqueue(code, body)
}

func (c *Channel) touchSend() { atomic.StoreInt64(&c.lastSend, time.Now().UnixNano()) }
func (c *Channel) touchRecv() { atomic.StoreInt64(&c.lastRecv, time.Now().UnixNano()) }

func (c *Channel) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// close tears down the socket exactly once. The caller is responsible for
// having already removed the channel from the Channel Manager's maps and
// fired on_disconnect.
func (c *Channel) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.queue.close()
		c.conn.Close()
	})
}
