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
	"sync/atomic"
	"time"
)

const (
	writerIdleDeadline = 10 * time.Second
	pingTimeout        = 20 * time.Second
	latencyEMAAlpha    = 0.25
)

// checkKeepAlive is invoked by the scheduler's keepalive job (every 2s,
// registered in Node.start in server.go) for every open channel. It enqueues a PING when the writer
// has been idle past the deadline, and closes the channel when an
// outstanding PING has gone unanswered past pingTimeout.
func (c *Channel) checkKeepAlive(now time.Time) (shouldClose bool, reason DisconnectReason) {
	waiting := atomic.LoadInt32(&c.waitingPong) == 1
	if waiting {
		sentAt := time.Unix(0, atomic.LoadInt64(&c.pingSentAt))
		if now.Sub(sentAt) > pingTimeout {
			return true, DiscPingTimeout
		}
		return false, 0
	}

	if now.Sub(c.LastSend()) < writerIdleDeadline {
		return false, 0
	}

	var w wireBuf
	w.u64(uint64(now.Unix()))
	if err := c.Send(CodePing, w.bytesVal()); err != nil {
		return true, DiscBusy
	}
	atomic.StoreInt64(&c.pingSentAt, now.UnixNano())
	atomic.StoreInt32(&c.waitingPong, 1)
	return false, 0
}

// handlePing responds to an inbound PING by echoing its timestamp in a PONG.
func (c *Channel) handlePing(body []byte) error {
	return c.Send(CodePong, body)
}

// handlePong processes an inbound PONG: it must echo the timestamp from the
// last PING this side sent, and it updates avgLatencyMs via an EMA.
func (c *Channel) handlePong(body []byte) {
	ts, err := newWireReader(body).u64()
	if err != nil || int64(ts) != atomic.LoadInt64(&c.pingSentAt)/int64(time.Second) {
		return // does not echo the outstanding PING's timestamp, ignore
	}
	if !atomic.CompareAndSwapInt32(&c.waitingPong, 1, 0) {
		return // unsolicited PONG, ignore
	}
	sentAt := time.Unix(0, atomic.LoadInt64(&c.pingSentAt))
	latencyMs := float64(time.Since(sentAt).Milliseconds())

	for {
		old := atomic.LoadInt64(&c.avgLatencyMs)
		var next int64
		if old == 0 {
			next = int64(latencyMs * 1000)
		} else {
			prev := float64(old) / 1000
			next = int64((latencyEMAAlpha*latencyMs + (1-latencyEMAAlpha)*prev) * 1000)
		}
		if atomic.CompareAndSwapInt64(&c.avgLatencyMs, old, next) {
			break
		}
	}
}
