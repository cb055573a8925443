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
	"net"
	"sync"
	"time"

	"github.com/xdagnet/xdp2p/common"
	"github.com/xdagnet/xdp2p/logger"
)

var errShortDatagram = errors.New("discover: short or malformed datagram")

const (
	pongTimeout = 15 * time.Second
)

// Config configures a UDP discovery instance.
type Config struct {
	LocalID        common.NodeID
	NetworkID      uint64
	NetworkVersion uint64
	Bootstrap      []string // "ip:port" seed endpoints, inserted as DISCOVERED
	DataDir        string   // if set, node liveness info persists across restarts

	// ExternalIP overrides the address advertised for self, typically
	// resolved via nat.Interface when the bound address is private.
	ExternalIP net.IP
}

// replyMatcher is a pending outbound request awaiting a specific reply,
// matched by sender address and the nonce the reply must echo.
type replyMatcher struct {
	from  string // remote UDP address
	nonce uint64
	kind  byte // which reply code satisfies this matcher
	deadline time.Time
	done  chan matchResult
}

type matchResult struct {
	nodes []*Node
	err   error
}

// UDP is the single dedicated I/O worker for the discovery protocol: one
// goroutine reads datagrams, and each datagram's application-level handling
// (table updates, matcher resolution) runs on its own goroutine so a slow
// handler never blocks the socket read.
type UDP struct {
	conn   *net.UDPConn
	table  *Table
	cfg    Config
	log    *logger.Logger

	mu       sync.Mutex
	matchers []*replyMatcher

	lookupMu sync.Mutex // serializes lookups: at most one at a time, whatever the target (spec 4.D)

	closing chan struct{}
	wg      sync.WaitGroup
}

// ListenUDP opens the UDP socket, builds the routing table, seeds it with
// cfg.Bootstrap, and starts the I/O and dispatch loops.
func ListenUDP(addr *net.UDPAddr, cfg Config) (*Table, *UDP, error) {
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, nil, err
	}

	db, err := openNodeDB(cfg.DataDir)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	selfIP := addr.IP
	if cfg.ExternalIP != nil {
		selfIP = cfg.ExternalIP
	}
	self := newNode(cfg.LocalID, selfIP, addr.Port, addr.Port)
	u := &UDP{
		conn:    conn,
		cfg:     cfg,
		log:     logger.NewLogger("discover"),
		closing: make(chan struct{}),
	}
	u.table = newTable(self, u, db)

	for id, pn := range db.loadAll() {
		n := newNode(id, net.IP(pn.IP), int(pn.UDPPort), int(pn.TCPPort))
		n.LastSeen = time.Unix(pn.LastSeenUnix, 0)
		n.findFails = int(pn.FindFails)
		n.Reputation = int(pn.Reputation)
		n.State = StateDiscovered
		u.table.Add(n)
	}

	u.wg.Add(1)
	go u.readLoop()

	for _, seed := range cfg.Bootstrap {
		u.seed(seed)
	}

	return u.table, u, nil
}

func (u *UDP) seed(addr string) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		u.log.Warnln("discover: bad seed address ", addr, ": ", err)
		return
	}
	// Seeds are inserted DISCOVERED with a zero id; the first PONG they
	// send fills in their real id and promotes them to ALIVE.
	n := newNode(common.NodeID{}, udpAddr.IP, udpAddr.Port, udpAddr.Port)
	u.pingAddr(n.addr(), n.ID)
}

func (u *UDP) Table() *Table { return u.table }

// Close shuts the socket and I/O loop down.
func (u *UDP) Close() {
	select {
	case <-u.closing:
	default:
		close(u.closing)
	}
	u.conn.Close()
	u.wg.Wait()
	u.table.db.close()
}

func (u *UDP) readLoop() {
	defer u.wg.Done()
	buf := make([]byte, maxDatagramSize+1)
	for {
		n, from, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-u.closing:
				return
			default:
				return
			}
		}
		if n <= 1 || n > maxDatagramSize {
			u.log.Warnln("discover: dropping oversized/undersized datagram from ", from)
			continue
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		go u.handlePacket(from, pkt)
	}
}

func (u *UDP) handlePacket(from *net.UDPAddr, pkt []byte) {
	code := pkt[0]
	body := pkt[1:]
	r := newRbuf(body)

	switch code {
	case codePing:
		u.handlePing(from, r)
	case codePong:
		u.handlePong(from, r)
	case codeFindNode:
		u.handleFindNode(from, r)
	case codeNeighbors:
		u.handleNeighbors(from, r)
	default:
		u.log.Warnln("discover: unknown message code ", code, " from ", from)
	}
}

func (u *UDP) send(to *net.UDPAddr, code byte, body *wbuf) {
	pkt := append([]byte{code}, body.bytes()...)
	u.conn.WriteToUDP(pkt, to)
}

// --- PING / PONG ---

func (u *UDP) handlePing(from *net.UDPAddr, r *rbuf) {
	fromID, err := r.getNodeID()
	if err != nil {
		return
	}
	_, err = r.getNodeID() // to
	if err != nil {
		return
	}
	nonce, err := r.getLong()
	if err != nil {
		return
	}
	netID, err := r.getLong()
	if err != nil {
		return
	}
	netVer, err := r.getLong()
	if err != nil {
		return
	}
	if _, err := r.getLong(); err != nil { // ts
		return
	}
	if netID != u.cfg.NetworkID || netVer != u.cfg.NetworkVersion {
		return
	}

	u.table.Add(newNode(fromID, from.IP, from.Port, from.Port))
	u.table.Touch(fromID)

	mlogDiscover.Send(mlogPingHandleFrom.SetDetailValues(from.String(), fromID.String()).String())

	var w wbuf
	w.putLong(nonce)
	w.putLong(uint64(time.Now().Unix()))
	u.send(from, codePong, &w)
}

func (u *UDP) handlePong(from *net.UDPAddr, r *rbuf) {
	nonce, err := r.getLong()
	if err != nil {
		return
	}
	if _, err := r.getLong(); err != nil { // ts
		return
	}
	mlogDiscover.Send(mlogPongHandleFrom.SetDetailValues(from.String(), "").String())
	u.resolveMatcher(from.String(), codePong, nonce, nil, nil)
}

// ping sends a PING to n and blocks (up to pongTimeout) for a matching
// PONG. It satisfies the pinger interface Table uses for bucket-eviction
// challenges.
func (u *UDP) ping(n *Node) error {
	return u.pingAddr(n.addr(), n.ID)
}

func (u *UDP) pingAddr(addr *net.UDPAddr, toID common.NodeID) error {
	nonce := randomNonce()
	m := u.addMatcher(addr.String(), codePong, nonce)

	var w wbuf
	w.putNodeID(u.cfg.LocalID)
	w.putNodeID(toID)
	w.putLong(nonce)
	w.putLong(u.cfg.NetworkID)
	w.putLong(u.cfg.NetworkVersion)
	w.putLong(uint64(time.Now().Unix()))
	u.send(addr, codePing, &w)

	select {
	case res := <-m.done:
		if res.err == nil {
			u.table.MarkAlive(toID)
		} else {
			u.table.Penalize(toID, -5)
		}
		return res.err
	case <-time.After(pongTimeout):
		u.removeMatcher(m)
		u.table.Penalize(toID, -5)
		return errPongTimeout
	}
}

var errPongTimeout = errors.New("discover: pong timeout")

// findNode sends KAD_FIND_NODE(target) to addr and waits up to
// lookupRoundTimeout for the matching KAD_NEIGHBORS reply.
func (u *UDP) findNode(addr *net.UDPAddr, target common.NodeID) ([]*Node, error) {
	m := u.addMatcher(addr.String(), codeNeighbors, 0)

	var w wbuf
	w.putNodeID(u.cfg.LocalID)
	w.putNodeID(target)
	w.putLong(uint64(time.Now().Unix()))
	u.send(addr, codeFindNode, &w)

	select {
	case res := <-m.done:
		return res.nodes, res.err
	case <-time.After(lookupRoundTimeout):
		u.removeMatcher(m)
		return nil, errLookupRoundTimeout
	}
}

// --- FIND_NODE / NEIGHBORS ---

func (u *UDP) handleFindNode(from *net.UDPAddr, r *rbuf) {
	fromID, err := r.getNodeID()
	if err != nil {
		return
	}
	target, err := r.getNodeID()
	if err != nil {
		return
	}
	if _, err := r.getLong(); err != nil { // ts
		return
	}
	mlogDiscover.Send(mlogFindNodeHandleFrom.SetDetailValues(from.String(), fromID.String()).String())

	closest := u.table.ClosestTo(target, bucketSize)
	nodes := make([]*Node, 0, len(closest))
	for _, n := range closest {
		if n.ID != fromID {
			nodes = append(nodes, n)
		}
	}
	var w wbuf
	w.putNodeID(u.cfg.LocalID)
	w.putInt(uint32(len(nodes)))
	for _, n := range nodes {
		w.putNodeID(n.ID)
		w.putIP(n.IP)
		w.putShort(uint16(n.UDPPort))
		w.putShort(uint16(n.TCPPort))
	}
	w.putLong(uint64(time.Now().Unix()))
	u.send(from, codeNeighbors, &w)
	mlogDiscover.Send(mlogFindNodeSendNeighbors.SetDetailValues(from.String(), len(nodes)).String())
}

func (u *UDP) handleNeighbors(from *net.UDPAddr, r *rbuf) {
	if _, err := r.getNodeID(); err != nil { // from
		return
	}
	count, err := r.getInt()
	if err != nil {
		return
	}
	nodes := make([]*Node, 0, count)
	for i := uint32(0); i < count; i++ {
		id, err := r.getNodeID()
		if err != nil {
			return
		}
		ip, err := r.getIP()
		if err != nil {
			return
		}
		udpPort, err := r.getShort()
		if err != nil {
			return
		}
		tcpPort, err := r.getShort()
		if err != nil {
			return
		}
		nodes = append(nodes, newNode(id, ip, int(udpPort), int(tcpPort)))
	}
	mlogDiscover.Send(mlogNeighborsHandleFrom.SetDetailValues(from.String(), len(nodes)).String())
	u.resolveMatcher(from.String(), codeNeighbors, 0, nodes, nil)
}

// --- matcher bookkeeping ---

func (u *UDP) addMatcher(from string, kind byte, nonce uint64) *replyMatcher {
	m := &replyMatcher{from: from, nonce: nonce, kind: kind, deadline: time.Now().Add(pongTimeout), done: make(chan matchResult, 1)}
	u.mu.Lock()
	u.matchers = append(u.matchers, m)
	u.mu.Unlock()
	return m
}

func (u *UDP) removeMatcher(target *replyMatcher) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i, m := range u.matchers {
		if m == target {
			u.matchers = append(u.matchers[:i], u.matchers[i+1:]...)
			return
		}
	}
}

func (u *UDP) resolveMatcher(from string, kind byte, nonce uint64, nodes []*Node, err error) {
	u.mu.Lock()
	var match *replyMatcher
	for i, m := range u.matchers {
		if m.from == from && m.kind == kind && (kind != codePong || m.nonce == nonce) {
			match = m
			u.matchers = append(u.matchers[:i], u.matchers[i+1:]...)
			break
		}
	}
	u.mu.Unlock()
	if match == nil {
		return
	}
	match.done <- matchResult{nodes: nodes, err: err}
}

func randomNonce() uint64 {
	var b [8]byte
	rand.Read(b[:])
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}
