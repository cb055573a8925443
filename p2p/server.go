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

// Package p2p implements the networking core of a blockchain node: Kademlia
// discovery over UDP (see the discover subpackage), an authenticated TCP
// session pipeline, and the Channel Manager that arbitrates which sessions
// stay open. Node is the facade a host application embeds.
package p2p

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/xdagnet/xdp2p/common"
	"github.com/xdagnet/xdp2p/logger"
	"github.com/xdagnet/xdp2p/metrics"
	"github.com/xdagnet/xdp2p/p2p/discover"
	"github.com/xdagnet/xdp2p/p2p/reputation"
)

// State is the Node lifecycle as driven by Start/Stop.
type State int32

const (
	StateCreated State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	errAlreadyStarting  = errors.New("p2p: node already starting or running")
	errNotCreatedOrRunning = errors.New("p2p: handler registration only allowed while created or running")
	errCodeTakenLocal   = errors.New("p2p: message code already registered")
)

var errHandlerCodeTaken = errCodeTakenLocal

const stopDrainTimeout = 10 * time.Second

// Node is the single entry point a host application uses: it owns the
// config, key, metrics registry, routing table, channel manager and
// scheduler, and drives their combined lifecycle.
type Node struct {
	cfg Config
	log *logger.Logger

	mu    sync.Mutex
	state State

	localID common.NodeID

	metrics *metrics.Registry
	bans    *reputation.Store
	reg     *handlerRegistry
	manager *ChannelManager
	sched   *scheduler

	listener net.Listener
	udp      *discover.UDP

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Node from cfg but does not start any network activity.
func New(cfg Config) (*Node, error) {
	id, err := cfg.localID()
	if err != nil {
		return nil, err
	}
	n := &Node{
		cfg:     cfg,
		log:     logger.NewLogger("node"),
		localID: id,
		metrics: metrics.New(),
		reg:     newHandlerRegistry(),
	}
	n.bans = reputation.Open(cfg.DataDir)
	n.manager = newChannelManager(&n.cfg, n.reg, n.bans, n.metrics)
	return n, nil
}

// LocalID returns this node's derived NodeId.
func (n *Node) LocalID() common.NodeID { return n.localID }

// ListenAddr returns the TCP listener's actual bound address, useful when
// Config.Port is 0 and the OS assigned an ephemeral port. Returns nil if the
// node has not been started.
func (n *Node) ListenAddr() net.Addr {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listener == nil {
		return nil
	}
	return n.listener.Addr()
}

// State reports the current lifecycle state.
func (n *Node) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// RegisterHandler claims codes for h. Registration is only allowed while
// the Node is CREATED or RUNNING; registering a code twice is an error.
func (n *Node) RegisterHandler(codes []byte, h Handler) error {
	n.mu.Lock()
	st := n.state
	n.mu.Unlock()
	if st != StateCreated && st != StateRunning {
		return errNotCreatedOrRunning
	}
	return n.reg.register(codes, h)
}

// Start transitions CREATED/STOPPED -> STARTING -> RUNNING. It is a no-op
// (returns nil) if already RUNNING.
func (n *Node) Start() error {
	n.mu.Lock()
	if n.state == StateRunning {
		n.mu.Unlock()
		return nil
	}
	if n.state == StateStarting || n.state == StateStopping {
		n.mu.Unlock()
		return errAlreadyStarting
	}
	n.state = StateStarting
	n.mu.Unlock()

	if err := n.start(); err != nil {
		n.mu.Lock()
		n.state = StateStopped
		n.mu.Unlock()
		return err
	}

	n.mu.Lock()
	n.state = StateRunning
	n.mu.Unlock()
	return nil
}

func (n *Node) start() error {
	n.stopCh = make(chan struct{})

	addr := &net.TCPAddr{Port: n.cfg.Port}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return fmt.Errorf("p2p: bind tcp listener: %w", err)
	}
	n.listener = ln

	var externalIP net.IP
	if n.cfg.NAT != nil {
		if ip, err := n.cfg.NAT.ExternalIP(); err != nil {
			n.log.Warnln("p2p: nat external IP resolution (", n.cfg.NAT, ") failed: ", err)
		} else {
			externalIP = ip
			n.log.Infoln("p2p: advertising external address ", ip, " via ", n.cfg.NAT)
		}
	}

	if n.cfg.DiscoverEnable {
		udpAddr := &net.UDPAddr{Port: n.cfg.Port}
		table, udpConn, err := discover.ListenUDP(udpAddr, discover.Config{
			LocalID:        n.localID,
			NetworkID:      n.cfg.NetworkID,
			NetworkVersion: n.cfg.NetworkVersion,
			Bootstrap:      n.cfg.SeedNodes,
			DataDir:        n.cfg.DataDir,
			ExternalIP:     externalIP,
		})
		if err != nil {
			ln.Close()
			return fmt.Errorf("p2p: start discovery: %w", err)
		}
		n.udp = udpConn
		_ = table
	}

	n.sched = newScheduler()
	n.sched.add("keepalive", 2*time.Second, n.tickKeepAlive)
	n.sched.add("channel-maintenance", 5*time.Second, n.tickChannelMaintenance)
	n.sched.add("reputation-checkpoint", 60*time.Second, n.tickReputationCheckpoint)
	n.sched.add("reputation-decay", 1*time.Hour, n.tickReputationDecay)
	if n.udp != nil {
		n.sched.add("discovery-refresh", 30*time.Second, n.tickDiscoveryRefresh)
		n.sched.add("bucket-refresh", 60*time.Second, n.tickBucketRefresh)
		n.sched.add("nodedb-expire", 1*time.Hour, n.tickNodeDBExpire)
		n.sched.add("node-reputation-decay", 1*time.Hour, n.tickNodeReputationDecay)
	}
	n.sched.start()

	n.wg.Add(1)
	go n.acceptLoop()

	return nil
}

// Stop transitions RUNNING -> STOPPING -> STOPPED, waiting up to
// stopDrainTimeout for channels to close gracefully before forcing them
// shut.
func (n *Node) Stop() error {
	n.mu.Lock()
	if n.state != StateRunning {
		n.mu.Unlock()
		return nil
	}
	n.state = StateStopping
	n.mu.Unlock()

	close(n.stopCh)
	if n.listener != nil {
		n.listener.Close()
	}
	if n.udp != nil {
		n.udp.Close()
	}

	drained := make(chan struct{})
	go func() {
		for _, ch := range n.manager.ActiveChannels() {
			n.manager.remove(ch, DiscStopping)
		}
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(stopDrainTimeout):
		n.log.Warnln("stop: drain timeout exceeded, forcing remaining channels closed")
		for _, ch := range n.manager.ActiveChannels() {
			ch.close()
		}
	}

	if n.sched != nil {
		n.sched.shutdown()
	}
	n.wg.Wait()
	n.bans.Checkpoint()

	n.mu.Lock()
	n.state = StateStopped
	n.mu.Unlock()
	return nil
}

// Send enqueues an application payload for delivery on ch.
func (n *Node) Send(ch *Channel, code byte, body []byte) error {
	return ch.Send(code, body)
}

// ActiveChannels returns ChannelInfo for every currently registered session.
func (n *Node) ActiveChannels() []ChannelInfo {
	chans := n.manager.ActiveChannels()
	out := make([]ChannelInfo, 0, len(chans))
	for _, ch := range chans {
		out = append(out, infoOf(ch))
	}
	return out
}

// ConnectableNodes returns the discovery table's currently reachable,
// non-banned endpoints, preferred by reputation then distance. Returns nil
// if discovery is disabled.
func (n *Node) ConnectableNodes() []Endpoint {
	if n.udp == nil {
		return nil
	}
	nodes := n.udp.Table().Connectable()
	out := make([]Endpoint, 0, len(nodes))
	for _, nd := range nodes {
		if n.bans.IsBanned(nd.IP.String()) {
			continue
		}
		out = append(out, Endpoint{ID: nd.ID, IP: nd.IP, Port: nd.TCPPort})
	}
	return out
}

// ChannelInfo is the read-only snapshot returned by ActiveChannels.
type ChannelInfo struct {
	PeerID     common.NodeID
	RemoteAddr string
	Direction  Direction
	StartTime  time.Time
	LatencyMs  float64
}

func infoOf(ch *Channel) ChannelInfo {
	return ChannelInfo{
		PeerID:     ch.PeerInfo().ID,
		RemoteAddr: ch.RemoteAddr().String(),
		Direction:  ch.Direction(),
		StartTime:  ch.StartTime(),
		LatencyMs:  ch.AvgLatencyMs(),
	}
}

// Endpoint is a connectable remote address surfaced from the routing table.
type Endpoint struct {
	ID   common.NodeID
	IP   net.IP
	Port int
}

func (n *Node) acceptLoop() {
	defer n.wg.Done()
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				n.log.Errorln("accept: ", err)
				return
			}
		}
		n.wg.Add(1)
		go n.serveInbound(conn)
	}
}

func (n *Node) serveInbound(conn net.Conn) {
	defer n.wg.Done()
	n.runSession(conn, Inbound)
}

// Dial opens an outbound session to addr.
func (n *Node) Dial(addr *net.TCPAddr) error {
	conn, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	if err != nil {
		return err
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.runSession(conn, Outbound)
	}()
	return nil
}

func (n *Node) runSession(conn net.Conn, dir Direction) {
	remoteAddr, _ := conn.RemoteAddr().(*net.TCPAddr)
	remoteIP := remoteIPOf(conn.RemoteAddr())

	if dir == Inbound {
		if err := n.manager.admitPreHandshake(remoteIP); err != nil {
			conn.Close()
			return
		}
	}

	metered := newMeteredConn(n.metrics, conn, dir == Inbound)
	result, err := performHandshake(metered, &n.cfg, dir)
	if err != nil {
		n.metrics.HandshakeFailed.Mark(1)
		reason := DiscBadHandshake
		var pe *ParseError
		if errors.As(err, &pe) {
			reason = DiscBadProtocol
		}
		n.manager.bans.Ban(remoteIP, reasonFor(reason))
		conn.Close()
		return
	}
	n.metrics.HandshakeOK.Mark(1)

	ch := newChannel(n.manager, metered, remoteAddr, dir)
	if err := n.manager.finalize(ch, result.peer, n.cfg.NetworkID); err != nil {
		var ae *AdmissionError
		if errors.As(err, &ae) {
			writeDisconnect(metered, ae.Reason)
		}
		conn.Close()
		return
	}

	n.serveChannel(ch)
}

func reasonFor(d DisconnectReason) reputation.Reason {
	switch d {
	case DiscBadHandshake:
		return reputation.ReasonBadHandshake
	case DiscBadProtocol:
		return reputation.ReasonBadProtocol
	default:
		return reputation.ReasonMinorProtocol
	}
}

func writeDisconnect(conn net.Conn, reason DisconnectReason) {
	var w wireBuf
	w.byte(byte(reason))
	encodeFrame(conn, currentProtocolVersion, CodeDisconnect, 0, w.bytesVal())
}

// serveChannel runs the flush loop and read loop for ch until it closes.
// Per §5 a channel is owned by exactly one pair of goroutines for its
// lifetime, so its own state needs no additional locking beyond the atomics
// in channel.go.
func (n *Node) serveChannel(ch *Channel) {
	flushDone := make(chan struct{})
	go func() {
		defer close(flushDone)
		n.flushLoop(ch)
	}()

	reason := n.readLoop(ch)

	n.manager.remove(ch, reason)
	<-flushDone
}

func (n *Node) flushLoop(ch *Channel) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	var packetID uint32
	for {
		select {
		case <-ch.closed:
			return
		case <-ticker.C:
			frames := ch.queue.drain(64)
			for _, f := range frames {
				packetID++
				if err := encodeFrame(ch.conn, ch.version, f.code, packetID, f.body); err != nil {
					return
				}
				ch.touchSend()
				n.metrics.MsgOut(f.code).Mark(1)
			}
		}
	}
}

func (n *Node) readLoop(ch *Channel) DisconnectReason {
	for {
		frame, err := decodeFrame(ch.conn)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				return DiscBadProtocol
			}
			return DiscIOError
		}
		ch.touchRecv()

		switch frame.PacketType {
		case CodeDisconnect:
			return DiscRequested
		case CodePing:
			if err := ch.handlePing(frame.Body); err != nil {
				return DiscBusy
			}
		case CodePong:
			ch.handlePong(frame.Body)
		case CodeHandshakeInit, CodeHandshakeHello, CodeHandshakeWorld:
			return DiscBadProtocol // handshake frames after handshake_finished
		default:
			if !IsApplicationCode(frame.PacketType) {
				return DiscBadProtocol
			}
			n.manager.Dispatch(ch, frame.PacketType, frame.Body)
		}
	}
}

func (n *Node) tickKeepAlive(now time.Time) {
	for _, ch := range n.manager.ActiveChannels() {
		if shouldClose, reason := ch.checkKeepAlive(now); shouldClose {
			n.manager.remove(ch, reason)
		}
	}
}

func (n *Node) tickChannelMaintenance(now time.Time) {
	total, outbound := n.manager.count()
	if n.udp == nil {
		return
	}
	if outbound >= n.cfg.MinActiveConnections && total >= n.cfg.MinConnections {
		return
	}
	candidates := n.udp.Table().Connectable()
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Reputation > candidates[j].Reputation })
	for _, c := range candidates {
		if total >= n.cfg.MinConnections && outbound >= n.cfg.MinActiveConnections {
			break
		}
		if _, ok := n.manager.ChannelByNodeID(c.ID); ok {
			continue
		}
		addr := &net.TCPAddr{IP: c.IP, Port: c.TCPPort}
		if n.Dial(addr) == nil {
			total++
			outbound++
		}
	}
}

func (n *Node) tickReputationCheckpoint(now time.Time) { n.bans.Checkpoint() }
func (n *Node) tickReputationDecay(now time.Time)      { n.bans.DecayAll(now) }

func (n *Node) tickDiscoveryRefresh(now time.Time) {
	if n.udp != nil {
		n.udp.RefreshLookup()
	}
}

func (n *Node) tickBucketRefresh(now time.Time) {
	if n.udp != nil {
		n.udp.Table().Trim()
		n.udp.RefreshBuckets()
	}
}

func (n *Node) tickNodeDBExpire(now time.Time) {
	if n.udp != nil {
		n.udp.Table().ExpirePersisted()
	}
}

func (n *Node) tickNodeReputationDecay(now time.Time) {
	if n.udp != nil {
		n.udp.Table().DecayReputation(1)
	}
}
