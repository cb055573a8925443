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
	"testing"
	"time"

	"github.com/xdagnet/xdp2p/crypto"
)

func nodeTestConfig(t *testing.T) Config {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Port = 0
	cfg.NetworkID = 1
	cfg.NetworkVersion = 1
	cfg.DiscoverEnable = false
	cfg.DataDir = t.TempDir()
	cfg.NodeKey = key
	cfg.MaxConnections = 10
	cfg.MaxConnectionsWithSameIP = 10
	return cfg
}

func TestNewRequiresNodeKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	if _, err := New(cfg); err == nil {
		t.Fatal("New succeeded with no NodeKey")
	}
}

func TestNodeLifecycleStates(t *testing.T) {
	n, err := New(nodeTestConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n.State() != StateCreated {
		t.Fatalf("initial state = %v, want created", n.State())
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer n.Stop()
	if n.State() != StateRunning {
		t.Fatalf("state after Start = %v, want running", n.State())
	}
	if err := n.Start(); err != nil {
		t.Fatalf("second Start on running node should be a no-op: %v", err)
	}
	if err := n.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if n.State() != StateStopped {
		t.Fatalf("state after Stop = %v, want stopped", n.State())
	}
}

func TestRegisterHandlerRejectedWhileStopping(t *testing.T) {
	n, err := New(nodeTestConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	n.mu.Lock()
	n.state = StateStopping
	n.mu.Unlock()
	if err := n.RegisterHandler([]byte{0x20}, &countingHandler{}); err != errNotCreatedOrRunning {
		t.Errorf("RegisterHandler while stopping = %v, want errNotCreatedOrRunning", err)
	}
	n.mu.Lock()
	n.state = StateRunning
	n.mu.Unlock()
	n.Stop()
}

func TestRegisterHandlerRejectsDuplicateCode(t *testing.T) {
	n, err := New(nodeTestConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.RegisterHandler([]byte{0x20}, &countingHandler{}); err != nil {
		t.Fatalf("first RegisterHandler: %v", err)
	}
	if err := n.RegisterHandler([]byte{0x20}, &countingHandler{}); err != errHandlerCodeTaken {
		t.Errorf("second RegisterHandler on same code = %v, want errHandlerCodeTaken", err)
	}
}

type countingHandler struct {
	mu        sync.Mutex
	connected int
	msgs      [][]byte
	disc      DisconnectReason
	gotDisc   bool
	connCh    chan struct{}
	msgCh     chan struct{}
}

func (h *countingHandler) OnConnect(ch *Channel) {
	h.mu.Lock()
	h.connected++
	h.mu.Unlock()
	if h.connCh != nil {
		select {
		case h.connCh <- struct{}{}:
		default:
		}
	}
}

func (h *countingHandler) OnDisconnect(ch *Channel, reason DisconnectReason) {
	h.mu.Lock()
	h.gotDisc = true
	h.disc = reason
	h.mu.Unlock()
}

func (h *countingHandler) OnMessage(ch *Channel, code byte, body []byte) {
	h.mu.Lock()
	h.msgs = append(h.msgs, append([]byte(nil), body...))
	h.mu.Unlock()
	if h.msgCh != nil {
		select {
		case h.msgCh <- struct{}{}:
		default:
		}
	}
}

// TestTwoNodesHandshakeAndExchangeMessage drives a real TCP dial between two
// Node instances: admission, handshake, and one application-layer message
// round trip through the channel manager's dispatch path.
func TestTwoNodesHandshakeAndExchangeMessage(t *testing.T) {
	serverCfg := nodeTestConfig(t)
	server, err := New(serverCfg)
	if err != nil {
		t.Fatalf("New(server): %v", err)
	}
	serverHandler := &countingHandler{connCh: make(chan struct{}, 1), msgCh: make(chan struct{}, 1)}
	if err := server.RegisterHandler([]byte{0x20}, serverHandler); err != nil {
		t.Fatalf("RegisterHandler(server): %v", err)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("Start(server): %v", err)
	}
	defer server.Stop()

	clientCfg := nodeTestConfig(t)
	client, err := New(clientCfg)
	if err != nil {
		t.Fatalf("New(client): %v", err)
	}
	if err := client.Start(); err != nil {
		t.Fatalf("Start(client): %v", err)
	}
	defer client.Stop()

	bound, ok := server.ListenAddr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("server.ListenAddr() = %T, want *net.TCPAddr", server.ListenAddr())
	}
	dialAddr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: bound.Port}
	if err := client.Dial(dialAddr); err != nil {
		t.Fatalf("Dial: %v", err)
	}

	select {
	case <-serverHandler.connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server handler never saw OnConnect")
	}

	waitForChannelCount(t, client, 1)
	chans := client.ActiveChannels()
	if len(chans) != 1 {
		t.Fatalf("client ActiveChannels = %d, want 1", len(chans))
	}
	if chans[0].PeerID != server.LocalID() {
		t.Errorf("client's channel peer id = %x, want %x", chans[0].PeerID, server.LocalID())
	}

	clientChannels := client.manager.ActiveChannels()
	if len(clientChannels) != 1 {
		t.Fatalf("client manager ActiveChannels = %d, want 1", len(clientChannels))
	}
	if err := client.Send(clientChannels[0], 0x20, []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case <-serverHandler.msgCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server handler never received the application message")
	}

	serverHandler.mu.Lock()
	defer serverHandler.mu.Unlock()
	if len(serverHandler.msgs) != 1 || string(serverHandler.msgs[0]) != "hello" {
		t.Errorf("server received msgs = %q, want [\"hello\"]", serverHandler.msgs)
	}
}

func waitForChannelCount(t *testing.T, n *Node, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(n.ActiveChannels()) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d active channels, have %d", want, len(n.ActiveChannels()))
}
