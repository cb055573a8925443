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
	"testing"
	"time"

	"github.com/xdagnet/xdp2p/crypto"
)

func testConfig(t *testing.T, port int) *Config {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return &Config{
		NetworkID:      1,
		NetworkVersion: 1,
		Port:           port,
		NodeKey:        key,
		ClientID:       "xdp2p-test",
		NodeTag:        "test",
	}
}

func TestPerformHandshakeRoundTrip(t *testing.T) {
	dialerConn, listenerConn := net.Pipe()
	defer dialerConn.Close()
	defer listenerConn.Close()

	dialerCfg := testConfig(t, 30001)
	listenerCfg := testConfig(t, 30002)

	type outcome struct {
		res *handshakeResult
		err error
	}
	dialerCh := make(chan outcome, 1)
	listenerCh := make(chan outcome, 1)

	go func() {
		res, err := performHandshake(dialerConn, dialerCfg, Outbound)
		dialerCh <- outcome{res, err}
	}()
	go func() {
		res, err := performHandshake(listenerConn, listenerCfg, Inbound)
		listenerCh <- outcome{res, err}
	}()

	dOut := <-dialerCh
	lOut := <-listenerCh

	if dOut.err != nil {
		t.Fatalf("dialer handshake failed: %v", dOut.err)
	}
	if lOut.err != nil {
		t.Fatalf("listener handshake failed: %v", lOut.err)
	}
	if dOut.res.peer.ID != nodeIDFromKey(listenerCfg.NodeKey) {
		t.Error("dialer did not learn the listener's node id")
	}
	if lOut.res.peer.ID != nodeIDFromKey(dialerCfg.NodeKey) {
		t.Error("listener did not learn the dialer's node id")
	}
}

func TestPerformHandshakeNetworkMismatch(t *testing.T) {
	dialerConn, listenerConn := net.Pipe()
	defer dialerConn.Close()
	defer listenerConn.Close()

	dialerCfg := testConfig(t, 30001)
	listenerCfg := testConfig(t, 30002)
	listenerCfg.NetworkID = 999

	errCh := make(chan error, 2)
	go func() {
		_, err := performHandshake(dialerConn, dialerCfg, Outbound)
		errCh <- err
	}()
	go func() {
		_, err := performHandshake(listenerConn, listenerCfg, Inbound)
		errCh <- err
	}()

	e1 := <-errCh
	e2 := <-errCh
	if e1 == nil && e2 == nil {
		t.Fatal("expected a network mismatch error on at least one side")
	}
}

func TestHandshakeHelloSignVerify(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	m := &handshakeHelloOrWorld{
		NetworkID:      1,
		NetworkVersion: 1,
		ListenPort:     30303,
		ClientID:       "xdp2p-test",
		Timestamp:      time.Now().Unix(),
	}
	if err := m.sign(key); err != nil {
		t.Fatal(err)
	}
	peer, err := m.verify(time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if peer.ID != nodeIDFromKey(key) {
		t.Error("verified PeerInfo.ID does not match the signer")
	}
}

func TestHandshakeHelloVerifyRejectsStaleTimestamp(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	m := &handshakeHelloOrWorld{
		NetworkID: 1,
		Timestamp: time.Now().Add(-time.Hour).Unix(),
	}
	if err := m.sign(key); err != nil {
		t.Fatal(err)
	}
	if _, err := m.verify(time.Now()); err != errBadTimestamp {
		t.Errorf("verify() = %v, want errBadTimestamp", err)
	}
}

func TestHandshakeHelloVerifyRejectsTamperedBody(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	m := &handshakeHelloOrWorld{
		NetworkID: 1,
		Timestamp: time.Now().Unix(),
		ClientID:  "original",
	}
	if err := m.sign(key); err != nil {
		t.Fatal(err)
	}
	m.ClientID = "tampered"
	if _, err := m.verify(time.Now()); err != errPeerIDMismatch && err != errBadSignature {
		t.Errorf("verify() = %v, want errPeerIDMismatch or errBadSignature for a tampered body", err)
	}
}

func TestHandshakeInitEncodeDecodeRoundTrip(t *testing.T) {
	secret, err := randomSecret()
	if err != nil {
		t.Fatal(err)
	}
	m := &handshakeInit{NetworkID: 7, NetworkVersion: 2, Secret: secret}
	decoded, err := decodeHandshakeInit(m.encode())
	if err != nil {
		t.Fatal(err)
	}
	if decoded.NetworkID != m.NetworkID || decoded.NetworkVersion != m.NetworkVersion || decoded.Secret != m.Secret {
		t.Errorf("decoded = %+v, want %+v", decoded, m)
	}
}
