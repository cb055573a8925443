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
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"io"
	"time"

	"github.com/xdagnet/xdp2p/common"
	"github.com/xdagnet/xdp2p/crypto"
)

const (
	handshakeTimeout  = 10 * time.Second
	handshakeSecretLen = 32
	handshakeSkew     = 5 * time.Minute
)

var (
	errBadSecretLen    = errors.New("p2p: handshake secret must be 32 bytes")
	errBadTimestamp    = errors.New("p2p: handshake timestamp outside allowed skew")
	errBadSignature    = errors.New("p2p: handshake signature does not verify")
	errPeerIDMismatch  = errors.New("p2p: handshake signer does not match advertised peer id")
	errNetworkMismatch = errors.New("p2p: network_id/network_version mismatch")
	errMissingNodeKey  = errors.New("p2p: config has no node_key")
)

func nodeIDFromKey(key *ecdsa.PrivateKey) common.NodeID {
	return crypto.NodeIDFromPubkey(&key.PublicKey)
}

// handshakeInit is step 1, sent by the dialer.
type handshakeInit struct {
	NetworkID      uint64
	NetworkVersion uint64
	Secret         [handshakeSecretLen]byte
}

func (m *handshakeInit) encode() []byte {
	var w wireBuf
	w.u64(m.NetworkID).u64(m.NetworkVersion).bytes(m.Secret[:])
	return w.bytesVal()
}

func decodeHandshakeInit(b []byte) (*handshakeInit, error) {
	r := newWireReader(b)
	m := &handshakeInit{}
	var err error
	if m.NetworkID, err = r.u64(); err != nil {
		return nil, err
	}
	if m.NetworkVersion, err = r.u64(); err != nil {
		return nil, err
	}
	secret, err := r.bytes()
	if err != nil {
		return nil, err
	}
	if len(secret) != handshakeSecretLen {
		return nil, errBadSecretLen
	}
	copy(m.Secret[:], secret)
	return m, nil
}

// handshakeHelloOrWorld is steps 2 and 3 (HELLO from the listener, WORLD
// echoed back by the dialer). The wire shapes are identical; the code
// (CodeHandshakeHello vs CodeHandshakeWorld) distinguishes direction.
type handshakeHelloOrWorld struct {
	NetworkID         uint64
	NetworkVersion    uint64
	PeerID            common.NodeID
	ListenPort        uint16
	ClientID          string
	Capabilities      []string
	LatestBlockNumber uint64
	Secret            [handshakeSecretLen]byte
	Timestamp         int64
	Flags             uint32
	NodeTag           string
	Signature         []byte // filled in last, not covered by its own bytes
}

// signedBytes returns every field preceding Signature, in wire order - the
// bytes that get hashed and signed/verified.
func (m *handshakeHelloOrWorld) signedBytes() []byte {
	var w wireBuf
	w.u64(m.NetworkID).
		u64(m.NetworkVersion).
		bytes(m.PeerID.Bytes()).
		u16(m.ListenPort).
		str(m.ClientID).
		strs(m.Capabilities).
		u64(m.LatestBlockNumber).
		bytes(m.Secret[:]).
		u64(uint64(m.Timestamp)).
		u32(m.Flags).
		str(m.NodeTag)
	return w.bytesVal()
}

func (m *handshakeHelloOrWorld) encode() []byte {
	var w wireBuf
	w.b = append(w.b, m.signedBytes()...)
	w.bytes(m.Signature)
	return w.bytesVal()
}

func decodeHandshakeHelloOrWorld(b []byte) (*handshakeHelloOrWorld, error) {
	r := newWireReader(b)
	m := &handshakeHelloOrWorld{}
	var err error

	if m.NetworkID, err = r.u64(); err != nil {
		return nil, err
	}
	if m.NetworkVersion, err = r.u64(); err != nil {
		return nil, err
	}
	idBytes, err := r.bytes()
	if err != nil {
		return nil, err
	}
	if len(idBytes) != common.NodeIDBytes {
		return nil, &ParseError{Kind: ErrKindBadLength}
	}
	copy(m.PeerID[:], idBytes)
	if m.ListenPort, err = r.u16(); err != nil {
		return nil, err
	}
	if m.ClientID, err = r.str(); err != nil {
		return nil, err
	}
	if m.Capabilities, err = r.strs(); err != nil {
		return nil, err
	}
	if m.LatestBlockNumber, err = r.u64(); err != nil {
		return nil, err
	}
	secret, err := r.bytes()
	if err != nil {
		return nil, err
	}
	if len(secret) != handshakeSecretLen {
		return nil, errBadSecretLen
	}
	copy(m.Secret[:], secret)
	ts, err := r.u64()
	if err != nil {
		return nil, err
	}
	m.Timestamp = int64(ts)
	if m.Flags, err = r.u32(); err != nil {
		return nil, err
	}
	if m.NodeTag, err = r.str(); err != nil {
		return nil, err
	}
	if m.Signature, err = r.bytes(); err != nil {
		return nil, err
	}
	return m, nil
}

// sign fills m.Signature using key, and derives m.PeerID from it.
func (m *handshakeHelloOrWorld) sign(key *ecdsa.PrivateKey) error {
	m.PeerID = nodeIDFromKey(key)
	hash := crypto.Keccak256(m.signedBytes())
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return err
	}
	m.Signature = sig
	return nil
}

// verify checks the signature and timestamp skew, returning the fully
// authenticated PeerInfo on success.
func (m *handshakeHelloOrWorld) verify(now time.Time) (PeerInfo, error) {
	skew := now.Sub(time.Unix(0, m.Timestamp*int64(time.Second)))
	if skew < 0 {
		skew = -skew
	}
	if skew > handshakeSkew {
		return PeerInfo{}, errBadTimestamp
	}

	hash := crypto.Keccak256(m.signedBytes())
	recoveredPub, err := crypto.Ecrecover(hash, m.Signature)
	if err != nil {
		return PeerInfo{}, errBadSignature
	}
	pub, err := crypto.UnmarshalPubkey(recoveredPub)
	if err != nil {
		return PeerInfo{}, errBadSignature
	}
	if crypto.NodeIDFromPubkey(pub) != m.PeerID {
		return PeerInfo{}, errPeerIDMismatch
	}

	return PeerInfo{
		ID:                m.PeerID,
		ListenPort:        m.ListenPort,
		ClientID:          m.ClientID,
		Capabilities:      m.Capabilities,
		LatestBlockNumber: m.LatestBlockNumber,
		NodeTag:           m.NodeTag,
	}, nil
}

func randomSecret() ([handshakeSecretLen]byte, error) {
	var s [handshakeSecretLen]byte
	_, err := io.ReadFull(rand.Reader, s[:])
	return s, err
}

// handshakeResult carries what performHandshake learned about the remote
// side so the caller can build a Channel and run admission checks before
// registering it.
type handshakeResult struct {
	peer PeerInfo
}

// performHandshake runs the full three-step exchange over conn and returns
// the authenticated remote PeerInfo. It owns the handshake-wide deadline;
// callers must not also set one.
func performHandshake(conn io.ReadWriter, local *Config, dir Direction) (*handshakeResult, error) {
	if deadlineConn, ok := conn.(interface{ SetDeadline(time.Time) error }); ok {
		deadlineConn.SetDeadline(time.Now().Add(handshakeTimeout))
		defer deadlineConn.SetDeadline(time.Time{})
	}

	if dir == Outbound {
		return performHandshakeDialer(conn, local)
	}
	return performHandshakeListener(conn, local)
}

func performHandshakeDialer(conn io.ReadWriter, local *Config) (*handshakeResult, error) {
	secret, err := randomSecret()
	if err != nil {
		return nil, err
	}
	init := &handshakeInit{NetworkID: local.NetworkID, NetworkVersion: local.NetworkVersion, Secret: secret}
	if err := encodeFrame(conn, currentProtocolVersion, CodeHandshakeInit, 0, init.encode()); err != nil {
		return nil, err
	}

	hello, err := readHandshakeStep(conn, CodeHandshakeHello)
	if err != nil {
		return nil, err
	}
	if hello.NetworkID != local.NetworkID || hello.NetworkVersion != local.NetworkVersion {
		return nil, errNetworkMismatch
	}
	if hello.Secret != secret {
		return nil, errBadSecretLen
	}
	peer, err := hello.verify(time.Now())
	if err != nil {
		return nil, err
	}

	world := &handshakeHelloOrWorld{
		NetworkID:         local.NetworkID,
		NetworkVersion:    local.NetworkVersion,
		ListenPort:        uint16(local.Port),
		ClientID:          local.ClientID,
		Capabilities:      local.Capabilities,
		Secret:            secret,
		Timestamp:         time.Now().Unix(),
		NodeTag:           local.NodeTag,
	}
	if err := world.sign(local.NodeKey); err != nil {
		return nil, err
	}
	if err := encodeFrame(conn, currentProtocolVersion, CodeHandshakeWorld, 0, world.encode()); err != nil {
		return nil, err
	}

	return &handshakeResult{peer: peer}, nil
}

func performHandshakeListener(conn io.ReadWriter, local *Config) (*handshakeResult, error) {
	frame, err := decodeFrame(conn)
	if err != nil {
		return nil, err
	}
	if frame.PacketType != CodeHandshakeInit {
		return nil, &ParseError{Kind: ErrKindUnknownCode}
	}
	init, err := decodeHandshakeInit(frame.Body)
	if err != nil {
		return nil, err
	}
	if init.NetworkID != local.NetworkID || init.NetworkVersion != local.NetworkVersion {
		return nil, errNetworkMismatch
	}

	hello := &handshakeHelloOrWorld{
		NetworkID:      local.NetworkID,
		NetworkVersion: local.NetworkVersion,
		ListenPort:     uint16(local.Port),
		ClientID:       local.ClientID,
		Capabilities:   local.Capabilities,
		Secret:         init.Secret,
		Timestamp:      time.Now().Unix(),
		NodeTag:        local.NodeTag,
	}
	if err := hello.sign(local.NodeKey); err != nil {
		return nil, err
	}
	if err := encodeFrame(conn, currentProtocolVersion, CodeHandshakeHello, 0, hello.encode()); err != nil {
		return nil, err
	}

	world, err := readHandshakeStep(conn, CodeHandshakeWorld)
	if err != nil {
		return nil, err
	}
	if world.Secret != init.Secret {
		return nil, errBadSecretLen
	}
	peer, err := world.verify(time.Now())
	if err != nil {
		return nil, err
	}

	return &handshakeResult{peer: peer}, nil
}

func readHandshakeStep(conn io.ReadWriter, wantCode byte) (*handshakeHelloOrWorld, error) {
	frame, err := decodeFrame(conn)
	if err != nil {
		return nil, err
	}
	if frame.PacketType != wantCode {
		return nil, &ParseError{Kind: ErrKindUnknownCode}
	}
	return decodeHandshakeHelloOrWorld(frame.Body)
}
