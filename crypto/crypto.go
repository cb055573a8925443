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

// Package crypto implements the signing primitives the connection pipeline
// uses to authenticate peers: keccak256 hashing, recoverable secp256k1
// signatures, and the derivation of a node's 160-bit identifier from its
// public key.
package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	dsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"

	"github.com/xdagnet/xdp2p/common"
)

// SignatureLength is the length in bytes of a recoverable signature: r(32) ||
// s(32) || v(1).
const SignatureLength = 64 + 1

var (
	ErrInvalidSignatureLen = errors.New("crypto: invalid signature length")
	ErrInvalidRecoveryID   = errors.New("crypto: invalid recovery id")
	ErrInvalidPubkey       = errors.New("crypto: invalid public key")
)

// Keccak256 returns the keccak256 hash of the concatenation of the inputs.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, b := range data {
		h.Write(b)
	}
	return h.Sum(nil)
}

// Keccak256Hash is like Keccak256 but returns a fixed-size [32]byte.
func Keccak256Hash(data ...[]byte) (h [32]byte) {
	copy(h[:], Keccak256(data...))
	return h
}

// GenerateKey creates a new random secp256k1 key pair.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(secp256k1.S256(), rand.Reader)
}

// FromECDSAPub serializes a public key in uncompressed form (0x04 || X || Y).
func FromECDSAPub(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(secp256k1.S256(), pub.X, pub.Y)
}

// UnmarshalPubkey parses an uncompressed secp256k1 public key.
func UnmarshalPubkey(pub []byte) (*ecdsa.PublicKey, error) {
	x, y := elliptic.Unmarshal(secp256k1.S256(), pub)
	if x == nil {
		return nil, ErrInvalidPubkey
	}
	return &ecdsa.PublicKey{Curve: secp256k1.S256(), X: x, Y: y}, nil
}

// NodeIDFromPubkey derives the 160-bit NodeID advertised on the wire: the
// low 20 bytes of keccak256 over the 64-byte uncompressed public key (X||Y,
// without the leading 0x04 prefix byte). This mirrors standard EVM-style
// address derivation; the older 64-byte raw-pubkey node id scheme is not
// implemented.
func NodeIDFromPubkey(pub *ecdsa.PublicKey) common.NodeID {
	raw := FromECDSAPub(pub)
	h := Keccak256(raw[1:]) // drop the 0x04 prefix
	var id common.NodeID
	copy(id[:], h[len(h)-common.NodeIDBytes:])
	return id
}

// Sign produces a 65-byte recoverable ECDSA signature (r || s || v) over
// hash, which must be 32 bytes. v is the 0/1 recovery id in the low-order
// position, matching the wire layout used by the handshake.
func Sign(hash []byte, priv *ecdsa.PrivateKey) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("crypto: hash must be 32 bytes, got %d", len(hash))
	}
	privKey := secp256k1.PrivKeyFromBytes(priv.D.Bytes())
	// dsa.SignCompact returns [recovery byte (27/31 + recid) || R || S].
	compact := dsa.SignCompact(privKey, hash, false)

	sig := make([]byte, SignatureLength)
	copy(sig, compact[1:])
	sig[64] = (compact[0] - 27) & 1
	return sig, nil
}

// Ecrecover recovers the uncompressed public key bytes from a signature and
// the signed hash.
func Ecrecover(hash, sig []byte) ([]byte, error) {
	pub, err := SigToPub(hash, sig)
	if err != nil {
		return nil, err
	}
	return FromECDSAPub(pub), nil
}

// SigToPub recovers the public key from a signature and the signed hash.
func SigToPub(hash, sig []byte) (*ecdsa.PublicKey, error) {
	if len(sig) != SignatureLength {
		return nil, ErrInvalidSignatureLen
	}
	if sig[64] > 1 {
		return nil, ErrInvalidRecoveryID
	}
	// Rebuild the decred compact-signature layout (recovery byte first)
	// from our r||s||v wire format before calling into the recovery code.
	compact := make([]byte, SignatureLength)
	compact[0] = 27 + sig[64]
	copy(compact[1:], sig[:64])

	pub, _, err := dsa.RecoverCompact(compact, hash)
	if err != nil {
		return nil, fmt.Errorf("crypto: recover public key: %w", err)
	}
	return pub.ToECDSA(), nil
}

// VerifySignature reports whether sig is a valid signature of hash by the
// holder of the private key matching pub.
func VerifySignature(pub []byte, hash, sig []byte) bool {
	recovered, err := Ecrecover(hash, sig)
	if err != nil {
		return false
	}
	if len(recovered) != len(pub) {
		return false
	}
	for i := range pub {
		if pub[i] != recovered[i] {
			return false
		}
	}
	return true
}
