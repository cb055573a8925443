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

package crypto

import (
	"bytes"
	"testing"
)

func TestSignAndRecover(t *testing.T) {
	priv, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	hash := Keccak256([]byte("hello xdp2p"))

	sig, err := Sign(hash, priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) != SignatureLength {
		t.Fatalf("expected %d-byte signature, got %d", SignatureLength, len(sig))
	}

	recovered, err := Ecrecover(hash, sig)
	if err != nil {
		t.Fatalf("Ecrecover: %v", err)
	}
	want := FromECDSAPub(&priv.PublicKey)
	if !bytes.Equal(recovered, want) {
		t.Fatalf("recovered pubkey mismatch:\n got  %x\n want %x", recovered, want)
	}
	if !VerifySignature(want, hash, sig) {
		t.Fatal("VerifySignature rejected a valid signature")
	}
}

func TestVerifySignatureRejectsTamperedHash(t *testing.T) {
	priv, _ := GenerateKey()
	hash := Keccak256([]byte("original"))
	sig, _ := Sign(hash, priv)

	tampered := Keccak256([]byte("tampered"))
	if VerifySignature(FromECDSAPub(&priv.PublicKey), tampered, sig) {
		t.Fatal("VerifySignature accepted a signature over a different hash")
	}
}

func TestNodeIDFromPubkeyIsStable(t *testing.T) {
	priv, _ := GenerateKey()
	id1 := NodeIDFromPubkey(&priv.PublicKey)
	id2 := NodeIDFromPubkey(&priv.PublicKey)
	if id1 != id2 {
		t.Fatal("NodeIDFromPubkey is not deterministic")
	}
	if id1.IsZero() {
		t.Fatal("derived node id should not be zero")
	}
}

func TestSigToPubRejectsBadLength(t *testing.T) {
	if _, err := SigToPub(make([]byte, 32), make([]byte, 10)); err != ErrInvalidSignatureLen {
		t.Fatalf("expected ErrInvalidSignatureLen, got %v", err)
	}
}
