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
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body := []byte("hello xdp2p")
	if err := encodeFrame(&buf, currentProtocolVersion, CodePing, 7, body); err != nil {
		t.Fatal(err)
	}
	f, err := decodeFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if f.PacketType != CodePing || f.PacketID != 7 || !bytes.Equal(f.Body, body) {
		t.Errorf("got %+v, want PacketType=%d PacketID=7 Body=%q", f, CodePing, body)
	}
}

func TestEncodeFrameCompressesLargeBody(t *testing.T) {
	var buf bytes.Buffer
	body := bytes.Repeat([]byte("a"), 4096)
	if err := encodeFrame(&buf, currentProtocolVersion, CodeAppMin, 1, body); err != nil {
		t.Fatal(err)
	}
	if buf.Len() >= len(body) {
		t.Error("highly compressible body was not shrunk by encodeFrame")
	}
	f, err := decodeFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(f.Body, body) {
		t.Error("decoded body does not match original after compression round trip")
	}
	if f.CompressTyp != compressSnappy {
		t.Errorf("CompressTyp = %d, want compressSnappy", f.CompressTyp)
	}
}

func TestEncodeFrameSkipsCompressionWhenVersionZero(t *testing.T) {
	var buf bytes.Buffer
	body := bytes.Repeat([]byte("a"), 4096)
	if err := encodeFrame(&buf, 0, CodeAppMin, 1, body); err != nil {
		t.Fatal(err)
	}
	f, err := decodeFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if f.CompressTyp != compressNone {
		t.Error("version 0 frame was compressed")
	}
}

func TestDecodeFrameRejectsOversizedPacket(t *testing.T) {
	header := make([]byte, frameHeaderSize)
	header[0] = byte(currentProtocolVersion)
	header[1] = compressNone
	header[11] = 0xFF // packetSize high byte -> far above maxPacketSize
	header[12] = 0xFF
	header[13] = 0xFF
	header[14] = 0xFF
	r := bytes.NewReader(header)
	if _, err := decodeFrame(r); err == nil {
		t.Error("expected error decoding an oversized packet_size header")
	}
}

func TestDecodeFrameRejectsBadCompressType(t *testing.T) {
	header := make([]byte, frameHeaderSize)
	header[1] = 0x7F // neither compressNone nor compressSnappy
	r := bytes.NewReader(header)
	if _, err := decodeFrame(r); err == nil {
		t.Error("expected error decoding an unknown compress_type")
	}
}

func TestDecodeFrameRejectsTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	encodeFrame(&buf, currentProtocolVersion, CodePing, 1, []byte("0123456789"))
	truncated := buf.Bytes()[:frameHeaderSize+3]
	if _, err := decodeFrame(bytes.NewReader(truncated)); err == nil {
		t.Error("expected error decoding a truncated body")
	}
}

func TestDecodeFrameRejectsCorruptSnappyPayload(t *testing.T) {
	header := make([]byte, frameHeaderSize)
	header[0] = byte(currentProtocolVersion)
	header[1] = compressSnappy
	garbage := []byte{0xff, 0xff, 0xff, 0xff, 0xff}
	// body_size
	header[7], header[8], header[9], header[10] = 0, 0, 0, byte(len(garbage))
	// packet_size (claimed uncompressed length)
	header[11], header[12], header[13], header[14] = 0, 0, 0, 16
	r := io.MultiReader(bytes.NewReader(header), bytes.NewReader(garbage))
	if _, err := decodeFrame(r); err == nil {
		t.Error("expected error decoding a corrupt snappy payload")
	}
}

func TestParseErrorString(t *testing.T) {
	err := &ParseError{Kind: ErrKindBadLength}
	if !strings.Contains(err.Error(), ErrKindBadLength) {
		t.Errorf("ParseError.Error() = %q, want it to contain %q", err.Error(), ErrKindBadLength)
	}
}
