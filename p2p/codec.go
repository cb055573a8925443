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
	"encoding/binary"
	"io"

	"github.com/golang/snappy"
)

// Wire layout of one TCP frame:
//
//	version(1) | compress_type(1) | packet_type(1) | packet_id(4) |
//	body_size(4) | packet_size(4) | body(body_size)
//
// packet_size equals body_size when compressType is compressNone. When
// compressType is compressSnappy, packet_size carries the *uncompressed*
// length and body holds the compressed bytes.
const frameHeaderSize = 1 + 1 + 1 + 4 + 4 + 4

const (
	compressNone   byte = 0
	compressSnappy byte = 1
)

const (
	maxPacketSize           = 4 * 1024 * 1024   // reject frames above this
	maxUncompressedBodySize = 128 * 1024         // cap for an uncompressed body_size
	maxDecompressedSize     = 5 * 1024 * 1024    // BigMessage threshold for decompression
)

// Frame is one decoded TCP wire frame, prior to application interpretation.
type Frame struct {
	Version     byte
	CompressTyp byte
	PacketType  byte
	PacketID    uint32
	Body        []byte // always the logical (decompressed) body
}

// protocolVersion gates whether compression may be used on an outbound
// frame. Version 0 peers never see a compressed frame.
type protocolVersion byte

const currentProtocolVersion protocolVersion = 1

// encodeFrame serializes f, compressing the body with snappy when version
// allows it and doing so actually shrinks the payload.
func encodeFrame(w io.Writer, version protocolVersion, packetType byte, packetID uint32, body []byte) error {
	compressType := compressNone
	wireBody := body
	packetSize := uint32(len(body))

	if version >= 1 {
		compressed := snappy.Encode(nil, body)
		if len(compressed) < len(body) {
			compressType = compressSnappy
			wireBody = compressed
			packetSize = uint32(len(body)) // uncompressed length goes in packet_size
		}
	}

	header := make([]byte, frameHeaderSize)
	header[0] = byte(version)
	header[1] = compressType
	header[2] = packetType
	binary.BigEndian.PutUint32(header[3:7], packetID)
	binary.BigEndian.PutUint32(header[7:11], uint32(len(wireBody)))
	binary.BigEndian.PutUint32(header[11:15], packetSize)

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(wireBody)
	return err
}

// decodeFrame reads and validates exactly one frame from r.
func decodeFrame(r io.Reader) (*Frame, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	version := header[0]
	compressType := header[1]
	packetType := header[2]
	packetID := binary.BigEndian.Uint32(header[3:7])
	bodySize := binary.BigEndian.Uint32(header[7:11])
	packetSize := binary.BigEndian.Uint32(header[11:15])

	if packetSize > maxPacketSize {
		return nil, &ParseError{Kind: ErrKindBigMessage}
	}
	if compressType == compressNone && bodySize > maxUncompressedBodySize {
		return nil, &ParseError{Kind: ErrKindBadLength}
	}
	if compressType != compressNone && compressType != compressSnappy {
		return nil, &ParseError{Kind: ErrKindBadLength}
	}

	wireBody := make([]byte, bodySize)
	if _, err := io.ReadFull(r, wireBody); err != nil {
		return nil, err
	}

	body := wireBody
	if compressType == compressSnappy {
		if uint64(packetSize) >= maxDecompressedSize {
			return nil, &ParseError{Kind: ErrKindBigMessage}
		}
		decoded, err := snappy.Decode(nil, wireBody)
		if err != nil {
			return nil, &ParseError{Kind: ErrKindBadLength, Err: err}
		}
		if uint32(len(decoded)) != packetSize {
			return nil, &ParseError{Kind: ErrKindBadLength}
		}
		body = decoded
	}

	return &Frame{
		Version:     version,
		CompressTyp: compressType,
		PacketType:  packetType,
		PacketID:    packetID,
		Body:        body,
	}, nil
}
