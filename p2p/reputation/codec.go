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

package reputation

import (
	"encoding/binary"
	"errors"
	"time"
)

var errTruncated = errors.New("reputation: truncated record")

// Both reputation.dat and bans.dat are a flat sequence of length-prefixed
// tuples using the same primitive encoding: a string is uint32 length
// followed by UTF-8 bytes; every other scalar is big-endian fixed width.
// There is no outer framing beyond EOF - a truncated trailing record fails
// to decode, and the caller logs a warning and keeps the records before it.

func putString(buf []byte, s string) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(len(s)))
	buf = append(buf, tmp[:]...)
	return append(buf, s...)
}

func getString(b []byte) (string, []byte, error) {
	if len(b) < 4 {
		return "", nil, errTruncated
	}
	n := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	if uint64(len(b)) < uint64(n) {
		return "", nil, errTruncated
	}
	return string(b[:n]), b[n:], nil
}

func putInt64(buf []byte, v int64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	return append(buf, tmp[:]...)
}

func getInt64(b []byte) (int64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, errTruncated
	}
	return int64(binary.BigEndian.Uint64(b[:8])), b[8:], nil
}

func putUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func getUint32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, errTruncated
	}
	return binary.BigEndian.Uint32(b[:4]), b[4:], nil
}

// encodeReputationRecord serializes one node's reputation score.
func encodeReputationRecord(nodeIDHex string, score int) []byte {
	var buf []byte
	buf = putString(buf, nodeIDHex)
	buf = putInt64(buf, int64(score))
	return buf
}

func decodeReputationRecord(b []byte) (nodeIDHex string, score int, rest []byte, err error) {
	nodeIDHex, b, err = getString(b)
	if err != nil {
		return "", 0, nil, err
	}
	s, b, err := getInt64(b)
	if err != nil {
		return "", 0, nil, err
	}
	return nodeIDHex, int(s), b, nil
}

// encodeBanRecord serializes one ban.
func encodeBanRecord(r *banRecord) []byte {
	var buf []byte
	buf = putString(buf, r.Key)
	buf = putUint32(buf, uint32(r.Reason))
	buf = putUint32(buf, uint32(r.OffenseCount))
	buf = putInt64(buf, r.BannedAt.UnixNano())
	buf = putInt64(buf, r.ExpiresAt.UnixNano())
	return buf
}

func decodeBanRecord(b []byte) (*banRecord, []byte, error) {
	key, b, err := getString(b)
	if err != nil {
		return nil, nil, err
	}
	reason, b, err := getUint32(b)
	if err != nil {
		return nil, nil, err
	}
	offenses, b, err := getUint32(b)
	if err != nil {
		return nil, nil, err
	}
	bannedAt, b, err := getInt64(b)
	if err != nil {
		return nil, nil, err
	}
	expiresAt, b, err := getInt64(b)
	if err != nil {
		return nil, nil, err
	}
	return &banRecord{
		Key:          key,
		Reason:       Reason(reason),
		OffenseCount: int(offenses),
		BannedAt:     time.Unix(0, bannedAt),
		ExpiresAt:    time.Unix(0, expiresAt),
	}, b, nil
}
