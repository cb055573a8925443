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

import "fmt"

// DisconnectReason is sent in a DISCONNECT frame and also used locally to
// record why a channel was torn down. The numeric values are wire-visible
// and must never be renumbered once peers depend on them.
type DisconnectReason uint8

const (
	DiscRequested           DisconnectReason = iota // local application asked to close
	DiscIOError                                     // read/write failure on the socket
	DiscBadProtocol                                 // framing or codec violation
	DiscBadHandshake                                // signature or peer id mismatch
	DiscDifferentVersion                            // network_id/network_version mismatch
	DiscTooManyPeers                                // max_connections reached
	DiscMaxConnectionsSameIP                        // max_connections_with_same_ip reached
	DiscDuplicatePeer                               // already have a channel to this peer id
	DiscTimeBanned                                  // remote_ip is currently banned
	DiscPingTimeout                                 // no PONG within the timeout window
	DiscBusy                                        // send queue overflowed
	DiscHandshakeTimeout                            // handshake did not complete in time
	DiscStopping                                    // local node is shutting down
)

var discReasonStrings = [...]string{
	DiscRequested:            "requested",
	DiscIOError:              "io error",
	DiscBadProtocol:          "bad protocol",
	DiscBadHandshake:         "bad handshake",
	DiscDifferentVersion:     "different network version",
	DiscTooManyPeers:         "too many peers",
	DiscMaxConnectionsSameIP: "too many peers from this ip",
	DiscDuplicatePeer:        "duplicate peer",
	DiscTimeBanned:           "ip is banned",
	DiscPingTimeout:          "ping timeout",
	DiscBusy:                 "send queue overflow",
	DiscHandshakeTimeout:     "handshake timeout",
	DiscStopping:             "node stopping",
}

func (d DisconnectReason) String() string {
	if int(d) < len(discReasonStrings) {
		return discReasonStrings[d]
	}
	return fmt.Sprintf("unknown disconnect reason %d", uint8(d))
}

func (d DisconnectReason) Error() string { return d.String() }

// ParseError is returned by the frame codec for anything that makes a frame
// unreadable. A ParseError during the handshake or on an established channel
// is treated as a protocol violation and gets the source IP a
// ReasonBadProtocol ban.
type ParseError struct {
	Kind string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("p2p: parse error (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("p2p: parse error (%s)", e.Kind)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Sentinel ParseError kinds referenced by callers that only need to compare
// the Kind string (e.g. tests asserting a specific failure mode).
const (
	ErrKindUnknownCode    = "unknown_code"
	ErrKindBigMessage     = "big_message"
	ErrKindBadLength      = "bad_length"
	ErrKindShortDatagram  = "short_datagram"
	ErrKindTruncatedField = "truncated_field"
)

// AdmissionError is returned by the Channel Manager when a candidate session
// is rejected before or during handshake. It carries the DisconnectReason
// that should be written to the wire.
type AdmissionError struct {
	Reason DisconnectReason
}

func (e *AdmissionError) Error() string { return "p2p: admission denied: " + e.Reason.String() }
