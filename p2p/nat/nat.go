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

// Package nat resolves the external IP address a node is reachable at, which
// the discovery service advertises as its own address (discover.Config's
// ExternalIP) when the local listen address is a private one. Port mapping
// and lease renewal are out of scope: discovery only needs an address to
// advertise, not an inbound
// path opened through the gateway, so this package sticks to the
// external-address query surface of UPnP and NAT-PMP.
package nat

import (
	"errors"
	"net"
	"strings"
	"time"
)

// ErrNoGateway is returned when no UPnP or NAT-PMP gateway answers.
var ErrNoGateway = errors.New("nat: no gateway device found")

// Interface resolves the external (public) IP address of the local
// network's gateway.
type Interface interface {
	ExternalIP() (net.IP, error)
	String() string
}

// Parse parses a NAT option string: "none", "upnp", "pmp" (NAT-PMP via the
// default gateway), or "pmp:<gateway-ip>".
func Parse(spec string) (Interface, error) {
	var parts []string
	if i := strings.Index(spec, ":"); i >= 0 {
		parts = []string{spec[:i], spec[i+1:]}
	} else {
		parts = []string{spec}
	}

	switch parts[0] {
	case "", "none", "off":
		return nil, nil
	case "upnp":
		return UPnP(), nil
	case "pmp", "natpmp", "nat-pmp":
		gw := defaultGateway()
		if len(parts) == 2 {
			gw = net.ParseIP(parts[1])
		}
		if gw == nil {
			return nil, errors.New("nat: no gateway IP given or detected for pmp")
		}
		return PMP(gw), nil
	default:
		return nil, errors.New("nat: unknown mechanism " + parts[0])
	}
}

// discoverTimeout bounds how long UPnP SSDP discovery or a NAT-PMP request
// may take; on failure discovery advertises the locally bound address.
const discoverTimeout = 3 * time.Second
