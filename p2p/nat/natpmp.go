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

package nat

import (
	"net"

	natpmp "github.com/jackpal/go-nat-pmp"
)

// pmp queries a NAT-PMP gateway at a known address.
type pmp struct {
	gateway net.IP
}

// PMP returns a nat.Interface that speaks NAT-PMP to the gateway at gw.
func PMP(gw net.IP) Interface { return &pmp{gateway: gw} }

func (n *pmp) String() string { return "NAT-PMP(" + n.gateway.String() + ")" }

func (n *pmp) ExternalIP() (net.IP, error) {
	client := natpmp.NewClient(n.gateway)
	resp, err := client.GetExternalAddress()
	if err != nil {
		return nil, err
	}
	ip := resp.ExternalIPAddress
	return net.IPv4(ip[0], ip[1], ip[2], ip[3]), nil
}

// defaultGateway guesses the LAN gateway from common private-network
// addresses when the caller doesn't supply one explicitly. This is a
// heuristic, not a route-table read: good enough for discovery's
// best-effort external-address hint, not for anything that must be correct.
func defaultGateway() net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			gw := make(net.IP, 4)
			copy(gw, ip4)
			gw[3] = 1
			return gw
		}
	}
	return nil
}
