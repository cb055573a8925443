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
	"errors"
	"net"

	"github.com/huin/goupnp/dcps/internetgateway1"
)

// upnp queries an Internet Gateway Device's WANIPConnection or
// WANPPPConnection service for its external address.
type upnp struct{}

// UPnP returns a nat.Interface backed by SSDP device discovery. Discovery
// (and every subsequent ExternalIP call) re-runs device discovery rather
// than caching a client, since goupnp's generated clients don't expose a
// liveness check and a gateway reboot would otherwise strand a stale one.
func UPnP() Interface { return upnp{} }

func (upnp) String() string { return "UPnP" }

func (upnp) ExternalIP() (net.IP, error) {
	if ip, err := upnpIPConnExternalIP(); err == nil {
		return ip, nil
	}
	return upnpPPPConnExternalIP()
}

func upnpIPConnExternalIP() (net.IP, error) {
	clients, _, err := internetgateway1.NewWANIPConnection1Clients()
	if err != nil {
		return nil, err
	}
	for _, c := range clients {
		addr, err := c.GetExternalIPAddress()
		if err != nil {
			continue
		}
		if ip := net.ParseIP(addr); ip != nil {
			return ip, nil
		}
	}
	return nil, ErrNoGateway
}

func upnpPPPConnExternalIP() (net.IP, error) {
	clients, _, err := internetgateway1.NewWANPPPConnection1Clients()
	if err != nil {
		return nil, err
	}
	for _, c := range clients {
		addr, err := c.GetExternalIPAddress()
		if err != nil {
			continue
		}
		if ip := net.ParseIP(addr); ip != nil {
			return ip, nil
		}
	}
	return nil, errors.New("nat: no UPnP WANIPConnection or WANPPPConnection service responded")
}
