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

	"github.com/xdagnet/xdp2p/common"
	"github.com/xdagnet/xdp2p/p2p/nat"
)

// Config is the full set of options recognized by a Node. Parsing flags or
// config files into this struct is the host application's job.
type Config struct {
	// Port is used for both the TCP listener and the UDP discovery socket.
	Port int

	NetworkID      uint64
	NetworkVersion uint64

	MinConnections           int
	MaxConnections           int
	MinActiveConnections     int
	MaxConnectionsWithSameIP int

	SeedNodes   []string
	ActiveNodes []string
	TrustNodes  []string

	DiscoverEnable bool

	// NAT resolves the address advertised in the handshake when the listen
	// address is on a private network. Nil disables resolution; the node
	// then advertises whatever address it locally bound.
	NAT nat.Interface

	DataDir string

	NodeKey *ecdsa.PrivateKey

	ClientID     string
	NodeTag      string
	Capabilities []string
}

// DefaultConfig returns the option values the spec's config table names as
// defaults.
func DefaultConfig() Config {
	return Config{
		Port:                     16783,
		MinConnections:           8,
		MaxConnections:           50,
		MinActiveConnections:     2,
		MaxConnectionsWithSameIP: 2,
		DiscoverEnable:           true,
		ClientID:                 "xdp2p",
	}
}

// localID derives this node's NodeId from its configured signing key.
func (c *Config) localID() (common.NodeID, error) {
	if c.NodeKey == nil {
		return common.NodeID{}, errMissingNodeKey
	}
	return nodeIDFromKey(c.NodeKey), nil
}
