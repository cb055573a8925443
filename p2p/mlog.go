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

import "github.com/xdagnet/xdp2p/logger"

var mlogChannelManager = logger.MLogRegisterAvailable("channel-manager", mLogLinesChannelManager)

var mLogLinesChannelManager = []logger.MLogT{
	mlogChannelAdded,
	mlogChannelRemoved,
}

var mlogChannelAdded = logger.MLogT{
	Description: "Called once when a channel finishes admission and is registered.",
	Receiver:    "MANAGER",
	Verb:        "ADD",
	Subject:     "CHANNEL",
	Details: []logger.MLogDetailT{
		{Owner: "MANAGER", Key: "PEER_COUNT", Value: "INT"},
		{Owner: "CHANNEL", Key: "ID", Value: "STRING"},
		{Owner: "CHANNEL", Key: "REMOTE_ADDR", Value: "STRING"},
		{Owner: "CHANNEL", Key: "DIRECTION", Value: "STRING"},
	},
}

var mlogChannelRemoved = logger.MLogT{
	Description: "Called once when a channel is unregistered and closed.",
	Receiver:    "MANAGER",
	Verb:        "REMOVE",
	Subject:     "CHANNEL",
	Details: []logger.MLogDetailT{
		{Owner: "MANAGER", Key: "PEER_COUNT", Value: "INT"},
		{Owner: "CHANNEL", Key: "ID", Value: "STRING"},
		{Owner: "REMOVE", Key: "REASON", Value: "QUOTEDSTRING"},
	},
}
