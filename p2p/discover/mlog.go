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

package discover

import "github.com/xdagnet/xdp2p/logger"

var mlogDiscover = logger.MLogRegisterAvailable("discover", mLogLinesDiscover)

var mLogLinesDiscover = []logger.MLogT{
	mlogPingHandleFrom,
	mlogPongHandleFrom,
	mlogFindNodeHandleFrom,
	mlogFindNodeSendNeighbors,
	mlogNeighborsHandleFrom,
}

var mlogPingHandleFrom = logger.MLogT{
	Receiver: "PING",
	Verb:     "HANDLE",
	Subject:  "FROM",
	Details: []logger.MLogDetailT{
		{Owner: "FROM", Key: "UDP_ADDRESS", Value: "STRING"},
		{Owner: "FROM", Key: "ID", Value: "STRING"},
	},
}

var mlogPongHandleFrom = logger.MLogT{
	Receiver: "PONG",
	Verb:     "HANDLE",
	Subject:  "FROM",
	Details: []logger.MLogDetailT{
		{Owner: "FROM", Key: "UDP_ADDRESS", Value: "STRING"},
		{Owner: "PONG", Key: "ERROR", Value: "STRING"},
	},
}

var mlogFindNodeHandleFrom = logger.MLogT{
	Receiver: "FIND_NODE",
	Verb:     "HANDLE",
	Subject:  "FROM",
	Details: []logger.MLogDetailT{
		{Owner: "FROM", Key: "UDP_ADDRESS", Value: "STRING"},
		{Owner: "FROM", Key: "ID", Value: "STRING"},
	},
}

var mlogFindNodeSendNeighbors = logger.MLogT{
	Receiver: "FIND_NODE",
	Verb:     "SEND",
	Subject:  "NEIGHBORS",
	Details: []logger.MLogDetailT{
		{Owner: "FIND_NODE", Key: "UDP_ADDRESS", Value: "STRING"},
		{Owner: "NEIGHBORS", Key: "NODES_LEN", Value: "INT"},
	},
}

var mlogNeighborsHandleFrom = logger.MLogT{
	Receiver: "NEIGHBORS",
	Verb:     "HANDLE",
	Subject:  "FROM",
	Details: []logger.MLogDetailT{
		{Owner: "FROM", Key: "UDP_ADDRESS", Value: "STRING"},
		{Owner: "NEIGHBORS", Key: "NODES_LEN", Value: "INT"},
	},
}
