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

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"

	"github.com/xdagnet/xdp2p/common"
)

var nodesBucketName = []byte("nodes")

// nodeDB persists per-node liveness bookkeeping (last ping/pong,
// find_node failure count, reputation) across restarts so a freshly
// started node does not have to relearn which peers answer before it can
// use them as lookup candidates.
type nodeDB struct {
	db *bolt.DB
}

// openNodeDB opens (creating if necessary) the bolt-backed cache under
// dataDir/nodes.db. An empty dataDir yields an in-memory-only table: the
// caller gets a nil *nodeDB and persistence is simply skipped.
func openNodeDB(dataDir string) (*nodeDB, error) {
	if dataDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, err
	}
	path := filepath.Join(dataDir, "nodes.db")
	bdb, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := bdb.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(nodesBucketName)
		return err
	}); err != nil {
		bdb.Close()
		return nil, err
	}
	return &nodeDB{db: bdb}, nil
}

func (d *nodeDB) close() {
	if d == nil {
		return
	}
	d.db.Close()
}

// persistentNode is the subset of Node state worth surviving a restart.
type persistentNode struct {
	IP            []byte
	UDPPort       int32
	TCPPort       int32
	LastSeenUnix  int64
	FindFails     int32
	Reputation    int32
}

func encodePersistentNode(n *Node) []byte {
	var v [4]byte
	b := make([]byte, 0, 32+len(n.IP))
	binary.BigEndian.PutUint32(v[:], uint32(len(n.IP)))
	b = append(b, v[:]...)
	b = append(b, n.IP...)
	binary.BigEndian.PutUint32(v[:], uint32(n.UDPPort))
	b = append(b, v[:]...)
	binary.BigEndian.PutUint32(v[:], uint32(n.TCPPort))
	b = append(b, v[:]...)
	var v8 [8]byte
	binary.BigEndian.PutUint64(v8[:], uint64(n.LastSeen.Unix()))
	b = append(b, v8[:]...)
	binary.BigEndian.PutUint32(v[:], uint32(n.findFails))
	b = append(b, v[:]...)
	binary.BigEndian.PutUint32(v[:], uint32(n.Reputation))
	b = append(b, v[:]...)
	return b
}

func decodePersistentNode(b []byte) (*persistentNode, bool) {
	if len(b) < 4 {
		return nil, false
	}
	ipLen := int(binary.BigEndian.Uint32(b))
	b = b[4:]
	if len(b) < ipLen+4+4+8+4+4 {
		return nil, false
	}
	ip := append([]byte(nil), b[:ipLen]...)
	b = b[ipLen:]
	udpPort := int32(binary.BigEndian.Uint32(b))
	b = b[4:]
	tcpPort := int32(binary.BigEndian.Uint32(b))
	b = b[4:]
	lastSeen := int64(binary.BigEndian.Uint64(b))
	b = b[8:]
	findFails := int32(binary.BigEndian.Uint32(b))
	b = b[4:]
	reputation := int32(binary.BigEndian.Uint32(b))
	return &persistentNode{
		IP: ip, UDPPort: udpPort, TCPPort: tcpPort,
		LastSeenUnix: lastSeen, FindFails: findFails, Reputation: reputation,
	}, true
}

// save writes n's bookkeeping fields to the bolt store in its own
// transaction; called opportunistically from Table.Touch and Table.Add so
// a crash loses at most the most recent touch.
func (d *nodeDB) save(n *Node) {
	if d == nil {
		return
	}
	d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(nodesBucketName)
		return b.Put(n.ID.Bytes(), encodePersistentNode(n))
	})
}

func (d *nodeDB) delete(id common.NodeID) {
	if d == nil {
		return
	}
	d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(nodesBucketName).Delete(id[:])
	})
}

// loadAll returns every persisted node keyed by id, for seeding the table
// at startup before bootstrap pings run.
func (d *nodeDB) loadAll() map[common.NodeID]*persistentNode {
	out := make(map[common.NodeID]*persistentNode)
	if d == nil {
		return out
	}
	d.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(nodesBucketName).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(k) != common.NodeIDBytes {
				continue
			}
			pn, ok := decodePersistentNode(v)
			if !ok {
				continue
			}
			var id common.NodeID
			copy(id[:], k)
			out[id] = pn
		}
		return nil
	})
	return out
}

// expire removes entries not seen in longer than maxAge, called hourly by
// the nodedb-expire scheduler job via Table.ExpirePersisted.
func (d *nodeDB) expire(maxAge time.Duration) {
	if d == nil {
		return
	}
	cutoff := time.Now().Add(-maxAge).Unix()
	d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(nodesBucketName)
		c := b.Cursor()
		var stale [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			pn, ok := decodePersistentNode(v)
			if !ok || pn.LastSeenUnix < cutoff {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		for _, k := range stale {
			b.Delete(k)
		}
		return nil
	})
}
