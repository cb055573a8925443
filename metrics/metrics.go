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

// Package metrics centralizes the counters and gauges that the networking
// core updates and that a host process may scrape. Updates are not
// lock-free: the go-metrics types synchronize internally, and MsgIn/MsgOut
// take a mutex to look up or create the per-code meter.
package metrics

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/xdagnet/xdp2p/logger/glog"
)

// Registry is the default destination for every metric in this package. A
// Node service may hold its own Registry (see New) so that multiple node
// instances in one process do not share counters.
type Registry struct {
	reg metrics.Registry

	// connections
	ConnActive  metrics.Gauge
	ConnPassive metrics.Gauge
	ConnTotal   metrics.Gauge

	// bytes
	BytesIn  metrics.Meter
	BytesOut metrics.Meter

	// handshake
	HandshakeOK     metrics.Meter
	HandshakeFailed metrics.Meter

	// bans / reputation
	BanCount   metrics.Counter
	Reputation metrics.Histogram

	// discovery
	TableSize      metrics.Gauge
	LookupLatency  metrics.Histogram
	LookupRounds   metrics.Histogram
	PingTimeouts   metrics.Meter
	FindNodeOut    metrics.Meter
	NeighborsIn    metrics.Meter

	mu       sync.Mutex
	msgIn    map[byte]metrics.Meter
	msgOut   map[byte]metrics.Meter
}

// New builds a fresh, independently-registered metrics set. Tests that start
// more than one Node in the same process should each call New rather than
// share the package-level Default.
func New() *Registry {
	reg := metrics.NewRegistry()
	return &Registry{
		reg:             reg,
		ConnActive:      metrics.NewRegisteredGauge("conn/active", reg),
		ConnPassive:     metrics.NewRegisteredGauge("conn/passive", reg),
		ConnTotal:       metrics.NewRegisteredGauge("conn/total", reg),
		BytesIn:         metrics.NewRegisteredMeter("bytes/in", reg),
		BytesOut:        metrics.NewRegisteredMeter("bytes/out", reg),
		HandshakeOK:     metrics.NewRegisteredMeter("handshake/ok", reg),
		HandshakeFailed: metrics.NewRegisteredMeter("handshake/failed", reg),
		BanCount:        metrics.NewRegisteredCounter("ban/count", reg),
		Reputation:      metrics.NewRegisteredHistogram("reputation", reg, metrics.NewUniformSample(1028)),
		TableSize:       metrics.NewRegisteredGauge("discover/table_size", reg),
		LookupLatency:   metrics.NewRegisteredHistogram("discover/lookup_latency_ms", reg, metrics.NewUniformSample(1028)),
		LookupRounds:    metrics.NewRegisteredHistogram("discover/lookup_rounds", reg, metrics.NewUniformSample(1028)),
		PingTimeouts:    metrics.NewRegisteredMeter("discover/ping_timeouts", reg),
		FindNodeOut:     metrics.NewRegisteredMeter("discover/find_node/out", reg),
		NeighborsIn:     metrics.NewRegisteredMeter("discover/neighbors/in", reg),
		msgIn:           make(map[byte]metrics.Meter),
		msgOut:          make(map[byte]metrics.Meter),
	}
}

// Default is the package-level registry used when a caller has no reason to
// isolate its own.
var Default = New()

// MsgIn returns (creating if necessary) the inbound-message meter for code.
func (r *Registry) MsgIn(code byte) metrics.Meter {
	return r.msgMeter(r.msgIn, "msg/in/%d", code)
}

// MsgOut returns (creating if necessary) the outbound-message meter for code.
func (r *Registry) MsgOut(code byte) metrics.Meter {
	return r.msgMeter(r.msgOut, "msg/out/%d", code)
}

func (r *Registry) msgMeter(table map[byte]metrics.Meter, format string, code byte) metrics.Meter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := table[code]; ok {
		return m
	}
	m := metrics.NewRegisteredMeter(fmt.Sprintf(format, code), r.reg)
	table[code] = m
	return m
}

// diskStats is the per-process disk I/O statistics.
type diskStats struct {
	ReadCount  int64
	ReadBytes  int64
	WriteCount int64
	WriteBytes int64
}

var (
	memAllocs = metrics.GetOrRegisterGauge("memory/allocs", metrics.DefaultRegistry)
	memFrees  = metrics.GetOrRegisterGauge("memory/frees", metrics.DefaultRegistry)
	memInuse  = metrics.GetOrRegisterGauge("memory/inuse", metrics.DefaultRegistry)
	memPauses = metrics.GetOrRegisterGauge("memory/pauses", metrics.DefaultRegistry)

	diskReads      = metrics.GetOrRegisterGauge("disk/readcount", metrics.DefaultRegistry)
	diskReadBytes  = metrics.GetOrRegisterGauge("disk/readdata", metrics.DefaultRegistry)
	diskWrites     = metrics.GetOrRegisterGauge("disk/writecount", metrics.DefaultRegistry)
	diskWriteBytes = metrics.GetOrRegisterGauge("disk/writedata", metrics.DefaultRegistry)
)

// Collect appends a JSON snapshot of r plus process-wide memory/disk stats to
// file every 3 seconds. It never returns; callers run it in its own
// goroutine.
func (r *Registry) Collect(file string) {
	f, err := os.OpenFile(file, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0666)
	if err != nil {
		glog.Fatal(err)
	}
	defer f.Close()

	encoder := json.NewEncoder(bufio.NewWriter(f))

	for range time.Tick(3 * time.Second) {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		memAllocs.Update(int64(mem.Mallocs))
		memFrees.Update(int64(mem.Frees))
		memInuse.Update(int64(mem.Alloc))
		memPauses.Update(int64(mem.PauseTotalNs))

		var disk diskStats
		readDiskStats(&disk)
		diskReads.Update(disk.ReadCount)
		diskReadBytes.Update(disk.ReadBytes)
		diskWrites.Update(disk.WriteCount)
		diskWriteBytes.Update(disk.WriteBytes)

		if err := encoder.Encode(r.reg); err != nil {
			glog.Errorf("metrics: log to %q: %s", file, err)
		}
	}
}
