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

// Package reputation implements the per-node reputation score and
// time-expiring ban list described for the Channel Manager's admission
// control. Both stores share one on-disk discipline: atomic
// write-then-rename with a ".bak" companion, checkpointed periodically
// rather than on every mutation.
package reputation

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xdagnet/xdp2p/common"
	"github.com/xdagnet/xdp2p/logger/glog"
)

const (
	defaultScore = 100
	minScore     = 0
	maxScore     = 200
	deadScore    = 20
	decayStep    = 5
	decayPeriod  = 24 * time.Hour
)

const (
	reputationFile = "reputation.dat"
	bansFile       = "bans.dat"
)

// Store is the reputation-and-ban ledger for one node instance. All methods
// are safe for concurrent use.
type Store struct {
	dataDir string

	mu         sync.Mutex
	scores     map[string]int // node id hex -> score
	lastDecay  map[string]time.Time
	bans       map[string]*banRecord // ip or node-id hex -> ban
	whitelist  map[string]bool
	dirty      bool
}

// Open loads reputation.dat and bans.dat from dataDir. A primary file that
// is missing or unreadable is replaced by its .bak companion; if neither can
// be read, that part of the store starts empty and nothing is logged. A
// record that fails to decode logs a warning and ends loading of that file,
// keeping the records decoded before it; the .bak is not consulted then.
func Open(dataDir string) *Store {
	s := &Store{
		dataDir:   dataDir,
		scores:    make(map[string]int),
		lastDecay: make(map[string]time.Time),
		bans:      make(map[string]*banRecord),
		whitelist: make(map[string]bool),
	}
	s.loadReputation()
	s.loadBans()
	return s
}

func (s *Store) loadReputation() {
	data, ok, err := common.ReadFileWithBackup(filepath.Join(s.dataDir, reputationFile))
	if err != nil || !ok {
		return
	}
	now := time.Now()
	for len(data) > 0 {
		id, score, rest, err := decodeReputationRecord(data)
		if err != nil {
			glog.Warningf("reputation: corrupt record in %s: %v", reputationFile, err)
			break
		}
		s.scores[id] = score
		s.lastDecay[id] = now
		data = rest
	}
}

func (s *Store) loadBans() {
	data, ok, err := common.ReadFileWithBackup(filepath.Join(s.dataDir, bansFile))
	if err != nil || !ok {
		return
	}
	for len(data) > 0 {
		rec, rest, err := decodeBanRecord(data)
		if err != nil {
			glog.Warningf("reputation: corrupt record in %s: %v", bansFile, err)
			break
		}
		s.bans[rec.Key] = rec
		data = rest
	}
}

// Whitelist marks key (an IP or node id hex string) as immune to banning.
func (s *Store) Whitelist(key string) {
	s.mu.Lock()
	s.whitelist[key] = true
	delete(s.bans, key)
	s.mu.Unlock()
}

// Score returns nodeID's current reputation score, defaulting new nodes to
// defaultScore.
func (s *Store) Score(nodeIDHex string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scoreLocked(nodeIDHex)
}

func (s *Store) scoreLocked(nodeIDHex string) int {
	if v, ok := s.scores[nodeIDHex]; ok {
		return v
	}
	return defaultScore
}

// Apply adds delta to nodeID's score, clamped to [minScore, maxScore].
func (s *Store) Apply(nodeIDHex string, delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.scoreLocked(nodeIDHex) + delta
	if v < minScore {
		v = minScore
	}
	if v > maxScore {
		v = maxScore
	}
	s.scores[nodeIDHex] = v
	s.lastDecay[nodeIDHex] = time.Now()
	s.dirty = true
	return v
}

// IsDead reports whether nodeID's score has dropped below the liveness
// threshold.
func (s *Store) IsDead(nodeIDHex string) bool {
	return s.Score(nodeIDHex) < deadScore
}

// DecayAll moves every tracked score decayStep points toward defaultScore,
// prorated by elapsed time since each node's last decay/apply, for any node
// whose last touch was at least decayPeriod ago. Intended to run once an
// hour from the scheduler.
func (s *Store) DecayAll(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, score := range s.scores {
		last, ok := s.lastDecay[id]
		if !ok {
			last = now
		}
		elapsed := now.Sub(last)
		if elapsed < decayPeriod {
			continue
		}
		periods := int(elapsed / decayPeriod)
		newScore := score
		for i := 0; i < periods; i++ {
			newScore = stepToward(newScore, defaultScore, decayStep)
		}
		if newScore != score {
			s.scores[id] = newScore
			s.dirty = true
		}
		s.lastDecay[id] = now
	}
}

func stepToward(score, target, step int) int {
	if score == target {
		return score
	}
	if score < target {
		next := score + step
		if next > target {
			return target
		}
		return next
	}
	next := score - step
	if next < target {
		return target
	}
	return next
}

// Ban records an offense for key (IP or node id hex) under reason,
// computing the graduated duration from any prior un-expired-window offense
// count. Whitelisted keys are never banned.
func (s *Store) Ban(key string, reason Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.whitelist[key] {
		return
	}

	now := time.Now()
	offenseNum := 1
	if prev, ok := s.bans[key]; ok && now.Sub(prev.BannedAt) <= offenseWindow {
		offenseNum = prev.OffenseCount + 1
	}

	dur := durationForOffense(reason, offenseNum)
	s.bans[key] = &banRecord{
		Key:          key,
		Reason:       reason,
		OffenseCount: offenseNum,
		BannedAt:     now,
		ExpiresAt:    now.Add(dur),
	}
	s.dirty = true
}

// Unban removes any active ban for key.
func (s *Store) Unban(key string) {
	s.mu.Lock()
	delete(s.bans, key)
	s.dirty = true
	s.mu.Unlock()
}

// IsBanned reports whether key is currently banned, removing the record in
// the same call if it has since expired.
func (s *Store) IsBanned(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.bans[key]
	if !ok {
		return false
	}
	if rec.expired(time.Now()) {
		delete(s.bans, key)
		s.dirty = true
		return false
	}
	return true
}

// Checkpoint persists both tables to disk if anything has changed since the
// last checkpoint. Intended to run every 60s from the scheduler.
func (s *Store) Checkpoint() error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	var repBuf, banBuf []byte
	for id, score := range s.scores {
		repBuf = append(repBuf, encodeReputationRecord(id, score)...)
	}
	now := time.Now()
	for _, rec := range s.bans {
		if rec.expired(now) {
			continue
		}
		banBuf = append(banBuf, encodeBanRecord(rec)...)
	}
	s.dirty = false
	s.mu.Unlock()

	if err := os.MkdirAll(s.dataDir, 0700); err != nil {
		return err
	}
	if err := common.WriteFileAtomic(filepath.Join(s.dataDir, reputationFile), repBuf, 0600); err != nil {
		glog.Errorf("reputation: checkpoint %s: %v", reputationFile, err)
		return err
	}
	if err := common.WriteFileAtomic(filepath.Join(s.dataDir, bansFile), banBuf, 0600); err != nil {
		glog.Errorf("reputation: checkpoint %s: %v", bansFile, err)
		return err
	}
	return nil
}
