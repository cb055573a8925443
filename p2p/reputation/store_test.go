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

package reputation

import (
	"testing"
	"time"
)

func TestStoreScoreDefaultsToHundred(t *testing.T) {
	s := Open(t.TempDir())
	if got := s.Score("deadbeef"); got != defaultScore {
		t.Errorf("Score for an untouched node = %d, want %d", got, defaultScore)
	}
}

func TestStoreApplyClampsToRange(t *testing.T) {
	s := Open(t.TempDir())
	if got := s.Apply("n1", 1000); got != maxScore {
		t.Errorf("Apply clamp high = %d, want %d", got, maxScore)
	}
	if got := s.Apply("n1", -1000); got != minScore {
		t.Errorf("Apply clamp low = %d, want %d", got, minScore)
	}
}

func TestStoreIsDead(t *testing.T) {
	s := Open(t.TempDir())
	s.Apply("n1", -(defaultScore - deadScore + 1))
	if !s.IsDead("n1") {
		t.Error("a node below deadScore should report IsDead")
	}
}

func TestStoreBanAndIsBanned(t *testing.T) {
	s := Open(t.TempDir())
	if s.IsBanned("1.2.3.4") {
		t.Error("a fresh store should not report any ip as banned")
	}
	s.Ban("1.2.3.4", ReasonBadProtocol)
	if !s.IsBanned("1.2.3.4") {
		t.Error("ip should be banned immediately after Ban")
	}
}

func TestStoreBanEscalatesOnRepeatOffense(t *testing.T) {
	s := Open(t.TempDir())
	s.Ban("1.2.3.4", ReasonBadProtocol)
	first := s.bans["1.2.3.4"]
	s.Ban("1.2.3.4", ReasonBadProtocol)
	second := s.bans["1.2.3.4"]
	if second.OffenseCount != first.OffenseCount+1 {
		t.Errorf("OffenseCount did not increment: %d -> %d", first.OffenseCount, second.OffenseCount)
	}
	if !second.ExpiresAt.After(first.ExpiresAt) {
		t.Error("a repeat offense should extend the ban further than the first")
	}
}

func TestStoreWhitelistPreventsBan(t *testing.T) {
	s := Open(t.TempDir())
	s.Whitelist("1.2.3.4")
	s.Ban("1.2.3.4", ReasonBadHandshake)
	if s.IsBanned("1.2.3.4") {
		t.Error("a whitelisted key should never be banned")
	}
}

func TestStoreUnban(t *testing.T) {
	s := Open(t.TempDir())
	s.Ban("1.2.3.4", ReasonSpam)
	s.Unban("1.2.3.4")
	if s.IsBanned("1.2.3.4") {
		t.Error("Unban should clear an active ban")
	}
}

func TestStoreDecayAllMovesTowardDefault(t *testing.T) {
	s := Open(t.TempDir())
	s.Apply("n1", -50) // score now defaultScore-50
	s.lastDecay["n1"] = time.Now().Add(-25 * time.Hour)

	s.DecayAll(time.Now())

	got := s.Score("n1")
	want := stepToward(defaultScore-50, defaultScore, decayStep)
	if got != want {
		t.Errorf("Score after one decay period = %d, want %d", got, want)
	}
}

func TestStoreDecayAllSkipsRecentlyTouched(t *testing.T) {
	s := Open(t.TempDir())
	s.Apply("n1", -50)
	before := s.Score("n1")

	s.DecayAll(time.Now()) // lastDecay was just now: no full period elapsed

	if got := s.Score("n1"); got != before {
		t.Errorf("DecayAll moved a recently-touched score: got %d, want %d", got, before)
	}
}

func TestStoreCheckpointAndReload(t *testing.T) {
	dir := t.TempDir()
	s := Open(dir)
	s.Apply("n1", -10)
	s.Ban("1.2.3.4", ReasonFloodControl)
	if err := s.Checkpoint(); err != nil {
		t.Fatal(err)
	}

	reloaded := Open(dir)
	if got := reloaded.Score("n1"); got != defaultScore-10 {
		t.Errorf("reloaded Score = %d, want %d", got, defaultScore-10)
	}
	if !reloaded.IsBanned("1.2.3.4") {
		t.Error("reloaded store lost a persisted ban")
	}
}

func TestStoreCheckpointSkipsWhenClean(t *testing.T) {
	s := Open(t.TempDir())
	if err := s.Checkpoint(); err != nil {
		t.Fatal(err)
	}
	if s.dirty {
		t.Error("dirty should be false immediately after a no-op checkpoint")
	}
}

func TestStoreCheckpointOmitsExpiredBans(t *testing.T) {
	dir := t.TempDir()
	s := Open(dir)
	s.mu.Lock()
	s.bans["5.6.7.8"] = &banRecord{Key: "5.6.7.8", Reason: ReasonSpam, ExpiresAt: time.Now().Add(-time.Hour)}
	s.dirty = true
	s.mu.Unlock()
	if err := s.Checkpoint(); err != nil {
		t.Fatal(err)
	}

	reloaded := Open(dir)
	if reloaded.IsBanned("5.6.7.8") {
		t.Error("an already-expired ban should not survive a checkpoint/reload cycle")
	}
}
