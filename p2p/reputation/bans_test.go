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

func TestDurationForOffenseDoubles(t *testing.T) {
	first := durationForOffense(ReasonBadProtocol, 1)
	second := durationForOffense(ReasonBadProtocol, 2)
	third := durationForOffense(ReasonBadProtocol, 3)
	if second != first*2 {
		t.Errorf("2nd offense duration = %v, want %v", second, first*2)
	}
	if third != first*4 {
		t.Errorf("3rd offense duration = %v, want %v", third, first*4)
	}
}

// TestBadProtocolThirdOffenseMatchesAcceptanceScenario pins the literal
// figures from the bad-protocol escalation scenario: a 60s base duration
// whose third offense must expire 240s (60*2^2) after it is banned.
func TestBadProtocolThirdOffenseMatchesAcceptanceScenario(t *testing.T) {
	if base := baseDuration[ReasonBadProtocol]; base != 60*time.Second {
		t.Fatalf("ReasonBadProtocol base duration = %v, want 60s", base)
	}
	if d := durationForOffense(ReasonBadProtocol, 3); d != 240*time.Second {
		t.Errorf("3rd bad-protocol offense duration = %v, want 240s", d)
	}
}

func TestDurationForOffenseCapsAtMax(t *testing.T) {
	d := durationForOffense(ReasonBadHandshake, 20)
	if d != maxBanDuration {
		t.Errorf("durationForOffense with many prior offenses = %v, want maxBanDuration", d)
	}
}

func TestDurationForOffenseClampsBelowOne(t *testing.T) {
	if durationForOffense(ReasonSpam, 0) != baseDuration[ReasonSpam] {
		t.Error("offenseNum below 1 should behave like the first offense")
	}
}

func TestReasonStringCoversEveryEnumerator(t *testing.T) {
	for r := ReasonUnknown; r < reasonCount; r++ {
		if r != ReasonUnknown && r.String() == "unknown" {
			t.Errorf("Reason(%d).String() fell through to the unknown case", r)
		}
	}
}

func TestBanRecordExpired(t *testing.T) {
	now := time.Now()
	rec := &banRecord{ExpiresAt: now.Add(-time.Minute)}
	if !rec.expired(now) {
		t.Error("a ban whose ExpiresAt is in the past should report expired")
	}
	rec2 := &banRecord{ExpiresAt: now.Add(time.Minute)}
	if rec2.expired(now) {
		t.Error("a ban whose ExpiresAt is in the future should not report expired")
	}
}
