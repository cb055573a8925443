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

import "testing"

func TestIsPrioritized(t *testing.T) {
	for _, code := range []byte{CodeKadPing, CodeKadPong, CodeDisconnect, CodePing, CodePong} {
		if !isPrioritized(code) {
			t.Errorf("code %#x should be prioritized", code)
		}
	}
	if isPrioritized(CodeAppMin) {
		t.Error("application code should not be prioritized")
	}
}

func TestSendQueueDrainPrioritizedFirst(t *testing.T) {
	q := newSendQueue(4)
	if err := q.enqueue(CodeAppMin, []byte("normal")); err != nil {
		t.Fatal(err)
	}
	if err := q.enqueue(CodePing, []byte("ping")); err != nil {
		t.Fatal(err)
	}
	out := q.drain(2)
	if len(out) != 2 {
		t.Fatalf("drain returned %d frames, want 2", len(out))
	}
	if out[0].code != CodePing {
		t.Errorf("drain order = %#x first, want prioritized CodePing first", out[0].code)
	}
}

func TestSendQueueDrainRespectsMax(t *testing.T) {
	q := newSendQueue(10)
	for i := 0; i < 5; i++ {
		if err := q.enqueue(CodeAppMin, nil); err != nil {
			t.Fatal(err)
		}
	}
	out := q.drain(3)
	if len(out) != 3 {
		t.Fatalf("drain(3) returned %d frames, want 3", len(out))
	}
	rest := q.drain(10)
	if len(rest) != 2 {
		t.Fatalf("remaining drain returned %d frames, want 2", len(rest))
	}
}

func TestSendQueueFull(t *testing.T) {
	q := newSendQueue(2)
	if err := q.enqueue(CodeAppMin, nil); err != nil {
		t.Fatal(err)
	}
	if err := q.enqueue(CodeAppMin, nil); err != nil {
		t.Fatal(err)
	}
	if err := q.enqueue(CodeAppMin, nil); err != errQueueFull {
		t.Errorf("enqueue past capacity = %v, want errQueueFull", err)
	}
}

func TestSendQueueFullIsPerQueue(t *testing.T) {
	q := newSendQueue(1)
	if err := q.enqueue(CodeAppMin, nil); err != nil {
		t.Fatal(err)
	}
	// The prioritized queue has its own capacity independent of normal.
	if err := q.enqueue(CodePing, nil); err != nil {
		t.Errorf("prioritized enqueue blocked by full normal queue: %v", err)
	}
}

func TestSendQueueCloseRejectsFurtherEnqueue(t *testing.T) {
	q := newSendQueue(4)
	q.close()
	if err := q.enqueue(CodeAppMin, nil); err != errChannelClosed {
		t.Errorf("enqueue after close = %v, want errChannelClosed", err)
	}
	if out := q.drain(10); len(out) != 0 {
		t.Errorf("drain after close returned %d frames, want 0", len(out))
	}
}

func TestSendQueueDefaultCapacity(t *testing.T) {
	q := newSendQueue(0)
	if q.capacity != defaultQueueCapacity {
		t.Errorf("capacity = %d, want defaultQueueCapacity", q.capacity)
	}
}
