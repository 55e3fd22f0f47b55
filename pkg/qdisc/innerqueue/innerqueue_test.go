// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package innerqueue

import (
	"testing"
	"time"
)

type testPacket struct{ size int }

func (p testPacket) Size() int { return p.size }

func TestFIFOOrderingAndDrop(t *testing.T) {
	q := NewFIFO(2)
	if !q.Enqueue(testPacket{100}) {
		t.Fatal("expected first enqueue to succeed")
	}
	if !q.Enqueue(testPacket{200}) {
		t.Fatal("expected second enqueue to succeed")
	}
	if q.Enqueue(testPacket{300}) {
		t.Fatal("expected third enqueue to be tail-dropped")
	}
	p, ok := q.Dequeue()
	if !ok || p.Size() != 100 {
		t.Fatalf("Dequeue() = %+v, %v, want 100, true", p, ok)
	}
	if q.Bytes() != 200 {
		t.Fatalf("Bytes() = %d, want 200", q.Bytes())
	}
}

func TestFIFOPeekDoesNotConsume(t *testing.T) {
	q := NewFIFO(1)
	q.Enqueue(testPacket{50})
	if p, ok := q.Peek(); !ok || p.Size() != 50 {
		t.Fatalf("Peek() = %+v, %v", p, ok)
	}
	if q.Size() != 1 {
		t.Fatal("Peek() should not consume the packet")
	}
}

func TestCoDelPassesTrafficBelowTarget(t *testing.T) {
	now := time.Unix(0, 0)
	c := NewCoDel(CoDelConfig{
		Target: 5 * time.Millisecond,
		Clock:  func() time.Time { return now },
	})
	c.Enqueue(testPacket{100})
	now = now.Add(time.Millisecond)
	p, ok := c.Dequeue()
	if !ok || p.Size() != 100 {
		t.Fatalf("Dequeue() = %+v, %v, want 100, true", p, ok)
	}
	dropped, _ := c.Dropped()
	if dropped != 0 {
		t.Fatalf("expected no drops below target, got %d", dropped)
	}
}

func TestCoDelDropsOnceAboveTargetForAnInterval(t *testing.T) {
	now := time.Unix(0, 0)
	c := NewCoDel(CoDelConfig{
		Target:   5 * time.Millisecond,
		Interval: 100 * time.Millisecond,
		Clock:    func() time.Time { return now },
	})
	for i := 0; i < 10; i++ {
		c.Enqueue(testPacket{100})
		now = now.Add(20 * time.Millisecond)
	}
	now = now.Add(200 * time.Millisecond)

	// Keep the clock moving while draining so that a full interval passes
	// after the first above-target dequeue.
	dropSeen := false
	for i := 0; i < 10; i++ {
		if _, ok := c.Dequeue(); !ok {
			break
		}
		now = now.Add(20 * time.Millisecond)
	}
	dropped, _ := c.Dropped()
	if dropped > 0 {
		dropSeen = true
	}
	if !dropSeen {
		t.Fatal("expected at least one drop once sojourn persists above target")
	}
}

func TestCoDelRejectsBeyondCapacity(t *testing.T) {
	c := NewCoDel(CoDelConfig{MaxPackets: 1, Clock: time.Now})
	if !c.Enqueue(testPacket{10}) {
		t.Fatal("expected first enqueue to succeed")
	}
	if c.Enqueue(testPacket{10}) {
		t.Fatal("expected second enqueue to be rejected at capacity")
	}
}

func TestCoDelEmptyDequeueResetsDropping(t *testing.T) {
	now := time.Unix(0, 0)
	c := NewCoDel(CoDelConfig{Clock: func() time.Time { return now }})
	c.dropping = true
	if _, ok := c.Dequeue(); ok {
		t.Fatal("expected false on empty queue")
	}
	if c.dropping {
		t.Fatal("expected an empty Dequeue to leave the dropping state")
	}
}
