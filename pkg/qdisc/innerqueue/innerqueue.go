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

// Package innerqueue defines the contract a scheduler slot's sub-queue must
// satisfy, and provides two implementations: a tail-drop FIFO (stands in for
// the ns-3 RedQueue behind SFQ) and a CoDel AQM (behind FQ-CoDel).
package innerqueue

// Packet is the subset of packet.Packet the inner queue needs. Kept narrow
// and separate from packet.Packet so this package has no dependency on the
// concrete packet contract's header-parsing methods.
type Packet interface {
	Size() int
}

// Queue is the contract every inner sub-queue implements.
type Queue interface {
	// Enqueue accepts p unless the queue is full, in which case it drops p
	// and returns false. Accounting (backlog, counters) is the caller's
	// responsibility; the queue only reports acceptance.
	Enqueue(p Packet) bool
	// Dequeue returns the next packet to deliver, or (nil, false) if none is
	// available right now. An AQM implementation may drop packets internally
	// before returning a non-dropped one.
	Dequeue() (Packet, bool)
	// Peek returns the packet Dequeue would currently return, without side
	// effects. May return (nil, false) even for a logically non-empty queue
	// mid-drop-decision; callers treat that as "no packet available now".
	Peek() (Packet, bool)
	// Size returns the number of packets currently queued.
	Size() int
}
